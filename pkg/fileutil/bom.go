// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fileutil

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

/* http://www.unicode.org/faq/utf_bom.html#BOM
Bytes		Encoding Form
FE FF        UTF-16, big-endian
FF FE        UTF-16, little-endian
EF BB BF     UTF-8

Windows tools write any of these. PowerShell 5 redirection produces UTF-16LE
with a BOM, cmd.exe produces bytes without one.
*/

// DecodeText converts b to a UTF-8 string, honoring and stripping any byte
// order mark. Without a BOM, b is assumed to already be UTF-8.
func DecodeText(b []byte) string {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
