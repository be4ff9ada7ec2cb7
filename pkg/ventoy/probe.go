// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package ventoy

import (
	"os"
	fp "path/filepath"

	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
)

// Result of looking for Ventoy's files on a volume.
type ProbeResult struct {
	Root     string `json:"root"`
	HasDir   bool   `json:"hasVdir"`
	HasJSON  bool   `json:"hasVjson"`
	Readable bool   `json:"readable"`
}

// Probe checks a volume for the ventoy dir and its ventoy.json plugin config.
// letter may be a drive letter, or for tests a directory.
func Probe(letter string) ProbeResult {
	root := letter
	if l := drive.NormalizeLetter(letter); l != "" {
		root = l + `\`
	}
	res := ProbeResult{Root: root}
	if _, err := os.Stat(root); err != nil {
		return res
	}
	res.Readable = true
	vdir := fp.Join(root, "ventoy")
	if fi, err := os.Stat(vdir); err == nil && fi.IsDir() {
		res.HasDir = true
	}
	if _, err := os.Stat(fp.Join(vdir, "ventoy.json")); err == nil {
		res.HasJSON = true
	}
	return res
}
