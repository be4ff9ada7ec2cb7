// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package xfer

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/purecloudlabs/isomaker/pkg/common"
)

// VerifyFile computes the SHA-256 of a file and compares it with expected,
// ignoring case. An empty expected value always matches.
func VerifyFile(path, expected string) (common.Verification, error) {
	f, err := os.Open(path)
	if err != nil {
		return common.Verification{}, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return common.Verification{}, err
	}
	v := common.Verification{Digest: strings.ToUpper(hex.EncodeToString(h.Sum(nil)))}
	expected = strings.TrimSpace(expected)
	v.Match = expected == "" || strings.EqualFold(v.Digest, expected)
	return v, nil
}

// FileCheck pairs a file with the digest it should have.
type FileCheck struct {
	Path     string
	Expected string
}

var _ common.Verifyer = FileCheck{}

func (fc FileCheck) Verify() (common.Verification, error) { return VerifyFile(fc.Path, fc.Expected) }
