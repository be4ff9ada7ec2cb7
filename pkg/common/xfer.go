// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package common

import "encoding/json"

// Progress of a single transfer, reported after every chunk.
type TransferProgress struct {
	Received int64  `json:"received"`
	Total    int64  `json:"total"`   //-1 if unknown
	Percent  int    `json:"percent"` //-1 if unknown
	Filename string `json:"filename"`
}

// Unknown total and percent are encoded as null.
func (p TransferProgress) MarshalJSON() ([]byte, error) {
	type wire struct {
		Received int64  `json:"received"`
		Total    *int64 `json:"total"`
		Percent  *int   `json:"percent"`
		Filename string `json:"filename"`
	}
	w := wire{Received: p.Received, Filename: p.Filename}
	if p.Total >= 0 {
		w.Total = &p.Total
	}
	if p.Percent >= 0 {
		w.Percent = &p.Percent
	}
	return json.Marshal(w)
}

type ProgressFunc func(TransferProgress)

// Outcome of comparing a file's digest with an expected value.
type Verification struct {
	Digest string `json:"digest"`
	Match  bool   `json:"match"`
}

type Verifyer interface {
	Verify() (Verification, error)
}
