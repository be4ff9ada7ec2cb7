// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package drive reports the removable drives attached to the machine.
//
// A Drive is one volume on a physical disk. The physical index is the only
// stable identity: the letter changes whenever the disk is repartitioned or
// re-enumerated, and the label changes when the installer formats it.
package drive

import (
	"context"
	"strings"
)

// Drive is a point-in-time description of a volume on a removable disk.
type Drive struct {
	PhysicalIndex int    `json:"physIndex"`
	Letter        string `json:"letter"`
	VolumeLabel   string `json:"volumeLabel"`
	FileSystem    string `json:"fileSystem"`
	SizeBytes     int64  `json:"sizeBytes"`
	Model         string `json:"model"`
	Serial        string `json:"serial"`
	DeviceID      string `json:"deviceId"`
	MediaType     string `json:"mediaType"`
	InterfaceType string `json:"interfaceType"`
}

// Inventory produces a fresh snapshot on each call. Failures yield an empty
// slice; order is not guaranteed.
type Inventory interface {
	List(ctx context.Context) []Drive
}

// NormalizeLetter returns the letter in the form "E:", or "" if s does not
// name a drive letter.
func NormalizeLetter(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "\\/")
	s = strings.TrimSuffix(s, ":")
	if len(s) != 1 {
		return ""
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return ""
	}
	return string(c) + ":"
}

// Returns all volumes on the given physical disk.
func ByIndex(drives []Drive, idx int) (out []Drive) {
	for _, d := range drives {
		if d.PhysicalIndex == idx {
			out = append(out, d)
		}
	}
	return
}

// Returns the volume with the given letter, if any.
func ByLetter(drives []Drive, letter string) (Drive, bool) {
	letter = NormalizeLetter(letter)
	if letter == "" {
		return Drive{}, false
	}
	for _, d := range drives {
		if NormalizeLetter(d.Letter) == letter {
			return d, true
		}
	}
	return Drive{}, false
}

// True if any of the volumes carries label, ignoring case.
func HasLabel(volumes []Drive, label string) bool {
	for _, d := range volumes {
		if label != "" && strings.EqualFold(strings.TrimSpace(d.VolumeLabel), label) {
			return true
		}
	}
	return false
}

// Removes every volume on a physical disk which also hosts sysLetter.
func withoutSystemDisk(drives []Drive, sysLetter string) []Drive {
	sys, ok := ByLetter(drives, sysLetter)
	if !ok {
		return drives
	}
	out := drives[:0:0]
	for _, d := range drives {
		if d.PhysicalIndex != sys.PhysicalIndex {
			out = append(out, d)
		}
	}
	return out
}
