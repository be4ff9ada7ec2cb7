// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package ventoy knows how to drive the Ventoy2Disk command line installer:
// its arguments, the status files it leaves in its working directory, and
// where it is usually installed.
package ventoy

import (
	"errors"
	"fmt"
	"os"
	fp "path/filepath"

	"github.com/purecloudlabs/isomaker/pkg/common/strs"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"

	"github.com/google/shlex"
)

// Files written by the installer into its working directory.
const (
	PercentFile = "cli_percent.txt"
	DoneFile    = "cli_done.txt"
	LogFile     = "cli_log.txt"
)

type Mode string

const (
	Install Mode = "install"
	Update  Mode = "update"
)

// Label the installer gives the data partition.
func SuccessLabel() string { return strs.SuccessLabel() }

var (
	ENoTarget = errors.New("no target drive given")
	EBadMode  = errors.New("mode must be install or update")
)

// Options for one installer run. Target is a physical index (preferred) or,
// if that is negative, a drive letter.
type Options struct {
	Mode          Mode
	PhysicalIndex int
	Letter        string
	GPT           bool
	NoSecureBoot  bool
	NoUSBCheck    bool
	// Keep existing data; install only.
	NonDestructive bool
	// Space left unallocated at the end of the disk, in MB; install only.
	ReserveMB int
	// Filesystem of the data partition, e.g. exfat or ntfs; install only.
	FS string
	// Additional switches, split with shell quoting rules.
	Extra string
}

// Args returns the installer's argument list, beginning with VTOYCLI.
func Args(o Options) ([]string, error) {
	args := []string{"VTOYCLI"}
	switch o.Mode {
	case Install:
		args = append(args, "/I")
	case Update:
		args = append(args, "/U")
	default:
		return nil, EBadMode
	}
	if o.PhysicalIndex >= 0 {
		args = append(args, fmt.Sprintf("/PhyDrive:%d", o.PhysicalIndex))
	} else if l := drive.NormalizeLetter(o.Letter); l != "" {
		args = append(args, "/Drive:"+l)
	} else {
		return nil, ENoTarget
	}
	if o.GPT {
		args = append(args, "/GPT")
	}
	if o.NoSecureBoot {
		args = append(args, "/NOSB")
	}
	if o.NoUSBCheck {
		args = append(args, "/NOUSBCheck")
	}
	if o.Mode == Install {
		if o.NonDestructive {
			args = append(args, "/NonDest")
		}
		if o.ReserveMB > 0 {
			args = append(args, fmt.Sprintf("/R:%d", o.ReserveMB))
		}
		if o.FS != "" {
			args = append(args, "/FS:"+o.FS)
		}
	}
	if o.Extra != "" {
		extra, err := shlex.Split(o.Extra)
		if err != nil {
			return nil, fmt.Errorf("parsing extra flags %q: %w", o.Extra, err)
		}
		args = append(args, extra...)
	}
	return args, nil
}

// Removes status files left behind by an earlier run in dir.
func ClearStatus(dir string) {
	for _, f := range []string{PercentFile, DoneFile, LogFile} {
		err := os.Remove(fp.Join(dir, f))
		if err != nil && !os.IsNotExist(err) {
			log.Logf("removing stale %s: %s", f, err)
		}
	}
}

// Candidate locations of the installer, most specific first.
func Candidates(explicit string) []string {
	var c []string
	if explicit != "" {
		c = append(c, explicit)
	}
	if wd, err := os.Getwd(); err == nil {
		c = append(c,
			fp.Join(wd, "vendor", "ventoy", "win", "Ventoy2Disk.exe"),
			fp.Join(wd, "IsoMaker", "vendor", "ventoy", "win", "Ventoy2Disk.exe"),
		)
	}
	if exe, err := os.Executable(); err == nil {
		c = append(c, fp.Join(fp.Dir(exe), "vendor", "ventoy", "win", "Ventoy2Disk.exe"))
	}
	return append(c, `C:\ventoy\Ventoy2Disk.exe`)
}

// FindInstaller returns the first candidate which exists, or explicit if none
// do. The result may be "".
func FindInstaller(explicit string) string {
	for _, c := range Candidates(explicit) {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c
		}
	}
	return explicit
}
