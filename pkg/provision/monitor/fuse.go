// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
)

// Evidence is one round of observations. The zero value observes nothing.
type Evidence struct {
	Elapsed time.Duration
	// Non-nil once the launcher has reported a failure, e.g. declined
	// elevation.
	LaunchErr error
	// Contents of the percent file, if it could be parsed.
	HavePercent bool
	Percent     int
	// First token of the done file, if present.
	HaveDone bool
	Done     string
	LogTail  string
	// Inventory snapshot. Absence of the target is evidence too.
	Drives []drive.Drive
	// Set when evidence could not be read for a reason other than absence.
	Err error
}

// Fuse combines prev with one round of evidence. It is pure; rules are
// applied in order and the first to match wins. Terminal snapshots are
// returned unchanged.
func Fuse(prev Snapshot, ev Evidence, p Policy) Snapshot {
	if prev.State.Terminal() {
		return prev
	}
	p = p.withDefaults()
	next := prev
	volumes, found := locate(&next, ev.Drives)
	if found && !prev.Seen {
		next.Seen = true
		if !prev.SawDeviceDisappear {
			next.LabelAtStart = drive.HasLabel(volumes, p.SuccessLabel)
		}
	}
	labelled := found && drive.HasLabel(volumes, p.SuccessLabel)

	switch {
	case ev.Elapsed >= p.Ceiling:
		next.fail((&common.TimeoutError{After: p.Ceiling}).Error(), ev.LogTail)
		next.TimedOut = true
	case ev.LaunchErr != nil:
		next.fail(ev.LaunchErr.Error(), ev.LogTail)
	case labelled && (!next.LabelAtStart || prev.SawDeviceDisappear):
		next.succeed()
	case ev.HaveDone:
		if ev.Done == "0" {
			next.succeed()
		} else {
			next.fail(fmt.Sprintf("installer reported failure (code %s)", ev.Done), ev.LogTail)
		}
	case ev.Err != nil:
		next.fail(ev.Err.Error(), ev.LogTail)
	case !found:
		next.SawDeviceDisappear = true
		next.runningAtLeast(p.Floor, ev)
	case prev.SawDeviceDisappear:
		next.runningAtLeast(p.Floor, ev)
	case ev.HavePercent:
		next.State = Running
		if pct := Percent(ev.Percent); pct > next.Percent {
			next.Percent = pct
		}
		if ev.Percent == 0 {
			next.StaleTicks++
		} else {
			next.StaleTicks = 0
		}
		if next.StaleTicks >= p.StaleTicks {
			next.Hint = HintWaitingUAC
		} else {
			next.Hint = ""
		}
	}
	return next
}

// Finds the target's volumes in drives, resolving the physical index from the
// last known letter if necessary. Updates the last known letter.
func locate(s *Snapshot, drives []drive.Drive) ([]drive.Drive, bool) {
	if s.PhysicalIndex < 0 {
		d, ok := drive.ByLetter(drives, s.LastKnownLetter)
		if !ok {
			return nil, false
		}
		s.PhysicalIndex = d.PhysicalIndex
	}
	vols := drive.ByIndex(drives, s.PhysicalIndex)
	if len(vols) == 0 {
		return nil, false
	}
	for _, v := range vols {
		if l := drive.NormalizeLetter(v.Letter); l != "" {
			s.LastKnownLetter = l
			break
		}
	}
	return vols, true
}

func (s *Snapshot) succeed() {
	s.State = Success
	s.Percent = 100
	s.Hint = ""
}

func (s *Snapshot) fail(msg, logTail string) {
	s.State = Failure
	s.Hint = ""
	s.Err = msg
	s.LogTail = strings.TrimSpace(logTail)
}

// The disk is being rewritten; the percent file may lag or be gone.
func (s *Snapshot) runningAtLeast(floor Percent, ev Evidence) {
	s.State = Running
	s.Hint = ""
	if s.Percent < floor {
		s.Percent = floor
	}
	if pct := Percent(ev.Percent); ev.HavePercent && pct > s.Percent {
		s.Percent = pct
	}
}
