// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
)

var (
	oldLabel = []drive.Drive{{PhysicalIndex: 1, Letter: "E:", VolumeLabel: "OLDLABEL"}}
	ventoyd  = []drive.Drive{{PhysicalIndex: 1, Letter: "F:", VolumeLabel: "Ventoy"}, {PhysicalIndex: 1, VolumeLabel: "VTOYEFI"}}
	other    = []drive.Drive{{PhysicalIndex: 2, Letter: "E:", VolumeLabel: "VENTOY"}}
)

func running(pct Percent) Snapshot {
	return Snapshot{State: Running, Percent: pct, PhysicalIndex: 1, LastKnownLetter: "E:", Seen: true}
}

func TestFuse(t *testing.T) {
	p := Policy{SuccessLabel: "VENTOY"}
	start := Initial(Target{PhysicalIndex: -1, Letter: "E:"})
	for name, tc := range map[string]struct {
		prev  Snapshot
		ev    Evidence
		check func(t *testing.T, s Snapshot)
	}{
		"no evidence stays waiting": {
			prev: start,
			ev:   Evidence{Drives: oldLabel},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Waiting || s.Percent != Unknown {
					t.Errorf("%+v", s)
				}
				if s.PhysicalIndex != 1 {
					t.Errorf("index not resolved from letter: %d", s.PhysicalIndex)
				}
			},
		},
		"timeout": {
			prev: running(40),
			ev:   Evidence{Elapsed: DefaultCeiling, Drives: ventoyd},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Failure || !s.TimedOut || s.Percent != 40 {
					t.Errorf("%+v", s)
				}
			},
		},
		"declined elevation": {
			prev: start,
			ev:   Evidence{LaunchErr: errors.New("cancelled"), Drives: oldLabel},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Failure || s.TimedOut || s.Err != "cancelled" {
					t.Errorf("%+v", s)
				}
			},
		},
		"label beats done file": {
			prev: running(50),
			ev:   Evidence{Drives: ventoyd, HaveDone: true, Done: "1"},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Success || s.Percent != 100 {
					t.Errorf("%+v", s)
				}
			},
		},
		"label already present at start": {
			prev: Snapshot{State: Running, Percent: 30, PhysicalIndex: 1, Seen: true, LabelAtStart: true},
			ev:   Evidence{Drives: ventoyd, HavePercent: true, Percent: 35},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Running || s.Percent != 35 {
					t.Errorf("%+v", s)
				}
			},
		},
		"label present at start, then vanish": {
			prev: Snapshot{State: Running, Percent: 30, PhysicalIndex: 1, Seen: true, LabelAtStart: true, SawDeviceDisappear: true},
			ev:   Evidence{Drives: ventoyd},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Success {
					t.Errorf("%+v", s)
				}
			},
		},
		"label on another disk": {
			prev: running(10),
			ev:   Evidence{Drives: append(append([]drive.Drive{}, oldLabel...), other...)},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Running || s.Percent != 10 {
					t.Errorf("%+v", s)
				}
			},
		},
		"done zero": {
			prev: running(90),
			ev:   Evidence{Drives: oldLabel, HaveDone: true, Done: "0"},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Success || s.Percent != 100 {
					t.Errorf("%+v", s)
				}
			},
		},
		"done nonzero": {
			prev: running(90),
			ev:   Evidence{Drives: oldLabel, HaveDone: true, Done: "1", LogTail: "disk busy\n"},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Failure || s.LogTail != "disk busy" || s.Err == "" {
					t.Errorf("%+v", s)
				}
			},
		},
		"evidence error": {
			prev: running(20),
			ev:   Evidence{Drives: oldLabel, Err: errors.New("access denied")},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Failure || s.Err != "access denied" {
					t.Errorf("%+v", s)
				}
			},
		},
		"vanished": {
			prev: start,
			ev:   Evidence{},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Running || s.Percent != DefaultFloor || !s.SawDeviceDisappear {
					t.Errorf("%+v", s)
				}
			},
		},
		"vanished keeps higher percent": {
			prev: running(60),
			ev:   Evidence{HavePercent: true, Percent: 70},
			check: func(t *testing.T, s Snapshot) {
				if s.Percent != 70 {
					t.Errorf("%+v", s)
				}
			},
		},
		"back without label": {
			prev: Snapshot{State: Running, Percent: DefaultFloor, PhysicalIndex: 1, Seen: true, SawDeviceDisappear: true},
			ev:   Evidence{Drives: []drive.Drive{{PhysicalIndex: 1, Letter: "G:"}}},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Running || s.Percent != DefaultFloor || s.LastKnownLetter != "G:" {
					t.Errorf("%+v", s)
				}
			},
		},
		"percent never decreases": {
			prev: running(60),
			ev:   Evidence{Drives: oldLabel, HavePercent: true, Percent: 40},
			check: func(t *testing.T, s Snapshot) {
				if s.Percent != 60 || s.StaleTicks != 0 {
					t.Errorf("%+v", s)
				}
			},
		},
		"first percent": {
			prev: start,
			ev:   Evidence{Drives: oldLabel, HavePercent: true, Percent: 0},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Running || s.Percent != 0 || s.StaleTicks != 1 || s.Hint != "" {
					t.Errorf("%+v", s)
				}
			},
		},
		"stale zero reads": {
			prev: Snapshot{State: Running, Percent: 0, PhysicalIndex: 1, Seen: true, StaleTicks: DefaultStaleTicks - 1},
			ev:   Evidence{Drives: oldLabel, HavePercent: true, Percent: 0},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Running || s.Hint != HintWaitingUAC {
					t.Errorf("%+v", s)
				}
			},
		},
		"nonzero clears stale": {
			prev: Snapshot{State: Running, Percent: 0, PhysicalIndex: 1, Seen: true, StaleTicks: 7, Hint: HintWaitingUAC},
			ev:   Evidence{Drives: oldLabel, HavePercent: true, Percent: 3},
			check: func(t *testing.T, s Snapshot) {
				if s.StaleTicks != 0 || s.Hint != "" || s.Percent != 3 {
					t.Errorf("%+v", s)
				}
			},
		},
		"terminal is absorbing": {
			prev: Snapshot{State: Success, Percent: 100},
			ev:   Evidence{Elapsed: time.Hour, LaunchErr: errors.New("x")},
			check: func(t *testing.T, s Snapshot) {
				if s.State != Success || s.TimedOut {
					t.Errorf("%+v", s)
				}
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			tc.check(t, Fuse(tc.prev, tc.ev, p))
		})
	}
}

// E: labelled OLDLABEL disappears, then comes back as F: labelled VENTOY.
func TestFuseRelabelSequence(t *testing.T) {
	p := Policy{SuccessLabel: "VENTOY"}
	s := Initial(Target{PhysicalIndex: -1, Letter: "E:"})
	s = Fuse(s, Evidence{Drives: oldLabel}, p)
	if s.State != Waiting || s.PhysicalIndex != 1 {
		t.Fatalf("after first sight: %+v", s)
	}
	s = Fuse(s, Evidence{Drives: []drive.Drive{}}, p)
	if s.State != Running || s.Percent < DefaultFloor || !s.SawDeviceDisappear {
		t.Fatalf("after vanish: %+v", s)
	}
	s = Fuse(s, Evidence{Drives: ventoyd}, p)
	if s.State != Success || s.Percent != 100 || s.LastKnownLetter != "F:" {
		t.Fatalf("after relabel: %+v", s)
	}
}

func TestPercentJSON(t *testing.T) {
	b, _ := Unknown.MarshalJSON()
	if string(b) != "null" {
		t.Errorf("got %s", b)
	}
	var p Percent
	if err := p.UnmarshalJSON([]byte("null")); err != nil || p != Unknown {
		t.Errorf("got %d %v", p, err)
	}
	if err := p.UnmarshalJSON([]byte("42")); err != nil || p != 42 {
		t.Errorf("got %d %v", p, err)
	}
}
