// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package monitor infers the progress of a detached installer run from
// indirect evidence: status files in its working directory, the target disk
// disappearing and coming back, and its volume label.
//
// None of these signals is reliable on its own. Fuse combines one round of
// evidence with the previous Snapshot; Monitor gathers the evidence on a timer
// and reports changes to a Sink.
package monitor

import (
	"encoding/json"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common/strs"
)

type State string

const (
	// Nothing observed yet; most likely the elevation prompt is showing.
	Waiting State = "waiting"
	Running State = "running"
	Success State = "success"
	Failure State = "failure"
)

func (s State) Terminal() bool { return s == Success || s == Failure }

// Hint attached to a running snapshot whose percent has read zero for too
// long.
const HintWaitingUAC = "waiting_uac"

// Percent is 0..100, or Unknown. Unknown marshals as null.
type Percent int

const Unknown Percent = -1

func (p Percent) MarshalJSON() ([]byte, error) {
	if p < 0 {
		return []byte("null"), nil
	}
	return json.Marshal(int(p))
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Unknown
		return nil
	}
	var i int
	if err := json.Unmarshal(b, &i); err != nil {
		return err
	}
	*p = Percent(i)
	return nil
}

// The disk being provisioned. A negative PhysicalIndex is resolved from
// Letter the first time the disk is seen.
type Target struct {
	PhysicalIndex int    `json:"physIndex"`
	Letter        string `json:"letter"`
	// Whether the disk already carried the success label when the run
	// started. Only meaningful if Seen.
	LabelAtStart bool `json:"labelAtStart"`
	Seen         bool `json:"-"`
}

// Snapshot is the fused view of a provisioning run.
type Snapshot struct {
	State              State   `json:"state"`
	Percent            Percent `json:"percent"`
	Hint               string  `json:"hint,omitempty"`
	TimedOut           bool    `json:"timedOut,omitempty"`
	SawDeviceDisappear bool    `json:"sawDeviceDisappear,omitempty"`
	StaleTicks         int     `json:"-"`
	PhysicalIndex      int     `json:"physIndex"`
	LastKnownLetter    string  `json:"letter"`
	LabelAtStart       bool    `json:"-"`
	Seen               bool    `json:"-"`
	LogTail            string  `json:"logTail,omitempty"`
	Err                string  `json:"error,omitempty"`
}

// Initial returns the snapshot of a run which has not been observed yet.
func Initial(t Target) Snapshot {
	return Snapshot{
		State:           Waiting,
		Percent:         Unknown,
		PhysicalIndex:   t.PhysicalIndex,
		LastKnownLetter: t.Letter,
		LabelAtStart:    t.LabelAtStart,
		Seen:            t.Seen,
	}
}

// Policy holds the tunables of the inference.
type Policy struct {
	// Time between evidence rounds.
	Interval time.Duration
	// A run which has not finished after this long has failed.
	Ceiling time.Duration
	// Consecutive zero-percent reads before HintWaitingUAC.
	StaleTicks int
	// Percent reported once the disk has been seen to disappear.
	Floor Percent
	// Volume label which indicates success.
	SuccessLabel string
	// Bytes of the installer log kept for reporting.
	LogTailBytes int64
}

const (
	DefaultInterval     = 600 * time.Millisecond
	DefaultCeiling      = 10 * time.Minute
	DefaultStaleTicks   = 5
	DefaultFloor        = Percent(5)
	DefaultLogTailBytes = 4096
)

func DefaultPolicy() Policy {
	return Policy{
		Interval:     DefaultInterval,
		Ceiling:      DefaultCeiling,
		StaleTicks:   DefaultStaleTicks,
		Floor:        DefaultFloor,
		SuccessLabel: strs.SuccessLabel(),
		LogTailBytes: DefaultLogTailBytes,
	}
}

// Zero fields take their defaults.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.Ceiling <= 0 {
		p.Ceiling = d.Ceiling
	}
	if p.StaleTicks <= 0 {
		p.StaleTicks = d.StaleTicks
	}
	if p.Floor <= 0 {
		p.Floor = d.Floor
	}
	if p.SuccessLabel == "" {
		p.SuccessLabel = d.SuccessLabel
	}
	if p.LogTailBytes <= 0 {
		p.LogTailBytes = d.LogTailBytes
	}
	return p
}
