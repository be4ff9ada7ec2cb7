// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"
)

const (
	EventProgress = "progress"
	EventDone     = "done"
)

type Progress struct {
	Percent Percent `json:"percent"`
	State   State   `json:"state"`
	Hint    string  `json:"hint,omitempty"`
}

type Done struct {
	State    State   `json:"state"`
	Percent  Percent `json:"percent"`
	LogTail  string  `json:"logTail,omitempty"`
	TimedOut bool    `json:"timedOut"`
	Error    string  `json:"error,omitempty"`
}

// Event is either a Progress or a Done.
type Event struct {
	Type string
	Data interface{}
}

// Sink receives a monitor's events, in order. It is never called after Stop
// returns. It must not call back into the monitor. ctx is cancelled when Stop
// is called; a sink which blocks must give up then, or Stop waits for it.
type Sink func(ctx context.Context, e Event)

type Config struct {
	ID        string
	WorkDir   string
	Target    Target
	Inventory drive.Inventory
	// Outcome of the launch; see launch.Handle. May be nil.
	Launch <-chan error
	Policy Policy
	Sink   Sink
	// Clock; time.Now if nil.
	Now func() time.Time
}

// Monitor tracks one provisioning run.
type Monitor struct {
	id     string
	policy Policy
	g      gatherer
	sink   Sink
	now    func() time.Time
	start  time.Time
	log    log.Prefixed

	launch    <-chan error
	launchErr error

	mu      sync.Mutex
	snap    Snapshot
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config) *Monitor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	p := cfg.Policy.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		id:     cfg.ID,
		policy: p,
		g:      gatherer{workDir: cfg.WorkDir, inv: cfg.Inventory, tailSize: p.LogTailBytes},
		sink:   cfg.Sink,
		now:    now,
		start:  now(),
		log:    log.Prefixed("session " + cfg.ID + ": "),
		launch: cfg.Launch,
		snap:   Initial(cfg.Target),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (m *Monitor) ID() string { return m.id }

// Current snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Closed once Run has returned.
func (m *Monitor) Finished() <-chan struct{} { return m.done }

// Stop ends monitoring. Once it returns the sink will not be called again and
// the snapshot no longer changes. Safe to call more than once.
func (m *Monitor) Stop() {
	//releases a sink blocked under m.mu
	m.cancel()
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// Run polls until the run reaches a terminal state or Stop is called. A new
// round starts only after the previous one completed; a change to a status
// file starts one early.
func (m *Monitor) Run() {
	defer close(m.done)
	wake, unwatch := watchStatus(m.g.workDir)
	defer unwatch()
	timer := time.NewTimer(m.policy.Interval)
	defer timer.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
		case <-wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		if m.Tick() {
			return
		}
		timer.Reset(m.policy.Interval)
	}
}

// Tick gathers one round of evidence and applies it. Returns true once the
// run is over, either terminal or stopped. Not safe for concurrent use; Run
// is the only caller outside of tests.
func (m *Monitor) Tick() (over bool) {
	m.pollLaunch()
	ev := m.g.gather(m.ctx)
	ev.Elapsed = m.now().Sub(m.start)
	ev.LaunchErr = m.launchErr

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return true
	}
	prev := m.snap
	if prev.State.Terminal() {
		return true
	}
	next := Fuse(prev, ev, m.policy)
	m.snap = next
	if next.State.Terminal() {
		m.log.Logf("%s after %s: %s", next.State, ev.Elapsed.Round(time.Second), next.Err)
		m.emit(Event{Type: EventDone, Data: Done{
			State:    next.State,
			Percent:  next.Percent,
			LogTail:  next.LogTail,
			TimedOut: next.TimedOut,
			Error:    next.Err,
		}})
		return true
	}
	if next.State != prev.State || next.Percent != prev.Percent || next.Hint != prev.Hint {
		m.log.Debugf("%s %d%% %s", next.State, next.Percent, next.Hint)
		m.emit(Event{Type: EventProgress, Data: Progress{
			Percent: next.Percent,
			State:   next.State,
			Hint:    next.Hint,
		}})
	}
	return false
}

func (m *Monitor) pollLaunch() {
	if m.launch == nil || m.launchErr != nil {
		return
	}
	select {
	case err, ok := <-m.launch:
		if !ok {
			m.launch = nil
			return
		}
		if err != nil {
			m.log.Logf("launch failed: %s", err)
			m.launchErr = err
		}
	default:
	}
}

// Caller holds m.mu.
func (m *Monitor) emit(e Event) {
	if m.sink != nil {
		m.sink(m.ctx, e)
	}
}
