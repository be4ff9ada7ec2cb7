// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package monitor

import (
	"context"
	"errors"
	"os"
	fp "path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log/testlog"
	"github.com/purecloudlabs/isomaker/pkg/ventoy"
)

// collects events from a monitor
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) get() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestMonitor(t *testing.T, inv drive.Inventory, launch <-chan error) (*Monitor, *recorder, *fakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	rec := &recorder{}
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := New(Config{
		ID:        "abc",
		WorkDir:   dir,
		Target:    Target{PhysicalIndex: -1, Letter: "E:"},
		Inventory: inv,
		Launch:    launch,
		Policy:    Policy{SuccessLabel: "VENTOY"},
		Sink:      rec.sink,
		Now:       clk.now,
	})
	return m, rec, clk, dir
}

func writeStatus(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(fp.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestVanishThenLabel(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	inv := drive.NewSequence(oldLabel, []drive.Drive{}, ventoyd)
	m, rec, _, _ := newTestMonitor(t, inv, nil)
	for i, wantOver := range []bool{false, false, true} {
		if over := m.Tick(); over != wantOver {
			t.Fatalf("tick %d: over=%t", i, over)
		}
	}
	evs := rec.get()
	if len(evs) != 2 {
		t.Fatalf("want progress+done, got %#v", evs)
	}
	if p, ok := evs[0].Data.(Progress); !ok || p.State != Running || p.Percent != DefaultFloor {
		t.Errorf("first event %#v", evs[0])
	}
	d, ok := evs[1].Data.(Done)
	if !ok || evs[1].Type != EventDone || d.State != Success || d.Percent != 100 {
		t.Errorf("last event %#v", evs[1])
	}
	//no status file was ever written
	if m.Tick() != true || len(rec.get()) != 2 {
		t.Error("events after done")
	}
}

func TestTimeout(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	m, rec, clk, _ := newTestMonitor(t, drive.NewStatic(oldLabel...), nil)
	if m.Tick() {
		t.Fatal("over too soon")
	}
	clk.advance(DefaultCeiling)
	if !m.Tick() {
		t.Fatal("not over after ceiling")
	}
	for i := 0; i < 3; i++ {
		m.Tick()
	}
	evs := rec.get()
	if len(evs) != 1 {
		t.Fatalf("want exactly one event, got %#v", evs)
	}
	d, ok := evs[0].Data.(Done)
	if !ok || !d.TimedOut || d.State != Failure || d.Error == "" {
		t.Errorf("bad done %#v", evs[0])
	}
}

func TestStaleZeroReads(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	m, rec, _, dir := newTestMonitor(t, drive.NewStatic(oldLabel...), nil)
	writeStatus(t, dir, ventoy.PercentFile, "0\r\n")
	for i := 0; i < DefaultStaleTicks; i++ {
		if m.Tick() {
			t.Fatal("terminal")
		}
	}
	s := m.Snapshot()
	if s.State != Running || s.Hint != HintWaitingUAC {
		t.Errorf("snapshot %+v", s)
	}
	evs := rec.get()
	if len(evs) != 2 {
		t.Fatalf("want 2 progress events, got %#v", evs)
	}
	if p := evs[1].Data.(Progress); p.Hint != HintWaitingUAC || p.State != Running {
		t.Errorf("bad hint event %#v", p)
	}
}

func TestDoneFileFailure(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	m, rec, _, dir := newTestMonitor(t, drive.NewStatic(oldLabel...), nil)
	writeStatus(t, dir, ventoy.PercentFile, "37")
	m.Tick()
	writeStatus(t, dir, ventoy.LogFile, "formatting...\nerror: disk is write protected\n")
	writeStatus(t, dir, ventoy.DoneFile, "1")
	if !m.Tick() {
		t.Fatal("not terminal")
	}
	evs := rec.get()
	d := evs[len(evs)-1].Data.(Done)
	if d.State != Failure || d.Percent != 37 || d.LogTail != "formatting...\nerror: disk is write protected" {
		t.Errorf("bad done %#v", d)
	}
}

func TestWorkDirVanished(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	m, rec, _, dir := newTestMonitor(t, drive.NewStatic(oldLabel...), nil)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if !m.Tick() {
		t.Fatal("not terminal")
	}
	if d := rec.get()[0].Data.(Done); d.State != Failure || d.Error == "" {
		t.Errorf("bad done %#v", d)
	}
}

func TestLaunchDeclined(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	res := make(chan error, 1)
	m, rec, _, _ := newTestMonitor(t, drive.NewStatic(oldLabel...), res)
	if m.Tick() {
		t.Fatal("terminal before launch result")
	}
	res <- errors.New("The operation was canceled by the user.")
	close(res)
	if !m.Tick() {
		t.Fatal("declined launch not terminal")
	}
	if d := rec.get()[0].Data.(Done); d.State != Failure || d.TimedOut {
		t.Errorf("bad done %#v", d)
	}
}

func TestStopSuppressesEvents(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	m, rec, _, dir := newTestMonitor(t, drive.NewStatic(oldLabel...), nil)
	writeStatus(t, dir, ventoy.PercentFile, "10")
	m.Tick()
	before := m.Snapshot()
	m.Stop()
	writeStatus(t, dir, ventoy.DoneFile, "0")
	if !m.Tick() {
		t.Error("stopped monitor not over")
	}
	if len(rec.get()) != 1 {
		t.Errorf("events after stop: %#v", rec.get())
	}
	if m.Snapshot() != before {
		t.Error("snapshot mutated after stop")
	}
}

func TestRun(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	dir := t.TempDir()
	rec := &recorder{}
	m := New(Config{
		ID:        "run",
		WorkDir:   dir,
		Target:    Target{PhysicalIndex: 1, Letter: "E:", Seen: true},
		Inventory: drive.NewStatic(oldLabel...),
		Policy:    Policy{Interval: 20 * time.Millisecond},
		Sink:      rec.sink,
	})
	go m.Run()
	writeStatus(t, dir, ventoy.PercentFile, "50")
	time.Sleep(100 * time.Millisecond)
	writeStatus(t, dir, ventoy.DoneFile, "0")
	select {
	case <-m.Finished():
	case <-time.After(10 * time.Second):
		m.Stop()
		t.Fatal("monitor did not finish")
	}
	evs := rec.get()
	if len(evs) < 2 {
		t.Fatalf("events %#v", evs)
	}
	if evs[len(evs)-1].Type != EventDone {
		t.Errorf("done not last: %#v", evs)
	}
	for _, e := range evs[:len(evs)-1] {
		if e.Type != EventProgress {
			t.Errorf("unexpected %#v", e)
		}
	}
}

func TestRunStop(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	m, _, _, _ := newTestMonitor(t, drive.NewStatic(oldLabel...), nil)
	go m.Run()
	m.Stop()
	m.Stop()
	select {
	case <-m.Finished():
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

// A sink blocked on a slow consumer must not hold up Stop.
func TestStopReleasesBlockedSink(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	entered := make(chan struct{}, 1)
	var mu sync.Mutex
	calls := 0
	m := New(Config{
		ID:        "slow",
		WorkDir:   t.TempDir(),
		Target:    Target{PhysicalIndex: 1, Seen: true},
		Inventory: drive.NewStatic(),
		Sink: func(ctx context.Context, e Event) {
			mu.Lock()
			calls++
			mu.Unlock()
			select {
			case entered <- struct{}{}:
			default:
			}
			<-ctx.Done()
		},
	})
	go m.Tick()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no event emitted")
	}
	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked by sink")
	}
	if !m.Tick() {
		t.Error("tick after stop should report over")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("sink called %d times", calls)
	}
}
