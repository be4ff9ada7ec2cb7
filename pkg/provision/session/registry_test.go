// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log/testlog"
	"github.com/purecloudlabs/isomaker/pkg/provision/monitor"
)

// runs until stopped or finished
type fakeRunner struct {
	stop    chan struct{}
	once    sync.Once
	finish  chan struct{}
	stopped bool
	mu      sync.Mutex
}

func newFake() *fakeRunner {
	return &fakeRunner{stop: make(chan struct{}), finish: make(chan struct{})}
}

func (f *fakeRunner) Run() {
	select {
	case <-f.stop:
	case <-f.finish:
	}
}

func (f *fakeRunner) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.stop) })
}

func (f *fakeRunner) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRestartStopsPrevious(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	var r Registry
	first, second := newFake(), newFake()
	if err := r.Start("s1", func() (Runner, error) { return first, nil }); err != nil {
		t.Fatal(err)
	}
	if err := r.Start("s1", func() (Runner, error) {
		if !first.wasStopped() {
			t.Error("factory called before previous runner stopped")
		}
		return second, nil
	}); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 1 || !r.Active("s1") {
		t.Errorf("len %d", r.Len())
	}
	//first runner's goroutine ending must not remove second
	time.Sleep(20 * time.Millisecond)
	if !r.Active("s1") {
		t.Error("replacement removed by old runner")
	}
	r.CancelAll()
	if !second.wasStopped() || r.Len() != 0 {
		t.Error("CancelAll incomplete")
	}
}

// Two Starts racing for one id: factories never overlap, and every runner but
// the last is stopped.
func TestConcurrentStart(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	var r Registry
	var inFactory, overlap int32
	runs := make(chan *fakeRunner, 2)
	factory := func() (Runner, error) {
		if atomic.AddInt32(&inFactory, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		defer atomic.AddInt32(&inFactory, -1)
		time.Sleep(50 * time.Millisecond)
		run := newFake()
		runs <- run
		return run, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Start("ui", factory); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	close(runs)
	if atomic.LoadInt32(&overlap) != 0 {
		t.Error("factories ran concurrently")
	}
	stopped := 0
	for run := range runs {
		if run.wasStopped() {
			stopped++
		}
	}
	if stopped != 1 || r.Len() != 1 {
		t.Errorf("stopped %d, active %d", stopped, r.Len())
	}
	r.CancelAll()
}

func TestRunnerRemovesItself(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	var r Registry
	ended := make(chan string, 1)
	r.OnEnded(func(id string) { ended <- id })
	run := newFake()
	if err := r.Start("s2", func() (Runner, error) { return run, nil }); err != nil {
		t.Fatal(err)
	}
	close(run.finish)
	select {
	case id := <-ended:
		if id != "s2" {
			t.Errorf("ended %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("not ended")
	}
	if r.Active("s2") {
		t.Error("still active")
	}
}

func TestCancel(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	var r Registry
	r.Cancel("unknown") //no-op
	run := newFake()
	r.Start("s3", func() (Runner, error) { return run, nil })
	r.Cancel("s3")
	if !run.wasStopped() || r.Active("s3") {
		t.Error("not cancelled")
	}
	r.CancelAll()
}

func TestFactoryError(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	var r Registry
	boom := errors.New("boom")
	if err := r.Start("s4", func() (Runner, error) { return nil, boom }); err != boom {
		t.Errorf("got %v", err)
	}
	if r.Len() != 0 {
		t.Error("registered despite error")
	}
	if err := r.Start("s4", nil); err != ENoFactory {
		t.Errorf("got %v", err)
	}
}

// A real monitor restarted under the same id: the first one emits nothing
// after the restart.
func TestRestartMonitor(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	var r Registry
	var mu sync.Mutex
	counts := map[string]int{}
	mk := func(tag string) Factory {
		return func() (Runner, error) {
			return monitor.New(monitor.Config{
				ID:        "same",
				WorkDir:   t.TempDir(),
				Target:    monitor.Target{PhysicalIndex: 1},
				Inventory: drive.NewStatic(),
				Policy:    monitor.Policy{Interval: 5 * time.Millisecond},
				Sink: func(context.Context, monitor.Event) {
					mu.Lock()
					counts[tag]++
					mu.Unlock()
				},
			}), nil
		}
	}
	if err := r.Start("same", mk("old")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["old"] > 0
	})
	if err := r.Start("same", mk("new")); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	oldCount := counts["old"]
	mu.Unlock()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["new"] > 0
	})
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	if counts["old"] != oldCount {
		t.Errorf("old monitor emitted after restart: %d -> %d", oldCount, counts["old"])
	}
	mu.Unlock()
	r.CancelAll()
}
