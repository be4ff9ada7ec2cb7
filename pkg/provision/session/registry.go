// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package session keeps at most one active provisioning monitor per session.
package session

import (
	"errors"
	"sync"

	"github.com/purecloudlabs/isomaker/pkg/log"
)

// Runner is a monitor as seen by the registry.
type Runner interface {
	// Blocks until the run is over.
	Run()
	// Must guarantee no further events once it returns.
	Stop()
}

// Factory builds the runner to register. It is called with the registry
// unlocked, after any previous runner for the id has been stopped.
type Factory func() (Runner, error)

var ENoFactory = errors.New("nil factory")

// Registry maps session ids to their active runner. The zero value is ready
// to use.
type Registry struct {
	mu     sync.Mutex
	active map[string]Runner
	// ids with a Start in progress; closed when it completes
	starting map[string]chan struct{}
	wg       sync.WaitGroup
	onEnded  func(id string)
}

// Called (if set) on a runner's goroutine after it ends on its own or is
// cancelled.
func (r *Registry) OnEnded(f func(id string)) { r.onEnded = f }

// Start stops any runner registered under id, then registers and runs the one
// produced by factory. If factory fails, nothing is registered. Starts for the
// same id are serialized: a factory only runs once the previous Start for id
// has returned.
func (r *Registry) Start(id string, factory Factory) error {
	if factory == nil {
		return ENoFactory
	}
	done := r.claim(id)
	defer r.release(id, done)

	r.Cancel(id)
	run, err := factory()
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]Runner)
	}
	r.active[id] = run
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		run.Run()
		r.remove(id, run)
		if r.onEnded != nil {
			r.onEnded(id)
		}
	}()
	return nil
}

// Waits for any Start in progress for id, then marks id as starting.
func (r *Registry) claim(id string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		busy, ok := r.starting[id]
		if !ok {
			break
		}
		r.mu.Unlock()
		<-busy
		r.mu.Lock()
	}
	if r.starting == nil {
		r.starting = make(map[string]chan struct{})
	}
	done := make(chan struct{})
	r.starting[id] = done
	return done
}

func (r *Registry) release(id string, done chan struct{}) {
	r.mu.Lock()
	delete(r.starting, id)
	r.mu.Unlock()
	close(done)
}

// Removes id only if run is still the current runner.
func (r *Registry) remove(id string, run Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[id]; ok && cur == run {
		delete(r.active, id)
	}
}

// Cancel stops and forgets the runner for id. Unknown ids are ignored.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	run, ok := r.active[id]
	if ok {
		delete(r.active, id)
	}
	r.mu.Unlock()
	if ok {
		log.Logf("session %s: cancelled", id)
		run.Stop()
	}
}

func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// CancelAll stops every runner and waits for their goroutines to return.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	runs := r.active
	r.active = nil
	r.mu.Unlock()
	for _, run := range runs {
		run.Stop()
	}
	r.wg.Wait()
}
