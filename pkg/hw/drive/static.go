// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package drive

import (
	"context"
	"sync"
)

// Static returns the same snapshot until changed with Set.
type Static struct {
	mu     sync.Mutex
	drives []Drive
}

var _ Inventory = (*Static)(nil)

func NewStatic(drives ...Drive) *Static { return &Static{drives: drives} }

func (s *Static) Set(drives ...Drive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drives = drives
}

func (s *Static) List(context.Context) []Drive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Drive{}, s.drives...)
}

// Sequence returns each snapshot in turn, repeating the last one once
// exhausted. Used to script drive behavior across a provisioning run.
type Sequence struct {
	mu        sync.Mutex
	snapshots [][]Drive
	calls     int
}

var _ Inventory = (*Sequence)(nil)

func NewSequence(snapshots ...[]Drive) *Sequence { return &Sequence{snapshots: snapshots} }

func (s *Sequence) List(context.Context) []Drive {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return []Drive{}
	}
	i := s.calls
	if i >= len(s.snapshots) {
		i = len(s.snapshots) - 1
	}
	s.calls++
	return append([]Drive{}, s.snapshots[i]...)
}

// Number of times List has been called.
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
