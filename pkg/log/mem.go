// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

// The default type of log, storing entries in memory and not displaying them
// in any way. Capped at memLogMax entries; oldest are discarded.
type memLog struct {
	entries []LogEntry
	next    StackableLogger
}

const memLogMax = 4096

var _ StackableLogger = (*memLog)(nil)

// Adds a memLog to the stack; unlikely to be needed as a memLog is the
// default.
func AddMemLog() error { return AddLogger(&memLog{}, false) }

func (ml *memLog) AddEntry(e LogEntry) {
	if len(ml.entries) >= memLogMax {
		ml.entries = append(ml.entries[:0], ml.entries[len(ml.entries)-memLogMax/2:]...)
	}
	ml.entries = append(ml.entries, e)
	if ml.next != nil {
		ml.next.AddEntry(e)
	}
}

func (ml *memLog) ForwardTo(sl StackableLogger) {
	if ml.next == nil || sl == nil {
		ml.next = sl
	} else {
		panic("next already set")
	}
}

const MemLogIdent = "memLog"

func (ml *memLog) Ident() string         { return MemLogIdent }
func (ml *memLog) Next() StackableLogger { return ml.next }

func (ml *memLog) Finalize() {
	ml.entries = nil
	if ml.next != nil {
		ml.next.Finalize()
	}
}

// Not part of StackableLogger interface
func (ml *memLog) Entries() []LogEntry { return ml.entries }

// Retrieve all entries logged so far. Requires a memLog in the stack.
func StoredEntries() []LogEntry {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	mem, ok := FindInStack(MemLogIdent).(*memLog)
	if !ok {
		return nil
	}
	out := make([]LogEntry, len(mem.entries))
	copy(out, mem.entries)
	return out
}

// Remove a memLog from the stack. Used once other log(s) have been added to
// prevent accumulation of log entries in memory.
func FlushMemLog() {
	RemoveLogger(MemLogIdent)
}
