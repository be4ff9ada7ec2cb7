// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/log/flags"
)

// A type of logger which can be chained/stacked, each adding different
// functionality. Events can go to a file, the console, or just into memory,
// and this is transparent to the user.
//
// Normal logging should go through the non-member functions in this package:
// Logf, Msgf, Fatalf, etc.
type StackableLogger interface {
	//Add an entry to the log. Must call the same method on the next log in the
	// stack (if not nil).
	AddEntry(e LogEntry)

	// Chain one logger to another. Must panic if called on a logger to which
	// another has already been chained; nil unchains.
	ForwardTo(StackableLogger)

	// Identifies the type of logger, to ensure no duplicates in stack.
	Ident() string
	// Returns next StackableLogger or nil
	Next() StackableLogger
	// Flushes outstanding entries and releases resources. Must call the same
	// method on the next log in the stack (if not nil).
	Finalize()
}

// Top logger on the stack. Guarded by logStackMtx.
var logStack StackableLogger = &memLog{}

var logStackMtx sync.Mutex

type stackErr struct {
	Id string
}

func (se *stackErr) Error() string {
	return fmt.Sprintf("Duplicate logger %s in stack", se.Id)
}

// Flushes data, closes files, etc
func Finalize() {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	logStack.Finalize()
}

// Restores the log stack to initial state. Calls Finalize on existing
// logger(s), then replaces the existing stack with a memLog.
func DefaultLogStack() { NewLogStack(&memLog{}) }

// Calls Finalize on existing logger(s), then sets newLog as the topmost logger.
func NewLogStack(newLog StackableLogger) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if logStack != nil {
		logStack.Finalize()
	}
	logStack = newLog
	ClearAttrs()
}

// Stack returns the topmost logger. Intended for tests.
func Stack() StackableLogger {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	return logStack
}

// Add a logger to the stack. Anything that requires initialization must
// already be initialized. If addPrevious is true, events already logged in
// a memLog are replayed into this logger first.
//
// End users should prefer AddFileLog(), AddConsoleLog(), etc.
//
// The only possible error is if the new logger is the same type as an
// existing one.
func AddLogger(sl StackableLogger, addPrevious bool) error {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if err := checkDup(sl, logStack); err != nil {
		return err
	}
	if addPrevious {
		addPreviousEvents(sl)
	}
	sl.ForwardTo(logStack)
	logStack = sl
	return nil
}

// Verifies that the new logger is not a duplicate of another in the stack.
func checkDup(newLogger, sl StackableLogger) error {
	for l := sl; l != nil; l = l.Next() {
		if newLogger.Ident() == l.Ident() {
			return &stackErr{Id: l.Ident()}
		}
	}
	return nil
}

// Remove a log with the given id from the stack
func RemoveLogger(id string) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	var prev StackableLogger
	for l := logStack; l != nil; l = l.Next() {
		if l.Ident() != id {
			prev = l
			continue
		}
		next := l.Next()
		l.ForwardTo(nil)
		l.Finalize()
		if prev != nil {
			prev.ForwardTo(nil)
			prev.ForwardTo(next)
		} else if next != nil {
			logStack = next
		} else {
			logStack = &memLog{}
		}
		return
	}
}

// LogEntry is the record type passed down the stack.
type LogEntry struct {
	Time  time.Time `json:"t"`
	Msg   string
	Args  []interface{} `json:",omitempty"`
	Flags flags.Flag    `json:",omitempty"`
}

// Backend of Logf(), Msgf(), Fatalf(), etc.
func FlaggedLogf(opts flags.Flag, f string, va ...interface{}) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	logStack.AddEntry(LogEntry{
		Time:  time.Now(),
		Flags: opts,
		Msg:   f,
		Args:  va,
	})
}

func (le *LogEntry) String() string {
	var div string
	switch {
	case le.Flags&flags.EndUser != 0:
		div = "-- "
	case le.Flags&flags.Fatal != 0:
		div = "!! "
	case le.Flags&flags.Debug != 0:
		div = ".. "
	case le.Flags == 0:
		div = "*- "
	default:
		div = "?? "
	}
	return div + le.Time.Format(TimestampLayout) + " " + div + le.Text()
}

// Text is the formatted message without decoration.
func (le *LogEntry) Text() string {
	if len(le.Args) == 0 {
		return le.Msg
	}
	return fmt.Sprintf(le.Msg, le.Args...)
}

// Replays the content of a memLog (if any) into newlog. Caller holds
// logStackMtx.
func addPreviousEvents(newlog StackableLogger) {
	if _, isMem := newlog.(*memLog); isMem {
		return
	}
	if ml, ok := FindInStack(MemLogIdent).(*memLog); ok {
		for _, e := range ml.Entries() {
			newlog.AddEntry(e)
		}
	}
}

// Return true if a log in the stack matches given id
func InStack(id string) bool {
	return FindInStack(id) != nil
}

// Return StackableLogger matching id, or nil
func FindInStack(id string) StackableLogger {
	for l := logStack; l != nil; l = l.Next() {
		if l.Ident() == id {
			return l
		}
	}
	return nil
}
