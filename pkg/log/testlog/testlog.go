// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build !release
// +build !release

// Package testlog hijacks the output of isomaker/pkg/log, and can hijack
// log.Cmd(). By default, this output prints through testing functions but
// it can be stored in a buffer as well - for example, for analysis as part of
// the test.
//
// Cmd() hijacking can be used to ensure that code handling conditions not
// feasibly reproducible locally (no removable drives, no windows) can be
// tested.
package testlog

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/log/flags"
)

// Conforms to log.StackableLogger interface. Constructed via NewTestLog().
type TstLog struct {
	events        chan log.LogEntry
	t             testing.TB
	Buf           *bytes.Buffer //if non-nil, Msgf()/Logf() output goes here
	MsgCount      int           //number of EndUser entries
	LogCount      int           //number of other entries
	FatalCount    int           //number of Fatal entries
	FatalIsNotErr bool          //if true, do not call t.Errorf() for Fatal()
	freeze        bool          //do not accept any more entries
	stderr        bool          //also immediately write to stderr
	mu            sync.RWMutex
	cmdMu         sync.Mutex
	bgWg          sync.WaitGroup
}

// Returns a new TstLog. If bufferLog is true, logging goes to a buffer rather
// than passing directly to t.Log()/t.Error(). Do not share one TstLog between
// tests - create a new one each time, and call Freeze() before inspecting Buf.
func NewTestLog(t testing.TB, bufferLog, stderr bool) (tlog *TstLog) {
	tlog = &TstLog{
		events: make(chan log.LogEntry, 1024),
		t:      t,
		stderr: stderr,
	}
	if bufferLog {
		tlog.Buf = new(bytes.Buffer)
	}
	tlog.bgWg.Add(1)
	go tlog.bgProc()
	log.NewLogStack(tlog)
	log.SetFatalAction(log.FailAction{Terminator: func() {}})
	return
}

var _ log.StackableLogger = (*TstLog)(nil)

func (tlog *TstLog) AddEntry(e log.LogEntry) {
	tlog.mu.RLock()
	defer tlog.mu.RUnlock()
	if tlog.freeze {
		return
	}
	tlog.events <- e
}

const TstLogIdent = "tstLog"

func (*TstLog) Ident() string                      { return TstLogIdent }
func (tl *TstLog) Next() log.StackableLogger       { return nil }
func (*TstLog) Finalize()                          {}
func (tl *TstLog) ForwardTo(_ log.StackableLogger) {}

func (tlog *TstLog) bgProc() {
	defer tlog.bgWg.Done()
	for evt := range tlog.events {
		tlog.handleEvt(evt)
	}
}

func (tlog *TstLog) handleEvt(evt log.LogEntry) {
	pfx := "LOG:"
	switch {
	case evt.Flags&flags.Fatal != 0:
		tlog.FatalCount++
		if !tlog.FatalIsNotErr {
			tlog.t.Errorf("@%s: >>FATAL()<< %s", evt.Time.Format(stampMilli), evt.Text())
			return
		}
		pfx = ">>FATAL()<< "
	case evt.Flags&flags.EndUser != 0:
		tlog.MsgCount++
		pfx = "MSG:"
	default:
		tlog.LogCount++
	}
	line := pfx + evt.Text()
	if tlog.stderr {
		fmt.Fprintf(os.Stderr, "@%s: %s\n", evt.Time.Format(stampMilli), line)
	}
	if tlog.Buf != nil {
		fmt.Fprintln(tlog.Buf, line)
	} else {
		tlog.t.Logf("@%s: %s", evt.Time.Format(stampMilli), line)
	}
}

const stampMilli = "15:04:05.000" //like time.StampMilli, but leaves off date

// Call at end of test to sync log and shut down bgProc. Restores the default
// log stack.
func (tlog *TstLog) Freeze() {
	tlog.mu.Lock()
	if tlog.freeze {
		tlog.mu.Unlock()
		return
	}
	tlog.freeze = true
	close(tlog.events)
	tlog.mu.Unlock()
	tlog.bgWg.Wait()

	log.DefaultLogStack()
	log.SetFatalAction(log.DefaultFatal)
	log.Cmd = log.DefaultCmd
}

// just calls testing.T.Errorf
func (tlog *TstLog) TstErrf(f string, va ...interface{}) {
	tlog.t.Helper()
	tlog.t.Errorf(f, va...)
}

// just calls testing.T.Logf
func (tlog *TstLog) TstLogf(f string, va ...interface{}) {
	tlog.t.Helper()
	tlog.t.Logf(f, va...)
}
