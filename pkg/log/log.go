// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package log is a logging mechanism allowing multiple sinks: the console, a
// file, the ui event stream, or memory.
//
// By default, events are retained in memory so they can be re-played into
// sinks which are added later on, for instance once the log dir is known.
package log

import (
	"fmt"
	"os"

	"github.com/purecloudlabs/isomaker/pkg/log/flags"
)

var logPrefix string

// Sets the log prefix, which is used in the file name. Must be set before
// calling AddFileLog()
func SetPrefix(pfx string) {
	logPrefix = pfx
}

// Gets the log prefix
func GetPrefix() string { return logPrefix }

// Msgf is for messages suitable for display to the user. Short,
// non-technical.
func Msgf(f string, va ...interface{}) { FlaggedLogf(flags.EndUser, f, va...) }

// See Msgf
func Msgln(va ...interface{}) { Msgf(fmt.Sprintln(va...)) }

// See Msgf
func Msg(message string) { Msgf(message) }

// Logf is for more technical, or more trivial, messages. Never forwarded to
// the ui.
func Logf(f string, va ...interface{}) { FlaggedLogf(flags.NA, f, va...) }

// See Logf
func Logln(va ...interface{}) { Logf(fmt.Sprintln(va...)) }

// See Logf
func Log(message string) { Logf(message) }

// Debugf entries are dropped by sinks not created with flags.Debug.
func Debugf(f string, va ...interface{}) { FlaggedLogf(flags.Debug, f, va...) }

// Prefixed logs with a fixed prefix. Used where many concurrent activities
// (provisioning sessions, transfers) share one log.
type Prefixed string

func (p Prefixed) Logf(f string, va ...interface{})   { Logf(string(p)+f, va...) }
func (p Prefixed) Msgf(f string, va ...interface{})   { Msgf(string(p)+f, va...) }
func (p Prefixed) Debugf(f string, va ...interface{}) { Debugf(string(p)+f, va...) }

// If the log stack includes a MemLog, this writes all of its content to stderr.
// no-op otherwise.
func DumpStderr() {
	for _, e := range StoredEntries() {
		fmt.Fprintln(os.Stderr, e.String())
	}
}
