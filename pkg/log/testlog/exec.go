// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build !release
// +build !release

package testlog

import (
	"os/exec"
	"strings"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/log"
)

// represents a Cmd in CmdMap
type Key string

// generates key for given command
func CmdKey(args []string) Key {
	var sb strings.Builder
	for _, arg := range args {
		sb.WriteString(arg)
		sb.WriteByte('|')
	}
	return Key(sb.String())
}

// execution result
type Result struct {
	Res     string
	Success bool
}

// data for use with UseMappedCmdHijacker
type HijackerData struct {
	Result   Result        //if NoRun is false, this is updated with result on each run
	RunCount int           //number of times the command has been invoked
	NoRun    bool          //if true, returns already-stored Result
	Pause    time.Duration //in addition to any execution time, pause this long before returning
}

// map passed to UseMappedCmdHijacker
type CmdMap map[Key]HijackerData

// Using a map of commands, either record results or replay given results.
// Limitation: not able to return different results for different execs of a
// given command. The map must not be read until Freeze() is called, since
// log.Cmd may be invoked from other goroutines.
func (tlog *TstLog) UseMappedCmdHijacker(m CmdMap) {
	log.Cmd = func(cmd *exec.Cmd) (string, bool) {
		key := CmdKey(cmd.Args)
		log.Logf("Running %v...", cmd.Args)
		tlog.cmdMu.Lock()
		data := m[key]
		tlog.cmdMu.Unlock()
		data.RunCount++
		if !data.NoRun {
			out, err := cmd.Output()
			data.Result = Result{Res: string(out), Success: err == nil}
			if err != nil {
				log.Logf("Running %v: error %s", cmd.Args, err)
				data.Result.Res = ""
			}
		}
		tlog.cmdMu.Lock()
		m[key] = data
		tlog.cmdMu.Unlock()
		time.Sleep(data.Pause)
		return data.Result.Res, data.Result.Success
	}
}
