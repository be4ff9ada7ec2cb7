// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"bytes"
	"os/exec"
)

type CommandFunc func(cmd *exec.Cmd) (stdout string, success bool)

// Wrapper for running a command and capturing stdout. If this is used, execs
// can be mocked/tracked by testlog. Stdout is kept separate from stderr, since
// callers typically parse it as json.
var Cmd CommandFunc = DefaultCmd

// Default impl of Cmd(); runs a command, capturing stdout. Stderr is logged
// when non-empty. On failure, returns "",false.
func DefaultCmd(cmd *exec.Cmd) (stdout string, success bool) {
	Debugf("Running %v...", cmd.Args)
	var errBuf bytes.Buffer
	if cmd.Stderr == nil {
		cmd.Stderr = &errBuf
	}
	out, err := cmd.Output()
	if errBuf.Len() > 0 {
		Logf("%s: stderr:\n%s", cmd.Path, errBuf.String())
	}
	if err != nil {
		Logf("Running %v: error %s", cmd.Args, err)
		return "", false
	}
	return string(out), true
}
