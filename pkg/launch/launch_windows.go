// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package launch

import (
	"os/exec"
	"strings"
	"syscall"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/log"

	win "golang.org/x/sys/windows"
)

func elevated() bool {
	t := win.GetCurrentProcessToken()
	e := t.IsElevated()
	if !e {
		log.Logln("NOT running with elevated privileges")
	}
	return e
}

func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}

// Asks the shell to run exe with the "runas" verb, which shows the consent
// prompt. ShellExecute does not return until the prompt is answered, so
// it runs on its own goroutine and the answer goes to res.
func elevate(exe string, args []string, workDir string, res chan<- error) error {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = win.EscapeArg(a)
	}
	verb, err := win.UTF16PtrFromString("runas")
	if err != nil {
		return err
	}
	file, err := win.UTF16PtrFromString(exe)
	if err != nil {
		return &common.LaunchError{Exe: exe, Err: err}
	}
	params, err := win.UTF16PtrFromString(strings.Join(quoted, " "))
	if err != nil {
		return &common.LaunchError{Exe: exe, Err: err}
	}
	dir, err := win.UTF16PtrFromString(workDir)
	if err != nil {
		return &common.LaunchError{Exe: exe, Err: err}
	}
	go func() {
		defer close(res)
		err := win.ShellExecute(0, verb, file, params, dir, win.SW_HIDE)
		if err != nil {
			if err == win.ERROR_CANCELLED {
				log.Msgf("Administrator rights were declined")
			}
			res <- &common.LaunchError{Exe: exe, Err: err}
			return
		}
		log.Logf("%s started elevated", exe)
		res <- nil
	}()
	return nil
}
