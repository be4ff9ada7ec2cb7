// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build !windows
// +build !windows

package launch

import (
	"errors"
	"os/exec"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/log"

	"golang.org/x/sys/unix"
)

// Command used to gain root; the target's working dir and argv follow.
// pkexec resets the cwd, so env -C restores it.
var elevator = []string{"pkexec", "/usr/bin/env", "-C"}

func elevated() bool { return unix.Geteuid() == 0 }

func hideWindow(*exec.Cmd) {}

// pkexec exit codes for a dismissed or refused authentication dialog.
const (
	pkexecDismissed    = 126
	pkexecUnauthorized = 127
)

// Runs exe through the elevator. The result is only known once the elevator
// exits; an authentication failure is reported on res, anything else is nil.
func elevate(exe string, args []string, workDir string, res chan<- error) error {
	argv := append(append(append([]string{}, elevator[1:]...), workDir, exe), args...)
	cmd := exec.Command(elevator[0], argv...)
	stderr := &limitedBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return &common.LaunchError{Exe: exe, Err: err}
	}
	go func() {
		defer close(res)
		err := cmd.Wait()
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			switch ee.ExitCode() {
			case pkexecDismissed, pkexecUnauthorized:
				log.Msgf("Administrator rights were declined")
				res <- &common.LaunchError{Exe: exe, Err: err, Stderr: stderr.String()}
				return
			}
		}
		if err != nil {
			log.Logf("%s exited non-zero: %s", exe, err)
		} else {
			log.Logf("%s exited zero", exe)
		}
		res <- nil
	}()
	return nil
}
