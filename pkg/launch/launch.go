// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package launch starts an external installer with administrative rights,
// without blocking on the elevation prompt.
//
// Launch returns as soon as the spawn has been handed to the OS. Whether the
// user accepted elevation is reported later on Handle.Result; a nil value
// only means the process was started.
package launch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/fileutil"
	"github.com/purecloudlabs/isomaker/pkg/log"
)

type Handle struct {
	WorkDir string
	// Receives exactly one value, then is closed.
	Result <-chan error
}

// Used to determine whether the current process can start the installer
// without prompting. Replaceable for tests.
var isElevated = elevated

// Launch runs exe with args, with workDir as its working directory. workDir
// is created if absent; exe must exist.
func Launch(exe string, args []string, workDir string) (*Handle, error) {
	if exe == "" {
		return nil, &common.ConfigurationError{Setting: "installer", Err: errors.New("path not set")}
	}
	fi, err := os.Stat(exe)
	if err != nil {
		return nil, &common.ConfigurationError{Setting: "installer", Err: err}
	}
	if fi.IsDir() {
		return nil, &common.ConfigurationError{Setting: "installer", Err: fmt.Errorf("%s is a directory", exe)}
	}
	if err = fileutil.EnsureDir(workDir); err != nil {
		return nil, err
	}
	res := make(chan error, 1)
	if isElevated() {
		log.Logf("launching %s %v in %s", exe, args, workDir)
		err = direct(exe, args, workDir, res)
	} else {
		log.Logf("launching %s %v in %s, requesting elevation", exe, args, workDir)
		err = elevate(exe, args, workDir, res)
	}
	if err != nil {
		return nil, err
	}
	return &Handle{WorkDir: workDir, Result: res}, nil
}

// Starts the process as-is. The child is reaped in the background.
func direct(exe string, args []string, workDir string, res chan<- error) error {
	cmd := exec.Command(exe, args...)
	cmd.Dir = workDir
	stderr := &limitedBuffer{max: 4096}
	cmd.Stderr = stderr
	hideWindow(cmd)
	if err := cmd.Start(); err != nil {
		return &common.LaunchError{Exe: exe, Err: err, Stderr: stderr.String()}
	}
	res <- nil
	close(res)
	go reap(cmd, stderr)
	return nil
}

func reap(cmd *exec.Cmd, stderr *limitedBuffer) {
	err := cmd.Wait()
	if err != nil {
		log.Logf("%s exited non-zero: %s", cmd.Path, err)
		if s := stderr.String(); s != "" {
			log.Logf("%s stderr: %s", cmd.Path, s)
		}
		return
	}
	log.Logf("%s exited zero", cmd.Path)
}

// Retains the first max bytes written. Safe for concurrent use.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if room := lb.max - lb.buf.Len(); room > 0 {
		if len(p) > room {
			lb.buf.Write(p[:room])
		} else {
			lb.buf.Write(p)
		}
	}
	return len(p), nil
}

func (lb *limitedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}
