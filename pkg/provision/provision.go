// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package provision starts installer runs on removable drives and tracks them
// until they finish.
//
// A run is launched detached; its outcome is inferred by a monitor, which
// reports to the caller's sink. Each session has at most one run; starting a
// new one cancels the old.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	fp "path/filepath"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/history"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/launch"
	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/provision/monitor"
	"github.com/purecloudlabs/isomaker/pkg/provision/session"
	"github.com/purecloudlabs/isomaker/pkg/ventoy"

	"github.com/google/uuid"
)

var (
	ENoSession = errors.New("session id required")
	ENoDrive   = errors.New("target drive not found")
)

// TargetSpec names the drive to provision: by physical index when set,
// otherwise by letter.
type TargetSpec struct {
	PhysicalIndex *int   `json:"physIndex,omitempty"`
	Letter        string `json:"letter,omitempty"`
}

// Request corresponds to the ui's "start provisioning" command. An empty
// Mode means update if the drive already carries the success label, else
// install.
type Request struct {
	InstallerPath  string      `json:"installerPath"`
	Mode           ventoy.Mode `json:"mode"`
	Target         TargetSpec  `json:"target"`
	GPT            bool        `json:"gpt"`
	NoSecureBoot   bool        `json:"nosb"`
	NoUSBCheck     bool        `json:"nousbcheck"`
	NonDestructive bool        `json:"nondest"`
	ReserveMB      int         `json:"reserveMB"`
	FS             string      `json:"fs"`
	Flags          string      `json:"flags"`
}

// Started describes a run which has been launched.
type Started struct {
	Session string      `json:"session"`
	WorkDir string      `json:"workdir"`
	Args    []string    `json:"args"`
	Drive   drive.Drive `json:"drive"`
}

type LaunchFunc func(exe string, args []string, workDir string) (*launch.Handle, error)

type Service struct {
	Inventory drive.Inventory
	Registry  *session.Registry
	Policy    monitor.Policy
	// Parent of per-run working dirs. os.TempDir() if empty.
	WorkRoot string
	// Installer used when a request doesn't name one.
	DefaultInstaller string
	// Optional.
	History *history.Store
	// launch.Launch if nil.
	Launch LaunchFunc
}

// Start launches the installer for req and registers a monitor for it under
// id. Events go to sink until the run ends or is cancelled.
func (s *Service) Start(ctx context.Context, id string, req Request, sink monitor.Sink) (*Started, error) {
	if id == "" {
		return nil, ENoSession
	}
	exe := ventoy.FindInstaller(req.InstallerPath)
	if exe == "" {
		exe = ventoy.FindInstaller(s.DefaultInstaller)
	}
	if exe == "" {
		return nil, &common.ConfigurationError{Setting: "installer", Err: errors.New("not found")}
	}
	drives := s.Inventory.List(ctx)
	target, err := resolve(drives, req.Target)
	if err != nil {
		return nil, err
	}
	labelAtStart := drive.HasLabel(drive.ByIndex(drives, target.PhysicalIndex), s.successLabel())
	mode := req.Mode
	if mode == "" {
		// update keeps the data partition; only possible if ventoy is there
		mode = ventoy.Install
		if labelAtStart {
			mode = ventoy.Update
		}
	}
	args, err := ventoy.Args(ventoy.Options{
		Mode:           mode,
		PhysicalIndex:  target.PhysicalIndex,
		GPT:            req.GPT,
		NoSecureBoot:   req.NoSecureBoot,
		NoUSBCheck:     req.NoUSBCheck,
		NonDestructive: req.NonDestructive,
		ReserveMB:      req.ReserveMB,
		FS:             req.FS,
		Extra:          req.Flags,
	})
	if err != nil {
		return nil, err
	}
	root := s.WorkRoot
	if root == "" {
		root = os.TempDir()
	}
	workDir := fp.Join(root, "ventoy-cli-"+uuid.New().String())
	mt := monitor.Target{
		PhysicalIndex: target.PhysicalIndex,
		Letter:        target.Letter,
		LabelAtStart:  labelAtStart,
		Seen:          true,
	}
	started := &Started{Session: id, WorkDir: workDir, Args: args, Drive: target}
	launchFn := s.Launch
	if launchFn == nil {
		launchFn = launch.Launch
	}
	err = s.Registry.Start(id, func() (session.Runner, error) {
		ventoy.ClearStatus(workDir)
		h, err := launchFn(exe, args, workDir)
		if err != nil {
			return nil, err
		}
		return monitor.New(monitor.Config{
			ID:        id,
			WorkDir:   workDir,
			Target:    mt,
			Inventory: s.Inventory,
			Launch:    h.Result,
			Policy:    s.Policy,
			Sink:      s.recording(id, target, sink),
		}), nil
	})
	if err != nil {
		log.Logf("session %s: start failed: %s", id, err)
		return nil, err
	}
	log.Msgf("Provisioning %s (%s, disk %d) started", target.Letter, target.Model, target.PhysicalIndex)
	return started, nil
}

// Cancel stops tracking the session's run. The installer itself is not
// stopped; a run cannot be safely interrupted.
func (s *Service) Cancel(id string) { s.Registry.Cancel(id) }

func (s *Service) successLabel() string {
	if s.Policy.SuccessLabel != "" {
		return s.Policy.SuccessLabel
	}
	return ventoy.SuccessLabel()
}

// Wraps sink, recording the outcome in history.
func (s *Service) recording(id string, target drive.Drive, sink monitor.Sink) monitor.Sink {
	return func(ctx context.Context, e monitor.Event) {
		if d, ok := e.Data.(monitor.Done); ok && s.History != nil {
			err := s.History.Add(history.Record{
				ID:      id,
				Kind:    history.Provision,
				Time:    time.Now(),
				State:   string(d.State),
				Subject: fmt.Sprintf("%s (%s)", target.Model, target.Letter),
				Error:   d.Error,
				LogTail: d.LogTail,
			})
			if err != nil {
				log.Logf("session %s: recording history: %s", id, err)
			}
		}
		if sink != nil {
			sink(ctx, e)
		}
	}
}

// Picks the drive named by spec from a fresh snapshot.
func resolve(drives []drive.Drive, spec TargetSpec) (drive.Drive, error) {
	if spec.PhysicalIndex != nil {
		vols := drive.ByIndex(drives, *spec.PhysicalIndex)
		if len(vols) == 0 {
			return drive.Drive{}, fmt.Errorf("%w: disk %d", ENoDrive, *spec.PhysicalIndex)
		}
		return vols[0], nil
	}
	if spec.Letter == "" {
		return drive.Drive{}, ventoy.ENoTarget
	}
	d, ok := drive.ByLetter(drives, spec.Letter)
	if !ok {
		return drive.Drive{}, fmt.Errorf("%w: %s", ENoDrive, spec.Letter)
	}
	return d, nil
}
