// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Isomakerd is the local control service behind the isomaker ui: it lists
// removable drives, runs the Ventoy installer and tracks it to completion,
// downloads and verifies images, and deploys the PQTools toolkit.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	fp "path/filepath"
	"syscall"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/api"
	"github.com/purecloudlabs/isomaker/pkg/common/strs"
	"github.com/purecloudlabs/isomaker/pkg/config"
	"github.com/purecloudlabs/isomaker/pkg/history"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/log/flags"
	"github.com/purecloudlabs/isomaker/pkg/net/xfer"
	"github.com/purecloudlabs/isomaker/pkg/provision"
	"github.com/purecloudlabs/isomaker/pkg/provision/monitor"
	"github.com/purecloudlabs/isomaker/pkg/provision/session"
	"github.com/purecloudlabs/isomaker/pkg/repo"
	"github.com/purecloudlabs/isomaker/pkg/toolkit"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

var buildId string

func main() {
	log.SetPrefix(strs.LogPrefix())
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("configuration: %s", err)
	}
	setupLogging(cfg)
	api.BuildId = buildId
	log.AdaptStdlog(nil, flags.NA, true)
	if cfg.File != "" {
		log.Logf("read config from %s", cfg.File)
	}

	hist, err := history.Open(fp.Join(cfg.DataDir, "history"))
	if err != nil {
		log.Fatalf("opening history: %s", err)
	}
	defer hist.Close()

	inv := &drive.PowerShell{Timeout: cfg.InventoryTimeout}
	reg := &session.Registry{}
	reg.OnEnded(func(id string) { log.Debugf("session %s ended", id) })
	srv := api.New(api.Deps{
		Inventory: inv,
		Provision: &provision.Service{
			Inventory: inv,
			Registry:  reg,
			Policy: monitor.Policy{
				Interval:     cfg.PollInterval,
				Ceiling:      cfg.Timeout,
				StaleTicks:   cfg.StaleTicks,
				Floor:        monitor.Percent(cfg.PercentFloor),
				SuccessLabel: cfg.SuccessLabel,
			},
			WorkRoot:         cfg.WorkRoot,
			DefaultInstaller: cfg.Installer,
			History:          hist,
		},
		Xfer:          &xfer.Engine{S3: s3Client(cfg.S3Region)},
		Repo:          &repo.Fetcher{Timeout: cfg.IndexTimeout},
		Toolkit:       &toolkit.Deployer{WinPECandidates: winpeCandidates()},
		History:       hist,
		RepoBase:      cfg.RepoBase,
		Installer:     cfg.Installer,
		ToolkitSource: cfg.ToolkitSource,
		WinPEISO:      cfg.WinPEISO,
	})

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("listening on %s: %s", cfg.Listen, err)
	}
	hs := &http.Server{ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errs := make(chan error, 1)
	go func() { errs <- srv.ServeWith(lis, hs) }()
	log.Msgf("%s ready on %s", strs.LogPrefix(), lis.Addr())

	select {
	case err = <-errs:
		log.Logf("server exited: %s", err)
	case <-ctx.Done():
		log.Logf("shutting down")
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		log.Logf("http shutdown: %s", err)
	}
	srv.Close()
	log.Finalize()
}

func setupLogging(cfg *config.Config) {
	var f flags.Flag
	if cfg.Verbose {
		f = flags.Debug
	}
	log.AddConsoleLog(f)
	if cfg.LogDir != "" {
		if _, err := log.AddFileLog(cfg.LogDir, f); err != nil {
			log.Logf("file logging disabled: %s", err)
		}
	}
	log.FlushMemLog()
	if fname, ok := log.GetAttr("Filename"); ok {
		log.Msgf("Logging to %s", fname)
	}
}

// Returns nil if no session can be built, leaving s3:// sources unsupported.
func s3Client(region string) xfer.S3Getter {
	sess, err := awssession.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		log.Logf("s3 disabled: %s", err)
		return nil
	}
	return s3.New(sess)
}

// vendor/winpe next to the working dir and the executable.
func winpeCandidates() []string {
	var c []string
	if wd, err := os.Getwd(); err == nil {
		c = append(c, fp.Join(wd, "vendor", "winpe", toolkit.WinPEISO))
	}
	if exe, err := os.Executable(); err == nil {
		c = append(c, fp.Join(fp.Dir(exe), "vendor", "winpe", toolkit.WinPEISO))
	}
	return c
}
