// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package config assembles daemon settings from, in increasing precedence:
// built-in defaults, an optional json file, environment variables and
// command-line flags.
//
// Every setting is a flag. File keys and environment variables use the flag
// name: "poll-interval" is read from {"poll-interval": "1s"} and from
// ISOMAKER_POLL_INTERVAL.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	fp "path/filepath"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/common/strs"
)

type Config struct {
	Listen        string
	DataDir       string
	LogDir        string
	WorkRoot      string
	Installer     string
	ToolkitSource string
	WinPEISO      string
	RepoBase      string
	SuccessLabel  string
	S3Region      string

	PollInterval     time.Duration
	Timeout          time.Duration
	StaleTicks       int
	PercentFloor     int
	InventoryTimeout time.Duration
	IndexTimeout     time.Duration

	Verbose bool

	// Set after Load; empty if no file was read.
	File string
}

const DefaultListen = "127.0.0.1:8745"

// Defaults returns the built-in settings.
func Defaults() Config {
	data := fp.Join(os.TempDir(), strs.LogPrefix())
	if d, err := os.UserConfigDir(); err == nil {
		data = fp.Join(d, strs.LogPrefix())
	}
	return Config{
		Listen:           DefaultListen,
		DataDir:          data,
		LogDir:           fp.Join(data, "logs"),
		WorkRoot:         os.TempDir(),
		SuccessLabel:     strs.SuccessLabel(),
		S3Region:         "us-east-1",
		PollInterval:     600 * time.Millisecond,
		Timeout:          10 * time.Minute,
		StaleTicks:       5,
		PercentFloor:     5,
		InventoryTimeout: 15 * time.Second,
		IndexTimeout:     8 * time.Second,
	}
}

// Binds every setting in c to a flag in fs.
func (c *Config) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Listen, "listen", c.Listen, "control api address")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "dir for the history store")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "dir for log files; empty disables file logging")
	fs.StringVar(&c.WorkRoot, "work-root", c.WorkRoot, "parent of per-session installer working dirs")
	fs.StringVar(&c.Installer, "installer", c.Installer, "path to Ventoy2Disk.exe; searched for if empty")
	fs.StringVar(&c.ToolkitSource, "toolkit-source", c.ToolkitSource, "dir of vendor binaries copied with the toolkit")
	fs.StringVar(&c.WinPEISO, "winpe-iso", c.WinPEISO, "WinPE iso used when a request names none")
	fs.StringVar(&c.RepoBase, "repo", c.RepoBase, "default repository base url")
	fs.StringVar(&c.SuccessLabel, "success-label", c.SuccessLabel, "volume label the installer leaves on success")
	fs.StringVar(&c.S3Region, "s3-region", c.S3Region, "region for s3:// transfers")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "monitor poll interval")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "provisioning ceiling")
	fs.IntVar(&c.StaleTicks, "stale-ticks", c.StaleTicks, "zero-percent reads before hinting at a pending elevation prompt")
	fs.IntVar(&c.PercentFloor, "percent-floor", c.PercentFloor, "percent reported while the device is away")
	fs.DurationVar(&c.InventoryTimeout, "inventory-timeout", c.InventoryTimeout, "drive query timeout")
	fs.DurationVar(&c.IndexTimeout, "index-timeout", c.IndexTimeout, "repository index fetch timeout")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "verbose logging")
}

// Load parses args (without the program name). The config file is named by
// -config or the CONFIG environment variable.
func Load(args []string) (*Config, error) {
	// first pass only finds -config; the rest is parsed again below
	var path string
	pre := flag.NewFlagSet("pre", flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	scratch := Defaults()
	scratch.bind(pre)
	pre.StringVar(&path, "config", os.Getenv(strs.ConfigEnv()), "")
	// errors, including -h, are reported by the second pass
	_ = pre.Parse(args)

	cfg := Defaults()
	fs := flag.NewFlagSet(strs.LogPrefix(), flag.ContinueOnError)
	cfg.bind(fs)
	fs.String("config", path, "json config file")

	if path != "" {
		if err := cfg.applyFile(fs, path); err != nil {
			return nil, err
		}
		cfg.File = path
	}
	if err := applyEnv(fs); err != nil {
		return nil, err
	}
	if os.Getenv(strs.VerboseEnv()) != "" {
		cfg.Verbose = true
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(fs *flag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &common.ConfigurationError{Setting: "config", Err: err}
	}
	var kv map[string]interface{}
	if err = json.Unmarshal(data, &kv); err != nil {
		return &common.ConfigurationError{Setting: "config", Err: fmt.Errorf("%s: %w", path, err)}
	}
	for k, v := range kv {
		if k == "config" || fs.Lookup(k) == nil {
			return &common.ConfigurationError{Setting: k, Err: fmt.Errorf("unknown key in %s", path)}
		}
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case float64, bool:
			s = fmt.Sprint(tv)
		default:
			return &common.ConfigurationError{Setting: k, Err: fmt.Errorf("unsupported value %v", v)}
		}
		if err = fs.Set(k, s); err != nil {
			return &common.ConfigurationError{Setting: k, Err: err}
		}
	}
	return nil
}

func applyEnv(fs *flag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		if v, ok := os.LookupEnv(strs.KeyEnv(f.Name)); ok {
			if serr := f.Value.Set(v); serr != nil {
				err = &common.ConfigurationError{Setting: strs.KeyEnv(f.Name), Err: serr}
			}
		}
	})
	return err
}

var ENoListen = errors.New("empty listen address")

// Validate checks settings that have no usable zero value.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return &common.ConfigurationError{Setting: "listen", Err: ENoListen}
	}
	for name, d := range map[string]time.Duration{
		"poll-interval":     c.PollInterval,
		"timeout":           c.Timeout,
		"inventory-timeout": c.InventoryTimeout,
		"index-timeout":     c.IndexTimeout,
	} {
		if d <= 0 {
			return &common.ConfigurationError{Setting: name, Err: fmt.Errorf("must be positive, got %s", d)}
		}
	}
	if c.StaleTicks < 1 {
		return &common.ConfigurationError{Setting: "stale-ticks", Err: fmt.Errorf("must be at least 1")}
	}
	if c.PercentFloor < 1 || c.PercentFloor > 99 {
		return &common.ConfigurationError{Setting: "percent-floor", Err: fmt.Errorf("must be within 1..99")}
	}
	return nil
}
