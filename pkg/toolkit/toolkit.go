// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package toolkit deploys the PQTools imaging toolkit and the WinPE restore
// pack onto a provisioned stick.
package toolkit

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	fp "path/filepath"
	"strings"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/common/strs"
	"github.com/purecloudlabs/isomaker/pkg/fileutil"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"
)

const (
	Wimlib     = "wimlib-imagex.exe"
	WinPEISO   = "PQS_WinPE.iso"
	ISODir     = "ISOs"
	ReadmeName = "README-RESTORE.txt"
)

//go:embed scripts
var scripts embed.FS

var (
	ENoISO    = errors.New("no WinPE iso found")
	EBadLabel = errors.New("invalid drive letter")
)

// Deployer writes to drive roots. The zero value targets "E:\" style roots.
type Deployer struct {
	// Maps a normalized letter ("E:") to its root dir.
	DriveRoot func(letter string) string
	// Places searched for the WinPE iso when none is given.
	WinPECandidates []string
}

type ToolkitResult struct {
	TargetDir string `json:"targetDir"`
	HasWimlib bool   `json:"hasWimlib"`
	// Vendor files copied from the source dir.
	Copied int `json:"copied"`
}

type WinPEResult struct {
	ISOPath    string `json:"isoPath"`
	ScriptsDir string `json:"scriptsDir"`
}

func (d *Deployer) root(letter string) (string, error) {
	l := drive.NormalizeLetter(letter)
	if l == "" {
		return "", fmt.Errorf("%w: %q", EBadLabel, letter)
	}
	if d.DriveRoot != nil {
		return d.DriveRoot(l), nil
	}
	return l + `\`, nil
}

// Creates dir under root. The root itself must already exist.
func ensureUnder(root, dir string) error {
	if fp.Clean(dir) == fp.Clean(root) || fileutil.IsDeviceRoot(dir) {
		_, err := os.Stat(dir)
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// InstallRecoveryToolkit creates the toolkit dir on the drive, copies vendor
// binaries from sourceDir if given, and writes the capture launchers.
// Failure to copy vendor files is logged but not fatal; HasWimlib tells
// the caller whether the capture tool ended up on the stick.
func (d *Deployer) InstallRecoveryToolkit(letter, sourceDir string) (*ToolkitResult, error) {
	root, err := d.root(letter)
	if err != nil {
		return nil, err
	}
	if err = ensureUnder(root, root); err != nil {
		return nil, err
	}
	target := fp.Join(root, strs.ToolkitDir())
	if err = ensureUnder(root, fp.Join(target, "scripts")); err != nil {
		return nil, err
	}
	res := &ToolkitResult{TargetDir: target}
	if sourceDir != "" {
		res.Copied, err = fileutil.CopyDir(sourceDir, target)
		if err != nil {
			log.Logf("copying toolkit binaries from %s: %s", sourceDir, err)
		}
	}
	if err = writeScripts("scripts/capture", target); err != nil {
		return nil, err
	}
	_, err = os.Stat(fp.Join(target, Wimlib))
	res.HasWimlib = err == nil
	if !res.HasWimlib {
		log.Msgf("%s missing from %s; captures will not run", Wimlib, target)
	}
	log.Logf("installed %s to %s (%d vendor files)", strs.ToolkitDir(), target, res.Copied)
	return res, nil
}

// InstallWinPEPack copies the WinPE iso into ISOs\ on the drive, writes the
// restore scripts under the toolkit dir and a README at the root. If isoPath
// is empty the configured candidates are searched.
func (d *Deployer) InstallWinPEPack(letter, isoPath string) (*WinPEResult, error) {
	root, err := d.root(letter)
	if err != nil {
		return nil, err
	}
	if err = ensureUnder(root, root); err != nil {
		return nil, err
	}
	if isoPath == "" {
		isoPath = d.findISO()
		if isoPath == "" {
			return nil, ENoISO
		}
	}
	if _, err = os.Stat(isoPath); err != nil {
		return nil, &common.ConfigurationError{Setting: "winpe iso", Err: err}
	}
	isoDir := fp.Join(root, ISODir)
	scriptsDir := fp.Join(root, strs.ToolkitDir(), "WinPE", "scripts")
	for _, dir := range []string{isoDir, scriptsDir} {
		if err = ensureUnder(root, dir); err != nil {
			return nil, err
		}
	}
	isoDest := fp.Join(isoDir, WinPEISO)
	if err = fileutil.CopyFile(isoPath, isoDest); err != nil {
		return nil, err
	}
	if err = writeScripts("scripts/winpe", scriptsDir, ReadmeName); err != nil {
		return nil, err
	}
	readme, err := scripts.ReadFile("scripts/winpe/" + ReadmeName)
	if err != nil {
		return nil, err
	}
	if err = os.WriteFile(fp.Join(root, ReadmeName), crlf(readme), 0644); err != nil {
		return nil, err
	}
	log.Logf("installed WinPE pack: %s, scripts in %s", isoDest, scriptsDir)
	return &WinPEResult{ISOPath: isoDest, ScriptsDir: scriptsDir}, nil
}

func (d *Deployer) findISO() string {
	for _, c := range d.WinPECandidates {
		if fi, err := os.Stat(c); err == nil && fi.Mode().IsRegular() {
			return c
		}
	}
	return ""
}

// CopyISO copies a local image to the drive root, or into a subdir when
// destName contains one. Progress is reported per chunk.
func (d *Deployer) CopyISO(ctx context.Context, letter, src, destName string, onProgress common.ProgressFunc) (string, error) {
	root, err := d.root(letter)
	if err != nil {
		return "", err
	}
	if destName == "" {
		destName = fp.Base(src)
	}
	destName = fp.FromSlash(strings.ReplaceAll(destName, `\`, "/"))
	if !fp.IsLocal(destName) {
		return "", fmt.Errorf("bad destination name %q", destName)
	}
	destName = fp.Clean(destName)
	dest := fp.Join(root, destName)
	if err = ensureUnder(root, fp.Dir(dest)); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return "", err
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	total := fi.Size()
	name := fp.Base(dest)
	_, err = fileutil.IOCopy(out, ctxReader{ctx, in}, func(n int64) {
		if onProgress == nil {
			return
		}
		pct := 100
		if total > 0 {
			pct = int(n * 100 / total)
		}
		onProgress(common.TransferProgress{Received: n, Total: total, Percent: pct, Filename: name})
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return dest, err
	}
	log.Logf("copied %s to %s", src, dest)
	return dest, nil
}

// Aborts a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Writes every embedded file in dir to dest, except those named in skip.
// Existing files are overwritten.
func writeScripts(dir, dest string, skip ...string) error {
	entries, err := scripts.ReadDir(dir)
	if err != nil {
		return err
	}
outer:
	for _, e := range entries {
		for _, s := range skip {
			if e.Name() == s {
				continue outer
			}
		}
		data, err := scripts.ReadFile(dir + "/" + e.Name())
		if err != nil {
			return err
		}
		if err = os.WriteFile(fp.Join(dest, e.Name()), crlf(data), 0644); err != nil {
			return err
		}
	}
	return nil
}

// cmd.exe mis-parses labels in files with bare LF line endings.
func crlf(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
}
