// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package toolkit

import (
	"bytes"
	"context"
	"errors"
	"os"
	fp "path/filepath"
	"testing"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/log/testlog"
)

func newDeployer(t *testing.T) (*Deployer, string) {
	root := t.TempDir()
	return &Deployer{DriveRoot: func(string) string { return root }}, root
}

func exists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("missing %s", path)
	}
}

func TestInstallRecoveryToolkit(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()

	d, root := newDeployer(t)
	res, err := d.InstallRecoveryToolkit("e", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.TargetDir != fp.Join(root, "PQTools") || res.HasWimlib || res.Copied != 0 {
		t.Errorf("got %#v", res)
	}
	exists(t, fp.Join(root, "PQTools", "scripts"))
	exists(t, fp.Join(root, "PQTools", "pq-capture.ps1"))
	cmd, err := os.ReadFile(fp.Join(root, "PQTools", "pq-capture.cmd"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(cmd, []byte("\r\n")) || bytes.Contains(bytes.ReplaceAll(cmd, []byte("\r\n"), nil), []byte("\n")) {
		t.Errorf("cmd file should have crlf line endings only")
	}

	vendor := t.TempDir()
	os.WriteFile(fp.Join(vendor, Wimlib), []byte("MZ"), 0644)
	os.MkdirAll(fp.Join(vendor, "lib"), 0755)
	os.WriteFile(fp.Join(vendor, "lib", "libwim-15.dll"), []byte("MZ"), 0644)
	res, err = d.InstallRecoveryToolkit("E:", vendor)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasWimlib || res.Copied != 2 {
		t.Errorf("got %#v", res)
	}
	exists(t, fp.Join(root, "PQTools", "lib", "libwim-15.dll"))
}

func TestInstallRecoveryToolkitBadSource(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()

	d, _ := newDeployer(t)
	res, err := d.InstallRecoveryToolkit("E:", fp.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("vendor copy failure should not be fatal: %s", err)
	}
	if res.HasWimlib {
		t.Errorf("no wimlib expected")
	}
}

func TestMissingRoot(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()

	gone := fp.Join(t.TempDir(), "unplugged")
	d := &Deployer{DriveRoot: func(string) string { return gone }}
	if _, err := d.InstallRecoveryToolkit("E:", ""); !os.IsNotExist(err) {
		t.Errorf("want not-exist, got %v", err)
	}
	if _, err := os.Stat(gone); err == nil {
		t.Errorf("root must never be created")
	}
	if _, err := d.InstallRecoveryToolkit("?", ""); !errors.Is(err, EBadLabel) {
		t.Errorf("want EBadLabel, got %v", err)
	}
}

func TestInstallWinPEPack(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()

	d, root := newDeployer(t)
	if _, err := d.InstallWinPEPack("E:", ""); err != ENoISO {
		t.Errorf("want ENoISO, got %v", err)
	}
	var ce *common.ConfigurationError
	if _, err := d.InstallWinPEPack("E:", fp.Join(root, "missing.iso")); !errors.As(err, &ce) {
		t.Errorf("want ConfigurationError, got %v", err)
	}

	iso := fp.Join(t.TempDir(), "pe.iso")
	os.WriteFile(iso, []byte("CD001"), 0644)
	d.WinPECandidates = []string{fp.Join(root, "nope.iso"), iso}
	res, err := d.InstallWinPEPack("E:", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ISOPath != fp.Join(root, "ISOs", WinPEISO) {
		t.Errorf("bad iso path %s", res.ISOPath)
	}
	b, _ := os.ReadFile(res.ISOPath)
	if string(b) != "CD001" {
		t.Errorf("iso not copied")
	}
	for _, s := range []string{"restore.cmd", "common.ps1", "restore-uefi.ps1", "restore-bios.ps1"} {
		exists(t, fp.Join(res.ScriptsDir, s))
	}
	exists(t, fp.Join(root, ReadmeName))
	if _, err := os.Stat(fp.Join(res.ScriptsDir, ReadmeName)); err == nil {
		t.Errorf("readme belongs at the root only")
	}
}

func TestCopyISO(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()

	d, root := newDeployer(t)
	src := fp.Join(t.TempDir(), "ubuntu.iso")
	os.WriteFile(src, bytes.Repeat([]byte{1}, 100000), 0644)

	var last common.TransferProgress
	dest, err := d.CopyISO(context.Background(), "E:", src, `ISOs\linux\u.iso`, func(p common.TransferProgress) { last = p })
	if err != nil {
		t.Fatal(err)
	}
	if dest != fp.Join(root, "ISOs", "linux", "u.iso") {
		t.Errorf("bad dest %s", dest)
	}
	if last.Percent != 100 || last.Received != 100000 || last.Filename != "u.iso" {
		t.Errorf("bad progress %#v", last)
	}

	for _, name := range []string{"../x.iso", `..\x.iso`, `ISOs\..\..\x.iso`} {
		if _, err = d.CopyISO(context.Background(), "E:", src, name, nil); err == nil {
			t.Errorf("%s: escaping name should fail", name)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err = d.CopyISO(ctx, "E:", src, "", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("want canceled, got %v", err)
	}
}
