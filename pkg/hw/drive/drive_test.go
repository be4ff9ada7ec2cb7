// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package drive

import (
	"context"
	"testing"

	"github.com/purecloudlabs/isomaker/pkg/log/testlog"
)

func TestNormalizeLetter(t *testing.T) {
	for in, want := range map[string]string{
		"e":     "E:",
		"E:":    "E:",
		"E:\\":  "E:",
		"f:/":   "F:",
		" g: ":  "G:",
		"":      "",
		"EE:":   "",
		"1:":    "",
		"\\\\?": "",
	} {
		if got := NormalizeLetter(in); got != want {
			t.Errorf("%q: want %q, got %q", in, want, got)
		}
	}
}

func TestLookups(t *testing.T) {
	drives := []Drive{
		{PhysicalIndex: 1, Letter: "E:", VolumeLabel: "Ventoy"},
		{PhysicalIndex: 1, Letter: "F:", VolumeLabel: "VTOYEFI"},
		{PhysicalIndex: 2, Letter: "G:", VolumeLabel: "DATA"},
	}
	if got := ByIndex(drives, 1); len(got) != 2 {
		t.Errorf("ByIndex: %v", got)
	}
	if d, ok := ByLetter(drives, "g"); !ok || d.PhysicalIndex != 2 {
		t.Errorf("ByLetter: %v %t", d, ok)
	}
	if _, ok := ByLetter(drives, "Z:"); ok {
		t.Error("ByLetter found Z:")
	}
	if !HasLabel(ByIndex(drives, 1), "VENTOY") {
		t.Error("label match must ignore case")
	}
	if HasLabel(ByIndex(drives, 2), "VENTOY") {
		t.Error("wrong disk matched")
	}
	if HasLabel(drives, "") {
		t.Error("empty label matched")
	}
}

func TestParse(t *testing.T) {
	for name, tc := range map[string]struct {
		out  string
		want int
		fail bool
	}{
		"empty":  {out: "", want: 0},
		"null":   {out: "null\r\n", want: 0},
		"single": {out: `{"letter":"E:","physIndex":1,"volumeLabel":null,"sizeBytes":16008609792}`, want: 1},
		"array":  {out: `[{"letter":"E:","physIndex":1},{"letter":"F:","physIndex":1}]`, want: 2},
		"bom":    {out: "\xef\xbb\xbf[]", want: 0},
		"junk":   {out: "Get-CimInstance : Access denied", fail: true},
	} {
		t.Run(name, func(t *testing.T) {
			drives, err := parse(tc.out)
			if tc.fail {
				if err == nil {
					t.Error("want error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(drives) != tc.want {
				t.Errorf("want %d, got %v", tc.want, drives)
			}
		})
	}
}

func TestPowerShellList(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	key := testlog.CmdKey(psArgs())
	tlog.UseMappedCmdHijacker(testlog.CmdMap{
		key: testlog.HijackerData{
			NoRun: true,
			Result: testlog.Result{
				Success: true,
				Res: `[{"letter":"C:","physIndex":0,"volumeLabel":"OS"},
					{"letter":"E:","physIndex":3,"volumeLabel":"OLDLABEL","model":"SanDisk Ultra","sizeBytes":32017047552}]`,
			},
		},
	})
	ps := &PowerShell{SystemDrive: "c:"}
	drives := ps.List(context.Background())
	if len(drives) != 1 {
		t.Fatalf("system disk not filtered: %v", drives)
	}
	d := drives[0]
	if d.PhysicalIndex != 3 || d.Letter != "E:" || d.Model != "SanDisk Ultra" || d.SizeBytes != 32017047552 {
		t.Errorf("bad drive %#v", d)
	}
}

func TestPowerShellFailure(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()
	tlog.UseMappedCmdHijacker(testlog.CmdMap{
		testlog.CmdKey(psArgs()): {NoRun: true, Result: testlog.Result{Success: false}},
	})
	drives := (&PowerShell{}).List(context.Background())
	if drives == nil || len(drives) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", drives)
	}
}

func TestSequence(t *testing.T) {
	seq := NewSequence(
		[]Drive{{PhysicalIndex: 1, Letter: "E:"}},
		nil,
	)
	ctx := context.Background()
	if got := seq.List(ctx); len(got) != 1 {
		t.Errorf("first: %v", got)
	}
	for i := 0; i < 3; i++ {
		if got := seq.List(ctx); len(got) != 0 {
			t.Errorf("repeat %d: %v", i, got)
		}
	}
	if seq.Calls() != 4 {
		t.Errorf("calls: %d", seq.Calls())
	}
}
