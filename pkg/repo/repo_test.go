// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package repo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/log/testlog"
)

const sum = "9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"

func TestIndexURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://repo.local":             "http://repo.local/index.json",
		"http://repo.local/":            "http://repo.local/index.json",
		"https://cdn.example/isos":      "https://cdn.example/isos/index.json",
		"https://cdn.example/isos/?x=1": "https://cdn.example/isos/index.json",
	} {
		u, err := IndexURL(in)
		if err != nil {
			t.Errorf("%s: %s", in, err)
			continue
		}
		if u.String() != want {
			t.Errorf("%s: want %s, got %s", in, want, u)
		}
	}
	if _, err := IndexURL(" "); err != ENoBase {
		t.Errorf("want ENoBase, got %v", err)
	}
	var ce *common.ConfigurationError
	if _, err := IndexURL("ftp://x/"); !errors.As(err, &ce) {
		t.Errorf("want ConfigurationError, got %v", err)
	}
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		name, doc string
		items     int
		valid     bool
	}{
		{"object", `{"items":[{"name":"a","url":"a.iso","sha256":"` + sum + `","size":12}]}`, 1, true},
		{"bare array", `[{"name":"a","url":"a.iso"},{"name":"b","url":"http://x/b.iso"}]`, 2, true},
		{"empty", `{"items":[]}`, 0, true},
		{"no items", `{}`, 0, false},
		{"no url", `{"items":[{"name":"a"}]}`, 0, false},
		{"bad digest", `{"items":[{"name":"a","url":"a","sha256":"xyz"}]}`, 0, false},
		{"negative size", `{"items":[{"name":"a","url":"a","size":-1}]}`, 0, false},
		{"not json", `<html>`, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			idx, err := Parse([]byte(tc.doc), nil)
			if !tc.valid {
				if !errors.Is(err, EInvalidIndex) {
					t.Errorf("want EInvalidIndex, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(idx.Items) != tc.items {
				t.Errorf("want %d items, got %d", tc.items, len(idx.Items))
			}
		})
	}
}

func TestFetch(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/isos/index.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"pe","url":"winpe/PQS_WinPE.iso","sha256":"` + strings.ToLower(sum) + `"},{"name":"abs","url":"http://other/x.iso"}]`))
	}))
	defer srv.Close()

	f := &Fetcher{}
	idx, err := f.Fetch(context.Background(), srv.URL+"/isos")
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Items) != 2 {
		t.Fatalf("got %#v", idx)
	}
	if idx.Items[0].URL != srv.URL+"/isos/winpe/PQS_WinPE.iso" {
		t.Errorf("relative url not resolved: %s", idx.Items[0].URL)
	}
	if idx.Items[1].URL != "http://other/x.iso" {
		t.Errorf("absolute url changed: %s", idx.Items[1].URL)
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	var te *common.TransferError
	if !errors.As(err, &te) || te.StatusCode != 404 {
		t.Errorf("want 404, got %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	defer tlog.Freeze()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := &Fetcher{Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	var te *common.TransferError
	if !errors.As(err, &te) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want deadline TransferError, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout not honored")
	}
}
