// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package repo reads the index of downloadable images published under a
// repository base URL.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/log"
)

const (
	IndexName      = "index.json"
	DefaultTimeout = 8 * time.Second

	// larger than any sane index
	maxIndexBytes = 4 << 20
)

var (
	ENoBase       = errors.New("no repository base url")
	EInvalidIndex = errors.New("invalid repository index")
)

type Item struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

type Index struct {
	Items []Item `json:"items"`
}

// Fetcher retrieves indexes. The zero value is usable.
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// IndexURL returns the location of the index under base. base is treated as
// a directory whether or not it ends in a slash.
func IndexURL(base string) (*url.URL, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, ENoBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, &common.ConfigurationError{Setting: "repo base", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &common.ConfigurationError{Setting: "repo base", Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery, u.Fragment = "", ""
	return u.ResolveReference(&url.URL{Path: IndexName}), nil
}

// Fetch downloads, validates and parses the index under base. Item urls are
// resolved against the index location.
func (f *Fetcher) Fetch(ctx context.Context, base string) (*Index, error) {
	idx, err := IndexURL(base)
	if err != nil {
		return nil, err
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idx.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, &common.TransferError{Source: idx.String(), Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &common.TransferError{Source: idx.String(), StatusCode: res.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxIndexBytes))
	if err != nil {
		return nil, &common.TransferError{Source: idx.String(), Err: err}
	}
	index, err := Parse(data, idx)
	if err != nil {
		return nil, err
	}
	log.Logf("repo index %s: %d items", idx, len(index.Items))
	return index, nil
}

// Parse validates data against the index schema and decodes it. A bare array
// of items is accepted. If loc is non-nil, relative item urls are resolved
// against it.
func Parse(data []byte, loc *url.URL) (*Index, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		data = append(append([]byte(`{"items":`), data...), '}')
	}
	if err := validate(data); err != nil {
		return nil, fmt.Errorf("%w: %s", EInvalidIndex, err)
	}
	index := &Index{}
	if err := json.Unmarshal(data, index); err != nil {
		return nil, fmt.Errorf("%w: %s", EInvalidIndex, err)
	}
	if loc == nil {
		return index, nil
	}
	for i := range index.Items {
		ref, err := url.Parse(index.Items[i].URL)
		if err != nil {
			return nil, fmt.Errorf("%w: item %q: %s", EInvalidIndex, index.Items[i].Name, err)
		}
		index.Items[i].URL = loc.ResolveReference(ref).String()
	}
	return index, nil
}
