// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package xfer handles verified file transfers: a download is streamed to its
// destination while its SHA-256 is computed, so it never has to be read back.
package xfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	fp "path/filepath"
	"strings"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/fileutil"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"

	"github.com/ulikunitz/xz"
)

const fallbackName = "file.bin"

var (
	ENoDest  = errors.New("no destination dir or drive letter")
	EBadName = errors.New("destination name escapes its dir")
)

// Task describes one transfer. Exactly one of Dir and DriveLetter is used;
// DriveLetter wins.
type Task struct {
	// http(s):// or s3://bucket/key
	Source string
	Dir    string
	// Write to the root of this drive, e.g. "E:".
	DriveLetter string
	// File name at the destination. Derived from Source if empty.
	Name string
	// Hex SHA-256 to compare with; case is ignored.
	ExpectedDigest string
	// Decompress .xz sources on the fly. The digest is still that of the
	// downloaded bytes.
	Decompress bool
	// Additional attempts after a network failure.
	Retries int
}

type Result struct {
	Path   string `json:"outPath"`
	Digest string `json:"digest"`
	// nil unless an expected digest was given.
	Match *bool `json:"match"`
}

type Engine struct {
	// http.DefaultClient if nil.
	Client *http.Client
	// Required for s3:// sources.
	S3 S3Getter
	// Maps a drive letter to its root dir; "E:\" style if nil.
	DriveRoot func(letter string) string
	// Delay before the first retry; doubles each time.
	Backoff time.Duration

	mkdirAll func(string, os.FileMode) error
}

// Transfer copies t.Source to its destination, calling onProgress after
// every chunk received. Non-2xx responses and failures while streaming are
// *common.TransferError; errors opening or writing the destination are
// returned as-is. A partially written file is left in place.
func (e *Engine) Transfer(ctx context.Context, t Task, onProgress common.ProgressFunc) (Result, error) {
	backoff := e.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for attempt := 0; ; attempt++ {
		res, err := e.transfer(ctx, t, onProgress)
		var te *common.TransferError
		if err == nil || attempt >= t.Retries || !errors.As(err, &te) || !retryable(te) || ctx.Err() != nil {
			return res, err
		}
		log.Msgf("failed to retrieve %s", t.Source)
		log.Logf("retrieval error %s; sleep %s, retry", err, backoff)
		select {
		case <-ctx.Done():
			return res, &common.TransferError{Source: t.Source, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Client errors won't go away by retrying.
func retryable(te *common.TransferError) bool {
	return te.StatusCode == 0 || te.StatusCode >= 500
}

func (e *Engine) transfer(ctx context.Context, t Task, onProgress common.ProgressFunc) (Result, error) {
	dest, root, err := e.destination(t)
	if err != nil {
		return Result{}, err
	}
	body, total, err := e.open(ctx, t.Source)
	if err != nil {
		return Result{}, err
	}
	defer body.Close()
	if err = e.ensureDir(fp.Dir(dest), root); err != nil {
		return Result{}, err
	}
	out, err := os.Create(dest)
	if err != nil {
		return Result{}, err
	}
	log.Logf("downloading %s to %s", t.Source, dest)

	cr := &countingReader{
		r:        body,
		h:        sha256.New(),
		total:    total,
		filename: fp.Base(dest),
		progress: onProgress,
	}
	var src io.Reader = cr
	if t.Decompress && isXZ(t.Source) {
		xr, xerr := xz.NewReader(cr)
		if xerr != nil {
			out.Close()
			return Result{Path: dest}, &common.TransferError{Source: t.Source, Err: xerr}
		}
		src = xr
	}
	_, err = io.Copy(out, src)
	cerr := out.Close()
	if err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) {
			return Result{Path: dest}, err
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return Result{Path: dest}, &common.TransferError{Source: t.Source, Err: err}
	}
	if cerr != nil {
		return Result{Path: dest}, cerr
	}
	res := Result{Path: dest, Digest: strings.ToUpper(hex.EncodeToString(cr.h.Sum(nil)))}
	if t.ExpectedDigest != "" {
		m := strings.EqualFold(res.Digest, strings.TrimSpace(t.ExpectedDigest))
		res.Match = &m
		if !m {
			log.Msgf("%s: digest mismatch", fp.Base(dest))
		}
	}
	log.Logf("downloaded %s (%d bytes), sha256 %s", dest, cr.received, res.Digest)
	return res, nil
}

// Returns the destination file and the dir which must not be created.
func (e *Engine) destination(t Task) (dest, root string, err error) {
	name := t.Name
	if name == "" {
		name = NameFromURL(t.Source)
		if t.Decompress && isXZ(name) {
			name = strings.TrimSuffix(name, ".xz")
		}
	}
	// either separator may arrive from a url or the ui, whatever the os
	name = fp.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if !fp.IsLocal(name) {
		return "", "", EBadName
	}
	name = fp.Clean(name)
	switch {
	case t.DriveLetter != "":
		l := drive.NormalizeLetter(t.DriveLetter)
		if l == "" {
			return "", "", fmt.Errorf("bad drive letter %q", t.DriveLetter)
		}
		root = l + `\`
		if e.DriveRoot != nil {
			root = e.DriveRoot(l)
		}
		return fp.Join(root, name), root, nil
	case t.Dir != "":
		return fp.Join(t.Dir, name), "", nil
	}
	return "", "", ENoDest
}

// Creates dir unless it is a device root, which must already exist.
func (e *Engine) ensureDir(dir, root string) error {
	if fileutil.IsDeviceRoot(dir) || (root != "" && fp.Clean(dir) == fp.Clean(root)) {
		_, err := os.Stat(dir)
		return err
	}
	mkdir := e.mkdirAll
	if mkdir == nil {
		mkdir = os.MkdirAll
	}
	return mkdir(dir, 0755)
}

// NameFromURL returns the url-decoded last path element of u, or file.bin.
func NameFromURL(u string) string {
	pu, err := url.Parse(u)
	if err != nil {
		return fallbackName
	}
	base := pu.Path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if dec, err := url.PathUnescape(base); err == nil {
		base = dec
	}
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == ".." {
		return fallbackName
	}
	return base
}

func isXZ(name string) bool {
	if pu, err := url.Parse(name); err == nil && pu.Path != "" {
		name = pu.Path
	}
	return strings.HasSuffix(strings.ToLower(name), ".xz")
}

// Hashes and counts bytes as they are read, reporting progress per read.
type countingReader struct {
	r        io.Reader
	h        hash.Hash
	received int64
	total    int64
	filename string
	progress common.ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.h.Write(p[:n])
		cr.received += int64(n)
		if cr.progress != nil {
			pct := -1
			if cr.total > 0 {
				pct = int(cr.received * 100 / cr.total)
			}
			cr.progress(common.TransferProgress{
				Received: cr.received,
				Total:    cr.total,
				Percent:  pct,
				Filename: cr.filename,
			})
		}
	}
	return n, err
}
