// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/history"
	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/net/xfer"
)

type transferRequest struct {
	URL         string `json:"url"`
	OutDir      string `json:"outDir,omitempty"`
	DriveLetter string `json:"driveLetter,omitempty"`
	DestName    string `json:"destName,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
	Decompress  bool   `json:"decompress,omitempty"`
	Retries     int    `json:"retries,omitempty"`
}

type isoRequest struct {
	DriveLetter string `json:"driveLetter"`
	Path        string `json:"path"`
	DestName    string `json:"destName,omitempty"`
}

// TransferDone is the data of a transferDone event.
type TransferDone struct {
	OK      bool   `json:"ok"`
	OutPath string `json:"outPath,omitempty"`
	Digest  string `json:"digest,omitempty"`
	Match   *bool  `json:"match"`
	Error   string `json:"error,omitempty"`
}

type accepted struct {
	Session string `json:"session"`
}

// handle POST /transfer/:session
func (s *Server) startTransfer(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(":session")
	var req transferRequest
	if err := decode(r, &req); err != nil {
		replyErr(w, r, err)
		return
	}
	if req.URL == "" || id == "" {
		replyErr(w, r, fmt.Errorf("%w: session and url required", errBadRequest))
		return
	}
	if req.OutDir == "" && req.DriveLetter == "" {
		replyErr(w, r, xfer.ENoDest)
		return
	}
	task := xfer.Task{
		Source:         req.URL,
		Dir:            req.OutDir,
		DriveLetter:    req.DriveLetter,
		Name:           req.DestName,
		ExpectedDigest: req.SHA256,
		Decompress:     req.Decompress,
		Retries:        req.Retries,
	}
	s.runJob(id, req.URL, func(ctx context.Context, progress common.ProgressFunc) TransferDone {
		res, err := s.Xfer.Transfer(ctx, task, progress)
		if err != nil {
			return TransferDone{OutPath: res.Path, Error: err.Error()}
		}
		return TransferDone{OK: true, OutPath: res.Path, Digest: res.Digest, Match: res.Match}
	})
	reply(w, http.StatusAccepted, accepted{Session: id})
}

// handle POST /iso/:session
func (s *Server) copyISO(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(":session")
	var req isoRequest
	if err := decode(r, &req); err != nil {
		replyErr(w, r, err)
		return
	}
	if req.Path == "" || id == "" {
		replyErr(w, r, fmt.Errorf("%w: session and path required", errBadRequest))
		return
	}
	s.runJob(id, req.Path, func(ctx context.Context, progress common.ProgressFunc) TransferDone {
		dest, err := s.Toolkit.CopyISO(ctx, req.DriveLetter, req.Path, req.DestName, progress)
		if err != nil {
			return TransferDone{OutPath: dest, Error: err.Error()}
		}
		return TransferDone{OK: true, OutPath: dest}
	})
	reply(w, http.StatusAccepted, accepted{Session: id})
}

type jobFunc func(ctx context.Context, progress common.ProgressFunc) TransferDone

// Runs fn in the background, streaming its progress to the session and
// recording the outcome.
func (s *Server) runJob(id, subject string, fn jobFunc) {
	ctx, cancel := s.sessionContext(id)
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer cancel()
		th := &throttle{}
		done := fn(ctx, func(p common.TransferProgress) {
			if th.want(p) {
				s.hub.publish(id, Envelope{Type: EventTransferProgress, Data: p})
			}
		})
		if !done.OK {
			log.Msgf("transfer of %s failed: %s", subject, done.Error)
		}
		s.record(id, subject, done)
		s.hub.publish(id, Envelope{Type: EventTransferDone, Data: done})
	}()
}

func (s *Server) record(id, subject string, d TransferDone) {
	if s.History == nil {
		return
	}
	state := "success"
	if !d.OK {
		state = "failure"
	}
	err := s.History.Add(history.Record{
		ID:      id,
		Kind:    history.Transfer,
		Time:    time.Now(),
		State:   state,
		Subject: subject,
		Error:   d.Error,
		Digest:  d.Digest,
		Match:   d.Match,
	})
	if err != nil {
		log.Logf("session %s: recording history: %s", id, err)
	}
}

// Engines report every chunk; the ui needs a change of percent, or for
// unknown lengths, a change of a MiB.
type throttle struct {
	sent    bool
	percent int
	bytes   int64
}

const unknownStep = 1 << 20

func (t *throttle) want(p common.TransferProgress) bool {
	if t.sent {
		if p.Percent >= 0 && p.Percent == t.percent {
			return false
		}
		if p.Percent < 0 && p.Received-t.bytes < unknownStep {
			return false
		}
	}
	t.sent = true
	t.percent = p.Percent
	t.bytes = p.Received
	return true
}
