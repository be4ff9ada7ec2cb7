// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/history"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/net/xfer"
	"github.com/purecloudlabs/isomaker/pkg/provision"
	"github.com/purecloudlabs/isomaker/pkg/provision/monitor"
	"github.com/purecloudlabs/isomaker/pkg/repo"
	"github.com/purecloudlabs/isomaker/pkg/toolkit"
	"github.com/purecloudlabs/isomaker/pkg/ventoy"
)

const maxBody = 1 << 20

type errorReply struct {
	Error string `json:"error"`
}

func reply(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logf("writing reply: %s", err)
	}
}

// Maps err to a status code.
func status(err error) int {
	var (
		ce *common.ConfigurationError
		te *common.TransferError
	)
	switch {
	case errors.As(err, &ce),
		errors.Is(err, ventoy.ENoTarget), errors.Is(err, ventoy.EBadMode),
		errors.Is(err, provision.ENoSession), errors.Is(err, repo.ENoBase),
		errors.Is(err, xfer.ENoDest), errors.Is(err, xfer.EBadName),
		errors.Is(err, toolkit.EBadLabel), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, provision.ENoDrive), errors.Is(err, toolkit.ENoISO), os.IsNotExist(err):
		return http.StatusNotFound
	case errors.As(err, &te), errors.Is(err, repo.EInvalidIndex):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func replyErr(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	log.Logf("%s %s: %d %s", r.Method, r.URL.Path, code, err)
	reply(w, code, errorReply{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, err)
	}
	return nil
}

// handle GET /drives
func (s *Server) listDrives(w http.ResponseWriter, r *http.Request) {
	drives := s.Inventory.List(r.Context())
	if drives == nil {
		drives = []drive.Drive{}
	}
	reply(w, http.StatusOK, drives)
}

// handle POST /provision/:session
func (s *Server) startProvisioning(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(":session")
	var req provision.Request
	if err := decode(r, &req); err != nil {
		replyErr(w, r, err)
		return
	}
	if req.InstallerPath == "" {
		req.InstallerPath = s.Installer
	}
	started, err := s.Provision.Start(r.Context(), id, req, func(ctx context.Context, e monitor.Event) {
		s.hub.publishCtx(ctx, id, Envelope{Type: e.Type, Data: e.Data})
	})
	if err != nil {
		replyErr(w, r, err)
		return
	}
	reply(w, http.StatusAccepted, started)
}

// handle DELETE /provision/:session
func (s *Server) cancelProvisioning(w http.ResponseWriter, r *http.Request) {
	s.Provision.Cancel(r.URL.Query().Get(":session"))
	w.WriteHeader(http.StatusNoContent)
}

// handle GET /repo/index?base=
func (s *Server) repoIndex(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		base = s.RepoBase
	}
	idx, err := s.Repo.Fetch(r.Context(), base)
	if err != nil {
		replyErr(w, r, err)
		return
	}
	reply(w, http.StatusOK, idx)
}

type verifyRequest struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// handle POST /verify
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		replyErr(w, r, err)
		return
	}
	if req.Path == "" {
		replyErr(w, r, fmt.Errorf("%w: path required", errBadRequest))
		return
	}
	v, err := xfer.FileCheck{Path: req.Path, Expected: req.SHA256}.Verify()
	if err != nil {
		replyErr(w, r, err)
		return
	}
	reply(w, http.StatusOK, v)
}

type toolkitRequest struct {
	DriveLetter string `json:"driveLetter"`
	SourceDir   string `json:"sourceDir"`
}

// handle POST /toolkit
func (s *Server) installToolkit(w http.ResponseWriter, r *http.Request) {
	var req toolkitRequest
	if err := decode(r, &req); err != nil {
		replyErr(w, r, err)
		return
	}
	if req.SourceDir == "" {
		req.SourceDir = s.ToolkitSource
	}
	res, err := s.Toolkit.InstallRecoveryToolkit(req.DriveLetter, req.SourceDir)
	if err != nil {
		replyErr(w, r, err)
		return
	}
	reply(w, http.StatusOK, res)
}

type winpeRequest struct {
	DriveLetter string `json:"driveLetter"`
	ISOPath     string `json:"isoPath"`
}

// handle POST /winpe
func (s *Server) installWinPE(w http.ResponseWriter, r *http.Request) {
	var req winpeRequest
	if err := decode(r, &req); err != nil {
		replyErr(w, r, err)
		return
	}
	if req.ISOPath == "" {
		req.ISOPath = s.WinPEISO
	}
	res, err := s.Toolkit.InstallWinPEPack(req.DriveLetter, req.ISOPath)
	if err != nil {
		replyErr(w, r, err)
		return
	}
	reply(w, http.StatusOK, res)
}

// handle GET /probe?drive=
func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	letter := r.URL.Query().Get("drive")
	if drive.NormalizeLetter(letter) == "" {
		replyErr(w, r, fmt.Errorf("%w: drive %q", errBadRequest, letter))
		return
	}
	reply(w, http.StatusOK, ventoy.Probe(letter))
}

type installerReply struct {
	Path       string   `json:"path"`
	Candidates []string `json:"candidates"`
}

// handle GET /installer
func (s *Server) installer(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusOK, installerReply{
		Path:       ventoy.FindInstaller(s.Installer),
		Candidates: ventoy.Candidates(s.Installer),
	})
}

const defaultHistory = 50

// handle GET /history?n=
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	n := defaultHistory
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 {
			replyErr(w, r, fmt.Errorf("%w: n=%q", errBadRequest, q))
			return
		}
		n = v
	}
	recs := []history.Record{}
	if s.History != nil {
		var err error
		if recs, err = s.History.Recent(n); err != nil {
			replyErr(w, r, err)
			return
		}
		if recs == nil {
			recs = []history.Record{}
		}
	}
	reply(w, http.StatusOK, recs)
}
