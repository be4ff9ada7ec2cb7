// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package api is the control service used by the ui: http routes for each
// command, plus one websocket per ui connection carrying that session's
// events.
//
// A ui connects to /events first. The server answers with hello{session};
// that id names the session in later commands, and closing the socket
// cancels whatever the session was tracking.
package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/history"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/log/flags"
	"github.com/purecloudlabs/isomaker/pkg/net/xfer"
	"github.com/purecloudlabs/isomaker/pkg/provision"
	"github.com/purecloudlabs/isomaker/pkg/repo"
	"github.com/purecloudlabs/isomaker/pkg/toolkit"

	"github.com/bmizerany/pat"
)

// Deps are the services behind the routes. History may be nil.
type Deps struct {
	Inventory drive.Inventory
	Provision *provision.Service
	Xfer      *xfer.Engine
	Repo      *repo.Fetcher
	Toolkit   *toolkit.Deployer
	History   *history.Store

	// Defaults for requests that leave them out.
	RepoBase      string
	Installer     string
	ToolkitSource string
	WinPEISO      string
}

type Server struct {
	Deps

	hub  *hub
	base context.Context
	stop context.CancelFunc
	jobs sync.WaitGroup
}

func New(d Deps) *Server {
	s := &Server{Deps: d}
	s.base, s.stop = context.WithCancel(context.Background())
	s.hub = newHub(s.disconnected)
	return s
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := pat.New()
	mux.Get("/drives", http.HandlerFunc(s.listDrives))
	mux.Post("/provision/:session", http.HandlerFunc(s.startProvisioning))
	mux.Del("/provision/:session", http.HandlerFunc(s.cancelProvisioning))
	mux.Get("/repo/index", http.HandlerFunc(s.repoIndex))
	mux.Post("/verify", http.HandlerFunc(s.verify))
	mux.Post("/transfer/:session", http.HandlerFunc(s.startTransfer))
	mux.Post("/iso/:session", http.HandlerFunc(s.copyISO))
	mux.Post("/toolkit", http.HandlerFunc(s.installToolkit))
	mux.Post("/winpe", http.HandlerFunc(s.installWinPE))
	mux.Get("/probe", http.HandlerFunc(s.probe))
	mux.Get("/installer", http.HandlerFunc(s.installer))
	mux.Get("/history", http.HandlerFunc(s.history))
	mux.Get("/recent/", http.HandlerFunc(s.recent))
	mux.Get("/events", http.HandlerFunc(s.events))
	mux.Get("/", http.RedirectHandler("/recent/", http.StatusMovedPermanently))
	return mux
}

// ServeWith serves on lis until srvr is shut down. If srvr is nil a default
// one is used.
func (s *Server) ServeWith(lis net.Listener, srvr *http.Server) error {
	if srvr == nil {
		srvr = &http.Server{ReadHeaderTimeout: 10 * time.Second}
	}
	if srvr.ErrorLog == nil {
		srvr.ErrorLog = log.NewStdlog("http: ", flags.NA)
	}
	srvr.Handler = s.Handler()
	log.Logf("control api listening on %s", lis.Addr())
	return srvr.Serve(lis)
}

// Close cancels transfers and closes event streams, which in turn cancels
// their sessions. It waits for background jobs to end.
func (s *Server) Close() {
	s.stop()
	s.hub.closeAll()
	s.jobs.Wait()
	if s.Provision != nil && s.Provision.Registry != nil {
		s.Provision.Registry.CancelAll()
	}
}

// Called once a session's current event stream is gone.
func (s *Server) disconnected(id string) {
	log.Logf("session %s: ui disconnected", id)
	if s.Provision != nil {
		s.Provision.Cancel(id)
	}
}

// Context for work done on behalf of a session: ends when its stream closes
// or the server does.
func (s *Server) sessionContext(id string) (context.Context, context.CancelFunc) {
	if cctx := s.hub.context(id); cctx != nil {
		ctx, cancel := context.WithCancel(cctx)
		go func() {
			select {
			case <-s.base.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		return ctx, cancel
	}
	return context.WithCancel(s.base)
}
