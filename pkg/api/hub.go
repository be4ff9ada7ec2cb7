// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventHello            = "hello"
	EventTransferProgress = "transferProgress"
	EventTransferDone     = "transferDone"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 64
)

// Envelope is the json form of every event.
type Envelope struct {
	Type    string      `json:"type"`
	Session string      `json:"session"`
	Data    interface{} `json:"data,omitempty"`
}

type hello struct {
	Session string `json:"session"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan Envelope
	ctx    context.Context
	cancel context.CancelFunc
}

type hub struct {
	mu      sync.Mutex
	clients map[string]*client
	gone    func(id string)
	wg      sync.WaitGroup
}

func newHub(gone func(string)) *hub {
	return &hub{clients: make(map[string]*client), gone: gone}
}

// Registers c, replacing and closing any stream already bound to its id.
func (h *hub) add(c *client) {
	h.mu.Lock()
	old := h.clients[c.id]
	h.clients[c.id] = c
	h.mu.Unlock()
	if old != nil {
		log.Logf("session %s: replacing event stream", c.id)
		old.cancel()
	}
}

// Unregisters c if it is still current. Returns true if it was.
func (h *hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] != c {
		return false
	}
	delete(h.clients, c.id)
	return true
}

func (h *hub) context(id string) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c := h.clients[id]; c != nil {
		return c.ctx
	}
	return nil
}

// Queues e for the session's stream, blocking while the queue is full. Events
// for sessions without a stream are dropped.
func (h *hub) publish(id string, e Envelope) bool {
	return h.publishCtx(context.Background(), id, e)
}

// Like publish, but gives up once ctx is done.
func (h *hub) publishCtx(ctx context.Context, id string, e Envelope) bool {
	h.mu.Lock()
	c := h.clients[id]
	h.mu.Unlock()
	if c == nil {
		log.Debugf("session %s: no stream for %s event", id, e.Type)
		return false
	}
	e.Session = id
	select {
	case c.send <- e:
		return true
	case <-c.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	for _, c := range h.clients {
		c.cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// Local ui pages, and non-browser clients, which send no origin.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "file", "app":
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.EqualFold(u.Host, r.Host)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// handle /events
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		id = uuid.New().String()
	}
	if s.base.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Logf("websocket upgrade from %s: %s", r.RemoteAddr, err)
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	c := &client{id: id, conn: conn, send: make(chan Envelope, sendQueue), ctx: ctx, cancel: cancel}
	c.send <- Envelope{Type: EventHello, Session: id, Data: hello{Session: id}}
	s.hub.wg.Add(1)
	s.hub.add(c)
	go c.writeLoop(&s.hub.wg)
	log.Logf("session %s: ui connected from %s", id, r.RemoteAddr)

	c.readLoop()
	cancel()
	if s.hub.remove(c) {
		s.hub.gone(id)
	}
}

// Reads until the peer goes away. Clients send nothing meaningful; reading
// keeps pongs and close frames flowing.
func (c *client) readLoop() {
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Logf("session %s: stream error %s", c.id, err)
			}
			return
		}
		if c.ctx.Err() != nil {
			return
		}
	}
}

func (c *client) writeLoop(wg *sync.WaitGroup) {
	defer wg.Done()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()
	for {
		select {
		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(e); err != nil {
				log.Logf("session %s: write: %s", c.id, err)
				c.cancel()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			c.drain()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// Writes whatever was queued before the stream was cancelled.
func (c *client) drain() {
	for {
		select {
		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if c.conn.WriteJSON(e) != nil {
				return
			}
		default:
			return
		}
	}
}
