// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package history persists the outcome of provisioning runs and transfers,
// so the ui can show recent activity across restarts.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/fileutil"
	"github.com/purecloudlabs/isomaker/pkg/log"

	"github.com/prologic/bitcask"
)

type Kind string

const (
	Provision Kind = "p"
	Transfer  Kind = "t"
)

func (k Kind) String() string {
	switch k {
	case Provision:
		return "provision"
	case Transfer:
		return "transfer"
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "provision":
		*k = Provision
	case "transfer":
		*k = Transfer
	default:
		return fmt.Errorf("unknown kind %q", s)
	}
	return nil
}

// Record is the terminal outcome of one session or transfer.
type Record struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	State   string    `json:"state"`
	Subject string    `json:"subject"` //drive model and letter, or source url
	Error   string    `json:"error,omitempty"`
	LogTail string    `json:"logTail,omitempty"`
	Digest  string    `json:"digest,omitempty"`
	Match   *bool     `json:"match,omitempty"`
}

// bitcask rejects values over 64k
const maxField = 8192

type Store struct {
	bc *bitcask.Bitcask
	sync.Mutex
}

// Open opens the store at path, creating it if necessary. A store which
// cannot be opened is moved aside and replaced with an empty one.
func Open(path string) (*Store, error) {
	db, err := bitcask.Open(path)
	if err != nil {
		log.Logf("history: opening %s: %s", path, err)
		if _, serr := os.Stat(path); serr != nil || !fileutil.RenameUnique(path, "history-corrupt-") {
			return nil, err
		}
		if db, err = bitcask.Open(path); err != nil {
			return nil, err
		}
	}
	return &Store{bc: db}, nil
}

// Add stores r. Zero Time is replaced with the current time.
func (s *Store) Add(r Record) error {
	if r.ID == "" {
		return fmt.Errorf("history: record without id")
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	r.LogTail = truncate(r.LogTail)
	r.Error = truncate(r.Error)
	r.Subject = truncate(r.Subject)
	v, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	return s.bc.Put(key(r), v)
}

// Recent returns up to n records, newest first. n <= 0 means all.
func (s *Store) Recent(n int) ([]Record, error) {
	s.Lock()
	defer s.Unlock()
	var keys [][]byte
	for k := range s.bc.Keys() {
		keys = append(keys, k)
	}
	var recs []Record
	for _, k := range keys {
		v, err := s.bc.Get(k)
		if err != nil {
			return nil, err
		}
		var r Record
		if err = json.Unmarshal(v, &r); err != nil {
			log.Logf("history: skipping %s: %s", k, err)
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Time.After(recs[j].Time) })
	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs, nil
}

// Number of stored records.
func (s *Store) Len() int {
	s.Lock()
	defer s.Unlock()
	return s.bc.Len()
}

func (s *Store) Close() error {
	s.Lock()
	defer s.Unlock()
	return s.bc.Close()
}

// kind, time, id; kept under bitcask's default 64 byte key limit
func key(r Record) []byte {
	id := r.ID
	if len(id) > 40 {
		id = id[:40]
	}
	return []byte(fmt.Sprintf("%s_%016x_%s", r.Kind, r.Time.UnixNano(), id))
}

func truncate(s string) string {
	if len(s) <= maxField {
		return s
	}
	return strings.ToValidUTF8(s[len(s)-maxField:], "")
}
