// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package api

import (
	"fmt"
	"html"
	"net/http"
	"os"
	fp "path/filepath"
	"strings"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/history"
	"github.com/purecloudlabs/isomaker/pkg/log"
)

const (
	timeFormat = "01/02/2006-03:04:05 PM"
	maxRecent  = 100
)

var BuildId string

func recordToHtml(r history.Record, now time.Time) string {
	var timeClass string //hilights the last day
	if r.Time.Add(time.Hour * 24).After(now) {
		timeClass = "today"
	}
	detail := r.Error
	if detail == "" && r.Digest != "" {
		detail = r.Digest
		if r.Match != nil && !*r.Match {
			detail += " (mismatch)"
		}
	}
	format := "<tr><td><time class='%s'>%s</time></td><td class='kind'>%s</td><td class='state %s'>%s</td>" +
		"<td class='subject'>%s</td><td class='detail'>%s</td></tr>"
	return fmt.Sprintf(format, timeClass, r.Time.Format(timeFormat), r.Kind,
		html.EscapeString(r.State), html.EscapeString(r.State),
		html.EscapeString(r.Subject), html.EscapeString(detail))
}

func recentToHtml(recs []history.Record) string {
	now := time.Now()
	var sb strings.Builder
	sb.WriteString(`<html><head><title>Recent Activity</title><style>
	.today{font-weight:bold} .failure{color:#b00} .success{color:#070} td{padding:0 1em}
	</style></head>
	<body>Displays up to 100 provisioning runs and transfers<br><a href=/recent/>Refresh</a><br>
	<table class=history><tr><th><time>Time</time></th><th>Kind</th><th>State</th><th>Subject</th><th>Detail</th></tr>`)
	for _, r := range recs {
		sb.WriteString(recordToHtml(r, now))
	}
	fmt.Fprintf(&sb, "</table><hr/><div class=buildId>%s: %s</div><br></body></html>", fp.Base(os.Args[0]), BuildId)
	return sb.String()
}

// handle /recent/
func (s *Server) recent(w http.ResponseWriter, req *http.Request) {
	var recs []history.Record
	if s.History != nil {
		var err error
		if recs, err = s.History.Recent(maxRecent); err != nil {
			log.Logf("reading history: %s", err)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(recentToHtml(recs))); err != nil {
		log.Logf("error writing page: %s", err)
	}
}
