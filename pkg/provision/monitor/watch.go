// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package monitor

import (
	fp "path/filepath"

	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/ventoy"

	"github.com/rjeczalik/notify"
)

// Watches dir for changes to the status files. Each change results in a
// non-blocking send on the returned channel. If the watch cannot be set up,
// the channel is nil, so the caller falls back to polling.
func watchStatus(dir string) (<-chan struct{}, func()) {
	events := make(chan notify.EventInfo, 16)
	if err := notify.Watch(dir, events, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		log.Logf("watching %s: %s; polling only", dir, err)
		return nil, func() {}
	}
	wake := make(chan struct{}, 1)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-quit:
				return
			case ei := <-events:
				if !isStatusFile(ei.Path()) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()
	return wake, func() {
		notify.Stop(events)
		close(quit)
	}
}

func isStatusFile(path string) bool {
	switch fp.Base(path) {
	case ventoy.PercentFile, ventoy.DoneFile, ventoy.LogFile:
		return true
	}
	return false
}
