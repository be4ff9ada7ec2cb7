// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package monitor

import (
	"context"
	"fmt"
	"os"
	fp "path/filepath"
	"strconv"
	"strings"

	"github.com/purecloudlabs/isomaker/pkg/common"
	"github.com/purecloudlabs/isomaker/pkg/fileutil"
	"github.com/purecloudlabs/isomaker/pkg/hw/drive"
	"github.com/purecloudlabs/isomaker/pkg/log"
	"github.com/purecloudlabs/isomaker/pkg/ventoy"

	"golang.org/x/sync/errgroup"
)

// gatherer reads one round of evidence. It never writes to workDir.
type gatherer struct {
	workDir  string
	inv      drive.Inventory
	tailSize int64
}

func (g *gatherer) gather(ctx context.Context) Evidence {
	var (
		ev   Evidence
		eg   errgroup.Group
		pct  string
		done string
		tail string
	)
	eg.Go(func() error {
		fi, err := os.Stat(g.workDir)
		if err == nil && !fi.IsDir() {
			err = fmt.Errorf("not a directory")
		}
		if err != nil {
			return &common.EvidenceGatheringError{Source: g.workDir, Err: err}
		}
		return nil
	})
	eg.Go(func() (err error) {
		pct, err = readStatus(fp.Join(g.workDir, ventoy.PercentFile))
		return
	})
	eg.Go(func() (err error) {
		done, err = readStatus(fp.Join(g.workDir, ventoy.DoneFile))
		return
	})
	eg.Go(func() error {
		var err error
		tail, err = fileutil.Tail(fp.Join(g.workDir, ventoy.LogFile), g.tailSize)
		if err != nil && !os.IsNotExist(err) {
			return &common.EvidenceGatheringError{Source: ventoy.LogFile, Err: err}
		}
		return nil
	})
	if g.inv != nil {
		eg.Go(func() error {
			ev.Drives = g.inv.List(ctx)
			return nil
		})
	}
	ev.Err = eg.Wait()
	ev.LogTail = tail
	if pct != "" {
		if n, err := strconv.Atoi(pct); err == nil {
			ev.HavePercent = true
			ev.Percent = clamp(n)
		} else {
			log.Debugf("%s: unparseable %q", ventoy.PercentFile, pct)
		}
	}
	if done != "" {
		ev.HaveDone = true
		ev.Done = done
	}
	return ev
}

// Returns the first token of a status file, or "" if it does not exist or is
// still empty.
func readStatus(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &common.EvidenceGatheringError{Source: fp.Base(path), Err: err}
	}
	fields := strings.Fields(fileutil.DecodeText(b))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
