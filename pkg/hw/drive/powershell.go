// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package drive

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/fileutil"
	"github.com/purecloudlabs/isomaker/pkg/log"
)

const DefaultTimeout = 15 * time.Second

// Joins Win32_DiskDrive (usb or removable media) to its partitions and
// logical disks, one json object per lettered volume.
const cimQuery = `
$ErrorActionPreference = 'Stop'
$drives = Get-CimInstance Win32_DiskDrive |
  Where-Object { ($_.InterfaceType -eq 'USB') -or ($_.MediaType -like 'Removable*') }
$result = @()
foreach ($d in $drives) {
  try {
    foreach ($p in @(Get-CimAssociatedInstance -InputObject $d -ResultClassName Win32_DiskPartition)) {
      foreach ($l in @(Get-CimAssociatedInstance -InputObject $p -ResultClassName Win32_LogicalDisk)) {
        $result += [pscustomobject]@{
          letter        = $l.DeviceID
          volumeLabel   = $l.VolumeName
          fileSystem    = $l.FileSystem
          sizeBytes     = [int64]$d.Size
          model         = $d.Model
          serial        = $d.SerialNumber
          deviceId      = $d.DeviceID
          physIndex     = $d.Index
          mediaType     = $d.MediaType
          interfaceType = $d.InterfaceType
        }
      }
    }
  } catch { }
}
ConvertTo-Json -InputObject @($result) -Depth 3 -Compress
`

// PowerShell lists drives with a CIM query. Windows only; elsewhere the
// command fails and List returns nothing.
type PowerShell struct {
	// Upper bound on the query; DefaultTimeout if zero.
	Timeout time.Duration
	// Letter of the system volume, whose disk is never reported. Uses
	// %SystemDrive%, or C: if unset.
	SystemDrive string
}

var _ Inventory = (*PowerShell)(nil)

func psArgs() []string {
	return []string{"powershell.exe", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", cimQuery}
}

func (ps *PowerShell) List(ctx context.Context) []Drive {
	timeout := ps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	args := psArgs()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	hideWindow(cmd)
	out, ok := log.Cmd(cmd)
	if !ok {
		log.Logf("drive query failed")
		return []Drive{}
	}
	drives, err := parse(out)
	if err != nil {
		log.Logf("drive query: parsing output: %s", err)
		return []Drive{}
	}
	return withoutSystemDisk(drives, ps.systemDrive())
}

func (ps *PowerShell) systemDrive() string {
	if ps.SystemDrive != "" {
		return ps.SystemDrive
	}
	if sd := os.Getenv("SystemDrive"); sd != "" {
		return sd
	}
	return "C:"
}

// Accepts a json array, a single object, or nothing.
func parse(out string) ([]Drive, error) {
	out = strings.TrimSpace(fileutil.DecodeText([]byte(out)))
	if out == "" || out == "null" {
		return []Drive{}, nil
	}
	if strings.HasPrefix(out, "[") {
		drives := []Drive{}
		err := json.Unmarshal([]byte(out), &drives)
		return drives, err
	}
	var d Drive
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		return nil, err
	}
	return []Drive{d}, nil
}
