// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Subpackages contain the pieces of isomaker, which turns a removable drive
// into a multi-boot rescue stick: Ventoy is installed on it, OS installer
// isos or a WinPE recovery image are copied to it, and the PQTools imaging
// toolkit is deployed alongside.
//
// The interesting part is tracking the Ventoy installer, which runs elevated
// and detached, and reports only through weak signals:
//
//   - status files it may or may not write into its working dir
//     (cli_percent.txt, cli_done.txt, cli_log.txt)
//   - the disk vanishing from enumeration while it is repartitioned, and
//     reappearing, often under another letter
//   - the new data partition's volume label (VENTOY)
//
// pkg/provision/monitor fuses these into a single state per session; the
// disk's physical index is its only stable identity.
//
// Binaries:
//
//   - cmd/isomakerd: local control service for the ui. Commands are http
//     routes; events go out over one websocket per ui connection, and
//     closing it cancels that connection's session.
//   - cmd/util/index-schema: generates the json schema of the repository
//     index.
package isomaker
