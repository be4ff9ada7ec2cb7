// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package common

import (
	"fmt"
	"time"
)

// ConfigurationError reports a missing or unusable setting, such as an
// installer path that does not exist.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Setting, e.Err)
}
func (e *ConfigurationError) Unwrap() error { return e.Err }

// LaunchError reports that a process could not be spawned, or that the user
// declined elevation.
type LaunchError struct {
	Exe    string
	Stderr string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("launching %s: %s (stderr: %s)", e.Exe, e.Err, e.Stderr)
	}
	return fmt.Sprintf("launching %s: %s", e.Exe, e.Err)
}
func (e *LaunchError) Unwrap() error { return e.Err }

// EvidenceGatheringError is returned when status evidence could not be read
// for a reason other than absence.
type EvidenceGatheringError struct {
	Source string
	Err    error
}

func (e *EvidenceGatheringError) Error() string {
	return fmt.Sprintf("gathering evidence from %s: %s", e.Source, e.Err)
}
func (e *EvidenceGatheringError) Unwrap() error { return e.Err }

// TimeoutError is the terminal error of a session which exceeded its ceiling.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no completion after %s", e.After)
}

// TransferError reports a non-2xx response (StatusCode set) or a failure
// while streaming (StatusCode zero).
type TransferError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transfer %s: http status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("transfer %s: %s", e.Source, e.Err)
}
func (e *TransferError) Unwrap() error { return e.Err }
