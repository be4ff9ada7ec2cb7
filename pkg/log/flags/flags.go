// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package flags holds the bits attached to each log entry. Sinks use them to
// decide whether an entry is for them.
package flags

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Flag int

const (
	NA Flag = 0

	//ok to show to the person operating the ui
	EndUser Flag = 1 << (iota - 1)
	//logging a fatal error
	Fatal
	//do not write to local file log
	NotFile
	//chatty detail, only emitted by sinks created with Debug set
	Debug
)

var named = []Flag{EndUser, Fatal, NotFile, Debug}

func (f Flag) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }

func (f Flag) String() string {
	switch f {
	case NA:
		return ""
	case EndUser:
		return "user"
	case Fatal:
		return "fatal"
	case NotFile:
		return "not file"
	case Debug:
		return "debug"
	}
	for _, bit := range named {
		if f&bit > 0 {
			return strings.Join([]string{bit.String(), (f &^ bit).String()}, "|")
		}
	}
	return fmt.Sprintf("0x%x", int(f))
}

// Wants reports whether a sink configured with mask should see an entry
// carrying f. A zero mask accepts everything except Debug entries.
func (mask Flag) Wants(f Flag) bool {
	if f&Debug != 0 && mask&Debug == 0 {
		return false
	}
	if mask&^Debug == 0 {
		return true
	}
	return f&(mask&^Debug) != 0
}
