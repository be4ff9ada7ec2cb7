// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Abstraction for strings that implementors will likely wish to change.
package strs

import (
	"github.com/purecloudlabs/isomaker/pkg/log"
)

// Abstraction for strings that implementors will likely wish to change.
type Stringer interface {
	// Prefix used for env vars.
	EnvPrefix() string
	// Prefix used for log file names.
	LogPrefix() string
	// Volume label written by the installer on success.
	SuccessLabel() string
	// Name of the toolkit dir created at the root of a drive.
	ToolkitDir() string
}

var stringImpl Stringer

// Override defaults.
func SetStringer(b Stringer) {
	if stringImpl != nil {
		log.Log("strs: overriding non-nil impl")
	}
	stringImpl = b
}

func EnvPrefix() string {
	if stringImpl != nil {
		return stringImpl.EnvPrefix()
	}
	return "ISOMAKER_"
}

func LogPrefix() string {
	if stringImpl != nil {
		return stringImpl.LogPrefix()
	}
	return "isomaker"
}

func SuccessLabel() string {
	if stringImpl != nil {
		return stringImpl.SuccessLabel()
	}
	return "VENTOY"
}

func ToolkitDir() string {
	if stringImpl != nil {
		return stringImpl.ToolkitDir()
	}
	return "PQTools"
}
