// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"log"
	"strings"

	"github.com/purecloudlabs/isomaker/pkg/log/flags"
)

// AdaptStdlog redirects output from the system pkg "log" to this logger.
//
// If resetSLFlags is true, the system log's flags are cleaned up so that time
// info isn't added to the entry twice.
//
// Use nil for logger if the logger in question is the predefined "standard" one.
func AdaptStdlog(logger *log.Logger, level flags.Flag, resetSLFlags bool) {
	sa := &stdAdapter{level: level}
	if logger == nil {
		if resetSLFlags {
			log.SetFlags(log.Flags() &^ timeFlags)
		}
		log.SetOutput(sa)
		return
	}
	if resetSLFlags {
		logger.SetFlags(logger.Flags() &^ timeFlags)
	}
	logger.SetOutput(sa)
}

// NewStdlog returns a *log.Logger feeding this package, for apis such as
// http.Server.ErrorLog which want one.
func NewStdlog(prefix string, level flags.Flag) *log.Logger {
	return log.New(&stdAdapter{level: level}, prefix, 0)
}

const timeFlags = log.Ldate | log.Ltime | log.Lmicroseconds

type stdAdapter struct {
	level flags.Flag
}

func (sa *stdAdapter) Write(b []byte) (int, error) {
	FlaggedLogf(sa.level, "%s", strings.TrimSuffix(string(b), "\n"))
	return len(b), nil
}
