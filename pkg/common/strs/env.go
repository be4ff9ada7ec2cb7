// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package strs

func VerboseEnv() string { return EnvPrefix() + "VERBOSE" }
func ConfigEnv() string  { return EnvPrefix() + "CONFIG" }

// Name of the env var overriding a config key, e.g. "listen" -> ISOMAKER_LISTEN.
func KeyEnv(key string) string {
	b := []byte(key)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case c == '-' || c == '.':
			b[i] = '_'
		}
	}
	return EnvPrefix() + string(b)
}
