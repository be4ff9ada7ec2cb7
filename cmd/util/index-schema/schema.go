// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Index-schema generates a json schema for the repository index read by
// github.com/purecloudlabs/isomaker/pkg/repo.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/purecloudlabs/isomaker/pkg/repo"

	"github.com/alecthomas/jsonschema"
)

const Warn = `WARNING:
	schema will need to be hand-edited before replacing pkg/repo/schemas/index.json
	* jsonschema doesn't know sha256 is 64 hex digits
	* jsonschema assumes no additional properties are allowed (but publishers
		sometimes add their own)
`

func main() {
	item := flag.Bool("item", false, "produce schema for a single index item")
	out := flag.String("o", "", "write to file rather than stdout")
	flag.Parse()
	fmt.Fprint(os.Stderr, Warn)
	var schem *jsonschema.Schema
	if *item {
		schem = jsonschema.Reflect(&repo.Item{})
	} else {
		schem = jsonschema.Reflect(&repo.Index{})
	}
	data, err := json.MarshalIndent(schem, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
	if *out == "" {
		fmt.Printf("%s\n", data)
		return
	}
	if err = os.WriteFile(*out, append(data, '\n'), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
