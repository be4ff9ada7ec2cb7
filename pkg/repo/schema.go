// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package repo

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/santhosh-tekuri/jsonschema"
)

// Generated by cmd/util/index-schema, then hand-edited.
//
//go:embed schemas/index.json
var indexSchema []byte

const schemaURL = "isomaker://schemas/index.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if schemaErr = c.AddResource(schemaURL, bytes.NewReader(indexSchema)); schemaErr != nil {
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

func validate(doc []byte) error {
	s, err := compiled()
	if err != nil {
		return err
	}
	return s.Validate(bytes.NewReader(doc))
}
