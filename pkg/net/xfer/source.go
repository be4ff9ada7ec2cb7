// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package xfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/purecloudlabs/isomaker/pkg/common"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Getter is the part of the s3 api used here; *s3.S3 satisfies it.
type S3Getter interface {
	GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error)
}

// Opens src, returning its body and length (-1 if unknown).
func (e *Engine) open(ctx context.Context, src string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, 0, &common.TransferError{Source: src, Err: err}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return e.openHTTP(ctx, src)
	case "s3":
		return e.openS3(ctx, src, u)
	}
	return nil, 0, &common.TransferError{Source: src, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
}

func (e *Engine) openHTTP(ctx context.Context, src string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, 0, &common.TransferError{Source: src, Err: err}
	}
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, 0, &common.TransferError{Source: src, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		return nil, 0, &common.TransferError{Source: src, StatusCode: res.StatusCode}
	}
	total := res.ContentLength
	if total < 0 {
		total = -1
	}
	return res.Body, total, nil
}

func (e *Engine) openS3(ctx context.Context, src string, u *url.URL) (io.ReadCloser, int64, error) {
	if e.S3 == nil {
		return nil, 0, &common.ConfigurationError{Setting: "s3", Err: fmt.Errorf("no s3 client for %s", src)}
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, 0, &common.TransferError{Source: src, Err: fmt.Errorf("want s3://bucket/key")}
	}
	out, err := e.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, &common.TransferError{Source: src, Err: err}
	}
	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}
	return out.Body, total, nil
}
