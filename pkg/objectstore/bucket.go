// Copyright 2026 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package objectstore loads and stores profiles in object storage buckets.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/client"
	"github.com/thanos-io/objstore/providers/filesystem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/parca-dev/stackgraph/pkg/profile"
)

// NewBucket creates the bucket described by conf. Only filesystem buckets
// are supported.
func NewBucket(logger log.Logger, conf *client.BucketConfig, reg prometheus.Registerer, component string) (objstore.Bucket, error) {
	level.Info(logger).Log("msg", "loading bucket configuration", "type", conf.Type, "component", component)

	config, err := yaml.Marshal(conf.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal content of bucket configuration: %w", err)
	}

	var bucket objstore.Bucket
	switch strings.ToUpper(string(conf.Type)) {
	case string(client.FILESYSTEM):
		bucket, err = filesystem.NewBucketFromConfig(config)
	default:
		return nil, fmt.Errorf("bucket with type %s is not supported", conf.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", conf.Type, err)
	}

	return objstore.BucketWithMetrics(bucket.Name(), objstore.NewPrefixedBucket(bucket, conf.Prefix), reg), nil
}

// Open reads and decodes the profile stored under name.
func Open(ctx context.Context, tracer trace.Tracer, bkt objstore.BucketReader, name string) (*profile.Profile, error) {
	ctx, span := tracer.Start(ctx, "bucket_get_profile")
	span.SetAttributes(attribute.String("name", name))

	r, err := bkt.Get(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("get profile %q: %w", name, err)
	}

	tr := newTracingReadCloser(r, span)
	defer tr.Close()

	p, err := profile.Read(tr)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("threads", len(p.Threads)))
	return p, nil
}

// Upload encodes p and stores it under name.
func Upload(ctx context.Context, tracer trace.Tracer, bkt objstore.Bucket, name string, p *profile.Profile) error {
	ctx, span := tracer.Start(ctx, "bucket_upload_profile")
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	buf := &bytes.Buffer{}
	if err := profile.Encode(buf, p); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("size", buf.Len()))

	if err := bkt.Upload(ctx, name, buf); err != nil {
		span.RecordError(err)
		return fmt.Errorf("upload profile %q: %w", name, err)
	}
	return nil
}

type tracingReadCloser struct {
	r io.ReadCloser
	s trace.Span

	read int
}

// newTracingReadCloser takes ownership of span and ends it on Close.
func newTracingReadCloser(r io.ReadCloser, span trace.Span) io.ReadCloser {
	if size, err := objstore.TryToGetSize(r); err == nil {
		span.SetAttributes(attribute.Int64("size", size))
	}
	return &tracingReadCloser{r: r, s: span}
}

func (t *tracingReadCloser) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.read += n
	}
	if err != nil && err != io.EOF && t.s != nil {
		t.s.RecordError(err)
	}
	return n, err
}

func (t *tracingReadCloser) Close() error {
	err := t.r.Close()
	if t.s != nil {
		t.s.SetAttributes(attribute.Int64("read", int64(t.read)))
		if err != nil {
			t.s.SetAttributes(attribute.String("close_err", err.Error()))
		}
		t.s.End()
		t.s = nil
	}
	return err
}
