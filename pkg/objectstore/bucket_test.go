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

package objectstore

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore/client"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parca-dev/stackgraph/pkg/profile/profiletest"
)

func TestUploadOpen(t *testing.T) {
	ctx := context.Background()
	tracer := noop.NewTracerProvider().Tracer("")

	bkt, err := NewBucket(log.NewNopLogger(), &client.BucketConfig{
		Type:   client.FILESYSTEM,
		Config: map[string]interface{}{"directory": t.TempDir()},
		Prefix: "profiles",
	}, prometheus.NewRegistry(), "test")
	require.NoError(t, err)

	p := profiletest.Profile("A B", "A C", "D")
	require.NoError(t, Upload(ctx, tracer, bkt, "firefox.json", p))

	ok, err := bkt.Exists(ctx, "firefox.json")
	require.NoError(t, err)
	require.True(t, ok)

	res, err := Open(ctx, tracer, bkt, "firefox.json")
	require.NoError(t, err)
	require.Len(t, res.Threads, 1)
	require.Equal(t, []string{"A B", "A C", "D"}, profiletest.SampleStacks(res.Threads[0]))

	_, err = Open(ctx, tracer, bkt, "missing.json")
	require.Error(t, err)
}

func TestUnsupportedBucket(t *testing.T) {
	_, err := NewBucket(log.NewNopLogger(), &client.BucketConfig{
		Type:   client.S3,
		Config: map[string]interface{}{"bucket": "profiles"},
	}, prometheus.NewRegistry(), "test")
	require.Error(t, err)
}
