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

package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/profile/profiletest"
)

func encodeProfile(t *testing.T, stacks ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, profile.Encode(&buf, profiletest.Profile(stacks...)))
	return buf.Bytes()
}

func setupReloader(ctx context.Context, t *testing.T) (string, *Reloader, chan *profile.Profile) {
	t.Helper()

	logger := log.NewNopLogger()
	reg := prometheus.NewRegistry()
	reloaded := make(chan *profile.Profile, 1)

	filename := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(filename, encodeProfile(t, "A B"), 0o644))

	reloaders := []ComponentReloader{
		{
			Name: "test",
			Reloader: func(p *profile.Profile) error {
				select {
				case reloaded <- p:
				default:
				}
				return nil
			},
		},
	}

	r, err := NewReloader(logger, reg, filename, reloaders)
	require.NoError(t, err)

	go r.Run(ctx)

	time.Sleep(time.Millisecond * 100)

	return filename, r, reloaded
}

func TestReloadValid(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	filename, r, reloaded := setupReloader(ctx, t)

	require.NoError(t, os.WriteFile(filename, encodeProfile(t, "A B", "C D E"), 0o644))

	select {
	case p := <-reloaded:
		require.Equal(t, 2, p.Threads[0].Samples.Len())
		require.Eventually(t, func() bool {
			return testutil.ToFloat64(r.reloadSuccess) == 1
		}, time.Second, 10*time.Millisecond)
	case <-ctx.Done():
		t.Error("profile reload timed out")
	}
}

func TestReloadInvalid(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()

	filename, _, reloaded := setupReloader(ctx, t)

	f, err := os.OpenFile(filename, os.O_TRUNC|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()

	if _, err := f.WriteString("{"); err != nil {
		t.Errorf("failed to update temporary profile file: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("invalid profile was reloaded")
	case <-ctx.Done():
	}
}

func TestReloadFutureVersionIsNotRetried(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"meta":{"preprocessedProfileVersion":999}}`), 0o644))

	r, err := NewReloader(log.NewNopLogger(), prometheus.NewRegistry(), filename, nil)
	require.NoError(t, err)
	defer r.watcher.Close()

	attempts := 0
	retry := r.retry
	r.retry = func() backoff.BackOff { return countingBackOff{BackOff: retry(), calls: &attempts} }

	require.Error(t, r.reloadFile(context.Background()))
	require.Equal(t, 0, attempts)
	require.Equal(t, 0.0, testutil.ToFloat64(r.reloadSuccess))
}

func TestReloadUnchangedContentIsSkipped(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(filename, encodeProfile(t, "A B"), 0o644))

	calls := 0
	r, err := NewReloader(log.NewNopLogger(), prometheus.NewRegistry(), filename, []ComponentReloader{{
		Name:     "test",
		Reloader: func(*profile.Profile) error { calls++; return nil },
	}})
	require.NoError(t, err)
	defer r.watcher.Close()

	require.NoError(t, r.reloadFile(context.Background()))
	require.NoError(t, r.reloadFile(context.Background()))
	require.Equal(t, 1, calls)

	require.NoError(t, os.WriteFile(filename, encodeProfile(t, "A B", "C"), 0o644))
	require.NoError(t, r.reloadFile(context.Background()))
	require.Equal(t, 2, calls)
}

type countingBackOff struct {
	backoff.BackOff
	calls *int
}

func (c countingBackOff) NextBackOff() time.Duration {
	*c.calls++
	return c.BackOff.NextBackOff()
}
