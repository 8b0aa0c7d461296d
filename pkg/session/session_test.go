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

package session

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/profile/profiletest"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

func newSession(t *testing.T, p *profile.Profile) *Session {
	t.Helper()
	return New(log.NewNopLogger(), prometheus.NewRegistry(), noop.NewTracerProvider().Tracer(""), p, Options{})
}

func TestCallTreeIsCached(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, profiletest.Profile("A B C", "A B", "D"))

	tree, err := s.CallTree(ctx, 0, nil, false)
	require.NoError(t, err)
	// transform, call node table and call tree
	require.Equal(t, uint64(3), s.Derivations())
	require.Equal(t, 3.0, testutil.ToFloat64(s.metrics.misses))

	again, err := s.CallTree(ctx, 0, transform.Stack{}, false)
	require.NoError(t, err)
	require.Same(t, tree, again)
	require.Equal(t, uint64(3), s.Derivations())
	require.Equal(t, 2.0, testutil.ToFloat64(s.metrics.hits))

	inverted, err := s.CallTree(ctx, 0, nil, true)
	require.NoError(t, err)
	require.NotSame(t, tree, inverted)
	require.Equal(t, uint64(4), s.Derivations())

	timing, err := s.StackTiming(ctx, 0, nil)
	require.NoError(t, err)
	require.Len(t, timing, 3)
	require.Equal(t, uint64(5), s.Derivations())
}

func TestDifferentStacksAreCachedSeparately(t *testing.T) {
	ctx := context.Background()
	p := profiletest.Profile("A B C", "A B", "D")
	s := newSession(t, p)
	b := profiletest.FuncIndex(p.Threads[0], "B")

	full, err := s.CallTree(ctx, 0, nil, false)
	require.NoError(t, err)
	merged, err := s.CallTree(ctx, 0, transform.Stack{transform.MergeFunction{FuncIndex: b}}, false)
	require.NoError(t, err)
	require.NotSame(t, full, merged)

	require.Equal(t, []string{"A C", "A", "D"}, profiletest.SampleStacks(merged.Thread()))
	require.Equal(t, []string{"A B C", "A B", "D"}, profiletest.SampleStacks(p.Threads[0]))
}

func TestPushTransformMigratesSelection(t *testing.T) {
	ctx := context.Background()
	p := profiletest.Profile("A B C", "A B C", "A D")
	th := p.Threads[0]
	s := newSession(t, p)

	abc := callnode.Path(profiletest.FuncIndexes(th, "A", "B", "C"))
	s.SetSelectedPath(0, abc)

	merge := transform.MergeCallNode{
		CallNodePath:   callnode.Path(profiletest.FuncIndexes(th, "A", "B")),
		Implementation: profile.ImplementationCombined,
	}
	require.NoError(t, s.PushTransform(ctx, 0, merge))
	require.Equal(t, transform.Stack{merge}, s.Transforms(0))

	selected := s.SelectedPath(0)
	require.Equal(t, callnode.Path(profiletest.FuncIndexes(th, "A", "C")), selected)

	tree, err := s.CallTree(ctx, 0, s.Transforms(0), false)
	require.NoError(t, err)
	node, ok := tree.Info().IndexFromPath(selected)
	require.True(t, ok)
	require.Equal(t, 2.0, tree.NodeData(node).Total)

	popped, ok := s.PopTransform(0)
	require.True(t, ok)
	require.Equal(t, merge, popped)
	require.Empty(t, s.Transforms(0))
	require.Empty(t, s.SelectedPath(0))

	_, ok = s.PopTransform(0)
	require.False(t, ok)
}

func TestPushInvalidTransform(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, profiletest.Profile("A B"))

	err := s.PushTransform(ctx, 0, transform.DropFunction{FuncIndex: 99})
	require.ErrorIs(t, err, transform.ErrInvalidTransform)
	require.Empty(t, s.Transforms(0))
}

func TestUnknownThread(t *testing.T) {
	s := newSession(t, profiletest.Profile("A"))
	_, err := s.CallTree(context.Background(), 3, nil, false)
	require.ErrorIs(t, err, ErrUnknownThread)
}

func TestCancelledContextIsNotCached(t *testing.T) {
	s := newSession(t, profiletest.Profile("A B"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CallTree(ctx, 0, nil, false)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, uint64(0), s.Derivations())

	_, err = s.CallTree(context.Background(), 0, nil, false)
	require.NoError(t, err)
}

func TestWarm(t *testing.T) {
	p := profiletest.MultiThread(
		[]string{"A B", "A C"},
		[]string{"D", "D E", ""},
		[]string{"F"},
	)
	s := newSession(t, p)

	require.NoError(t, s.Warm(context.Background()))
	// Per thread: transform, call node table, call tree and stack timing.
	require.Equal(t, uint64(12), s.Derivations())

	_, err := s.CallTree(context.Background(), 1, nil, false)
	require.NoError(t, err)
	require.Equal(t, uint64(12), s.Derivations())

	require.ErrorIs(t, s.Warm(context.Background(), 0, 7), ErrUnknownThread)
}

func TestSessionsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := profiletest.Profile("A")
	tracer := noop.NewTracerProvider().Tracer("")

	first := New(log.NewNopLogger(), reg, tracer, p, Options{})
	second := New(log.NewNopLogger(), reg, tracer, p, Options{})
	require.NotEqual(t, first.ID(), second.ID())

	_, err := first.CallTree(context.Background(), 0, nil, false)
	require.NoError(t, err)
	_, err = second.CallTree(context.Background(), 0, nil, false)
	require.NoError(t, err)
	require.Equal(t, 6.0, testutil.ToFloat64(second.metrics.misses))
}

func TestImplementationFilter(t *testing.T) {
	p := profiletest.Profile("AJS native BJS")
	s := New(log.NewNopLogger(), prometheus.NewRegistry(), noop.NewTracerProvider().Tracer(""), p, Options{
		Implementation: profile.ImplementationJS,
	})

	th, err := s.Thread(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"AJS BJS"}, profiletest.SampleStacks(th))
}
