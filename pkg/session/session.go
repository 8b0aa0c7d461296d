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

// Package session owns a loaded profile and caches everything derived from
// it: transformed threads, call node tables, call trees and stack timings.
// Derived structures are immutable, so they are shared between callers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/calltree"
	"github.com/parca-dev/stackgraph/pkg/demangle"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/stacktiming"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

var ErrUnknownThread = errors.New("unknown thread")

type Options struct {
	// Implementation hides the frames of other implementations after all
	// transforms are applied.
	Implementation profile.Implementation
	// Demangle demangles native function names in display data.
	Demangle bool
}

type Session struct {
	id      uuid.UUID
	logger  log.Logger
	tracer  trace.Tracer
	metrics *metrics

	profile         *profile.Profile
	defaultCategory int
	opts            Options
	treeOpts        []calltree.Option

	derivations atomic.Uint64

	mtx      sync.Mutex
	cache    map[cacheKey]*derived
	stacks   map[int]transform.Stack
	selected map[int]callnode.Path
}

type cacheKey struct {
	thread int
	stack  uint64
}

// memo computes a value once. Inputs never change, so errors are cached as
// well.
type memo[T any] struct {
	once sync.Once
	v    T
	err  error
}

type derived struct {
	thread memo[*profile.Thread]
	info   memo[*callnode.Info]
	trees  [2]memo[*calltree.Tree]
	timing memo[stacktiming.Timing]
}

func New(logger log.Logger, reg prometheus.Registerer, tracer trace.Tracer, p *profile.Profile, opts Options) *Session {
	if opts.Implementation == "" {
		opts.Implementation = profile.ImplementationCombined
	}
	treeOpts := []calltree.Option{calltree.WithCategories(p.Meta.Categories)}
	if opts.Demangle {
		treeOpts = append(treeOpts, calltree.WithDemangler(demangle.NewDefault()))
	}

	s := &Session{
		id:              uuid.New(),
		tracer:          tracer,
		metrics:         newMetrics(reg),
		profile:         p,
		defaultCategory: p.Meta.DefaultCategory(),
		opts:            opts,
		treeOpts:        treeOpts,
		cache:           map[cacheKey]*derived{},
		stacks:          map[int]transform.Stack{},
		selected:        map[int]callnode.Path{},
	}
	s.logger = log.With(logger, "session", s.id.String())
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Profile() *profile.Profile {
	return s.profile
}

// Derivations returns how many structures this session computed so far.
func (s *Session) Derivations() uint64 {
	return s.derivations.Load()
}

func (s *Session) entry(threadIndex int, stack transform.Stack) (*derived, error) {
	if threadIndex < 0 || threadIndex >= len(s.profile.Threads) {
		return nil, fmt.Errorf("%w: %d, profile has %d threads", ErrUnknownThread, threadIndex, len(s.profile.Threads))
	}

	h := xxhash.New()
	_, _ = h.WriteString(transform.Stringify(stack))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(string(s.opts.Implementation))
	k := cacheKey{thread: threadIndex, stack: h.Sum64()}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.cache[k]
	if !ok {
		d = &derived{}
		s.cache[k] = d
	}
	return d, nil
}

func get[T any](ctx context.Context, s *Session, m *memo[T], derivation string, compute func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	computed := false
	m.once.Do(func() {
		computed = true
		// Cached results never hold a context error.
		ctx, span := s.tracer.Start(context.WithoutCancel(ctx), derivation)
		defer span.End()

		start := time.Now()
		m.v, m.err = compute(ctx)
		s.metrics.duration.WithLabelValues(derivation).Observe(time.Since(start).Seconds())
		s.derivations.Inc()
		if m.err != nil {
			span.RecordError(m.err)
			level.Debug(s.logger).Log("msg", "derivation failed", "derivation", derivation, "err", m.err)
		}
	})
	if computed {
		s.metrics.misses.Inc()
	} else {
		s.metrics.hits.Inc()
	}
	return m.v, m.err
}

// Thread returns the thread at threadIndex with stack and the session's
// implementation filter applied.
func (s *Session) Thread(ctx context.Context, threadIndex int, stack transform.Stack) (*profile.Thread, error) {
	d, err := s.entry(threadIndex, stack)
	if err != nil {
		return nil, err
	}
	return get(ctx, s, &d.thread, derivationTransform, func(ctx context.Context) (*profile.Thread, error) {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("thread", threadIndex),
			attribute.Int("transforms", len(stack)),
		)
		t, err := transform.ApplyStack(s.profile.Threads[threadIndex], stack, s.defaultCategory)
		if err != nil {
			return nil, err
		}
		return transform.FilterByImplementation(t, s.opts.Implementation, s.defaultCategory), nil
	})
}

func (s *Session) CallNodeInfo(ctx context.Context, threadIndex int, stack transform.Stack) (*callnode.Info, error) {
	d, err := s.entry(threadIndex, stack)
	if err != nil {
		return nil, err
	}
	return get(ctx, s, &d.info, derivationCallNode, func(ctx context.Context) (*callnode.Info, error) {
		t, err := s.Thread(ctx, threadIndex, stack)
		if err != nil {
			return nil, err
		}
		return callnode.FromThread(t, s.defaultCategory), nil
	})
}

func (s *Session) CallTree(ctx context.Context, threadIndex int, stack transform.Stack, invert bool) (*calltree.Tree, error) {
	d, err := s.entry(threadIndex, stack)
	if err != nil {
		return nil, err
	}
	i := 0
	if invert {
		i = 1
	}
	return get(ctx, s, &d.trees[i], derivationCallTree, func(ctx context.Context) (*calltree.Tree, error) {
		t, err := s.Thread(ctx, threadIndex, stack)
		if err != nil {
			return nil, err
		}
		info, err := s.CallNodeInfo(ctx, threadIndex, stack)
		if err != nil {
			return nil, err
		}
		counts := calltree.ComputeCountsAndSummary(&t.Samples, info, invert)
		return calltree.New(t, info, counts, t.Samples.EffectiveWeightType(), s.treeOpts...), nil
	})
}

func (s *Session) StackTiming(ctx context.Context, threadIndex int, stack transform.Stack) (stacktiming.Timing, error) {
	d, err := s.entry(threadIndex, stack)
	if err != nil {
		return nil, err
	}
	return get(ctx, s, &d.timing, derivationStackTiming, func(ctx context.Context) (stacktiming.Timing, error) {
		t, err := s.Thread(ctx, threadIndex, stack)
		if err != nil {
			return nil, err
		}
		info, err := s.CallNodeInfo(ctx, threadIndex, stack)
		if err != nil {
			return nil, err
		}
		return stacktiming.ByDepth(&t.Samples, info, info.MaxDepth(), s.profile.Meta.Interval), nil
	})
}

// Transforms returns the transform stack pushed for threadIndex.
func (s *Session) Transforms(threadIndex int) transform.Stack {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append(transform.Stack{}, s.stacks[threadIndex]...)
}

func (s *Session) SelectedPath(threadIndex int) callnode.Path {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append(callnode.Path{}, s.selected[threadIndex]...)
}

func (s *Session) SetSelectedPath(threadIndex int, path callnode.Path) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.selected[threadIndex] = append(callnode.Path{}, path...)
}

// PushTransform applies t on top of the thread's transform stack. The
// selected call node path is rewritten to address the same node in the
// transformed tree. Invalid transforms are rejected and leave the stack
// unchanged.
func (s *Session) PushTransform(ctx context.Context, threadIndex int, t transform.Transform) error {
	stack := s.Transforms(threadIndex)
	current, err := s.Thread(ctx, threadIndex, stack)
	if err != nil {
		return err
	}
	next := append(stack, t)
	if _, err := s.Thread(ctx, threadIndex, next); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.stacks[threadIndex] = next
	if path := s.selected[threadIndex]; len(path) > 0 {
		s.selected[threadIndex] = transform.ApplyToCallNodePath(t, path, current)
	}
	level.Debug(s.logger).Log("msg", "pushed transform", "thread", threadIndex, "transforms", transform.Stringify(next))
	return nil
}

// PopTransform removes the last transform of the thread's stack. Paths
// cannot be rewritten backwards, so the selection is cleared.
func (s *Session) PopTransform(threadIndex int) (transform.Transform, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	stack := s.stacks[threadIndex]
	if len(stack) == 0 {
		return nil, false
	}
	t := stack[len(stack)-1]
	s.stacks[threadIndex] = stack[:len(stack)-1]
	delete(s.selected, threadIndex)
	return t, true
}

// Warm computes the call trees and stack timings of threads with their
// current transform stacks in parallel. No threads means all threads.
func (s *Session) Warm(ctx context.Context, threads ...int) error {
	if len(threads) == 0 {
		threads = make([]int, len(s.profile.Threads))
		for i := range threads {
			threads[i] = i
		}
	}

	ctx, span := s.tracer.Start(ctx, "warm")
	defer span.End()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for _, i := range threads {
		stack := s.Transforms(i)
		g.Go(func() error {
			if _, err := s.CallTree(ctx, i, stack, false); err != nil {
				return fmt.Errorf("thread %d: %w", i, err)
			}
			if _, err := s.StackTiming(ctx, i, stack); err != nil {
				return fmt.Errorf("thread %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	level.Info(s.logger).Log("msg", "warmed session", "threads", len(threads), "duration", time.Since(start))
	return nil
}
