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

package stackgraph

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/parca-dev/stackgraph/pkg/config"
	"github.com/parca-dev/stackgraph/pkg/objectstore"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/session"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

// Config loads the config file if one is configured and points the source
// at profilePath if it is not empty.
func (g *Globals) Config(profilePath string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	c := &cfg
	if g.Flags != nil && g.Flags.ConfigPath != "" {
		var err error
		c, err = config.LoadFile(g.Flags.ConfigPath)
		if err != nil {
			level.Error(g.Logger).Log("msg", "failed to read config", "path", g.Flags.ConfigPath, "err", err)
			return nil, err
		}
	}
	if profilePath != "" {
		c.Source.Path = profilePath
	}
	if err := c.Validate(); err != nil {
		level.Error(g.Logger).Log("msg", "config is invalid", "err", err)
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// LoadProfile reads the profile of src from its bucket, or from the local
// file system if it has none.
func LoadProfile(ctx context.Context, logger log.Logger, reg prometheus.Registerer, tracer trace.Tracer, src config.Source) (*profile.Profile, error) {
	if src.Bucket != nil {
		bkt, err := objectstore.NewBucket(logger, src.Bucket, reg, "stackgraph")
		if err != nil {
			return nil, err
		}
		defer bkt.Close()
		return objectstore.Open(ctx, tracer, bkt, src.Path)
	}

	_, span := tracer.Start(ctx, "open_profile")
	defer span.End()
	span.SetAttributes(attribute.String("path", src.Path))

	p, err := profile.Open(src.Path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

// NewSession creates a session for p configured by engine. Default
// transforms of single threads are pushed onto the session's stacks.
func NewSession(ctx context.Context, logger log.Logger, reg prometheus.Registerer, tracer trace.Tracer, p *profile.Profile, engine config.Engine) (*session.Session, error) {
	impl, err := profile.ParseImplementation(engine.Implementation)
	if err != nil {
		return nil, err
	}
	if ms := engine.IntervalMs(); ms > 0 {
		p.Meta.Interval = ms
	}

	s := session.New(logger, reg, tracer, p, session.Options{
		Implementation: impl,
		Demangle:       true,
	})

	stacks, err := engine.Transforms()
	if err != nil {
		return nil, err
	}
	for key, stack := range stacks {
		thread, err := strconv.Atoi(string(key))
		if err != nil {
			level.Warn(logger).Log("msg", "ignoring default transforms of merged threads", "threads", key)
			continue
		}
		for _, t := range stack {
			if err := s.PushTransform(ctx, thread, t); err != nil {
				return nil, fmt.Errorf("default transforms of thread %d: %w", thread, err)
			}
		}
	}
	return s, nil
}

// threadSession loads the configured profile and appends the transforms of
// flags to the default stack of the selected thread.
func (g *Globals) threadSession(ctx context.Context, flags ThreadFlags) (*session.Session, transform.Stack, bool, error) {
	cfg, err := g.Config(flags.Profile)
	if err != nil {
		return nil, nil, false, err
	}
	p, err := LoadProfile(ctx, g.Logger, g.Registry, g.Tracer, cfg.Source)
	if err != nil {
		return nil, nil, false, err
	}
	s, err := NewSession(ctx, g.Logger, g.Registry, g.Tracer, p, cfg.Engine)
	if err != nil {
		return nil, nil, false, err
	}

	extra, err := transform.Parse(flags.Transforms)
	if err != nil {
		return nil, nil, false, err
	}
	stack := append(s.Transforms(flags.Thread), extra...)
	return s, stack, flags.Invert || cfg.Engine.Invert, nil
}
