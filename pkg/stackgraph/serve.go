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
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/oklog/run"

	"github.com/parca-dev/stackgraph/pkg/config"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/server"
)

type ServeCmd struct {
	Profile string `arg:"" optional:"" help:"Profile to serve. Defaults to the configured source."`
	Address string `help:"Address to listen on. Defaults to the configured address."`
	Watch   bool   `default:"true" negatable:"" help:"Reload local profiles when they change."`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.Config(c.Profile)
	if err != nil {
		return err
	}
	if c.Address != "" {
		cfg.Server.Address = c.Address
	}

	p, err := LoadProfile(ctx, g.Logger, g.Registry, g.Tracer, cfg.Source)
	if err != nil {
		level.Error(g.Logger).Log("msg", "failed to load profile", "err", err)
		return err
	}

	srv := server.New(g.Logger, g.Registry, g.Tracer, cfg.Server.Address, cfg.Server.CORSAllowedOrigins)
	load := func(p *profile.Profile) error {
		s, err := NewSession(ctx, g.Logger, g.Registry, g.Tracer, p, cfg.Engine)
		if err != nil {
			return err
		}
		srv.SetSession(s)
		go func() {
			if err := s.Warm(ctx); err != nil {
				level.Warn(g.Logger).Log("msg", "failed to warm session", "err", err)
			}
		}()
		return nil
	}
	if err := load(p); err != nil {
		return err
	}

	var gr run.Group
	gr.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM))
	gr.Add(
		srv.ListenAndServe,
		func(error) {
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			level.Debug(g.Logger).Log("msg", "server shutting down")
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				level.Error(g.Logger).Log("msg", "error shutting down server", "err", err)
			}
		},
	)

	if c.Watch && cfg.Source.Bucket == nil {
		reloader, err := config.NewReloader(g.Logger, g.Registry, cfg.Source.Path, []config.ComponentReloader{{
			Name:     "session",
			Reloader: load,
		}})
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(ctx)
		gr.Add(
			func() error {
				return reloader.Run(ctx)
			},
			func(error) {
				cancel()
			},
		)
	}

	if err := gr.Run(); err != nil {
		var sigErr run.SignalError
		if errors.As(err, &sigErr) {
			return nil
		}
		return err
	}
	return nil
}
