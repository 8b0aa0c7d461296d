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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/stackgraph/pkg/file"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/upgrader"
)

// ComponentReloader describes how to hand a reloaded profile to a component.
type ComponentReloader struct {
	Name     string
	Reloader func(*profile.Profile) error
}

// Reloader watches a profile file and hands every new version of it to its
// components.
type Reloader struct {
	logger            log.Logger
	filename          string
	watcher           *fsnotify.Watcher
	reloaders         []ComponentReloader
	triggerReload     chan struct{}
	retry             func() backoff.BackOff
	lastHash          uint64
	reloadSuccess     prometheus.Gauge
	reloadSuccessTime prometheus.Gauge
}

// NewReloader returns an instantiated profile reloader.
func NewReloader(
	logger log.Logger,
	reg prometheus.Registerer,
	filename string,
	reloaders []ComponentReloader,
) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		level.Error(logger).Log("msg", "failed to establish profile watcher", "err", err)
		return nil, err
	}

	if err := watcher.Add(filename); err != nil {
		level.Error(logger).Log("msg", "failed to start watching profile file", "err", err, "path", filename)
		watcher.Close()
		return nil, err
	}

	r := &Reloader{
		logger:   logger,
		filename: filename,
		watcher:  watcher,

		reloaders: reloaders,

		triggerReload: make(chan struct{}, 1),

		// A profile that is still being written fails to decode.
		retry: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 5)
		},

		reloadSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stackgraph_profile_last_reload_successful",
			Help: "Whether the last profile reload attempt was successful.",
		}),
		reloadSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stackgraph_profile_last_reload_success_timestamp_seconds",
			Help: "Timestamp of the last successful profile reload.",
		}),
	}

	if err := reg.Register(r.reloadSuccess); err != nil {
		return r, fmt.Errorf("unable to register profile reloader success metrics: %w", err)
	}

	if err := reg.Register(r.reloadSuccessTime); err != nil {
		return r, fmt.Errorf("unable to register profile reloader success time metrics: %w", err)
	}

	return r, nil
}

func (r *Reloader) watchFile() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				level.Debug(r.logger).Log("msg", "profile file watcher events channel closed. exiting goroutine.")
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				level.Debug(r.logger).Log("msg", "profile file has been modified")
				select {
				case r.triggerReload <- struct{}{}:
				default:
					// A reload is already pending.
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				level.Debug(r.logger).Log("msg", "profile file watcher errors channel closed. exiting goroutine.")
				return
			}
			level.Error(r.logger).Log("msg", "error encountered while watching profile file", "err", err)
		}
	}
}

func (r *Reloader) reloadFile(ctx context.Context) (err error) {
	start := time.Now()
	timings := []interface{}{}
	level.Info(r.logger).Log("msg", "loading profile", "filename", r.filename)

	defer func() {
		if err == nil {
			r.reloadSuccess.Set(1)
			r.reloadSuccessTime.SetToCurrentTime()
		} else {
			r.reloadSuccess.Set(0)
		}
	}()

	hash, err := file.Hash(r.filename)
	if err != nil {
		return err
	}
	if hash == r.lastHash {
		level.Debug(r.logger).Log("msg", "profile content is unchanged, skipping reload", "filename", r.filename)
		return nil
	}

	var p *profile.Profile
	err = backoff.Retry(func() error {
		var err error
		p, err = profile.Open(r.filename)
		var versionErr *upgrader.VersionError
		if errors.As(err, &versionErr) || errors.Is(err, upgrader.ErrUnsupportedVersion) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(r.retry(), ctx))
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	failed := false
	for _, rl := range r.reloaders {
		rstart := time.Now()
		if err := rl.Reloader(p); err != nil {
			level.Error(r.logger).Log("msg", "failed to apply profile", "component", rl.Name, "err", err)
			failed = true
		}
		timings = append(timings, rl.Name, time.Since(rstart))
	}
	if failed {
		return fmt.Errorf("one or more errors occurred while applying the new profile (%q)", r.filename)
	}

	r.lastHash = hash
	l := []interface{}{"msg", "completed loading of profile", "filename", r.filename, "totalDuration", time.Since(start)}
	level.Info(r.logger).Log(append(l, timings...)...)
	return nil
}

// Run starts watching the profile file and waits for reload triggers.
func (r *Reloader) Run(ctx context.Context) error {
	go r.watchFile()
	for {
		select {
		case <-r.triggerReload:
			if err := r.reloadFile(ctx); err != nil {
				level.Error(r.logger).Log("msg", "failed to reload profile", "err", err)
			}
		case <-ctx.Done():
			r.watcher.Close()
			return nil
		}
	}
}
