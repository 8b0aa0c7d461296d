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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/parca-dev/stackgraph/pkg/stackgraph"
	"github.com/parca-dev/stackgraph/pkg/tracer"
)

func main() {
	ctx := context.Background()
	flags := &stackgraph.Flags{}
	kctx := kong.Parse(flags,
		kong.Name("stackgraph"),
		kong.Description("Call trees, stack timings and transforms of processed profiles."),
		kong.Vars{"version": version.Print("stackgraph")},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	logger := stackgraph.NewLogger(os.Stderr, flags.LogLevel, flags.LogFormat, "")

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
		level.Debug(logger).Log("msg", fmt.Sprintf(format, a...))
	})); err != nil {
		level.Warn(logger).Log("msg", "failed to set GOMAXPROCS", "err", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector("stackgraph"),
	)

	exporterType := string(tracer.ExporterTypeNone)
	if flags.TracingStdout {
		exporterType = string(tracer.ExporterTypeStdout)
	}
	exporter, err := tracer.NewExporter(exporterType, os.Stdout)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create tracing exporter", "err", err)
		os.Exit(1)
	}
	provider, err := tracer.NewProvider(ctx, version.Version, exporter)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create tracing provider", "err", err)
		os.Exit(1)
	}

	err = kctx.Run(&stackgraph.Globals{
		Logger:   logger,
		Registry: registry,
		Tracer:   provider.Tracer("stackgraph"),
		Out:      os.Stdout,
		Flags:    flags,
	})
	if err := provider.Shutdown(ctx); err != nil {
		level.Warn(logger).Log("msg", "failed to flush traces", "err", err)
	}
	if err != nil {
		level.Error(logger).Log("msg", "program exited with error", "err", err)
		os.Exit(1)
	}
}
