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
	"io"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

type Flags struct {
	ConfigPath    string           `help:"Path to the config file." type:"path"`
	LogLevel      string           `enum:"error,warn,info,debug" default:"info" help:"Log level."`
	LogFormat     string           `enum:"logfmt,json" default:"logfmt" help:"Configure if structured logging as JSON or as logfmt."`
	TracingStdout bool             `help:"Print tracing spans to stdout."`
	Version       kong.VersionFlag `help:"Print version information and quit."`

	CallTree    CallTreeCmd    `cmd:"" name:"calltree" help:"Print the call tree of a thread."`
	StackTiming StackTimingCmd `cmd:"" name:"stacktiming" help:"Print the stack timing rows of a thread."`
	Transforms  TransformsCmd  `cmd:"" help:"Parse a URL encoded transform stack and print it."`
	Upgrade     UpgradeCmd     `cmd:"" help:"Rewrite a profile at the current processed profile version."`
	ImportPprof ImportPprofCmd `cmd:"" name:"import-pprof" help:"Convert a pprof profile to a processed profile."`
	ExportArrow ExportArrowCmd `cmd:"" name:"export-arrow" help:"Write the call tree of a thread as an Arrow IPC stream."`
	Serve       ServeCmd       `cmd:"" help:"Serve derived structures of a profile over HTTP."`
}

// ThreadFlags select a thread of a profile and the transforms to apply to it.
type ThreadFlags struct {
	Profile    string `arg:"" optional:"" help:"Profile to load. Defaults to the configured source."`
	Thread     int    `short:"t" default:"0" help:"Index of the thread."`
	Transforms string `help:"URL encoded transform stack applied on top of the configured defaults."`
	Invert     bool   `help:"Invert the call tree."`
}

// Globals are the dependencies handed to every command.
type Globals struct {
	Logger   log.Logger
	Registry *prometheus.Registry
	Tracer   trace.Tracer
	Out      io.Writer
	Flags    *Flags
}
