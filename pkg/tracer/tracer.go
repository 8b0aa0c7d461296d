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

package tracer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type ExporterType string

const (
	ExporterTypeNone   ExporterType = "none"
	ExporterTypeStdout ExporterType = "stdout"
)

// Provider is a trace.TracerProvider that must be shut down to flush
// pending spans.
type Provider interface {
	trace.TracerProvider
	Shutdown(ctx context.Context) error
}

type noopProvider struct {
	noop.TracerProvider
}

func (noopProvider) Shutdown(context.Context) error {
	return nil
}

// NewExporter returns the span exporter for exType. The none exporter is nil.
func NewExporter(exType string, w io.Writer) (sdktrace.SpanExporter, error) {
	switch ExporterType(strings.ToLower(exType)) {
	case ExporterTypeNone, "":
		return nil, nil
	case ExporterTypeStdout:
		return NewConsoleExporter(w)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", exType)
	}
}

// NewConsoleExporter returns a console exporter.
func NewConsoleExporter(w io.Writer) (sdktrace.SpanExporter, error) {
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// NewProvider returns a tracer provider exporting to exporter. A nil
// exporter yields a noop provider.
func NewProvider(ctx context.Context, version string, exporter sdktrace.SpanExporter) (Provider, error) {
	if exporter == nil {
		return noopProvider{noop.NewTracerProvider()}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "stackgraph"),
			attribute.String("service.version", version),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(provider)

	return provider, nil
}
