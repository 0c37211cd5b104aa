// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package job

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/walteh/batchfix/pkg/job"

// tracer and meter use the global providers, which are no-ops until the
// binary installs real ones
var tracer = otel.Tracer(instrumentationName)

type instruments struct {
	files    metric.Int64Counter
	retries  metric.Int64Counter
	latency  metric.Float64Histogram
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

var (
	defaultInstruments     *instruments
	defaultInstrumentsOnce sync.Once
)

// metrics lazily builds the instruments. A failure falls back to the noop
// meter so recording never has to be checked.
func metrics(ctx context.Context) *instruments {
	defaultInstrumentsOnce.Do(func() {
		m, err := newInstruments(otel.Meter(instrumentationName))
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("metrics initialization failed, using no-op instruments")
			m, _ = newInstruments(noop.NewMeterProvider().Meter(instrumentationName))
		}
		defaultInstruments = m
	})
	return defaultInstruments
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	files, err := meter.Int64Counter("batchfix.files",
		metric.WithDescription("Files processed, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("batchfix.transform.retries",
		metric.WithDescription("Transform calls retried after a transient failure"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("batchfix.file.latency_ms",
		metric.WithDescription("Per file processing latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("batchfix.runs",
		metric.WithDescription("Job runs"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("batchfix.run.duration_ms",
		metric.WithDescription("Job run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{
		files:    files,
		retries:  retries,
		latency:  latency,
		runs:     runs,
		duration: duration,
	}, nil
}

func (m *instruments) recordFile(ctx context.Context, outcome Outcome, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome.String()))
	m.files.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(took.Milliseconds()), attrs)
}

func (m *instruments) recordRetry(ctx context.Context) {
	m.retries.Add(ctx, 1)
}

func (m *instruments) recordRun(ctx context.Context, res *Result, err error) {
	attrs := metric.WithAttributes(
		attribute.Bool("success", err == nil),
		attribute.Bool("dry_run", res.DryRun),
		attribute.Bool("resumed", res.Resumed),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(res.Duration.Milliseconds()), attrs)
}

func startRunSpan(ctx context.Context, operation string, dryRun bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "batchfix.run",
		trace.WithAttributes(
			attribute.String("job.operation", operation),
			attribute.Bool("job.dry_run", dryRun),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func startFileSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "batchfix.file",
		trace.WithAttributes(attribute.String("file.path", path)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
