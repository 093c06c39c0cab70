// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcmc

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const samplerTracerName = "contactzones.sampler"

// SamplerTracer provides OpenTelemetry tracing for sampler runs.
//
// Thread Safety: Safe for concurrent use.
type SamplerTracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewSamplerTracer creates a new tracer.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil for the default).
//   - enabled: Whether spans are recorded; when false every Start returns
//     a noop span.
//
// Outputs:
//   - *SamplerTracer: Tracer instance.
func NewSamplerTracer(logger *slog.Logger, enabled bool) *SamplerTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SamplerTracer{
		tracer:  otel.Tracer(samplerTracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartRun starts a span for one warm-up plus main-chain repetition.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span (noop if tracing disabled).
func (t *SamplerTracer) StartRun(ctx context.Context, run, nSteps, nSamples int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	ctx, span := t.tracer.Start(ctx, "sampler.run",
		trace.WithAttributes(
			attribute.Int("sampler.run", run),
			attribute.Int("sampler.n_steps", nSteps),
			attribute.Int("sampler.n_samples", nSamples),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	t.logger.InfoContext(ctx, "sampler run started",
		slog.Int("run", run),
		slog.Int("n_steps", nSteps),
		slog.Int("n_samples", nSamples),
	)
	return ctx, span
}

// EndRun completes a run span with the chain's final statistics.
func (t *SamplerTracer) EndRun(span trace.Span, stats Stats, logPosterior float64, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.Float64("sampler.acceptance_rate", stats.AcceptanceRate()),
		attribute.Float64("sampler.log_posterior", logPosterior),
	)
	span.End()
}

// StartWarmUp starts a span covering one run's parallel warm-up chains.
func (t *SamplerTracer) StartWarmUp(ctx context.Context, run, nChains, nSteps int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "sampler.warmup",
		trace.WithAttributes(
			attribute.Int("sampler.run", run),
			attribute.Int("sampler.warmup.chains", nChains),
			attribute.Int("sampler.warmup.steps", nSteps),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
