// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Package chotel provides OpenTelemetry instrumentation for the client. It
// implements chtransport.RequestHook to add distributed tracing and metrics
// to outgoing requests.
//
// Usage:
//
//	client, err := chclient.NewClient(opts...)
//	chotel.InstrumentClient(client.Engine(), chotel.DefaultConfig())
package chotel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/columnaris/rowbinary-go/chtransport"
)

const instrumentationName = "rowbinary_go"

// OtelConfig configures OpenTelemetry instrumentation for a client.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator injects trace context into outgoing request headers.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed requests.
	// Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value.
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with sensible defaults. Providers and
// propagator are resolved from the global OTel SDK at instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
		ServiceName:      "rowbinary-go",
	}
}

// InstrumentClient attaches OpenTelemetry instrumentation to a request
// engine's hook slot.
func InstrumentClient(engine *chtransport.Engine, cfg OtelConfig) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rowbinary-go"
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.requestCounter, _ = meter.Int64Counter("rpc.client.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of client requests"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("rpc.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of client requests"),
		)
		hook.retryCounter, _ = meter.Int64Counter("rpc.client.retries",
			metric.WithUnit("{retry}"),
			metric.WithDescription("Number of request retries"),
		)
	}

	engine.Hook = hook
}

type otelHook struct {
	cfg               OtelConfig
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
	retryCounter      metric.Int64Counter
}

type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnRequestStart injects trace context and starts a client span.
func (h *otelHook) OnRequestStart(ctx context.Context, info chtransport.RequestInfo) (context.Context, chtransport.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := "rowbinary_go/request"
	if info.QueryID != "" {
		spanName = fmt.Sprintf("rowbinary_go/%s", info.QueryID)
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "clickhouse_http"),
		attribute.String("rpc.service", h.cfg.ServiceName),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// InjectHeaders writes the active span context into headers via the
// configured propagator, satisfying chtransport.HeaderInjector so
// buildRequest carries trace context onto the wire.
func (h *otelHook) InjectHeaders(ctx context.Context, headers http.Header) {
	if h.cfg.Propagator == nil {
		return
	}
	h.cfg.Propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// OnRequestEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnRequestEnd(ctx context.Context, token chtransport.HookToken, info chtransport.RequestInfo, stats *chtransport.RequestStats, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)
	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "clickhouse_http"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("net.peer.name", info.Endpoint),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
		if h.retryCounter != nil && stats != nil && stats.Retries > 0 {
			h.retryCounter.Add(ctx, int64(stats.Retries), metricAttrs)
		}
	}

	if st.span == nil || !st.span.IsRecording() {
		return
	}

	st.span.SetAttributes(attribute.String("net.peer.name", info.Endpoint))
	if err != nil {
		st.span.SetStatus(codes.Error, err.Error())
		if h.cfg.RecordExceptions {
			st.span.RecordError(err)
		}
		st.span.SetAttributes(attribute.String("rpc.error_type", fmt.Sprintf("%T", err)))
	} else {
		st.span.SetStatus(codes.Ok, "")
	}
	st.span.End()
}
