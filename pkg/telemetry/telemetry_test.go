// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_NilContext(t *testing.T) {
	var ctx context.Context
	_, err := Init(ctx, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_UnknownExporters(t *testing.T) {
	cfg := Config{TraceExporter: "carrier-pigeon", MetricExporter: "none"}
	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = Config{TraceExporter: "none", MetricExporter: "smoke-signal"}
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutTraces(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "listsync-test",
		TraceExporter:  "stdout",
		MetricExporter: "stdout",
		Output:         &buf,
	})
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "listsync.test", "reconcile.Test")
	assert.True(t, span.SpanContext().IsValid())
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "reconcile.Test")
	assert.Nil(t, MetricsHandler(), "stdout metrics expose no scrape handler")
}

func TestInit_Prometheus(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "prometheus"})
	require.NoError(t, err)
	defer shutdown(context.Background())

	h := MetricsHandler()
	require.NotNil(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "failing")
	RecordError(span, errors.New("boom"), attribute.String("phase", "compute"))
	span.End()

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	SetSpanOK(ok)
	ok.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, codes.Ok, ended[1].Status().Code)

	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("ignored"))
		RecordError(span, nil)
		SetSpanOK(nil)
	})
}

func TestLogArgs(t *testing.T) {
	assert.Nil(t, LogArgs(context.Background()))
	assert.Empty(t, TraceID(context.Background()))

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	args := LogArgs(ctx)
	require.Len(t, args, 4)
	assert.Equal(t, "trace_id", args[0])
	assert.Equal(t, span.SpanContext().TraceID().String(), args[1])
	assert.Equal(t, "span_id", args[2])
}
