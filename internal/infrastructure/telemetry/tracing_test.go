package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/ordersync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span recorder as the global tracer provider.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(span sdktrace.ReadOnlySpan) map[string]any {
	out := make(map[string]any)
	for _, attr := range span.Attributes() {
		out[string(attr.Key)] = attr.Value.AsInterface()
	}
	return out
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "ingestion.run",
		telemetry.WithAttribute(telemetry.SpanAttrShopID, int64(220011)),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ingestion.run", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, int64(220011), attrMap(spans[0])[telemetry.SpanAttrShopID])
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "normalization", "run")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "normalization.run", spans[0].Name())
}

func TestWithShop(t *testing.T) {
	sr := setupTestTracer(t)
	tenantID := uuid.New()

	_, shopSpan := telemetry.StartServiceSpan(context.Background(), "ingestion", "run", telemetry.WithShop(tenantID, 220011))
	shopSpan.End()
	_, tenantSpan := telemetry.StartServiceSpan(context.Background(), "normalization", "run", telemetry.WithShop(tenantID, 0))
	tenantSpan.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	shopAttrs := attrMap(spans[0])
	assert.Equal(t, tenantID.String(), shopAttrs[telemetry.SpanAttrTenantID])
	assert.Equal(t, int64(220011), shopAttrs[telemetry.SpanAttrShopID])
	tenantAttrs := attrMap(spans[1])
	assert.Equal(t, tenantID.String(), tenantAttrs[telemetry.SpanAttrTenantID])
	assert.NotContains(t, tenantAttrs, telemetry.SpanAttrShopID)
}

func TestSetAttributes(t *testing.T) {
	sr := setupTestTracer(t)
	tenantID := uuid.New()

	_, span := telemetry.StartSpan(context.Background(), "token.refresh")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrBatchSize, 50,
		"token.refreshed", true,
	)
	span.End()

	attrs := attrMap(sr.Ended()[0])
	assert.Equal(t, tenantID.String(), attrs[telemetry.SpanAttrTenantID])
	assert.Equal(t, int64(50), attrs[telemetry.SpanAttrBatchSize])
	assert.Equal(t, true, attrs["token.refreshed"])
}

func TestSetAttributes_OddKeyValues(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "ingestion.batch")
	telemetry.SetAttributes(span, "listed", 3, "dangling")
	span.End()

	attrs := attrMap(sr.Ended()[0])
	assert.Equal(t, int64(3), attrs["listed"])
	assert.NotContains(t, attrs, "dangling")
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "ingestion.batch")
	telemetry.RecordError(span, errors.New("marketplace: error_server - busy"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.NotEmpty(t, spans[0].Events())
}

func TestRecordError_NilErrorAndNilSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "ingestion.batch")
	telemetry.RecordError(span, nil)
	span.End()

	assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
	assert.NotPanics(t, func() {
		telemetry.RecordError(nil, errors.New("ignored"))
		telemetry.SetAttribute(nil, "k", "v")
		telemetry.SetOK(nil)
		telemetry.AddEvent(nil, "event")
	})
}

func TestNestedSpans(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, parent := telemetry.StartSpan(context.Background(), "ingestion.run")
	_, child := telemetry.StartSpan(ctx, "marketplace.get_order_detail")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, telemetry.GetTraceID(ctx), spans[1].SpanContext().TraceID().String())
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
	assert.Empty(t, telemetry.GetSpanID(context.Background()))
}
