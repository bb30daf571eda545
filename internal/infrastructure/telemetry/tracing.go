package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for sync spans
const TracerName = "ordersync"

// Attribute keys shared by sync spans. Metric attributes live in
// sync_metrics.go as attribute.Key values.
const (
	SpanAttrTenantID  = "tenant_id"
	SpanAttrShopID    = "shop_id"
	SpanAttrOrderID   = "order_id"
	SpanAttrBatchSize = "batch_size"
	SpanAttrJob       = "job"
)

// SpanOption is a function that configures span start options
type SpanOption func(*spanOptions)

type spanOptions struct {
	attributes []attribute.KeyValue
	kind       trace.SpanKind
}

// WithAttribute adds an attribute to the span
func WithAttribute(key string, value any) SpanOption {
	return func(opts *spanOptions) {
		opts.attributes = append(opts.attributes, toAttribute(key, value))
	}
}

// WithShop tags the span with the connection it works on.
// A zero shopID leaves the shop attribute off, for tenant-wide spans.
func WithShop(tenantID fmt.Stringer, shopID int64) SpanOption {
	return func(opts *spanOptions) {
		opts.attributes = append(opts.attributes, attribute.String(SpanAttrTenantID, tenantID.String()))
		if shopID != 0 {
			opts.attributes = append(opts.attributes, attribute.Int64(SpanAttrShopID, shopID))
		}
	}
}

// WithSpanKind sets the span kind
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(opts *spanOptions) {
		opts.kind = kind
	}
}

// StartSpan starts a span on the global tracer provider. The caller ends it.
//
//	ctx, span := telemetry.StartSpan(ctx, "shopee.get_order_list", telemetry.WithSpanKind(trace.SpanKindClient))
//	defer span.End()
func StartSpan(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, trace.Span) {
	options := &spanOptions{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(options)
	}

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(options.kind)}
	if len(options.attributes) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(options.attributes...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, spanName, startOpts...)
}

// StartServiceSpan starts a span named {service}.{method}, e.g. "token.refresh".
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	return StartSpan(ctx, service+"."+method, opts...)
}

// SetAttributes adds alternating key/value pairs to span. Non-string keys
// and a trailing key without value are skipped.
//
//	telemetry.SetAttributes(span, "listed", report.Listed, "stored", report.Stored)
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(pairs(keyValues)...)
}

// SetAttribute adds a single attribute to the span.
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

// RecordError records err on the span and marks the span failed.
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as successful.
func SetOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds a time-stamped event with alternating key/value attributes.
//
//	telemetry.AddEvent(span, "lock_wait", "key", key)
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(pairs(keyValues)...))
}

// GetTraceID returns the trace ID of the span in ctx, or "" when there is none.
func GetTraceID(ctx context.Context) string {
	traceID := trace.SpanContextFromContext(ctx).TraceID()
	if !traceID.IsValid() {
		return ""
	}
	return traceID.String()
}

// GetSpanID returns the span ID of the span in ctx, or "" when there is none.
func GetSpanID(ctx context.Context) string {
	spanID := trace.SpanContextFromContext(ctx).SpanID()
	if !spanID.IsValid() {
		return ""
	}
	return spanID.String()
}

func pairs(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, keyValues[i+1]))
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case []int64:
		return attribute.Int64Slice(key, v)
	case error:
		return attribute.String(key, v.Error())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
