package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys shared by the sync and HTTP instruments.
var (
	AttrTenantID = attribute.Key("tenant_id")
	AttrShopID   = attribute.Key("shop_id")
	AttrJob      = attribute.Key("job")
	AttrStatus   = attribute.Key("status")
	AttrOutcome  = attribute.Key("outcome")
)

// RunDurationBuckets are boundaries in seconds for ingestion and
// normalization runs. A full backfill of a large shop takes tens of minutes.
var RunDurationBuckets = []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

// InstrumentOpts names an instrument. Boundaries only apply to histograms.
type InstrumentOpts struct {
	Name        string
	Description string
	Unit        string
	Boundaries  []float64
}

// Counter wraps an Int64Counter. Adding zero is a no-op so run reports
// with empty fields do not create series.
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a Counter on the meter.
func NewCounter(meter metric.Meter, opts InstrumentOpts) (*Counter, error) {
	c, err := meter.Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", opts.Name, err)
	}
	return &Counter{counter: c}, nil
}

// Add increments the counter by n.
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if n == 0 {
		return
	}
	c.counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc increments the counter by one.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Histogram wraps a Float64Histogram recording seconds.
type Histogram struct {
	histogram metric.Float64Histogram
}

// NewHistogram creates a Histogram on the meter.
func NewHistogram(meter metric.Meter, opts InstrumentOpts) (*Histogram, error) {
	hopts := []metric.Float64HistogramOption{
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	}
	if len(opts.Boundaries) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(opts.Boundaries...))
	}

	h, err := meter.Float64Histogram(opts.Name, hopts...)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", opts.Name, err)
	}
	return &Histogram{histogram: h}, nil
}

// Record records a raw value.
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds. Negative durations, from a report
// whose FinishedAt was never set, are dropped.
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if d < 0 {
		return
	}
	h.Record(ctx, d.Seconds(), attrs...)
}
