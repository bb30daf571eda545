package telemetry

import (
	"context"
	"strconv"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMeterName is the instrumentation scope of the sync metrics.
const SyncMeterName = "ordersync/sync"

// SyncMetrics records ingestion, normalization and token refresh outcomes.
type SyncMetrics struct {
	ordersListed     *Counter
	ordersFetched    *Counter
	ordersStored     *Counter
	ordersNormalized *Counter
	ordersFailed     *Counter
	tokenRefreshes   *Counter
	runDuration      *Histogram
}

// NewSyncMetrics creates every sync instrument on the given meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	var err error

	if m.ordersListed, err = NewCounter(meter, InstrumentOpts{Name: "ordersync.orders.listed", Description: "Order identifiers returned by the marketplace list endpoint", Unit: "{order}"}); err != nil {
		return nil, err
	}
	if m.ordersFetched, err = NewCounter(meter, InstrumentOpts{Name: "ordersync.orders.fetched", Description: "Order detail documents fetched from the marketplace", Unit: "{order}"}); err != nil {
		return nil, err
	}
	if m.ordersStored, err = NewCounter(meter, InstrumentOpts{Name: "ordersync.orders.stored", Description: "Raw orders written to the raw layer", Unit: "{order}"}); err != nil {
		return nil, err
	}
	if m.ordersNormalized, err = NewCounter(meter, InstrumentOpts{Name: "ordersync.orders.normalized", Description: "Raw orders projected into normalized rows", Unit: "{order}"}); err != nil {
		return nil, err
	}
	if m.ordersFailed, err = NewCounter(meter, InstrumentOpts{Name: "ordersync.orders.failed", Description: "Orders that failed ingestion or normalization", Unit: "{order}"}); err != nil {
		return nil, err
	}
	if m.tokenRefreshes, err = NewCounter(meter, InstrumentOpts{Name: "ordersync.token.refreshes", Description: "Access token refresh attempts", Unit: "{refresh}"}); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, InstrumentOpts{
		Name:        "ordersync.run.duration",
		Description: "Duration of ingestion and normalization runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordIngestion records the counters and duration of one ingestion run.
func (m *SyncMetrics) RecordIngestion(ctx context.Context, report *integration.IngestionReport) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(report.TenantID.String()),
		AttrShopID.String(strconv.FormatInt(report.ShopID, 10)),
	}
	m.ordersListed.Add(ctx, int64(report.Listed), attrs...)
	m.ordersFetched.Add(ctx, int64(report.Fetched), attrs...)
	m.ordersStored.Add(ctx, int64(report.Stored), attrs...)
	m.ordersFailed.Add(ctx, int64(report.Failed), append(attrs, AttrJob.String("ingestion"))...)
	m.runDuration.RecordDuration(ctx, report.FinishedAt.Sub(report.StartedAt),
		append(attrs, AttrJob.String("ingestion"), AttrStatus.String(string(report.Status())))...)
}

// RecordNormalization records the counters and duration of one normalization run.
func (m *SyncMetrics) RecordNormalization(ctx context.Context, report *integration.NormalizationReport) {
	tenant := AttrTenantID.String(report.TenantID.String())
	m.ordersNormalized.Add(ctx, int64(report.Normalized), tenant)
	m.ordersFailed.Add(ctx, int64(report.Failed), tenant, AttrJob.String("normalization"))
	m.runDuration.RecordDuration(ctx, report.FinishedAt.Sub(report.StartedAt),
		tenant, AttrJob.String("normalization"), AttrStatus.String(string(report.Status())))
}

// RecordTokenRefresh counts one refresh attempt and its outcome.
func (m *SyncMetrics) RecordTokenRefresh(ctx context.Context, tenantID uuid.UUID, shopID int64, err error) {
	outcome := "success"
	if err != nil {
		outcome = integration.ErrorCode(err)
	}
	m.tokenRefreshes.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrShopID.String(strconv.FormatInt(shopID, 10)),
		AttrOutcome.String(outcome),
	)
}
