package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// DefaultNormalizeBatchSize is how many raw rows one normalization page holds
const DefaultNormalizeBatchSize = 500

// NormalizationService maps stored raw orders to normalized orders
type NormalizationService struct {
	rawRepo        integration.RawOrderRepository
	normalizedRepo integration.NormalizedOrderRepository
	metrics        MetricsRecorder
	batchSize      int
	inflight       *inflightGuard
	logger         *zap.Logger
	now            func() time.Time
}

// NewNormalizationService creates a new NormalizationService
func NewNormalizationService(
	rawRepo integration.RawOrderRepository,
	normalizedRepo integration.NormalizedOrderRepository,
	batchSize int,
	logger *zap.Logger,
) *NormalizationService {
	if batchSize <= 0 {
		batchSize = DefaultNormalizeBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NormalizationService{
		rawRepo:        rawRepo,
		normalizedRepo: normalizedRepo,
		batchSize:      batchSize,
		inflight:       newInflightGuard(),
		logger:         logger,
		now:            time.Now,
	}
}

// SetMetrics sets the metrics recorder
func (s *NormalizationService) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// SetClock overrides the time source
func (s *NormalizationService) SetClock(now func() time.Time) {
	s.now = now
}

// Normalize processes every unprocessed raw order of a tenant.
//
// Rows are read in id order, page by page. Each page is mapped, upserted into
// normalized_orders in one statement, and only then flagged processed. A row
// that fails to map, or does not fit the normalized columns, is reported and
// left unprocessed. A failed upsert counts the whole page as failed, stops
// the run with a *PersistenceError and flags nothing from that page.
//
// Only one run per tenant is in flight at a time. A second caller gets
// ErrSyncInProgress and no report.
func (s *NormalizationService) Normalize(ctx context.Context, tenantID uuid.UUID) (*integration.NormalizationReport, error) {
	ctx, _ = logger.WithScope(ctx, logger.Scope{TenantID: tenantID.String(), Job: logger.JobNormalization})

	if tenantID != uuid.Nil {
		key := tenantID.String()
		if !s.inflight.claim(key) {
			logger.WithLogger(ctx, s.logger).Info("Normalization already running for tenant")
			return nil, fmt.Errorf("%w: tenant %s", integration.ErrSyncInProgress, key)
		}
		defer s.inflight.release(key)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "normalization", "run", telemetry.WithShop(tenantID, 0))
	defer span.End()
	log := logger.WithLogger(ctx, s.logger)

	report := &integration.NormalizationReport{
		TenantID:  tenantID,
		StartedAt: s.now(),
	}
	finish := func() {
		report.FinishedAt = s.now()
		if s.metrics != nil {
			s.metrics.RecordNormalization(ctx, report)
		}
		telemetry.SetAttributes(span,
			"selected", report.Selected,
			"normalized", report.Normalized,
			"failed", report.Failed,
		)
	}

	if tenantID == uuid.Nil {
		finish()
		return report, integration.ErrInvalidTenantID
	}

	afterID := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			finish()
			return report, err
		}

		rows, err := s.rawRepo.FindUnprocessed(ctx, tenantID, afterID, s.batchSize)
		if err != nil {
			persistErr := &integration.PersistenceError{Op: "select unprocessed raw orders", Err: err}
			telemetry.RecordError(span, persistErr)
			finish()
			return report, persistErr
		}
		if len(rows) == 0 {
			break
		}
		afterID = rows[len(rows)-1].ID
		report.Selected += len(rows)

		if err := s.normalizePage(ctx, rows, report, log); err != nil {
			telemetry.RecordError(span, err)
			log.Error("Normalization stopped", zap.Error(err))
			finish()
			return report, err
		}

		if len(rows) < s.batchSize {
			break
		}
	}

	finish()
	log.Info("Normalization finished",
		zap.String("status", string(report.Status())),
		zap.Int("selected", report.Selected),
		zap.Int("normalized", report.Normalized),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *NormalizationService) normalizePage(ctx context.Context, rows []integration.RawOrder, report *integration.NormalizationReport, log *logger.ContextLogger) error {
	orders := make([]integration.NormalizedOrder, 0, len(rows))
	refs := make([]integration.ProcessedRef, 0, len(rows))

	for i := range rows {
		order, err := integration.NormalizeRawOrder(&rows[i])
		if err != nil {
			log.Warn("Skipping unparseable raw order",
				zap.String("order_id", rows[i].OrderID),
				zap.String("raw_order_id", rows[i].ID.String()),
				zap.Error(err),
			)
			report.AddFailure(integration.NewRunFailure(integration.FailureScopeRow, rows[i].OrderID, err))
			continue
		}
		orders = append(orders, *order)
		refs = append(refs, integration.ProcessedRef{ID: rows[i].ID, ContentHash: rows[i].ContentHash})
	}
	if len(orders) == 0 {
		return nil
	}

	if err := s.normalizedRepo.UpsertBatch(ctx, orders); err != nil {
		persistErr := &integration.PersistenceError{Op: "upsert normalized orders", Err: err}
		report.AddBatchFailure(integration.NewRunFailure(integration.FailureScopeBatch, orders[0].OrderID, persistErr), len(orders))
		return persistErr
	}

	marked, err := s.rawRepo.MarkProcessed(ctx, rows[0].TenantID, refs)
	if err != nil {
		return &integration.PersistenceError{Op: "mark raw orders processed", Err: err}
	}
	if int(marked) < len(refs) {
		// Rows re-ingested with a new payload since they were read stay pending.
		log.Debug("Some raw orders changed during normalization",
			zap.Int("normalized", len(refs)),
			zap.Int64("marked", marked),
		)
	}
	report.Normalized += len(orders)
	return nil
}
