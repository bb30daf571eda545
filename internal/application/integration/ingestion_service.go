package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// RawArchive keeps a copy of every fetched detail batch outside the database
type RawArchive interface {
	Archive(ctx context.Context, tenantID uuid.UUID, shopID int64, details []integration.OrderDetail, fetchedAt time.Time) error
}

// AccessTokenProvider hands out a connection with a usable access token.
// *TokenService implements it.
type AccessTokenProvider interface {
	AccessToken(ctx context.Context, tenantID uuid.UUID, shopID int64) (*integration.Connection, error)
}

// IngestionConfig holds ingestion tuning
type IngestionConfig struct {
	Lookback             time.Duration
	Overlap              time.Duration
	TimeRangeField       string
	StatusFilter         string
	PageSize             int
	DetailBatchSize      int
	DetailRetryAttempts  int
	DetailRetryBaseDelay time.Duration
}

// DefaultIngestionConfig returns the default ingestion tuning
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		Lookback:             7 * 24 * time.Hour,
		Overlap:              10 * time.Minute,
		TimeRangeField:       "create_time",
		PageSize:             100,
		DetailBatchSize:      50,
		DetailRetryAttempts:  3,
		DetailRetryBaseDelay: time.Second,
	}
}

const maxDetailBatchSize = 50

// IngestRequest selects what one ingestion run pulls
type IngestRequest struct {
	TenantID uuid.UUID
	ShopID   int64
	// StatusFilter overrides the configured status filter when set
	StatusFilter string
	// Window overrides the incremental window when set
	Window *integration.TimeWindow
}

// IngestionService pulls orders of one shop from the marketplace and stores
// the raw detail documents.
type IngestionService struct {
	tokens   AccessTokenProvider
	client   integration.MarketplaceClient
	connRepo integration.ConnectionRepository
	rawRepo  integration.RawOrderRepository
	archive  RawArchive
	metrics  MetricsRecorder
	config   IngestionConfig
	inflight *inflightGuard
	logger   *zap.Logger
	now      func() time.Time
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(
	tokens AccessTokenProvider,
	client integration.MarketplaceClient,
	connRepo integration.ConnectionRepository,
	rawRepo integration.RawOrderRepository,
	config IngestionConfig,
	logger *zap.Logger,
) *IngestionService {
	defaults := DefaultIngestionConfig()
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	if config.TimeRangeField == "" {
		config.TimeRangeField = defaults.TimeRangeField
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.DetailBatchSize <= 0 || config.DetailBatchSize > maxDetailBatchSize {
		config.DetailBatchSize = defaults.DetailBatchSize
	}
	if config.DetailRetryAttempts <= 0 {
		config.DetailRetryAttempts = defaults.DetailRetryAttempts
	}
	if config.DetailRetryBaseDelay <= 0 {
		config.DetailRetryBaseDelay = defaults.DetailRetryBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestionService{
		tokens:   tokens,
		client:   client,
		connRepo: connRepo,
		rawRepo:  rawRepo,
		config:   config,
		inflight: newInflightGuard(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetRawArchive enables archiving of fetched detail batches
func (s *IngestionService) SetRawArchive(archive RawArchive) {
	s.archive = archive
}

// SetMetrics sets the metrics recorder
func (s *IngestionService) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// SetClock overrides the time source
func (s *IngestionService) SetClock(now func() time.Time) {
	s.now = now
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

// Ingest lists the shop's orders in the request window, fetches their details
// in batches and upserts them as raw orders.
//
// A token or listing failure aborts the run: the returned error wraps
// ErrIngestionAborted and the report has Aborted set. A failing detail batch
// or store is recorded in the report and the remaining batches continue.
//
// Only one run per shop is in flight at a time. A second caller gets
// ErrSyncInProgress and no report.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*integration.IngestionReport, error) {
	ctx, _ = logger.WithScope(ctx, logger.Scope{
		TenantID: req.TenantID.String(),
		ShopID:   req.ShopID,
		Job:      logger.JobIngestion,
	})

	key := integration.ConnectionKey(req.TenantID, req.ShopID)
	if !s.inflight.claim(key) {
		logger.WithLogger(ctx, s.logger).Info("Ingestion already running for shop")
		return nil, fmt.Errorf("%w: shop %s", integration.ErrSyncInProgress, key)
	}
	defer s.inflight.release(key)

	ctx, span := telemetry.StartServiceSpan(ctx, "ingestion", "run",
		telemetry.WithShop(req.TenantID, req.ShopID),
	)
	defer span.End()

	report := &integration.IngestionReport{
		TenantID:  req.TenantID,
		ShopID:    req.ShopID,
		StartedAt: s.now(),
	}
	clog := logger.WithLogger(ctx, s.logger)

	err := s.ingest(ctx, req, report, clog)
	report.FinishedAt = s.now()

	if s.metrics != nil {
		s.metrics.RecordIngestion(ctx, report)
	}
	telemetry.SetAttributes(span,
		"listed", report.Listed,
		"fetched", report.Fetched,
		"stored", report.Stored,
		"failed", report.Failed,
		"status", string(report.Status()),
	)

	if err != nil {
		telemetry.RecordError(span, err)
		clog.Error("Ingestion aborted", zap.Error(err))
		return report, err
	}

	clog.Info("Ingestion finished",
		zap.String("status", string(report.Status())),
		zap.Time("window_from", report.WindowFrom),
		zap.Time("window_to", report.WindowTo),
		zap.Int("listed", report.Listed),
		zap.Int("fetched", report.Fetched),
		zap.Int("stored", report.Stored),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *IngestionService) ingest(ctx context.Context, req IngestRequest, report *integration.IngestionReport, log *logger.ContextLogger) error {
	conn, err := s.tokens.AccessToken(ctx, req.TenantID, req.ShopID)
	if err != nil {
		return s.abort(ctx, report, err)
	}
	creds := integration.ShopCredentials{ShopID: conn.ShopID, AccessToken: conn.AccessToken}

	window := s.windowFor(conn, req)
	report.WindowFrom, report.WindowTo = window.From, window.To
	if err := window.Validate(); err != nil {
		return s.abort(ctx, report, err)
	}

	orderIDs, cursor, err := s.listOrderIDs(ctx, creds, req, window)
	if err != nil {
		return s.abort(ctx, report, err)
	}
	report.Listed = len(orderIDs)
	if len(orderIDs) == 0 {
		log.Debug("No orders in window")
	}

	batchFailures := 0
	for start := 0; start < len(orderIDs); start += s.config.DetailBatchSize {
		end := min(start+s.config.DetailBatchSize, len(orderIDs))
		batch := orderIDs[start:end]
		key := batchKey(batch)

		if ctx.Err() != nil {
			report.AddFailure(integration.NewRunFailure(integration.FailureScopeBatch, key, ctx.Err()), len(orderIDs)-start)
			report.Aborted = true
			return fmt.Errorf("%w: %w", integration.ErrIngestionAborted, ctx.Err())
		}
		if !s.ingestBatch(ctx, creds, req.TenantID, batch, key, report, log) {
			batchFailures++
		}
	}

	// A failed batch keeps the previous window end so the next run lists it again.
	if batchFailures > 0 {
		log.Warn("Keeping previous sync state", zap.Int("failed_batches", batchFailures))
		return nil
	}
	if err := s.connRepo.UpdateSyncState(ctx, req.TenantID, req.ShopID, cursor, window.To); err != nil {
		log.Warn("Failed to update sync state", zap.Error(err))
		report.AddFailure(integration.NewRunFailure(integration.FailureScopeShop, conn.Key(),
			&integration.PersistenceError{Op: "update sync state", Err: err}), 0)
	}
	return nil
}

// abort marks the run as failed as a whole
func (s *IngestionService) abort(ctx context.Context, report *integration.IngestionReport, cause error) error {
	key := integration.ConnectionKey(report.TenantID, report.ShopID)
	report.Aborted = true
	report.AddFailure(integration.NewRunFailure(integration.FailureScopeShop, key, cause), 0)

	// A failed refresh must leave the connection row as it was.
	var refreshErr *integration.TokenRefreshError
	if !errors.As(cause, &refreshErr) &&
		!errors.Is(cause, integration.ErrConnectionNotFound) &&
		!errors.Is(cause, integration.ErrConnectionDisabled) {
		if err := s.connRepo.RecordError(ctx, report.TenantID, report.ShopID, cause.Error()); err != nil {
			s.logger.Warn("Failed to record ingestion error", zap.String("key", key), zap.Error(err))
		}
	}
	return fmt.Errorf("%w: %w", integration.ErrIngestionAborted, cause)
}

// windowFor picks the listing window: the request override, else an
// incremental window starting one overlap before the last ingested window end,
// never reaching further back than the lookback.
func (s *IngestionService) windowFor(conn *integration.Connection, req IngestRequest) integration.TimeWindow {
	if req.Window != nil {
		return *req.Window
	}
	now := s.now().UTC()
	window := integration.LookbackWindow(now, s.config.Lookback)
	if conn.LastIngestedAt != nil {
		from := conn.LastIngestedAt.Add(-s.config.Overlap)
		if from.After(window.From) {
			window.From = from
		}
	}
	return window
}

// listOrderIDs walks every page of every sub-window. IDs are returned once,
// in listing order, together with the last cursor seen.
func (s *IngestionService) listOrderIDs(ctx context.Context, creds integration.ShopCredentials, req IngestRequest, window integration.TimeWindow) ([]string, string, error) {
	statusFilter := req.StatusFilter
	if statusFilter == "" {
		statusFilter = s.config.StatusFilter
	}

	var (
		ids    []string
		seen   = make(map[string]struct{})
		cursor string
	)
	for _, sub := range window.Split(integration.MaxListWindow) {
		query := integration.OrderListQuery{
			Window:         sub,
			TimeRangeField: s.config.TimeRangeField,
			StatusFilter:   statusFilter,
			PageSize:       s.config.PageSize,
		}
		for {
			page, err := s.client.ListOrders(ctx, creds, query)
			if err != nil {
				return nil, "", fmt.Errorf("list orders %s..%s: %w",
					sub.From.Format(time.RFC3339), sub.To.Format(time.RFC3339), err)
			}
			for _, id := range page.OrderIDs {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			if page.NextCursor != "" {
				cursor = page.NextCursor
			}
			if !page.More || page.NextCursor == "" || page.NextCursor == query.Cursor {
				break
			}
			query.Cursor = page.NextCursor
		}
	}
	return ids, cursor, nil
}

// ingestBatch fetches and stores one detail batch, recording any failure on
// the report. It returns false when the batch as a whole failed.
func (s *IngestionService) ingestBatch(
	ctx context.Context,
	creds integration.ShopCredentials,
	tenantID uuid.UUID,
	batch []string,
	key string,
	report *integration.IngestionReport,
	log *logger.ContextLogger,
) bool {
	ctx, span := telemetry.StartServiceSpan(ctx, "ingestion", "batch",
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(batch)),
	)
	defer span.End()

	details, err := s.fetchDetails(ctx, creds, batch)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Warn("Detail batch failed", zap.String("batch", key), zap.Error(err))
		report.AddFailure(integration.NewRunFailure(integration.FailureScopeBatch, key, err), len(batch))
		return false
	}
	report.Fetched += len(details)

	receivedAt := s.now().UTC()
	rows := make([]integration.RawOrder, 0, len(details))
	for _, detail := range details {
		raw, err := integration.NewRawOrder(tenantID, creds.ShopID, detail, receivedAt)
		if err != nil {
			log.Warn("Skipping malformed order detail", zap.String("order_id", detail.OrderID), zap.Error(err))
			report.AddFailure(integration.NewRunFailure(integration.FailureScopeRow, detail.OrderID, err), 1)
			continue
		}
		rows = append(rows, *raw)
	}
	if len(rows) == 0 {
		return true
	}

	stored, err := s.rawRepo.UpsertBatch(ctx, rows)
	if err != nil {
		persistErr := &integration.PersistenceError{Op: "upsert raw orders", Err: err}
		telemetry.RecordError(span, persistErr)
		log.Error("Failed to store raw orders", zap.String("batch", key), zap.Error(err))
		report.AddFailure(integration.NewRunFailure(integration.FailureScopeBatch, key, persistErr), len(rows))
		return false
	}
	report.Stored += stored

	if s.archive != nil {
		if err := s.archive.Archive(ctx, tenantID, creds.ShopID, details, receivedAt); err != nil {
			log.Warn("Failed to archive raw batch", zap.String("batch", key), zap.Error(err))
		}
	}
	return true
}

// fetchDetails calls the detail endpoint, retrying transient failures with exponential backoff
func (s *IngestionService) fetchDetails(ctx context.Context, creds integration.ShopCredentials, batch []string) ([]integration.OrderDetail, error) {
	var details []integration.OrderDetail
	attempt := 0
	op := func() error {
		attempt++
		var err error
		details, err = s.client.GetOrderDetails(ctx, creds, batch)
		if err == nil {
			return nil
		}
		if !integration.IsTransient(err) {
			return backoff.Permanent(err)
		}
		s.logger.Debug("Retrying detail batch",
			zap.Int64("shop_id", creds.ShopID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.DetailRetryBaseDelay
	policy.MaxElapsedTime = 0
	retries := uint64(s.config.DetailRetryAttempts - 1)

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)); err != nil {
		return nil, err
	}
	return details, nil
}

func batchKey(batch []string) string {
	if len(batch) == 1 {
		return batch[0]
	}
	return fmt.Sprintf("%s..%s", batch[0], batch[len(batch)-1])
}
