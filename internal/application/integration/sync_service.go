package integration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/logger"
)

// Ingester runs one ingestion. *IngestionService implements it.
type Ingester interface {
	Ingest(ctx context.Context, req IngestRequest) (*integration.IngestionReport, error)
}

// Normalizer runs one tenant's normalization. *NormalizationService implements it.
type Normalizer interface {
	Normalize(ctx context.Context, tenantID uuid.UUID) (*integration.NormalizationReport, error)
}

// Authorizer completes the OAuth flow. *TokenService implements it.
type Authorizer interface {
	CompleteAuthorization(ctx context.Context, tenantID uuid.UUID, shopID int64, code string) (*integration.Connection, error)
}

// SyncService is the entry point for on-demand sync operations
type SyncService struct {
	connRepo      integration.ConnectionRepository
	authorizer    Authorizer
	ingester      Ingester
	normalizer    Normalizer
	concurrency   int
	refreshMargin time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewSyncService creates a new SyncService. concurrency bounds how many shops
// of one tenant are ingested at once.
func NewSyncService(
	connRepo integration.ConnectionRepository,
	authorizer Authorizer,
	ingester Ingester,
	normalizer Normalizer,
	concurrency int,
	logger *zap.Logger,
) *SyncService {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		connRepo:      connRepo,
		authorizer:    authorizer,
		ingester:      ingester,
		normalizer:    normalizer,
		concurrency:   concurrency,
		refreshMargin: integration.DefaultRefreshMargin,
		logger:        logger,
		now:           time.Now,
	}
}

// SetRefreshMargin sets the margin used to report token state
func (s *SyncService) SetRefreshMargin(margin time.Duration) {
	if margin > 0 {
		s.refreshMargin = margin
	}
}

// ---------------------------------------------------------------------------
// Triggers
// ---------------------------------------------------------------------------

// TriggerIngestion ingests one shop when shopID is set, else every active
// shop of the tenant. For a single shop an aborted run is returned as an
// error together with its report, and a shop already being ingested yields
// ErrSyncInProgress. For all shops, per-shop failures only show up in the
// aggregated result and busy shops are listed in InProgress.
func (s *SyncService) TriggerIngestion(ctx context.Context, tenantID uuid.UUID, shopID *int64) (*IngestionRunResult, error) {
	if tenantID == uuid.Nil {
		return nil, integration.ErrInvalidTenantID
	}

	if shopID != nil {
		report, err := s.ingester.Ingest(ctx, IngestRequest{TenantID: tenantID, ShopID: *shopID})
		var reports []integration.IngestionReport
		if report != nil {
			reports = append(reports, *report)
		}
		return NewIngestionRunResult(tenantID, reports), err
	}

	conns, err := s.connRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, &integration.PersistenceError{Op: "list connections", Err: err}
	}

	var (
		mu         sync.Mutex
		reports    []integration.IngestionReport
		inProgress []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, conn := range conns {
		if !conn.IsActive() {
			continue
		}
		req := IngestRequest{TenantID: tenantID, ShopID: conn.ShopID}
		g.Go(func() error {
			report, err := s.ingester.Ingest(gctx, req)
			if errors.Is(err, integration.ErrSyncInProgress) {
				mu.Lock()
				inProgress = append(inProgress, req.ShopID)
				mu.Unlock()
				return nil
			}
			if err != nil {
				logger.WithLogger(gctx, s.logger).Warn("Shop ingestion failed",
					zap.String("tenant_id", tenantID.String()),
					zap.Int64("shop_id", req.ShopID),
					zap.Error(err),
				)
			}
			if report != nil {
				mu.Lock()
				reports = append(reports, *report)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].ShopID < reports[j].ShopID })
	sort.Slice(inProgress, func(i, j int) bool { return inProgress[i] < inProgress[j] })
	result := NewIngestionRunResult(tenantID, reports)
	result.InProgress = inProgress
	return result, nil
}

// TriggerNormalization normalizes every pending raw order of the tenant
func (s *SyncService) TriggerNormalization(ctx context.Context, tenantID uuid.UUID) (*integration.NormalizationReport, error) {
	if tenantID == uuid.Nil {
		return nil, integration.ErrInvalidTenantID
	}
	return s.normalizer.Normalize(ctx, tenantID)
}

// CompleteAuthorization finishes the OAuth redirect of a shop
func (s *SyncService) CompleteAuthorization(ctx context.Context, tenantID uuid.UUID, shopID int64, code string) (*ConnectionResponse, error) {
	conn, err := s.authorizer.CompleteAuthorization(ctx, tenantID, shopID, code)
	if err != nil {
		return nil, err
	}
	resp := ToConnectionResponse(conn, s.now(), s.refreshMargin)
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

// ListConnections returns every connection of the tenant, disabled ones included
func (s *SyncService) ListConnections(ctx context.Context, tenantID uuid.UUID) ([]ConnectionResponse, error) {
	if tenantID == uuid.Nil {
		return nil, integration.ErrInvalidTenantID
	}
	conns, err := s.connRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, &integration.PersistenceError{Op: "list connections", Err: err}
	}

	now := s.now()
	result := make([]ConnectionResponse, len(conns))
	for i := range conns {
		result[i] = ToConnectionResponse(&conns[i], now, s.refreshMargin)
	}
	return result, nil
}

// DisableConnection soft-disables a connection. Its rows are kept and
// re-authorizing the shop activates it again.
func (s *SyncService) DisableConnection(ctx context.Context, tenantID uuid.UUID, shopID int64) error {
	if tenantID == uuid.Nil {
		return integration.ErrInvalidTenantID
	}
	err := s.connRepo.UpdateStatus(ctx, tenantID, shopID, integration.ConnectionStatusDisabled)
	if err != nil {
		if errors.Is(err, integration.ErrConnectionNotFound) {
			return err
		}
		return &integration.PersistenceError{Op: "disable connection", Err: err}
	}
	logger.WithLogger(ctx, s.logger).Info("Connection disabled",
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("shop_id", shopID),
	)
	return nil
}
