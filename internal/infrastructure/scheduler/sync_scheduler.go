package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	integrationapp "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// ConnectionLister lists the connections a tick works on
type ConnectionLister interface {
	FindActive(ctx context.Context) ([]integration.Connection, error)
}

// TokenRefresher renews tokens that are about to expire
type TokenRefresher interface {
	RefreshDue(ctx context.Context) (int, error)
}

// ShopIngester ingests one shop. *integrationapp.IngestionService implements it.
type ShopIngester interface {
	Ingest(ctx context.Context, req integrationapp.IngestRequest) (*integration.IngestionReport, error)
}

// TenantNormalizer normalizes one tenant. *integrationapp.NormalizationService implements it.
type TenantNormalizer interface {
	Normalize(ctx context.Context, tenantID uuid.UUID) (*integration.NormalizationReport, error)
}

// ---------------------------------------------------------------------------
// Run summaries
// ---------------------------------------------------------------------------

// JobType names a periodic job
type JobType string

const (
	JobIngestion     JobType = "ingestion"
	JobNormalization JobType = "normalization"
)

// RunSummary describes one tick of a job
type RunSummary struct {
	Job        JobType   `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Keys       int       `json:"keys"`
	Succeeded  int       `json:"succeeded"`
	Partial    int       `json:"partial"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
}

// runCounters is shared by the workers of one tick
type runCounters struct {
	succeeded atomic.Int64
	partial   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

func (c *runCounters) record(status integration.RunStatus, err error) {
	switch {
	case errors.Is(err, integration.ErrSyncInProgress):
		c.skipped.Add(1)
	case err != nil || status == integration.RunStatusFailed:
		c.failed.Add(1)
	case status == integration.RunStatusPartial:
		c.partial.Add(1)
	default:
		c.succeeded.Add(1)
	}
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// IngestionInterval is the period of the ingestion ticker
	IngestionInterval time.Duration
	// NormalizationInterval is the period of the normalization ticker
	NormalizationInterval time.Duration
	// MaxConcurrentShops bounds the fan-out of one tick
	MaxConcurrentShops int
	// JobTimeout bounds the work for a single shop or tenant
	JobTimeout time.Duration
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		IngestionInterval:     time.Hour,
		NormalizationInterval: 5 * time.Minute,
		MaxConcurrentShops:    4,
		JobTimeout:            15 * time.Minute,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.IngestionInterval <= 0 || c.NormalizationInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxConcurrentShops <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler periodically refreshes tokens, ingests every active shop and
// normalizes every tenant that has one.
type SyncScheduler struct {
	config      SyncSchedulerConfig
	connections ConnectionLister
	refresher   TokenRefresher
	ingester    ShopIngester
	normalizer  TenantNormalizer
	logger      *zap.Logger
	now         func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	historyMu sync.RWMutex
	lastRuns  map[JobType]RunSummary
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(
	config SyncSchedulerConfig,
	connections ConnectionLister,
	refresher TokenRefresher,
	ingester ShopIngester,
	normalizer TenantNormalizer,
	logger *zap.Logger,
) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &SyncScheduler{
		config:      config,
		connections: connections,
		refresher:   refresher,
		ingester:    ingester,
		normalizer:  normalizer,
		logger:      logger,
		now:         time.Now,
		lastRuns:    make(map[JobType]RunSummary),
	}, nil
}

// Start starts both tickers. Each job runs once immediately.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.loop(ctx, JobIngestion, s.config.IngestionInterval, s.RunIngestion)
	go s.loop(ctx, JobNormalization, s.config.NormalizationInterval, s.RunNormalization)

	s.logger.Info("Sync scheduler started",
		zap.Duration("ingestion_interval", s.config.IngestionInterval),
		zap.Duration("normalization_interval", s.config.NormalizationInterval),
		zap.Int("max_concurrent_shops", s.config.MaxConcurrentShops),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels the tickers and waits for in-flight work or for ctx
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *SyncScheduler) loop(ctx context.Context, job JobType, interval time.Duration, run func(context.Context) RunSummary) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run(ctx)

		select {
		case <-ctx.Done():
			s.logger.Debug("Sync loop stopping", zap.String("job", string(job)))
			return
		case <-ticker.C:
		}
	}
}

// RunIngestion runs one ingestion tick: token sweep first, then every active shop.
func (s *SyncScheduler) RunIngestion(ctx context.Context) RunSummary {
	summary := RunSummary{Job: JobIngestion, StartedAt: s.now()}

	if refreshed, err := s.refresher.RefreshDue(ctx); err != nil {
		s.logger.Warn("Token refresh sweep failed", zap.Error(err))
	} else if refreshed > 0 {
		s.logger.Info("Refreshed expiring tokens", zap.Int("count", refreshed))
	}

	conns, err := s.connections.FindActive(ctx)
	if err != nil {
		return s.finish(summary, fmt.Errorf("list active connections: %w", err), nil)
	}

	var counters runCounters
	g := new(errgroup.Group)
	g.SetLimit(s.config.MaxConcurrentShops)

	for _, conn := range conns {
		if ctx.Err() != nil {
			break
		}
		summary.Keys++

		tenantID, shopID := conn.TenantID, conn.ShopID
		g.Go(func() error {
			// Go blocks at the limit, so the tick may have been cancelled meanwhile
			if ctx.Err() != nil {
				counters.skipped.Add(1)
				return nil
			}

			jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.JobTimeout)
			defer cancel()

			telemetry.WithJobLabels(jobCtx, string(JobIngestion), tenantID.String(), func(jobCtx context.Context) {
				report, err := s.ingester.Ingest(jobCtx, integrationapp.IngestRequest{TenantID: tenantID, ShopID: shopID})
				var status integration.RunStatus
				if report != nil {
					status = report.Status()
				}
				counters.record(status, err)
				switch {
				case errors.Is(err, integration.ErrSyncInProgress):
					s.logger.Info("Skipping shop still in flight",
						zap.String("key", integration.ConnectionKey(tenantID, shopID)))
				case err != nil:
					s.logger.Error("Scheduled ingestion failed",
						zap.String("tenant_id", tenantID.String()),
						zap.Int64("shop_id", shopID),
						zap.Error(err),
					)
				}
			})
			return nil
		})
	}
	_ = g.Wait()

	return s.finish(summary, nil, &counters)
}

// RunNormalization runs one normalization tick for every tenant with an active shop
func (s *SyncScheduler) RunNormalization(ctx context.Context) RunSummary {
	summary := RunSummary{Job: JobNormalization, StartedAt: s.now()}

	conns, err := s.connections.FindActive(ctx)
	if err != nil {
		return s.finish(summary, fmt.Errorf("list active connections: %w", err), nil)
	}

	seen := make(map[uuid.UUID]struct{}, len(conns))
	var counters runCounters
	g := new(errgroup.Group)
	g.SetLimit(s.config.MaxConcurrentShops)

	for _, conn := range conns {
		if ctx.Err() != nil {
			break
		}
		if _, dup := seen[conn.TenantID]; dup {
			continue
		}
		seen[conn.TenantID] = struct{}{}
		summary.Keys++

		tenantID := conn.TenantID
		g.Go(func() error {
			if ctx.Err() != nil {
				counters.skipped.Add(1)
				return nil
			}

			jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.JobTimeout)
			defer cancel()

			telemetry.WithJobLabels(jobCtx, string(JobNormalization), tenantID.String(), func(jobCtx context.Context) {
				report, err := s.normalizer.Normalize(jobCtx, tenantID)
				var status integration.RunStatus
				if report != nil {
					status = report.Status()
				}
				counters.record(status, err)
				switch {
				case errors.Is(err, integration.ErrSyncInProgress):
					s.logger.Info("Skipping tenant still in flight", zap.String("tenant_id", tenantID.String()))
				case err != nil:
					s.logger.Error("Scheduled normalization failed",
						zap.String("tenant_id", tenantID.String()),
						zap.Error(err),
					)
				}
			})
			return nil
		})
	}
	_ = g.Wait()

	return s.finish(summary, nil, &counters)
}

func (s *SyncScheduler) finish(summary RunSummary, err error, counters *runCounters) RunSummary {
	summary.FinishedAt = s.now()
	if counters != nil {
		summary.Succeeded = int(counters.succeeded.Load())
		summary.Partial = int(counters.partial.Load())
		summary.Failed = int(counters.failed.Load())
		summary.Skipped += int(counters.skipped.Load())
	}

	fields := []zap.Field{
		zap.String("job", string(summary.Job)),
		zap.Int("keys", summary.Keys),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if err != nil {
		summary.Error = err.Error()
		s.logger.Error("Sync tick failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("Sync tick finished", fields...)
	}

	s.historyMu.Lock()
	s.lastRuns[summary.Job] = summary
	s.historyMu.Unlock()
	return summary
}

// LastRuns returns the last summary of each job type
func (s *SyncScheduler) LastRuns() map[JobType]RunSummary {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make(map[JobType]RunSummary, len(s.lastRuns))
	for job, summary := range s.lastRuns {
		result[job] = summary
	}
	return result
}
