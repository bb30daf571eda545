package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// RefreshLocker serializes token refreshes across processes.
// TryAcquire returns ok=false without error when another holder owns the key.
type RefreshLocker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// MetricsRecorder receives run outcomes. *telemetry.SyncMetrics implements it.
type MetricsRecorder interface {
	RecordIngestion(ctx context.Context, report *integration.IngestionReport)
	RecordNormalization(ctx context.Context, report *integration.NormalizationReport)
	RecordTokenRefresh(ctx context.Context, tenantID uuid.UUID, shopID int64, err error)
}

// TokenServiceConfig holds token lifecycle tuning
type TokenServiceConfig struct {
	// RefreshMargin is how long before expiry a token is refreshed
	RefreshMargin time.Duration
	// LockTTL bounds how long a distributed refresh lock is held and waited for
	LockTTL time.Duration
	// LockPollInterval is how often a waiter re-checks the lock
	LockPollInterval time.Duration
}

// DefaultTokenServiceConfig returns the default token lifecycle tuning
func DefaultTokenServiceConfig() TokenServiceConfig {
	return TokenServiceConfig{
		RefreshMargin:    integration.DefaultRefreshMargin,
		LockTTL:          30 * time.Second,
		LockPollInterval: 250 * time.Millisecond,
	}
}

// TokenServiceOption configures a TokenService
type TokenServiceOption func(*TokenService)

// WithRefreshLocker adds a cross-process refresh lock
func WithRefreshLocker(locker RefreshLocker) TokenServiceOption {
	return func(s *TokenService) {
		s.locker = locker
	}
}

// WithTokenClock overrides the time source
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// TokenService owns the token fields of every Connection. It exchanges
// authorization codes and refreshes access tokens before they expire.
type TokenService struct {
	connRepo integration.ConnectionRepository
	client   integration.MarketplaceClient
	locker   RefreshLocker
	metrics  MetricsRecorder
	config   TokenServiceConfig
	logger   *zap.Logger
	now      func() time.Time

	flight singleflight.Group
}

// NewTokenService creates a new TokenService
func NewTokenService(
	connRepo integration.ConnectionRepository,
	client integration.MarketplaceClient,
	config TokenServiceConfig,
	logger *zap.Logger,
	opts ...TokenServiceOption,
) *TokenService {
	defaults := DefaultTokenServiceConfig()
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = defaults.RefreshMargin
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.LockPollInterval <= 0 {
		config.LockPollInterval = defaults.LockPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &TokenService{
		connRepo: connRepo,
		client:   client,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetMetrics sets the metrics recorder for token refreshes
func (s *TokenService) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// ---------------------------------------------------------------------------
// Authorization
// ---------------------------------------------------------------------------

// CompleteAuthorization exchanges an authorization code for the shop's first
// token pair and stores the connection. Re-authorizing a known shop replaces
// its tokens and re-activates it.
func (s *TokenService) CompleteAuthorization(ctx context.Context, tenantID uuid.UUID, shopID int64, code string) (*integration.Connection, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "token", "authorize",
		telemetry.WithShop(tenantID, shopID),
	)
	defer span.End()

	if tenantID == uuid.Nil {
		return nil, integration.ErrInvalidTenantID
	}
	if shopID <= 0 {
		return nil, integration.ErrInvalidShopID
	}
	if code == "" {
		return nil, integration.ErrInvalidAuthCode
	}

	grant, err := s.client.ExchangeCode(ctx, shopID, code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	conn, err := integration.NewConnection(tenantID, shopID, *grant, s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.connRepo.Save(ctx, conn); err != nil {
		telemetry.RecordError(span, err)
		return nil, &integration.PersistenceError{Op: "save connection", Err: err}
	}

	logger.WithLogger(ctx, s.logger).Info("Shop authorized",
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("shop_id", shopID),
		zap.Time("expires_at", conn.AccessTokenExpiresAt),
	)
	return conn, nil
}

// ---------------------------------------------------------------------------
// Access token
// ---------------------------------------------------------------------------

// AccessToken returns the connection with a usable access token, refreshing
// it first when it expires within the refresh margin.
func (s *TokenService) AccessToken(ctx context.Context, tenantID uuid.UUID, shopID int64) (*integration.Connection, error) {
	conn, err := s.loadActive(ctx, tenantID, shopID)
	if err != nil {
		return nil, err
	}

	switch conn.TokenState(s.now(), s.config.RefreshMargin) {
	case integration.TokenStateValid:
		return conn, nil
	case integration.TokenStateNoToken:
		return nil, &integration.TokenRefreshError{
			TenantID: tenantID,
			ShopID:   shopID,
			Err:      integration.ErrInvalidTokenGrant,
		}
	}
	return s.Refresh(ctx, tenantID, shopID)
}

// Refresh renews the access token of a connection. Concurrent callers for the
// same connection share one refresh. A token that another caller already
// renewed is returned without calling the marketplace.
func (s *TokenService) Refresh(ctx context.Context, tenantID uuid.UUID, shopID int64) (*integration.Connection, error) {
	key := integration.ConnectionKey(tenantID, shopID)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.refreshLocked(context.WithoutCancel(ctx), tenantID, shopID, key)
	})
	if err != nil {
		return nil, err
	}
	conn := *v.(*integration.Connection)
	return &conn, nil
}

func (s *TokenService) refreshLocked(ctx context.Context, tenantID uuid.UUID, shopID int64, key string) (*integration.Connection, error) {
	if s.locker == nil {
		return s.refreshIfDue(ctx, tenantID, shopID)
	}

	deadline := s.now().Add(s.config.LockTTL)
	for {
		token, ok, err := s.locker.TryAcquire(ctx, key, s.config.LockTTL)
		if err != nil {
			// A broken lock backend must not block refreshes.
			logger.WithLogger(ctx, s.logger).Warn("Refresh lock unavailable",
				zap.String("key", key),
				zap.Error(err),
			)
			return s.refreshIfDue(ctx, tenantID, shopID)
		}
		if ok {
			defer func() {
				if err := s.locker.Release(ctx, key, token); err != nil {
					s.logger.Warn("Failed to release refresh lock", zap.String("key", key), zap.Error(err))
				}
			}()
			return s.refreshIfDue(ctx, tenantID, shopID)
		}

		// Someone else is refreshing. Wait, then see whether they finished.
		conn, err := s.loadActive(ctx, tenantID, shopID)
		if err != nil {
			return nil, err
		}
		if conn.TokenState(s.now(), s.config.RefreshMargin) == integration.TokenStateValid {
			return conn, nil
		}
		if !s.now().Before(deadline) {
			return s.refreshIfDue(ctx, tenantID, shopID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.LockPollInterval):
		}
	}
}

// refreshIfDue re-reads the row and only calls the marketplace when the token
// still needs renewing.
func (s *TokenService) refreshIfDue(ctx context.Context, tenantID uuid.UUID, shopID int64) (conn *integration.Connection, err error) {
	ctx, _ = logger.WithScope(ctx, logger.Scope{
		TenantID: tenantID.String(),
		ShopID:   shopID,
		Job:      logger.JobTokenRefresh,
	})
	ctx, span := telemetry.StartServiceSpan(ctx, "token", "refresh",
		telemetry.WithSpanKind(trace.SpanKindInternal),
		telemetry.WithShop(tenantID, shopID),
	)
	defer span.End()

	conn, err = s.loadActive(ctx, tenantID, shopID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if conn.TokenState(s.now(), s.config.RefreshMargin) == integration.TokenStateValid {
		telemetry.SetAttributes(span, "refresh.skipped", true)
		return conn, nil
	}

	defer func() {
		if s.metrics != nil {
			s.metrics.RecordTokenRefresh(ctx, tenantID, shopID, err)
		}
	}()

	log := logger.WithLogger(ctx, s.logger)

	if conn.RefreshToken == "" {
		return nil, s.refreshFailed(span, log, tenantID, shopID, integration.ErrInvalidTokenGrant)
	}

	grant, err := s.client.RefreshAccessToken(ctx, shopID, conn.RefreshToken)
	if err != nil {
		return nil, s.refreshFailed(span, log, tenantID, shopID, err)
	}
	if err := grant.Validate(); err != nil {
		return nil, s.refreshFailed(span, log, tenantID, shopID, err)
	}

	conn.ApplyGrant(*grant, s.now())
	if err := s.connRepo.UpdateTokens(ctx, conn); err != nil {
		return nil, s.refreshFailed(span, log, tenantID, shopID,
			&integration.PersistenceError{Op: "update tokens", Err: err})
	}

	log.Info("Access token refreshed", zap.Time("expires_at", conn.AccessTokenExpiresAt))
	return conn, nil
}

func (s *TokenService) refreshFailed(span trace.Span, log *logger.ContextLogger, tenantID uuid.UUID, shopID int64, cause error) error {
	refreshErr := &integration.TokenRefreshError{TenantID: tenantID, ShopID: shopID, Err: cause}
	telemetry.RecordError(span, refreshErr)
	log.Error("Access token refresh failed", zap.Error(cause))

	// The stored connection keeps its previous state so a retry can reuse
	// the still-valid refresh token.
	return refreshErr
}

// RefreshDue refreshes every active connection whose token expires within the
// refresh margin. It returns how many were refreshed. Individual failures are
// logged and leave their connection unchanged.
func (s *TokenService) RefreshDue(ctx context.Context) (int, error) {
	conns, err := s.connRepo.FindExpiringBefore(ctx, s.now().Add(s.config.RefreshMargin))
	if err != nil {
		return 0, &integration.PersistenceError{Op: "find expiring connections", Err: err}
	}

	refreshed := 0
	for _, conn := range conns {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := s.Refresh(ctx, conn.TenantID, conn.ShopID); err != nil {
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (s *TokenService) loadActive(ctx context.Context, tenantID uuid.UUID, shopID int64) (*integration.Connection, error) {
	conn, err := s.connRepo.FindByTenantAndShop(ctx, tenantID, shopID)
	if err != nil {
		if errors.Is(err, integration.ErrConnectionNotFound) {
			return nil, err
		}
		return nil, &integration.PersistenceError{Op: "find connection", Err: err}
	}
	if !conn.IsActive() {
		return nil, integration.ErrConnectionDisabled
	}
	return conn, nil
}
