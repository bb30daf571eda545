package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/erp/ordersync/docs"
	integrationapp "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/infrastructure/auth"
	"github.com/erp/ordersync/internal/infrastructure/cache"
	"github.com/erp/ordersync/internal/infrastructure/config"
	"github.com/erp/ordersync/internal/infrastructure/ecommerce"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/migration"
	"github.com/erp/ordersync/internal/infrastructure/persistence"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
	"github.com/erp/ordersync/internal/infrastructure/storage"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
	"github.com/erp/ordersync/internal/interfaces/http/handler"
	"github.com/erp/ordersync/internal/interfaces/http/middleware"
	"github.com/erp/ordersync/internal/interfaces/http/router"
)

//go:generate swag init --dir ../../ -g cmd/server/main.go -o ../../docs --parseInternal

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Order Sync API
//	@version		1.0
//	@description	Marketplace order ingestion and normalization

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
		Service:    cfg.App.Name,
		Version:    version,
		Env:        cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	// Telemetry comes first so the log bridge can wrap the base logger
	telemetryProvider, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetryProvider.Shutdown(ctx); err != nil {
			baseLog.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	log := telemetry.BridgeLogger(baseLog, telemetryProvider, logger.ParseLevel(cfg.Log.Level))
	defer func() {
		_ = logger.Sync(log)
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if cfg.Profiling.SpanProfiles && !telemetryProvider.EnableSpanProfiles(profiler) {
		log.Warn("Span profiles need both telemetry and profiling enabled")
	}

	log.Info("Starting order sync",
		zap.String("app", cfg.App.Name),
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithZapLogger(log, logger.MapGormLogLevel(cfg.Log.Level)),
		persistence.WithSlowQueryThreshold(cfg.Telemetry.DBSlowQueryThresh),
		persistence.WithTracing(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		}),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := migrate(db, log); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Repositories
	connRepo := persistence.NewGormConnectionRepository(db.DB)
	rawRepo := persistence.NewGormRawOrderRepository(db.DB)
	normalizedRepo := persistence.NewGormNormalizedOrderRepository(db.DB)

	// Marketplace client. A missing partner key is fatal here, not at the first call.
	client, err := ecommerce.NewShopeeClient(&ecommerce.ShopeeConfig{
		PartnerID:      cfg.Marketplace.PartnerID,
		PartnerKey:     cfg.Marketplace.PartnerKey,
		APIBaseURL:     cfg.Marketplace.APIBaseURL,
		IsSandbox:      cfg.Marketplace.Sandbox,
		TimeoutSeconds: cfg.Marketplace.TimeoutSeconds,
		OptionalFields: cfg.Marketplace.OptionalFields,
	})
	if err != nil {
		log.Fatal("Invalid marketplace configuration", zap.Error(err))
	}

	// Refresh lock: Redis when configured, in-process otherwise
	locker, err := cache.NewRefreshLockerFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	).CreateLocker()
	if err != nil {
		log.Fatal("Failed to create refresh locker", zap.Error(err))
	}
	defer func() {
		if err := locker.Close(); err != nil {
			log.Error("Error closing refresh locker", zap.Error(err))
		}
	}()

	syncMetrics, err := telemetry.NewSyncMetrics(telemetryProvider.Meter("ordersync.sync"))
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Application services
	tokenService := integrationapp.NewTokenService(connRepo, client, integrationapp.TokenServiceConfig{
		RefreshMargin: cfg.Sync.RefreshMargin,
		LockTTL:       cfg.Sync.RefreshLockTTL,
	}, log, integrationapp.WithRefreshLocker(locker))
	tokenService.SetMetrics(syncMetrics)

	ingestionService := integrationapp.NewIngestionService(tokenService, client, connRepo, rawRepo, integrationapp.IngestionConfig{
		Lookback:             cfg.Sync.Lookback,
		Overlap:              cfg.Sync.Overlap,
		TimeRangeField:       cfg.Sync.TimeRangeField,
		StatusFilter:         cfg.Sync.StatusFilter,
		PageSize:             cfg.Sync.PageSize,
		DetailBatchSize:      cfg.Sync.DetailBatchSize,
		DetailRetryAttempts:  cfg.Sync.DetailRetryAttempts,
		DetailRetryBaseDelay: cfg.Sync.DetailRetryBaseDelay,
	}, log)
	ingestionService.SetMetrics(syncMetrics)

	if cfg.Storage.RawArchiveEnabled {
		archive, err := storage.NewS3RawArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create raw archive", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = archive.EnsureBucket(ctx)
		cancel()
		if err != nil {
			log.Fatal("Failed to prepare raw archive bucket", zap.Error(err))
		}
		ingestionService.SetRawArchive(archive)
		log.Info("Raw payload archive enabled", zap.String("bucket", archive.GetBucket()))
	}

	normalizationService := integrationapp.NewNormalizationService(rawRepo, normalizedRepo, cfg.Sync.NormalizeBatchSize, log)
	normalizationService.SetMetrics(syncMetrics)

	syncService := integrationapp.NewSyncService(
		connRepo, tokenService, ingestionService, normalizationService,
		cfg.Scheduler.MaxConcurrentShops, log,
	)
	syncService.SetRefreshMargin(cfg.Sync.RefreshMargin)

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db)

	// Scheduler
	if cfg.Scheduler.Enabled {
		syncScheduler, err := scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
			IngestionInterval:     cfg.Scheduler.IngestionInterval,
			NormalizationInterval: cfg.Scheduler.NormalizationInterval,
			MaxConcurrentShops:    cfg.Scheduler.MaxConcurrentShops,
			JobTimeout:            cfg.Scheduler.JobTimeout,
		}, connRepo, tokenService, ingestionService, normalizationService, log)
		if err != nil {
			log.Fatal("Invalid scheduler configuration", zap.Error(err))
		}
		if err := syncScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := syncScheduler.Stop(ctx); err != nil {
				log.Error("Error stopping sync scheduler", zap.Error(err))
			}
		}()
		systemHandler.SetSyncRunReporter(syncScheduler)
		log.Info("Sync scheduler started",
			zap.Duration("ingestion_interval", cfg.Scheduler.IngestionInterval),
			zap.Duration("normalization_interval", cfg.Scheduler.NormalizationInterval),
			zap.Int("max_concurrent_shops", cfg.Scheduler.MaxConcurrentShops),
		)
	}

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(telemetryProvider.Meter("ordersync.http"))
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	// Middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Tracing - Server span, enriched with the tenant after authentication
	// 3. Recovery - Catch panics
	// 4. Logger - Log requests
	// 5. Security headers and body size limit
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(httpMetrics)
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var limits router.Limiters
	if cfg.HTTP.RateLimitEnabled {
		limits.Trigger = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		limits.Callback = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	jwtConfig := middleware.JWTMiddlewareConfig{
		Validator: auth.NewJWTService(cfg.JWT),
		Logger:    log,
	}

	api := router.NewRouter(engine, router.WithAPIVersion("v1"))
	api.Protect(middleware.JWTAuthMiddlewareWithConfig(jwtConfig), middleware.TracingAttributeInjector())
	router.RegisterAPI(
		engine,
		api,
		handler.NewSyncHandler(syncService),
		systemHandler,
		limits,
	)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// migrate applies the embedded migrations before the first query
func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, "", log)
	if err != nil {
		return err
	}
	return m.Up()
}
