package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ordersync/internal/infrastructure/config"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB *gorm.DB
}

// DatabaseOption customizes NewDatabase
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	zapLogger *zap.Logger
	logLevel  gormlogger.LogLevel
	slowQuery time.Duration
	tracing   *telemetry.DBTracingConfig
}

// WithZapLogger routes GORM logs through zap at the given level
func WithZapLogger(l *zap.Logger, level gormlogger.LogLevel) DatabaseOption {
	return func(o *databaseOptions) {
		o.zapLogger = l
		o.logLevel = level
	}
}

// WithSlowQueryThreshold sets the duration above which queries are logged as slow
func WithSlowQueryThreshold(d time.Duration) DatabaseOption {
	return func(o *databaseOptions) {
		o.slowQuery = d
	}
}

// WithTracing registers otelgorm on the connection
func WithTracing(cfg telemetry.DBTracingConfig) DatabaseOption {
	return func(o *databaseOptions) {
		o.tracing = &cfg
	}
}

// NewDatabase creates a new database connection with the given configuration
func NewDatabase(cfg *config.DatabaseConfig, opts ...DatabaseOption) (*Database, error) {
	o := &databaseOptions{logLevel: gormlogger.Silent, slowQuery: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(o)
	}

	var gl gormlogger.Interface = gormlogger.Default.LogMode(o.logLevel)
	if o.zapLogger != nil {
		gl = logger.NewGormLogger(o.zapLogger, o.logLevel, logger.WithSlowThreshold(o.slowQuery))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gl,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if o.tracing != nil {
		zl := o.zapLogger
		if zl == nil {
			zl = zap.NewNop()
		}
		if err := telemetry.NewDBTracingPlugin(*o.tracing, zl).RegisterOtelGorm(db); err != nil {
			return nil, fmt.Errorf("failed to register database tracing: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}
