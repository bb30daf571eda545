package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // Include query variables in spans (dev only)
	SlowQueryThresh time.Duration // Default: 200ms
	DBSystem        string        // Default: "postgresql"
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin wraps the otelgorm plugin with slow query marking.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin with the given configuration.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh == 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm registers otelgorm and the slow query callbacks on db.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("otel_timing:before_create", markQueryStart); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel_timing:before_query", markQueryStart); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel_timing:before_update", markQueryStart); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel_timing:before_delete", markQueryStart); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel_timing:before_raw", markQueryStart); err != nil {
		return err
	}

	if err := cb.Create().After("gorm:create").Register("otel_slow_query:create", p.afterQuery); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel_slow_query:query", p.afterQuery); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel_slow_query:update", p.afterQuery); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel_slow_query:delete", p.afterQuery); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel_slow_query:raw", p.afterQuery)
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

// afterQuery annotates the current span with row counts, errors and slow query markers.
func (p *DBTracingPlugin) afterQuery(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	startTime, ok := ctx.Value(queryStartTimeKey).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(startTime); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		p.logger.Warn("slow query",
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", p.config.SlowQueryThresh),
		)
	}
}
