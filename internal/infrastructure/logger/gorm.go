package logger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultMaxSQLLength caps logged statements. Raw order upserts inline whole
// jsonb payloads, so an untruncated batch insert can run to megabytes.
const DefaultMaxSQLLength = 2048

// GormLogger implements GORM's logger interface using zap.
// Statement logs carry the request and sync-job fields found in the context.
type GormLogger struct {
	logger        *zap.Logger
	logLevel      gormlogger.LogLevel
	slowThreshold time.Duration
	maxSQLLength  int
	logNotFound   bool
}

// GormLoggerOption is a function that configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the slow query threshold. Zero disables slow query warnings.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// WithMaxSQLLength sets how many bytes of a statement are logged. Zero logs it whole.
func WithMaxSQLLength(n int) GormLoggerOption {
	return func(l *GormLogger) {
		l.maxSQLLength = n
	}
}

// WithRecordNotFoundLogging logs gorm.ErrRecordNotFound as an error.
// Lookups of unknown shops and orders are expected, so it is off by default.
func WithRecordNotFoundLogging(enabled bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.logNotFound = enabled
	}
}

// NewGormLogger creates a new GORM logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:        zapLogger.Named("gorm"),
		logLevel:      level,
		slowThreshold: 200 * time.Millisecond,
		maxSQLLength:  DefaultMaxSQLLength,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.logger.Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.logger.Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.logger.Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface. Errors log at error level, slow
// statements at warn and everything else at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	isErr := err != nil && l.logLevel >= gormlogger.Error &&
		(l.logNotFound || !errors.Is(err, gormlogger.ErrRecordNotFound))
	isSlow := l.slowThreshold > 0 && elapsed > l.slowThreshold && l.logLevel >= gormlogger.Warn
	if !isErr && !isSlow && l.logLevel < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := append(l.contextFields(ctx),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", l.truncate(sql)),
	)

	switch {
	case isErr:
		l.logger.Error("SQL Error", append(fields, zap.Error(err))...)
	case isSlow:
		l.logger.Warn("Slow SQL", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	default:
		l.logger.Debug("SQL Query", fields...)
	}
}

func (l *GormLogger) contextFields(ctx context.Context) []zap.Field {
	return append(ScopeFrom(ctx).Fields(), traceFields(ctx)...)
}

func (l *GormLogger) truncate(sql string) string {
	if l.maxSQLLength <= 0 || len(sql) <= l.maxSQLLength {
		return sql
	}
	return sql[:l.maxSQLLength] + "...(" + strconv.Itoa(len(sql)-l.maxSQLLength) + " bytes truncated)"
}

// MapGormLogLevel maps string log level to GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
