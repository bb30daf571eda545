package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), logs
}

func sqlFunc(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("logs errors with sync context", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Warn)
		ctx, _ := WithScope(context.Background(), Scope{ShopID: 220011, Job: JobIngestion})

		l.Trace(ctx, time.Now(), sqlFunc("INSERT INTO raw_orders", 0), errors.New("deadlock detected"))

		entries := logs.FilterMessage("SQL Error").All()
		assert.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(220011), fields["shop_id"])
		assert.Equal(t, "ingestion", fields["job"])
	})

	t.Run("ignores record not found", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Warn)
		l.Trace(context.Background(), time.Now(), sqlFunc("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, logs.Len())
	})

	t.Run("warns on slow statements", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		l.Trace(context.Background(), time.Now().Add(-time.Second), sqlFunc("UPDATE raw_orders", 50), nil)

		assert.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	})

	t.Run("debug logs ordinary statements at info level", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Info)
		l.Trace(context.Background(), time.Now(), sqlFunc("SELECT * FROM normalized_orders", 1), nil)

		assert.Equal(t, 1, logs.FilterMessage("SQL Query").Len())
	})

	t.Run("truncates long statements", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Info, WithMaxSQLLength(16))
		ctx, _ := WithScope(context.Background(), Scope{TenantID: "tenant-a"})

		l.Trace(ctx, time.Now(), sqlFunc(`INSERT INTO "raw_orders" ("raw_payload") VALUES ('{"order_sn":"X"}')`, 1), nil)

		fields := logs.All()[0].ContextMap()
		assert.Equal(t, `INSERT INTO "raw...(52 bytes truncated)`, fields["sql"])
		assert.Equal(t, "tenant-a", fields["tenant_id"])
	})

	t.Run("record not found can be logged", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Warn, WithRecordNotFoundLogging(true))
		l.Trace(context.Background(), time.Now(), sqlFunc("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Equal(t, 1, logs.FilterMessage("SQL Error").Len())
	})

	t.Run("warn level skips fast statements", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Warn)
		called := false
		l.Trace(context.Background(), time.Now(), func() (string, int64) {
			called = true
			return "SELECT 1", 1
		}, nil)
		assert.Zero(t, logs.Len())
		assert.False(t, called)
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		l, logs := newObservedGormLogger(gormlogger.Silent)
		l.Trace(context.Background(), time.Now(), sqlFunc("SELECT 1", 0), errors.New("boom"))
		assert.Zero(t, logs.Len())
	})
}

func TestGormLogger_LogMode(t *testing.T) {
	l, logs := newObservedGormLogger(gormlogger.Silent)
	loud := l.LogMode(gormlogger.Info)

	loud.Info(context.Background(), "migrated %d tables", 3)
	l.Info(context.Background(), "suppressed")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "migrated 3 tables", logs.All()[0].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
