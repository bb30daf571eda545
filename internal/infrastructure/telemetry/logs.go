package telemetry

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapOTELCore creates a zapcore.Core that forwards entries at or above level
// to the OpenTelemetry log provider. A nil provider yields a no-op core.
func NewZapOTELCore(serviceName string, provider *sdklog.LoggerProvider, level zapcore.Level) zapcore.Core {
	if provider == nil {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(serviceName, otelzap.WithLoggerProvider(provider))
	if level == zapcore.DebugLevel {
		return core
	}
	return &levelFilterCore{Core: core, minLevel: level}
}

// levelFilterCore adds a minimum level to a core that has none.
type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), minLevel: c.minLevel}
}

// BridgeLogger returns a logger that writes to base and to the OTEL log provider.
// When log export is disabled base is returned unchanged.
func BridgeLogger(base *zap.Logger, p *Provider, level zapcore.Level) *zap.Logger {
	if p == nil || p.LoggerProvider() == nil {
		return base
	}
	otelCore := NewZapOTELCore(p.GetConfig().ServiceName, p.LoggerProvider(), level)
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelCore)
	}))
}
