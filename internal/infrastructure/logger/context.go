package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

type scopeKey struct{}

// Job names carried in Scope.Job
const (
	JobIngestion     = "ingestion"
	JobNormalization = "normalization"
	JobTokenRefresh  = "token_refresh"
)

// Scope identifies the unit of work a context belongs to: the HTTP request,
// the tenant and shop being synced and the sync job. Zero fields are unset.
type Scope struct {
	RequestID string
	TenantID  string
	ShopID    int64
	Job       string
}

// merge returns s with the non-zero fields of o applied on top
func (s Scope) merge(o Scope) Scope {
	if o.RequestID != "" {
		s.RequestID = o.RequestID
	}
	if o.TenantID != "" {
		s.TenantID = o.TenantID
	}
	if o.ShopID != 0 {
		s.ShopID = o.ShopID
	}
	if o.Job != "" {
		s.Job = o.Job
	}
	return s
}

// Fields returns the set fields as zap fields
func (s Scope) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if s.RequestID != "" {
		fields = append(fields, zap.String("request_id", s.RequestID))
	}
	if s.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", s.TenantID))
	}
	if s.ShopID != 0 {
		fields = append(fields, zap.Int64("shop_id", s.ShopID))
	}
	if s.Job != "" {
		fields = append(fields, zap.String("job", s.Job))
	}
	return fields
}

// WithContext stores logger in ctx
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithScope merges s into the scope of ctx. The context logger gains only
// the newly set fields, so nested calls never repeat a key.
func WithScope(ctx context.Context, s Scope) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, scopeKey{}, ScopeFrom(ctx).merge(s))
	l := FromContext(ctx).With(s.Fields()...)
	return WithContext(ctx, l), l
}

// ScopeFrom returns the scope of ctx
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// ContextLogger logs with the trace IDs and scope of a context.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
	// scoped is set when logger came from ctx and already carries the scope
	scoped bool
}

// L returns a ContextLogger over the logger stored in ctx.
//
//	logger.L(ctx).Info("Batch stored", zap.Int("rows", n))
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx), scoped: true}
}

// WithLogger returns a ContextLogger over an explicit logger, typically a
// service's own named logger, adding the scope of ctx to each entry.
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) entry() *zap.Logger {
	fields := traceFields(cl.ctx)
	if !cl.scoped {
		fields = append(fields, ScopeFrom(cl.ctx).Fields()...)
	}
	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// With returns a child ContextLogger with extra fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...), scoped: cl.scoped}
}

// Debug logs at debug level
func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.entry().Debug(msg, fields...) }

// Info logs at info level
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) { cl.entry().Info(msg, fields...) }

// Warn logs at warn level
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) { cl.entry().Warn(msg, fields...) }

// Error logs at error level
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.entry().Error(msg, fields...) }
