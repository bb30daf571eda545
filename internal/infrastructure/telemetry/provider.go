// Package telemetry provides OpenTelemetry tracing, metrics and the zap log bridge.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration // Default: 60s
	LogsEnabled       bool
}

// Provider owns the trace, metric and log SDK providers.
// Any of them may be nil when the corresponding signal is disabled,
// in which case the global no-op implementation is used.
type Provider struct {
	config Config
	logger *zap.Logger

	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	logs    *sdklog.LoggerProvider
}

// NewProvider creates the exporters for every enabled signal and installs
// them as the OpenTelemetry globals.
func NewProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	p := &Provider{config: cfg, logger: logger}

	if !cfg.Enabled {
		logger.Info("Telemetry disabled, using no-op providers")
		return p, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	if err := p.setupTraces(ctx, res); err != nil {
		return nil, err
	}
	if cfg.MetricsEnabled {
		if err := p.setupMetrics(ctx, res); err != nil {
			return nil, errors.Join(err, p.Shutdown(ctx))
		}
	}
	if cfg.LogsEnabled {
		if err := p.setupLogs(ctx, res); err != nil {
			return nil, errors.Join(err, p.Shutdown(ctx))
		}
	}

	logger.Info("OpenTelemetry initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("metrics", cfg.MetricsEnabled),
		zap.Bool("logs", cfg.LogsEnabled),
	)
	return p, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func (p *Provider) setupTraces(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.CollectorEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	p.traces = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(p.config.SamplingRatio)),
	)
	otel.SetTracerProvider(p.traces)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	case ratio <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func (p *Provider) setupMetrics(ctx context.Context, res *resource.Resource) error {
	interval := p.config.MetricsInterval
	if interval == 0 {
		interval = 60 * time.Second
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.CollectorEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}

	p.metrics = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(p.metrics)
	return nil
}

func (p *Provider) setupLogs(ctx context.Context, res *resource.Resource) error {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(p.config.CollectorEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}

	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(p.logs)
	return nil
}

// Meter returns a named meter, falling back to the global provider.
func (p *Provider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if p.metrics == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return p.metrics.Meter(name, opts...)
}

// LoggerProvider returns the SDK log provider, or nil when log export is disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// IsEnabled reports whether traces are exported.
func (p *Provider) IsEnabled() bool {
	return p.traces != nil
}

// GetConfig returns a copy of the telemetry configuration.
func (p *Provider) GetConfig() Config {
	return p.config
}

// Shutdown flushes and stops every provider. It is safe to call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if p.traces != nil {
		if err := p.traces.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
		p.traces = nil
	}
	if p.metrics != nil {
		if err := p.metrics.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
		p.metrics = nil
	}
	if p.logs != nil {
		if err := p.logs.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown logger provider: %w", err))
		}
		p.logs = nil
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.Error("Error shutting down telemetry", zap.Error(err))
		return err
	}
	return nil
}
