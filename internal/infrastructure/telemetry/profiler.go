package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Profiling label keys attached to sync work
const (
	ProfilingLabelJob      = "job"
	ProfilingLabelTenantID = "tenant_id"
)

// maxLabelValueLength caps label values to keep profile series bounded
const maxLabelValueLength = 128

// ProfilerConfig holds Pyroscope continuous profiling configuration.
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. "http://pyroscope:4040"
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string

	// ProfileTypes names the collected profiles: cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex_count,
	// mutex_duration, block_count, block_duration. Empty means cpu and
	// the two in-use heap profiles.
	ProfileTypes []string

	// SpanProfiles links CPU samples to trace spans. Needs telemetry enabled.
	SpanProfiles bool

	MutexProfileFraction int // default 5
	BlockProfileRate     int // default 5
}

var profileTypesByName = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

var defaultProfileTypes = []string{"cpu", "inuse_objects", "inuse_space"}

// Profiler wraps the Pyroscope profiler with lifecycle management.
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig
	mu       sync.Mutex
	stopped  bool
}

// NewProfiler creates and starts a Pyroscope profiler.
// A disabled config yields a no-op profiler.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Profiler{logger: logger, config: cfg}

	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled, using no-op profiler")
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, fmt.Errorf("profiler application name is required when profiling is enabled")
	}

	profileTypes, err := resolveProfileTypes(cfg.ProfileTypes)
	if err != nil {
		return nil, err
	}
	configureRuntimeProfiling(profileTypes, cfg, logger)

	tags := map[string]string{}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		tags["hostname"] = hostname
	}

	pyroscopeCfg := pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          newPyroscopeLogger(logger),
		Tags:            tags,
		ProfileTypes:    profileTypes,
	}
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPassword != "" {
		pyroscopeCfg.BasicAuthUser = cfg.BasicAuthUser
		pyroscopeCfg.BasicAuthPassword = cfg.BasicAuthPassword
	}

	profiler, err := pyroscope.Start(pyroscopeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	p.profiler = profiler

	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
		zap.Int("profile_types", len(profileTypes)),
	)
	return p, nil
}

func resolveProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	if len(names) == 0 {
		names = defaultProfileTypes
	}
	types := make([]pyroscope.ProfileType, 0, len(names))
	for _, name := range names {
		t, ok := profileTypesByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

func configureRuntimeProfiling(types []pyroscope.ProfileType, cfg ProfilerConfig, logger *zap.Logger) {
	var mutex, block bool
	for _, t := range types {
		switch t {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			mutex = true
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			block = true
		}
	}
	if mutex {
		fraction := cfg.MutexProfileFraction
		if fraction <= 0 {
			fraction = 5
		}
		runtime.SetMutexProfileFraction(fraction)
		logger.Debug("Mutex profiling enabled", zap.Int("fraction", fraction))
	}
	if block {
		rate := cfg.BlockProfileRate
		if rate <= 0 {
			rate = 5
		}
		runtime.SetBlockProfileRate(rate)
		logger.Debug("Block profiling enabled", zap.Int("rate", rate))
	}
}

// Stop flushes pending profiles. It is safe to call more than once.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.profiler == nil {
		p.stopped = true
		return nil
	}
	p.stopped = true

	if err := p.profiler.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	p.logger.Info("Pyroscope profiler stopped")
	return nil
}

// IsEnabled reports whether profiles are being collected
func (p *Profiler) IsEnabled() bool {
	return p.config.Enabled && p.profiler != nil
}

// EnableSpanProfiles wraps the installed tracer provider so every span
// carries its span_id as a pprof label. It is a no-op while tracing or
// profiling is off.
func (p *Provider) EnableSpanProfiles(profiler *Profiler) bool {
	if p.traces == nil || profiler == nil || !profiler.IsEnabled() {
		return false
	}
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(p.traces))
	p.logger.Info("Span profiles enabled", zap.String("service_name", p.config.ServiceName))
	return true
}

// WithJobLabels runs fn with the sync job and tenant attached as profiling
// labels, so profiles can be split per job in Pyroscope.
func WithJobLabels(ctx context.Context, job, tenantID string, fn func(context.Context)) {
	pairs := labelPairs(map[string]string{
		ProfilingLabelJob:      job,
		ProfilingLabelTenantID: tenantID,
	})
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// labelPairs drops empty entries, truncates long values and returns
// key/value pairs in key order
func labelPairs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if k != "" && v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > maxLabelValueLength {
			v = v[:maxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}

// pyroscopeLogger adapts zap.Logger to pyroscope.Logger
type pyroscopeLogger struct {
	logger *zap.SugaredLogger
}

func newPyroscopeLogger(logger *zap.Logger) pyroscope.Logger {
	return &pyroscopeLogger{logger: logger.Named("pyroscope").Sugar()}
}

func (l *pyroscopeLogger) Infof(format string, args ...any)  { l.logger.Infof(format, args...) }
func (l *pyroscopeLogger) Debugf(format string, args ...any) { l.logger.Debugf(format, args...) }
func (l *pyroscopeLogger) Errorf(format string, args ...any) { l.logger.Errorf(format, args...) }
