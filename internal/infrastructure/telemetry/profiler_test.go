package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{ServerAddress: "http://localhost:4040"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_RejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProfilerConfig
		wantErr string
	}{
		{"missing server", ProfilerConfig{Enabled: true, ApplicationName: "ordersync"}, "server address is required"},
		{"missing application", ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, "application name is required"},
		{"unknown profile type", ProfilerConfig{
			Enabled: true, ServerAddress: "http://localhost:4040", ApplicationName: "ordersync",
			ProfileTypes: []string{"cpu", "heap"},
		}, `unknown profile type "heap"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProfiler(tt.cfg, zaptest.NewLogger(t))
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveProfileTypes(t *testing.T) {
	types, err := resolveProfileTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileInuseObjects, pyroscope.ProfileInuseSpace}, types)

	types, err = resolveProfileTypes([]string{" Goroutines ", "block_count"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileGoroutines, pyroscope.ProfileBlockCount}, types)
}

func TestWithJobLabels(t *testing.T) {
	var job, tenant string
	var hasTenant bool
	WithJobLabels(context.Background(), "ingestion", "t-1", func(ctx context.Context) {
		job, _ = pprof.Label(ctx, ProfilingLabelJob)
		tenant, hasTenant = pprof.Label(ctx, ProfilingLabelTenantID)
	})
	assert.Equal(t, "ingestion", job)
	assert.True(t, hasTenant)
	assert.Equal(t, "t-1", tenant)

	called := false
	WithJobLabels(context.Background(), "", "", func(ctx context.Context) {
		called = true
		_, ok := pprof.Label(ctx, ProfilingLabelJob)
		assert.False(t, ok)
	})
	assert.True(t, called)
}

func TestLabelPairs(t *testing.T) {
	pairs := labelPairs(map[string]string{
		"tenant_id": strings.Repeat("x", 200),
		"job":       "normalization",
		"empty":     "",
	})
	require.Len(t, pairs, 4)
	assert.Equal(t, "job", pairs[0])
	assert.Equal(t, "normalization", pairs[1])
	assert.Equal(t, "tenant_id", pairs[2])
	assert.Len(t, pairs[3], maxLabelValueLength)
}

func TestEnableSpanProfiles_NoopWithoutTracingOrProfiler(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	profiler, err := NewProfiler(ProfilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, provider.EnableSpanProfiles(profiler))
	assert.False(t, provider.EnableSpanProfiles(nil))
}
