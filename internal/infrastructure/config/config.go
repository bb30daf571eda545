package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Marketplace MarketplaceConfig
	Sync        SyncConfig
	Scheduler   SchedulerConfig
	Storage     StorageConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings.
// An empty Host disables Redis and the refresh lock falls back to in-process locking.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds settings for the bearer tokens that protect the trigger endpoints
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	// Trigger endpoints are limited per tenant, the OAuth callback per client IP
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// MarketplaceConfig holds the open platform application credentials
type MarketplaceConfig struct {
	PartnerID      int64
	PartnerKey     string
	APIBaseURL     string
	Sandbox        bool
	TimeoutSeconds int
	OptionalFields []string // response_optional_fields for order detail
}

// SyncConfig holds ingestion and normalization tuning
type SyncConfig struct {
	Lookback             time.Duration // default listing window when a shop was never ingested
	Overlap              time.Duration // incremental windows start this much before the last window end
	TimeRangeField       string        // create_time or update_time
	StatusFilter         string        // marketplace order status, empty for all
	PageSize             int
	DetailBatchSize      int
	DetailRetryAttempts  int
	DetailRetryBaseDelay time.Duration
	NormalizeBatchSize   int
	RefreshMargin        time.Duration
	RefreshLockTTL       time.Duration
}

// SchedulerConfig holds sync scheduler configuration
type SchedulerConfig struct {
	Enabled               bool
	IngestionInterval     time.Duration
	NormalizationInterval time.Duration
	MaxConcurrentShops    int
	JobTimeout            time.Duration
}

// StorageConfig holds the S3-compatible raw payload archive configuration
type StorageConfig struct {
	RawArchiveEnabled bool
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool
	Prefix            string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	LogsEnabled       bool // Export zap logs through the OTLP log bridge
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []string // empty: cpu, inuse_objects, inuse_space
	SpanProfiles      bool     // link CPU samples to trace spans
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ORDERSYNC_ prefix (e.g., ORDERSYNC_MARKETPLACE_PARTNER_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Enable environment variable override
	v.SetEnvPrefix("ORDERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Marketplace: MarketplaceConfig{
			PartnerID:      v.GetInt64("marketplace.partner_id"),
			PartnerKey:     v.GetString("marketplace.partner_key"),
			APIBaseURL:     v.GetString("marketplace.api_base_url"),
			Sandbox:        v.GetBool("marketplace.sandbox"),
			TimeoutSeconds: v.GetInt("marketplace.timeout_seconds"),
			OptionalFields: v.GetStringSlice("marketplace.optional_fields"),
		},
		Sync: SyncConfig{
			Lookback:             v.GetDuration("sync.lookback"),
			Overlap:              v.GetDuration("sync.overlap"),
			TimeRangeField:       v.GetString("sync.time_range_field"),
			StatusFilter:         v.GetString("sync.status_filter"),
			PageSize:             v.GetInt("sync.page_size"),
			DetailBatchSize:      v.GetInt("sync.detail_batch_size"),
			DetailRetryAttempts:  v.GetInt("sync.detail_retry_attempts"),
			DetailRetryBaseDelay: v.GetDuration("sync.detail_retry_base_delay"),
			NormalizeBatchSize:   v.GetInt("sync.normalize_batch_size"),
			RefreshMargin:        v.GetDuration("sync.refresh_margin"),
			RefreshLockTTL:       v.GetDuration("sync.refresh_lock_ttl"),
		},
		Scheduler: SchedulerConfig{
			Enabled:               v.GetBool("scheduler.enabled"),
			IngestionInterval:     v.GetDuration("scheduler.ingestion_interval"),
			NormalizationInterval: v.GetDuration("scheduler.normalization_interval"),
			MaxConcurrentShops:    v.GetInt("scheduler.max_concurrent_shops"),
			JobTimeout:            v.GetDuration("scheduler.job_timeout"),
		},
		Storage: StorageConfig{
			RawArchiveEnabled: v.GetBool("storage.raw_archive_enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			Prefix:            v.GetString("storage.prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ordersync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ordersync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "ordersync"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// ingestion triggers run synchronously
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 64 << 10
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 30
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Marketplace.TimeoutSeconds == 0 {
		cfg.Marketplace.TimeoutSeconds = 30
	}
	// Sync defaults
	if cfg.Sync.Lookback == 0 {
		cfg.Sync.Lookback = 7 * 24 * time.Hour
	}
	if cfg.Sync.Overlap == 0 {
		cfg.Sync.Overlap = 10 * time.Minute
	}
	if cfg.Sync.TimeRangeField == "" {
		cfg.Sync.TimeRangeField = "create_time"
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 100
	}
	if cfg.Sync.DetailBatchSize == 0 {
		cfg.Sync.DetailBatchSize = 50
	}
	if cfg.Sync.DetailRetryAttempts == 0 {
		cfg.Sync.DetailRetryAttempts = 3
	}
	if cfg.Sync.DetailRetryBaseDelay == 0 {
		cfg.Sync.DetailRetryBaseDelay = time.Second
	}
	if cfg.Sync.NormalizeBatchSize == 0 {
		cfg.Sync.NormalizeBatchSize = 500
	}
	if cfg.Sync.RefreshMargin == 0 {
		cfg.Sync.RefreshMargin = 5 * time.Minute
	}
	if cfg.Sync.RefreshLockTTL == 0 {
		cfg.Sync.RefreshLockTTL = 30 * time.Second
	}
	// Scheduler defaults
	if cfg.Scheduler.IngestionInterval == 0 {
		cfg.Scheduler.IngestionInterval = time.Hour
	}
	if cfg.Scheduler.NormalizationInterval == 0 {
		cfg.Scheduler.NormalizationInterval = 5 * time.Minute
	}
	if cfg.Scheduler.MaxConcurrentShops == 0 {
		cfg.Scheduler.MaxConcurrentShops = 4
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	// Storage defaults
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "raw-orders"
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ordersync"
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// IsProduction reports whether app.env is production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	// Sync settings (all environments)
	if c.Sync.TimeRangeField != "create_time" && c.Sync.TimeRangeField != "update_time" {
		return fmt.Errorf("sync.time_range_field must be create_time or update_time, got %q", c.Sync.TimeRangeField)
	}
	if c.Sync.DetailBatchSize < 1 || c.Sync.DetailBatchSize > 50 {
		return fmt.Errorf("sync.detail_batch_size must be between 1 and 50, got %d", c.Sync.DetailBatchSize)
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 100 {
		return fmt.Errorf("sync.page_size must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.DetailRetryAttempts < 0 {
		return fmt.Errorf("sync.detail_retry_attempts cannot be negative")
	}
	if c.Sync.Overlap >= c.Sync.Lookback {
		return fmt.Errorf("sync.overlap (%s) must be shorter than sync.lookback (%s)", c.Sync.Overlap, c.Sync.Lookback)
	}
	if c.Scheduler.MaxConcurrentShops <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_shops must be positive")
	}
	if c.HTTP.RateLimitEnabled && (c.HTTP.RateLimitRequests <= 0 || c.HTTP.RateLimitWindow <= 0) {
		return fmt.Errorf("http.rate_limit_requests and http.rate_limit_window must be positive when rate limiting is enabled")
	}
	if c.Storage.RawArchiveEnabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.raw_archive_enabled is true")
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling.enabled is true")
	}

	// Production-specific validations
	if c.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Marketplace.PartnerID <= 0 {
			return fmt.Errorf("marketplace.partner_id is required in production")
		}
		if c.Marketplace.PartnerKey == "" {
			return fmt.Errorf("marketplace.partner_key is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		// Database tracing: full SQL logging is a security risk in production
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address, or empty when Redis is not configured
func (r *RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
