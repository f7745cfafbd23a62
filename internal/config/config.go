package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the psymarket server.
type Config struct {
	Port     int
	Version  string
	LogLevel string
	DataDir  string
	// DatabaseURL selects the PostgreSQL run store when set.
	DatabaseURL string

	Retention RetentionConfig
	Providers ProvidersConfig
	Pipeline  PipelineConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Notify    NotifyConfig
}

type ProvidersConfig struct {
	// File optionally replaces the built-in provider table (YAML).
	File      string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

type PipelineConfig struct {
	QualityThreshold     float64
	MinReportLength      int
	MaxQualityIterations int
	PhaseRetries         int
	PhaseRetryDelay      time.Duration
}

type RetentionConfig struct {
	// RunTTL bounds how long finished analyses are kept. Zero keeps them forever.
	RunTTL   time.Duration
	Interval time.Duration
	// ArchiveDir receives expired runs as JSONL before they are purged.
	ArchiveDir string
	Compress   bool
	// S3Bucket takes precedence over ArchiveDir.
	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Version      string
	// SampleRatio is the fraction of new traces recorded, in [0, 1].
	SampleRatio float64
}

type AuthConfig struct {
	// APIKeys enables bearer / X-API-Key auth on /api/v1 when non-empty.
	APIKeys []string
}

type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	version := envStr("PSYMARKET_VERSION", "0.4.0")
	return &Config{
		Port:        envInt("PORT", 8080),
		Version:     version,
		LogLevel:    envStr("LOG_LEVEL", "info"),
		DataDir:     envStr("DATA_DIR", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		Retention: RetentionConfig{
			RunTTL:     envDuration("RUN_TTL", 7*24*time.Hour),
			Interval:   envDuration("RETENTION_INTERVAL", time.Hour),
			ArchiveDir: envStr("ARCHIVE_DIR", ""),
			Compress:   envBool("ARCHIVE_COMPRESS", true),
			S3Bucket:   envStr("ARCHIVE_S3_BUCKET", ""),
			S3Prefix:   envStr("ARCHIVE_S3_PREFIX", "psymarket"),
			S3Region:   envStr("ARCHIVE_S3_REGION", ""),
			S3Endpoint: envStr("ARCHIVE_S3_ENDPOINT", ""),
		},
		Providers: ProvidersConfig{
			File:      envStr("PROVIDERS_FILE", ""),
			Timeout:   envDuration("PROVIDER_TIMEOUT", 120*time.Second),
			RateLimit: envFloat("RATE_LIMIT_RPS", 2),
			Burst:     envInt("RATE_LIMIT_BURST", 4),
		},
		Pipeline: PipelineConfig{
			QualityThreshold:     envFloat("QUALITY_THRESHOLD", 85),
			MinReportLength:      envInt("MIN_REPORT_LENGTH", 25000),
			MaxQualityIterations: envInt("MAX_QUALITY_ITERATIONS", 3),
			PhaseRetries:         envInt("PHASE_RETRIES", 0),
			PhaseRetryDelay:      envDuration("PHASE_RETRY_DELAY", 2*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "psymarket"),
			SampleRatio:  envFloat("OTEL_SAMPLE_RATIO", 1),
			Version:      version,
		},
		Auth: AuthConfig{
			APIKeys: envList("API_KEYS"),
		},
		Notify: NotifyConfig{
			WebhookURL:    envStr("NOTIFY_WEBHOOK_URL", ""),
			WebhookSecret: envStr("NOTIFY_WEBHOOK_SECRET", ""),
		},
	}
}

// EnvSecrets resolves provider credentials from the process environment
// on every lookup, so keys added or removed at runtime take effect on the
// next provider attempt.
type EnvSecrets struct{}

// Lookup implements contracts.SecretSource.
func (EnvSecrets) Lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
