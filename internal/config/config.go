// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration // generous default, responses stream video files
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string

	// Rate limit settings. RPS <= 0 disables limiting entirely.
	RateLimitRPS   float64
	RateLimitBurst int

	// Session store settings.
	DBPath        string
	DBMaxConns    int
	DBBusyTimeout time.Duration

	// Workspace settings.
	WorkspaceRoot string

	// Job settings.
	MaxConcurrentJobs int64
	HeartbeatInterval time.Duration
	PipelineStepDelay time.Duration // paces the placeholder pipeline's progress updates

	// Cleanup settings. TTL falls back to the interval; a cron expression
	// overrides the interval entirely.
	SessionTTL      time.Duration
	CleanupInterval time.Duration
	CleanupSchedule string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("CLIPPER_PORT", 8080),
		ReadTimeout:         envDuration("CLIPPER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("CLIPPER_WRITE_TIMEOUT", 5*time.Minute),
		MaxRequestBodyBytes: int64(envInt("CLIPPER_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		CORSAllowedOrigins:  splitCSV(envStr("CLIPPER_CORS_ALLOWED_ORIGINS", "*")),
		RateLimitRPS:        envFloat("CLIPPER_RATE_LIMIT_RPS", 0),
		RateLimitBurst:      envInt("CLIPPER_RATE_LIMIT_BURST", 20),
		DBPath:              envStr("CLIPPER_DB_PATH", "data/sessions.db"),
		DBMaxConns:          envInt("CLIPPER_DB_MAX_CONNS", 8),
		DBBusyTimeout:       envDuration("CLIPPER_DB_BUSY_TIMEOUT", 5*time.Second),
		WorkspaceRoot:       envStr("CLIPPER_WORKSPACE_ROOT", "output"),
		MaxConcurrentJobs:   int64(envInt("CLIPPER_MAX_CONCURRENT_JOBS", 4)),
		HeartbeatInterval:   envDuration("CLIPPER_HEARTBEAT_INTERVAL", 30*time.Second),
		PipelineStepDelay:   envDuration("CLIPPER_PIPELINE_STEP_DELAY", 500*time.Millisecond),
		SessionTTL:          envDuration("CLIPPER_SESSION_TTL", 0),
		CleanupInterval:     envDuration("CLIPPER_CLEANUP_INTERVAL", 24*time.Hour),
		CleanupSchedule:     envStr("CLIPPER_CLEANUP_SCHEDULE", ""),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "clipper"),
		LogLevel:            envStr("CLIPPER_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: CLIPPER_DB_PATH is required")
	}
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("config: CLIPPER_WORKSPACE_ROOT is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: CLIPPER_PORT must be a valid port number")
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: CLIPPER_MAX_CONCURRENT_JOBS must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: CLIPPER_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("config: CLIPPER_RATE_LIMIT_BURST must be at least 1")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
