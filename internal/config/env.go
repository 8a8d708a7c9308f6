package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ResolverConfig tunes the page resolution dispatcher.
type ResolverConfig struct {
	BatchConcurrency int
	ResolveTimeout   time.Duration
	FallbackWidth    float64
	FallbackHeight   float64
}

// FetchConfig tunes range fetching from remote sources.
type FetchConfig struct {
	HTTPTimeout time.Duration
	Retries     int
}

// CacheConfig defines the optional Redis geometry cache.
type CacheConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// ServerConfig defines the HTTP front-end.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	MaxUploadMB     int
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Resolver ResolverConfig
	Fetch    FetchConfig
	Cache    CacheConfig
	Server   ServerConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/lazydoc.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_lazydoc",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Resolver = ResolverConfig{
		BatchConcurrency: parseInt(getEnv("RESOLVE_CONCURRENCY", "4"), 4),
		ResolveTimeout:   parseDuration(getEnv("RESOLVE_TIMEOUT", "30s"), 30*time.Second),
		FallbackWidth:    parseFloat(getEnv("FALLBACK_PAGE_WIDTH", "595"), 595),
		FallbackHeight:   parseFloat(getEnv("FALLBACK_PAGE_HEIGHT", "842"), 842),
	}

	cfg.Fetch = FetchConfig{
		HTTPTimeout: parseDuration(getEnv("FETCH_HTTP_TIMEOUT", "60s"), 60*time.Second),
		Retries:     parseInt(getEnv("FETCH_RETRIES", "2"), 2),
	}

	cfg.Cache = CacheConfig{
		Enabled:  parseBool(getEnv("GEOMETRY_CACHE_ENABLED", "0")),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		TTL:      parseDuration(getEnv("GEOMETRY_CACHE_TTL", "24h"), 24*time.Hour),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		MaxUploadMB:     parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
