package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds process configuration.
type Config struct {
	Port        string
	LogLevel    string
	LogFormat   string
	Environment string

	// EvidenceSource is http, sql or static.
	EvidenceSource   string
	EvidenceAPIURL   string
	EvidenceAPIToken string
	EvidenceCacheTTL time.Duration
	PollInterval     time.Duration

	DatabaseDriver string
	DatabaseURL    string
	CompanyID      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTelEnabled  bool
	OTLPEndpoint string

	CatalogDir string

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load loads configuration from environment variables. Unparsable numbers
// and durations load as -1 so Validate reports them.
func Load() *Config {
	return &Config{
		Port:        getenv("PORT", "8080"),
		LogLevel:    getenv("LOG_LEVEL", "INFO"),
		LogFormat:   getenv("LOG_FORMAT", "json"),
		Environment: getenv("VIGILAERO_ENV", "development"),

		EvidenceSource:   getenv("EVIDENCE_SOURCE", "http"),
		EvidenceAPIURL:   getenv("EVIDENCE_API_URL", "http://127.0.0.1:8010"),
		EvidenceAPIToken: os.Getenv("EVIDENCE_API_TOKEN"),
		EvidenceCacheTTL: durationEnv("EVIDENCE_CACHE_TTL", 30*time.Second),
		PollInterval:     durationEnv("POLL_INTERVAL", 15*time.Second),

		DatabaseDriver: getenv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getenv("DATABASE_URL", "data/vigilaero.db"),
		CompanyID:      getenv("COMPANY_ID", "default"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		CatalogDir: os.Getenv("CATALOG_DIR"),

		RateLimitRPS:   floatEnv("RATE_LIMIT_RPS", 20),
		RateLimitBurst: intEnv("RATE_LIMIT_BURST", 40),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.EvidenceSource {
	case "http", "sql", "static":
	default:
		return fmt.Errorf("config: unknown EVIDENCE_SOURCE %q", c.EvidenceSource)
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.EvidenceSource == "http" && c.EvidenceAPIURL == "" {
		return fmt.Errorf("config: EVIDENCE_API_URL is required for the http source")
	}
	if c.EvidenceSource == "sql" && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required for the sql source")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.EvidenceCacheTTL < 0 {
		return fmt.Errorf("config: EVIDENCE_CACHE_TTL must not be negative, got %s", c.EvidenceCacheTTL)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("config: REDIS_DB must not be negative")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return -1
	}
	return d
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return -1
	}
	return f
}
