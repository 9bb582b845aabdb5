package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a YAML deployment profile. Zero values leave the environment's
// setting in place.
type Profile struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	Environment string `yaml:"environment"`
	CatalogDir  string `yaml:"catalog_dir"`

	Evidence  EvidenceProfile  `yaml:"evidence"`
	Database  DatabaseProfile  `yaml:"database"`
	Redis     RedisProfile     `yaml:"redis"`
	Telemetry TelemetryProfile `yaml:"telemetry"`
	RateLimit RateLimitProfile `yaml:"rate_limit"`
}

// EvidenceProfile selects and tunes the evidence source.
type EvidenceProfile struct {
	Source       string        `yaml:"source"` // "http" | "sql" | "static"
	APIURL       string        `yaml:"api_url"`
	APIToken     string        `yaml:"api_token"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DatabaseProfile points at the evidence registry database.
type DatabaseProfile struct {
	Driver    string `yaml:"driver"`
	URL       string `yaml:"url"`
	CompanyID string `yaml:"company_id"`
}

// RedisProfile configures the shared evidence cache.
type RedisProfile struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelemetryProfile configures OpenTelemetry export.
type TelemetryProfile struct {
	Enabled  *bool  `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// RateLimitProfile configures per-client API limits.
type RateLimitProfile struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LoadFile loads environment configuration and overlays the YAML profile at
// path on top of it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	cfg := Load()
	p.apply(cfg)
	return cfg, nil
}

func (p Profile) apply(c *Config) {
	setString(&c.Port, p.Port)
	setString(&c.LogLevel, p.LogLevel)
	setString(&c.LogFormat, p.LogFormat)
	setString(&c.Environment, p.Environment)
	setString(&c.CatalogDir, p.CatalogDir)

	setString(&c.EvidenceSource, p.Evidence.Source)
	setString(&c.EvidenceAPIURL, p.Evidence.APIURL)
	setString(&c.EvidenceAPIToken, p.Evidence.APIToken)
	if p.Evidence.CacheTTL != 0 {
		c.EvidenceCacheTTL = p.Evidence.CacheTTL
	}
	if p.Evidence.PollInterval != 0 {
		c.PollInterval = p.Evidence.PollInterval
	}

	setString(&c.DatabaseDriver, p.Database.Driver)
	setString(&c.DatabaseURL, p.Database.URL)
	setString(&c.CompanyID, p.Database.CompanyID)

	setString(&c.RedisAddr, p.Redis.Addr)
	setString(&c.RedisPassword, p.Redis.Password)
	if p.Redis.DB != 0 {
		c.RedisDB = p.Redis.DB
	}

	if p.Telemetry.Enabled != nil {
		c.OTelEnabled = *p.Telemetry.Enabled
	}
	setString(&c.OTLPEndpoint, p.Telemetry.Endpoint)

	if p.RateLimit.RPS != 0 {
		c.RateLimitRPS = p.RateLimit.RPS
	}
	if p.RateLimit.Burst != 0 {
		c.RateLimitBurst = p.RateLimit.Burst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
