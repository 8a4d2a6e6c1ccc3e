package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`

	// DatabaseURL empty runs every store in memory (local development only).
	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA" envDefault:"palmyra"`
	Bootstrap   bool   `env:"DB_BOOTSTRAP" envDefault:"false"`

	AuthProvider string `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	BaseDomain   string `env:"BASE_DOMAIN" envDefault:"palmyra-agri.com"`

	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"memory"` // memory | redis
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int           `env:"REDIS_DB" envDefault:"0"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"1000"`
	Retries         int           `env:"ORCHESTRATOR_RETRIES" envDefault:"3"`
	CallTimeout     time.Duration `env:"ORCHESTRATOR_TIMEOUT" envDefault:"30s"`

	FunctionsBaseURL string `env:"FUNCTIONS_BASE_URL"`
	// FunctionsServiceUser is the identity outbound function calls run as.
	FunctionsServiceUser  string `env:"FUNCTIONS_SERVICE_USER" envDefault:"functions-service"`
	FunctionsServiceToken string `env:"FUNCTIONS_SERVICE_TOKEN"`

	SuspiciousThreshold int           `env:"SUSPICIOUS_THRESHOLD" envDefault:"10"`
	SuspiciousWindow    time.Duration `env:"SUSPICIOUS_WINDOW" envDefault:"5m"`
	BlockSuspicious     bool          `env:"BLOCK_SUSPICIOUS" envDefault:"false"`
	RecordGrants        bool          `env:"RECORD_GRANTS" envDefault:"false"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch c.AuthProvider {
	case "firebase", "dev":
	default:
		return fmt.Errorf("unsupported AUTH_PROVIDER %q (use firebase or dev)", c.AuthProvider)
	}
	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q (use memory or redis)", c.CacheBackend)
	}
	if c.FunctionsBaseURL != "" && c.FunctionsServiceUser == "" {
		return fmt.Errorf("FUNCTIONS_SERVICE_USER is required when FUNCTIONS_BASE_URL is set")
	}
	if c.DatabaseURL == "" && c.AuthProvider != "dev" {
		return fmt.Errorf("DATABASE_URL is required unless AUTH_PROVIDER=dev")
	}
	return nil
}

func (c config) inMemory() bool { return c.DatabaseURL == "" }
