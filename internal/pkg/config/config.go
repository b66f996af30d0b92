package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresURL   string `env:"POSTGRES_URL,required,notEmpty"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	QuotaBackend string `env:"QUOTA_BACKEND" envDefault:"postgres"` // postgres, redis or memory
	QuotaLimits  string `env:"QUOTA_LIMITS" envDefault:"Essential=10000,Pro=5000,Enterprise=1000"`
	QuotaService string `env:"SYNC_QUOTA_SERVICE" envDefault:"Enterprise"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	GoogleAPIKey     string        `env:"GOOGLE_API_KEY"`
	GoogleListID     string        `env:"GOOGLE_LIST_ID"`
	PlacesBaseURL    string        `env:"PLACES_BASE_URL" envDefault:"https://places.googleapis.com"`
	PlacesRPS        float64       `env:"PLACES_RPS" envDefault:"5"`
	PlacesLanguage   string        `env:"PLACES_LANGUAGE" envDefault:"pt-BR"`
	PlacesRegionHint string        `env:"PLACES_REGION_HINT" envDefault:"Brazil"`
	PlacesTimeout    time.Duration `env:"PLACES_TIMEOUT" envDefault:"15s"`

	SyncWorkers    int           `env:"SYNC_WORKERS" envDefault:"1"`
	SyncInterval   time.Duration `env:"SYNC_INTERVAL" envDefault:"24h"`
	SyncImportFile string        `env:"SYNC_IMPORT_FILE"`
	SyncPrune      bool          `env:"SYNC_PRUNE" envDefault:"false"`

	SpoolDir      string `env:"SPOOL_DIR" envDefault:"./spool"`
	SpoolMaxBytes int64  `env:"SPOOL_MAX_BYTES" envDefault:"104857600"` // 100MB
	MetricsAddr   string `env:"METRICS_ADDR" envDefault:":9091"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Limits parses QuotaLimits.
func (c *Config) Limits() (domain.QuotaLimits, error) {
	return domain.ParseQuotaLimits(c.QuotaLimits)
}

func (c *Config) validate() error {
	switch c.QuotaBackend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("QUOTA_BACKEND must be postgres, redis or memory, got %q", c.QuotaBackend)
	}
	if c.SyncWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", c.SyncWorkers)
	}
	if c.PlacesRPS <= 0 {
		return fmt.Errorf("PLACES_RPS must be positive, got %v", c.PlacesRPS)
	}
	if _, err := c.Limits(); err != nil {
		return fmt.Errorf("QUOTA_LIMITS: %w", err)
	}
	return nil
}
