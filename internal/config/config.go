package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// StoreConfig selects and locates the persistent store.
type StoreConfig struct {
	Kind        string `env:"LEDGER_STORE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"LEDGER_SQLITE_PATH" envDefault:"data/ledger.db"`
}

type APIConfig struct {
	StoreConfig

	Addr        string        `env:"REALMS_API_ADDR" envDefault:":8080"`
	Port        string        `env:"PORT"`
	AdminSecret string        `env:"LEDGER_ADMIN_SECRET"`
	CatalogPath string        `env:"LEDGER_CATALOG_PATH"`
	JournalDir  string        `env:"LEDGER_JOURNAL_DIR"`
	OpTimeout   time.Duration `env:"LEDGER_OP_TIMEOUT" envDefault:"5s"`
	AutoMigrate bool          `env:"LEDGER_AUTO_MIGRATE" envDefault:"false"`
	ChanceSeed  int64         `env:"LEDGER_CHANCE_SEED" envDefault:"0"`
}

type WorkerConfig struct {
	StoreConfig

	PruneEvery   time.Duration `env:"REALMS_WORKER_PRUNE_EVERY" envDefault:"1h"`
	KeyRetention time.Duration `env:"LEDGER_KEY_RETENTION" envDefault:"168h"`
	RunOnce      bool          `env:"REALMS_WORKER_RUN_ONCE" envDefault:"false"`
}

type CLIConfig struct {
	APIBaseURL  string `env:"REALMS_API_BASE_URL" envDefault:"http://localhost:8080"`
	AdminSecret string `env:"LEDGER_ADMIN_SECRET"`
	JournalDir  string `env:"LEDGER_JOURNAL_DIR" envDefault:"data/journal"`
}

func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	if port := strings.TrimSpace(cfg.Port); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.AdminSecret = strings.TrimSpace(cfg.AdminSecret)

	if err := cfg.StoreConfig.validate(); err != nil {
		return cfg, err
	}
	if cfg.AdminSecret == "" {
		return cfg, fmt.Errorf("LEDGER_ADMIN_SECRET is required")
	}
	if cfg.OpTimeout <= 0 {
		return cfg, fmt.Errorf("LEDGER_OP_TIMEOUT must be positive")
	}
	return cfg, nil
}

func LoadStoreFromEnv() (StoreConfig, error) {
	var cfg StoreConfig
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.StoreConfig.validate(); err != nil {
		return cfg, err
	}
	if cfg.PruneEvery <= 0 {
		return cfg, fmt.Errorf("REALMS_WORKER_PRUNE_EVERY must be positive")
	}
	if cfg.KeyRetention <= 0 {
		return cfg, fmt.Errorf("LEDGER_KEY_RETENTION must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() (CLIConfig, error) {
	var cfg CLIConfig
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg, nil
}

func (c *StoreConfig) validate() error {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	switch c.Kind {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("LEDGER_SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("LEDGER_STORE must be %q or %q", StorePostgres, StoreSQLite)
	}
	return nil
}
