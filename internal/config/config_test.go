package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/realms")
	t.Setenv("LEDGER_ADMIN_SECRET", " hunter2 ")
	t.Setenv("PORT", "")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Kind != StorePostgres {
		t.Fatalf("store = %q", cfg.Kind)
	}
	if cfg.AdminSecret != "hunter2" {
		t.Fatalf("secret = %q", cfg.AdminSecret)
	}
	if cfg.OpTimeout != 5*time.Second {
		t.Fatalf("timeout = %s", cfg.OpTimeout)
	}
	if cfg.AutoMigrate {
		t.Fatalf("auto migrate must default to false")
	}
}

func TestLoadAPIFromEnvPortOverride(t *testing.T) {
	t.Setenv("LEDGER_STORE", "SQLite")
	t.Setenv("LEDGER_SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("LEDGER_ADMIN_SECRET", "s")
	t.Setenv("PORT", "9090")
	t.Setenv("LEDGER_OP_TIMEOUT", "750ms")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Kind != StoreSQLite {
		t.Fatalf("store = %q", cfg.Kind)
	}
	if cfg.OpTimeout != 750*time.Millisecond {
		t.Fatalf("timeout = %s", cfg.OpTimeout)
	}
}

func TestLoadAPIFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing database url",
			env:  map[string]string{"LEDGER_STORE": "postgres", "DATABASE_URL": "", "LEDGER_ADMIN_SECRET": "s"},
			want: "DATABASE_URL",
		},
		{
			name: "missing secret",
			env:  map[string]string{"LEDGER_STORE": "sqlite", "LEDGER_ADMIN_SECRET": ""},
			want: "LEDGER_ADMIN_SECRET",
		},
		{
			name: "unknown store",
			env:  map[string]string{"LEDGER_STORE": "redis", "LEDGER_ADMIN_SECRET": "s"},
			want: "LEDGER_STORE",
		},
		{
			name: "bad duration",
			env:  map[string]string{"LEDGER_STORE": "sqlite", "LEDGER_ADMIN_SECRET": "s", "LEDGER_OP_TIMEOUT": "soon"},
			want: "parse env:",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadAPIFromEnv()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("REALMS_API_BASE_URL", "https://realms.example.com/ ")
	cfg, err := LoadCLIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL != "https://realms.example.com" {
		t.Fatalf("base url = %q", cfg.APIBaseURL)
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("LEDGER_STORE", "sqlite")
	t.Setenv("REALMS_WORKER_RUN_ONCE", "true")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.RunOnce {
		t.Fatalf("run once not parsed")
	}
	if cfg.PruneEvery != time.Hour || cfg.KeyRetention != 168*time.Hour {
		t.Fatalf("defaults = %s / %s", cfg.PruneEvery, cfg.KeyRetention)
	}

	t.Setenv("LEDGER_KEY_RETENTION", "0s")
	if _, err := LoadWorkerFromEnv(); err == nil || !strings.Contains(err.Error(), "LEDGER_KEY_RETENTION") {
		t.Fatalf("expected retention error, got %v", err)
	}
}
