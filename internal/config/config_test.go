package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" || cfg.DBDSN != "storeledger.db" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("mirror should default off, got %q", cfg.RedisAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info log level, got %q", cfg.LogLevel)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storeledger.yaml")
	raw := `
http:
  addr: ":9090"
database:
  driver: mysql
  dsn: "user:pass@tcp(db:3306)/ledger"
redis:
  addr: "cache:6379"
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("addr: got %q", cfg.HTTPAddr)
	}
	if cfg.DBDriver != "mysql" || cfg.DBDSN != "user:pass@tcp(db:3306)/ledger" {
		t.Errorf("database: got %q %q", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.RedisAddr != "cache:6379" || cfg.LogLevel != "debug" {
		t.Errorf("redis/log: got %q %q", cfg.RedisAddr, cfg.LogLevel)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storeledger.yaml")
	if err := os.WriteFile(path, []byte("http:\n  addr: \":9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STORELEDGER_HTTP_ADDR", ":7070")
	t.Setenv("STORELEDGER_DB_DSN", "override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("env should win over file, got %q", cfg.HTTPAddr)
	}
	if cfg.DBDSN != "override.db" {
		t.Errorf("dsn: got %q", cfg.DBDSN)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORELEDGER_DB_DRIVER", "postgres")
	if _, err := Load(""); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestLoad_RejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("http: [not a mapping"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
