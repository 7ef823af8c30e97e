package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration: file defaults overridden by
// environment variables, so both local and deployed runs work without edits.
type Config struct {
	HTTPAddr  string
	DBDriver  string
	DBDSN     string
	RedisAddr string // empty disables the balance mirror
	LogLevel  string
}

// configFile mirrors the YAML schema of configs/storeledger.yaml.
type configFile struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the optional YAML file at path and applies environment
// overrides. A missing file is fine; defaults run an embedded SQLite ledger.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr: ":8080",
		DBDriver: "sqlite",
		DBDSN:    "storeledger.db",
		LogLevel: "info",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			var file configFile
			if err := yaml.Unmarshal(raw, &file); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
			apply(&cfg, file)
		}
	}

	override(&cfg.HTTPAddr, "STORELEDGER_HTTP_ADDR")
	override(&cfg.DBDriver, "STORELEDGER_DB_DRIVER")
	override(&cfg.DBDSN, "STORELEDGER_DB_DSN")
	override(&cfg.RedisAddr, "STORELEDGER_REDIS_ADDR")
	override(&cfg.LogLevel, "STORELEDGER_LOG_LEVEL")

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "mysql" {
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
	return cfg, nil
}

func apply(cfg *Config, file configFile) {
	if file.HTTP.Addr != "" {
		cfg.HTTPAddr = file.HTTP.Addr
	}
	if file.Database.Driver != "" {
		cfg.DBDriver = file.Database.Driver
	}
	if file.Database.DSN != "" {
		cfg.DBDSN = file.Database.DSN
	}
	if file.Redis.Addr != "" {
		cfg.RedisAddr = file.Redis.Addr
	}
	if file.Log.Level != "" {
		cfg.LogLevel = file.Log.Level
	}
}

func override(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
