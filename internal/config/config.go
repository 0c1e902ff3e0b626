// Package config loads process settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env           string  `yaml:"env"`
	ListenAddr    string  `yaml:"listen_addr"`
	DatabaseURL   string  `yaml:"database_url"`
	IndicatorDir  string  `yaml:"indicator_dir"`
	LogLevel      string  `yaml:"log_level"`
	LogFile       string  `yaml:"log_file"`
	RollupWorkers int     `yaml:"rollup_workers"`
	WriteRPS      float64 `yaml:"write_rps"`
	WriteBurst    int     `yaml:"write_burst"`
	Migrate       bool    `yaml:"migrate"`
}

func Defaults() Config {
	return Config{
		Env:           "development",
		ListenAddr:    ":8080",
		IndicatorDir:  "./indicators",
		LogLevel:      "info",
		RollupWorkers: 2,
		WriteRPS:      5,
		WriteBurst:    10,
		Migrate:       true,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads CPF_CONFIG when set, then applies environment overrides. A
// missing DATABASE_URL is reported as an error alongside a usable config;
// callers fall back to the in-memory store.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CPF_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.IndicatorDir = getenv("INDICATOR_DIR", cfg.IndicatorDir)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)
	cfg.RollupWorkers = getenvInt("ROLLUP_WORKERS", cfg.RollupWorkers)
	cfg.WriteRPS = getenvFloat("WRITE_RPS", cfg.WriteRPS)
	cfg.WriteBurst = getenvInt("WRITE_BURST", cfg.WriteBurst)
	cfg.Migrate = getenvBool("MIGRATE", cfg.Migrate)

	if cfg.DatabaseURL == "" {
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}

var ErrNoDatabase = errors.New("DATABASE_URL not set, using in-memory store")

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil {
			return out
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseFloat(v, 64); err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseBool(v); err == nil {
			return out
		}
	}
	return def
}
