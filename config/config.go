package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that override file values.
const (
	EnvRPCToken  = "DINE_RPC_TOKEN"
	EnvJWTSecret = "DINE_JWT_SECRET"
	EnvName      = "DINE_ENV"
)

type Config struct {
	RPCAddress      string   `toml:"RPCAddress"`
	DataDir         string   `toml:"DataDir"`
	GenesisFile     string   `toml:"GenesisFile"`
	Environment     string   `toml:"Environment"`
	ShutdownTimeout Duration `toml:"ShutdownTimeout"`
	MaxBodyBytes    int64    `toml:"MaxBodyBytes"`

	Logging   Logging   `toml:"Logging"`
	RateLimit RateLimit `toml:"RateLimit"`
	Auth      Auth      `toml:"Auth"`
	Indexer   Indexer   `toml:"Indexer"`
	Telemetry Telemetry `toml:"Telemetry"`
	Pauses    Pauses    `toml:"Pauses"`
	Quota     Quota     `toml:"Quota"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		RPCAddress:      "127.0.0.1:8545",
		DataDir:         "./dine-data",
		GenesisFile:     "./genesis.yaml",
		Environment:     "local",
		ShutdownTimeout: Duration{10 * time.Second},
		MaxBodyBytes:    1 << 20,
		Logging:         Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		RateLimit:       RateLimit{RequestsPerSecond: 20, Burst: 40},
		Indexer:         Indexer{Enabled: true, DSN: "./dine-data/index.db", ExportDir: "./dine-data/exports", QueueDepth: 1024},
		Telemetry:       Telemetry{SampleRatio: 1},
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvRPCToken)); v != "" {
		c.Auth.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvName)); v != "" {
		c.Environment = v
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
