package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/celerix-dev/celerix-pond/internal/vault"
	"github.com/celerix-dev/celerix-pond/pkg/engine"
	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

type Config struct {
	// Storage
	DataDir    string `env:"POND_DATA_DIR" envDefault:"./data"`
	Storage    string `env:"POND_STORAGE" envDefault:"file"`
	SQLitePath string `env:"POND_SQLITE_PATH"`
	QuotaBytes int    `env:"POND_QUOTA_BYTES" envDefault:"5242880"`
	// StoreAddr points at a running daemon; empty runs the engine embedded.
	StoreAddr string `env:"POND_STORE_ADDR"`
	VaultKey  string `env:"POND_VAULT_KEY"`

	// Network
	Port       string `env:"POND_PORT" envDefault:"7001"`
	HTTPPort   string `env:"POND_HTTP_PORT" envDefault:"7002"`
	DisableTLS bool   `env:"POND_DISABLE_TLS"`

	// Game
	AppID    string        `env:"POND_APP_ID" envDefault:"pond"`
	Debounce time.Duration `env:"POND_DEBOUNCE" envDefault:"400ms"`

	// Backups
	BackupSchedule string `env:"POND_BACKUP_SCHEDULE"`
	BackupDir      string `env:"POND_BACKUP_DIR" envDefault:"./backups"`
	BackupKeep     int    `env:"POND_BACKUP_KEEP" envDefault:"7"`
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case engine.BackendFile, engine.BackendSQLite:
	default:
		return fmt.Errorf("POND_STORAGE must be %q or %q, got %q", engine.BackendFile, engine.BackendSQLite, c.Storage)
	}
	if c.QuotaBytes < 0 {
		return fmt.Errorf("POND_QUOTA_BYTES must not be negative")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("POND_DEBOUNCE must not be negative")
	}
	return nil
}

// UseTLS reports whether the TCP protocol is wrapped in TLS.
func (c *Config) UseTLS() bool { return !c.DisableTLS }

// MasterKey derives the record encryption key, or nil when encryption is off.
func (c *Config) MasterKey() []byte {
	if c.VaultKey == "" {
		return nil
	}
	return vault.DeriveKey(c.VaultKey)
}

// StoreOptions maps the config onto the store discovery options.
func (c *Config) StoreOptions() sdk.Options {
	return sdk.Options{
		RemoteAddr: c.StoreAddr,
		UseTLS:     c.UseTLS(),
		DataDir:    c.DataDir,
		Backend:    c.Storage,
		SQLitePath: c.SQLitePath,
		QuotaBytes: c.QuotaBytes,
	}
}
