// Package config loads acctosctl settings from TOML with ACCTOS_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/acctos/internal/ansync"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/version"
)

// EnvPrefix prefixes every environment override, e.g. ACCTOS_ANS_ASSETS.
const EnvPrefix = "ACCTOS_"

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Chain      ChainConfig      `toml:"chain" envPrefix:"CHAIN_"`
	Storage    StorageConfig    `toml:"storage" envPrefix:"STORAGE_"`
	Deployment DeploymentConfig `toml:"deployment" envPrefix:"DEPLOY_"`
	ANS        ANSConfig        `toml:"ans" envPrefix:"ANS_"`
	Account    AccountConfig    `toml:"account" envPrefix:"ACCOUNT_"`
	HTTP       HTTPConfig       `toml:"http" envPrefix:"HTTP_"`
}

type ChainConfig struct {
	ID            string `toml:"id" env:"ID"`
	Network       string `toml:"network" env:"NETWORK"`
	AddressPrefix string `toml:"address_prefix" env:"ADDRESS_PREFIX"`
	MaxMsgBytes   int    `toml:"max_msg_bytes" env:"MAX_MSG_BYTES"`
}

type StorageConfig struct {
	Driver string `toml:"driver" env:"DRIVER"`
	Path   string `toml:"path" env:"PATH"`
}

type DeploymentConfig struct {
	Admin   string `toml:"admin" env:"ADMIN"`
	Version string `toml:"version" env:"VERSION"`
}

// ANSConfig drives dataset reconciliation. Dataset paths are read with the
// section prefix, so ACCTOS_ANS_POOLS sets Datasets.Pools.
type ANSConfig struct {
	Datasets      ansync.Paths `toml:"datasets"`
	ChunkSize     int          `toml:"chunk_size" env:"CHUNK_SIZE"`
	Policy        string       `toml:"policy" env:"POLICY"`
	MaxRetries    uint         `toml:"max_retries" env:"MAX_RETRIES"`
	RetryInterval string       `toml:"retry_interval" env:"RETRY_INTERVAL"`
}

// AccountConfig optionally creates one monarch-governed account at deploy.
type AccountConfig struct {
	Monarch string `toml:"monarch" env:"MONARCH"`
	Name    string `toml:"name" env:"NAME"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr" env:"ADDR"`
	CorsOrigins []string `toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

func Default() Config {
	return Config{
		Chain: ChainConfig{
			ID:            ledger.DefaultChainID,
			Network:       "local",
			AddressPrefix: ledger.DefaultAddressPrefix,
			MaxMsgBytes:   ledger.DefaultMaxMsgBytes,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Deployment: DeploymentConfig{
			Admin:   "acct1admin",
			Version: "0.4.0",
		},
		ANS: ANSConfig{
			ChunkSize:     ansync.DefaultChunkSize,
			Policy:        string(ansync.PolicyAbort),
			MaxRetries:    5,
			RetryInterval: "100ms",
		},
		Account: AccountConfig{Name: "default"},
		HTTP: HTTPConfig{
			Addr:        ":9400",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load decodes path on top of Default, applies environment overrides and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
		}
		// A bare storage path means sqlite.
		if meta.IsDefined("storage", "path") && !meta.IsDefined("storage", "driver") {
			cfg.Storage.Driver = StorageSQLite
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config env overrides: %w", err)
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Chain.ID = strings.TrimSpace(c.Chain.ID)
	c.Chain.Network = strings.TrimSpace(c.Chain.Network)
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Storage.Path = strings.TrimSpace(c.Storage.Path)
	c.Deployment.Admin = strings.TrimSpace(c.Deployment.Admin)
	c.Deployment.Version = strings.TrimSpace(c.Deployment.Version)
	c.Account.Monarch = strings.TrimSpace(c.Account.Monarch)
	c.HTTP.Addr = strings.TrimSpace(c.HTTP.Addr)
}

func Validate(cfg Config) error {
	if cfg.Chain.ID == "" {
		return fmt.Errorf("%w: chain.id is required", ErrInvalidConfig)
	}
	if cfg.Chain.Network == "" {
		return fmt.Errorf("%w: chain.network is required", ErrInvalidConfig)
	}
	if cfg.Chain.MaxMsgBytes <= 0 {
		return fmt.Errorf("%w: chain.max_msg_bytes must be positive", ErrInvalidConfig)
	}
	switch cfg.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalidConfig, cfg.Storage.Driver)
	}
	if cfg.Deployment.Admin == "" {
		return fmt.Errorf("%w: deployment.admin is required", ErrInvalidConfig)
	}
	if _, err := version.Parse(cfg.Deployment.Version); err != nil {
		return fmt.Errorf("%w: deployment.version: %v", ErrInvalidConfig, err)
	}
	if cfg.ANS.ChunkSize <= 0 {
		return fmt.Errorf("%w: ans.chunk_size must be positive", ErrInvalidConfig)
	}
	if _, err := ansync.ParsePolicy(cfg.ANS.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := parseInterval(cfg.ANS.RetryInterval); err != nil {
		return fmt.Errorf("%w: ans.retry_interval: %v", ErrInvalidConfig, err)
	}
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("%w: http.addr is required", ErrInvalidConfig)
	}
	return nil
}
