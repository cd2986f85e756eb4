package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/acctos/internal/ansync"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
[chain]
id = "pion-1"
network = "testnet"

[ans]
chunk_size = 10
policy = "skip"

[ans.datasets]
pools = "/data/pools.json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Chain.ID = "pion-1"
	want.Chain.Network = "testnet"
	want.ANS.ChunkSize = 10
	want.ANS.Policy = "skip"
	want.ANS.Datasets.Pools = "/data/pools.json"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestStoragePathImpliesSQLite(t *testing.T) {
	path := writeConfig(t, `
[storage]
path = "state.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite {
		t.Fatalf("driver = %q, want sqlite", cfg.Storage.Driver)
	}

	explicit := writeConfig(t, `
[storage]
driver = "memory"
path = "ignored.db"
`)
	if cfg, err = Load(explicit); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("explicit driver overridden: %q", cfg.Storage.Driver)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[chain]
idd = "typo"
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[deployment]
admin = "acct1fromfile"
`)
	t.Setenv("ACCTOS_DEPLOY_ADMIN", "acct1fromenv")
	t.Setenv("ACCTOS_ANS_ASSETS", "/env/assets.json")
	t.Setenv("ACCTOS_HTTP_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("ACCTOS_STORAGE_DRIVER", "sqlite")
	t.Setenv("ACCTOS_STORAGE_PATH", "/env/state.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Deployment.Admin != "acct1fromenv" {
		t.Fatalf("admin = %q", cfg.Deployment.Admin)
	}
	if cfg.ANS.Datasets.Assets != "/env/assets.json" {
		t.Fatalf("assets path = %q", cfg.ANS.Datasets.Assets)
	}
	if diff := cmp.Diff([]string{"http://a.test", "http://b.test"}, cfg.HTTP.CorsOrigins); diff != "" {
		t.Fatalf("cors origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.Path != "/env/state.db" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"chain id", func(c *Config) { c.Chain.ID = "" }, "chain.id"},
		{"msg bytes", func(c *Config) { c.Chain.MaxMsgBytes = 0 }, "max_msg_bytes"},
		{"driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"sqlite path", func(c *Config) { c.Storage.Driver = StorageSQLite }, "storage.path"},
		{"admin", func(c *Config) { c.Deployment.Admin = "" }, "deployment.admin"},
		{"version", func(c *Config) { c.Deployment.Version = "1.0" }, "deployment.version"},
		{"chunk size", func(c *Config) { c.ANS.ChunkSize = 0 }, "chunk_size"},
		{"policy", func(c *Config) { c.ANS.Policy = "ignore" }, "policy"},
		{"interval", func(c *Config) { c.ANS.RetryInterval = "soon" }, "retry_interval"},
		{"http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		err := Validate(cfg)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.field) {
			t.Fatalf("%s: error %q does not name %s", tc.name, err, tc.field)
		}
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Chain.ID = "pion-1"
	cfg.Chain.MaxMsgBytes = 1024
	cfg.ANS.Policy = "retry"
	cfg.ANS.RetryInterval = "250ms"
	cfg.ANS.ChunkSize = 5

	lc := cfg.LedgerConfig()
	if lc.ChainID != "pion-1" || lc.MaxMsgBytes != 1024 || lc.AddressPrefix != ledger.DefaultAddressPrefix {
		t.Fatalf("unexpected ledger config %+v", lc)
	}
	opts, err := cfg.SubmitterOptions()
	if err != nil {
		t.Fatalf("submitter options: %v", err)
	}
	if opts.ChunkSize != 5 || opts.Policy != ansync.PolicyRetry || opts.InitialInterval != 250*time.Millisecond {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, ok := cfg.AccountGovernance(); ok {
		t.Fatalf("no monarch configured, expected no account")
	}
	cfg.Account.Monarch = "acct1king"
	gov, ok := cfg.AccountGovernance()
	if !ok || gov.Owner() != "acct1king" {
		t.Fatalf("unexpected governance %+v", gov)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	for _, kind := range []string{"memory", "sqlite"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("%s: write template: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("%s: expected refusal to overwrite", kind)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load template: %v", kind, err)
		}
		if cfg.Storage.Driver != kind {
			t.Fatalf("%s: driver = %q", kind, cfg.Storage.Driver)
		}
	}
	if _, err := Template("postgres"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "cmd", "acctosctl", "ex.config.toml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.ANS.Policy != "retry" || cfg.Account.Monarch != "acct1admin" {
		t.Fatalf("unexpected example config %+v", cfg)
	}
}
