package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/acctos/internal/ansync"
	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# acctosctl configuration.
# Every key may be overridden by an ACCTOS_<SECTION>_<KEY> environment variable.

`

// Template renders a starting config. kind is "memory" or "sqlite".
func Template(kind string) (string, error) {
	cfg := Default()
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", StorageMemory:
	case StorageSQLite:
		cfg.Storage = StorageConfig{Driver: StorageSQLite, Path: "local/acctos.db"}
		cfg.ANS.Datasets = ansync.Paths{
			Assets:    "local/ans/assets.json",
			Contracts: "local/ans/contracts.json",
			Channels:  "local/ans/channels.json",
			Pools:     "local/ans/pools.json",
		}
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	body, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return templateHeader + string(body), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
