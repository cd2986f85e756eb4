package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/acctos/internal/ansync"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
)

func (c Config) LedgerConfig() ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.ChainID = c.Chain.ID
	cfg.AddressPrefix = c.Chain.AddressPrefix
	cfg.MaxMsgBytes = c.Chain.MaxMsgBytes
	return cfg
}

// SubmitterOptions maps the ans section onto reconciliation options.
func (c Config) SubmitterOptions() (ansync.Options, error) {
	policy, err := ansync.ParsePolicy(c.ANS.Policy)
	if err != nil {
		return ansync.Options{}, err
	}
	interval, err := parseInterval(c.ANS.RetryInterval)
	if err != nil {
		return ansync.Options{}, err
	}
	opts := ansync.DefaultOptions()
	opts.ChunkSize = c.ANS.ChunkSize
	opts.Policy = policy
	if c.ANS.MaxRetries > 0 {
		opts.MaxRetries = c.ANS.MaxRetries
	}
	if interval > 0 {
		opts.InitialInterval = interval
	}
	return opts, nil
}

// AccountGovernance reports the monarchy to create at deploy, if any.
func (c Config) AccountGovernance() (governance.Details, bool) {
	if c.Account.Monarch == "" {
		return governance.Details{}, false
	}
	return governance.NewMonarchy(ledger.Address(c.Account.Monarch)), true
}

func parseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %s", raw)
	}
	return d, nil
}
