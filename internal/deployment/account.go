package deployment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/controller"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/vault"
	"github.com/rs/zerolog/log"
)

// Account is a handle on one account's controller and vault.
type Account struct {
	Bundle api.AccountBundle

	exec       ledger.Executor
	controller *controller.Client
	vault      *vault.Client
}

func (a *Account) ID() uint64 {
	return a.Bundle.AccountID
}

func (a *Account) Controller() *controller.Client {
	return a.controller
}

func (a *Account) Vault() *vault.Client {
	return a.vault
}

// Install installs moduleID at the version selected by constraint and
// returns the resulting entry.
func (a *Account) Install(ctx context.Context, sender ledger.Address, moduleID, constraint string, initMsg any) (api.ModuleEntry, error) {
	raw, err := encodeOptional(initMsg)
	if err != nil {
		return api.ModuleEntry{}, err
	}
	if _, err := a.controller.Install(ctx, sender, api.ModuleRef{ID: moduleID, Version: constraint}, raw); err != nil {
		return api.ModuleEntry{}, err
	}
	entry, err := a.controller.Module(ctx, moduleID)
	if err != nil {
		return api.ModuleEntry{}, err
	}
	log.Debug().Msgf("deployment.Account.Install account=%d module=%s version=%s address=%s", a.ID(), moduleID, entry.Version, entry.Address)
	return entry, nil
}

// Upgrade migrates moduleID to the version selected by constraint. A
// migration the module refused commits as upgrade_failed and is reported
// here as controller.ErrUpgradeFailed with the recorded cause.
func (a *Account) Upgrade(ctx context.Context, sender ledger.Address, moduleID, constraint string, migrateMsg any) (api.ModuleEntry, error) {
	raw, err := encodeOptional(migrateMsg)
	if err != nil {
		return api.ModuleEntry{}, err
	}
	if _, err := a.controller.Upgrade(ctx, sender, moduleID, constraint, raw); err != nil {
		return api.ModuleEntry{}, err
	}
	entry, err := a.controller.Module(ctx, moduleID)
	if err != nil {
		return api.ModuleEntry{}, err
	}
	if entry.Status == api.StatusUpgradeFailed {
		log.Warn().Msgf("deployment.Account.Upgrade account=%d module=%s failed: %s", a.ID(), moduleID, entry.LastError)
		return entry, fmt.Errorf("%w: %s: %s", controller.ErrUpgradeFailed, moduleID, entry.LastError)
	}
	return entry, nil
}

func (a *Account) Uninstall(ctx context.Context, sender ledger.Address, moduleID string) error {
	_, err := a.controller.Uninstall(ctx, sender, moduleID)
	return err
}

// ExecOnVault has the controller forward msgs through the vault.
func (a *Account) ExecOnVault(ctx context.Context, sender ledger.Address, msgs ...ledger.Msg) (*ledger.Result, error) {
	return a.controller.ExecOnVault(ctx, sender, msgs...)
}

func (a *Account) ExecOnModule(ctx context.Context, sender ledger.Address, moduleID string, payload any) (*ledger.Result, error) {
	return a.controller.ExecOnModule(ctx, sender, moduleID, payload)
}

// UpdateVaultFee sets the vault's fee, or clears it when fee is nil.
func (a *Account) UpdateVaultFee(ctx context.Context, sender ledger.Address, fee *api.Fee) error {
	_, err := a.controller.UpdateVaultFee(ctx, sender, fee)
	return err
}

// HandOverVault makes next the vault's controller. This account's
// controller can no longer reach the vault afterwards.
func (a *Account) HandOverVault(ctx context.Context, sender, next ledger.Address) error {
	_, err := a.controller.SetVaultController(ctx, sender, next)
	return err
}

func (a *Account) SetGovernance(ctx context.Context, sender ledger.Address, gov governance.Details) error {
	_, err := a.controller.SetGovernance(ctx, sender, gov)
	return err
}

func (a *Account) Module(ctx context.Context, moduleID string) (api.ModuleEntry, error) {
	return a.controller.Module(ctx, moduleID)
}

// Modules pages through every installed module.
func (a *Account) Modules(ctx context.Context) ([]api.ModuleEntry, error) {
	var out []api.ModuleEntry
	after := ""
	for {
		page, err := a.controller.Modules(ctx, after, api.MaxPageLimit)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < api.MaxPageLimit {
			return out, nil
		}
		after = page[len(page)-1].ModuleID
	}
}

func (a *Account) Balances(ctx context.Context, denoms ...string) (ledger.Coins, error) {
	return a.vault.Balances(ctx, denoms...)
}

func encodeOptional(v any) (json.RawMessage, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return m, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidMsg, err)
	}
	return raw, nil
}
