// Package controller is an account's governance-gated module manager.
//
// Each installed module moves through installing, installed, upgrading and
// upgrade_failed. Installs complete through the module factory's
// register_module continuation; upgrades migrate the module in place and
// record a failed migration instead of aborting.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/registry"
	"github.com/danmuck/acctos/internal/version"
	"github.com/rs/zerolog/log"
)

const (
	ContractName    = "acctos:controller"
	ContractVersion = "0.4.0"
)

var (
	ErrUnauthorized           = errors.New("controller: unauthorized")
	ErrModuleNotInstalled     = errors.New("controller: module not installed")
	ErrModuleAlreadyInstalled = errors.New("controller: module already installed")
	ErrUpgradeFailed          = errors.New("controller: upgrade failed")
	ErrVaultNotRegistered     = errors.New("controller: vault not registered")
	ErrVaultRegistered        = errors.New("controller: vault already registered")
	ErrInvalidState           = errors.New("controller: invalid module state")
)

const replyUpgrade uint64 = 1

// pendingUpgrade is the migration awaiting its reply.
type pendingUpgrade struct {
	ModuleID string `json:"module_id"`
	Version  string `json:"version"`
}

var (
	config   = ledger.NewItem[api.ControllerConfig]("config")
	info     = ledger.NewItem[api.ControllerInfo]("info")
	modules  = ledger.NewMap[api.ModuleEntry]("module")
	upgrades = ledger.NewItem[pendingUpgrade]("pending_upgrade")
)

type Contract struct{}

var (
	_ ledger.Contract = Contract{}
	_ ledger.Replier  = Contract{}
	_ ledger.Migrator = Contract{}
)

func New() Contract {
	return Contract{}
}

func (Contract) Instantiate(_ context.Context, deps ledger.Deps, _ ledger.Env, mi ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.ControllerInstantiate
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	if err := msg.Governance.Validate(); err != nil {
		return ledger.Response{}, err
	}
	if msg.Registry.IsZero() || msg.ModuleFactory.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: registry and module factory are required", ledger.ErrInvalidMsg)
	}
	if err := ledger.SetContractVersion(deps.Storage, ContractName, ContractVersion); err != nil {
		return ledger.Response{}, err
	}
	if err := config.Save(deps.Storage, api.ControllerConfig{
		AccountID:     msg.AccountID,
		Governance:    msg.Governance,
		Registry:      msg.Registry,
		ModuleFactory: msg.ModuleFactory,
		Factory:       mi.Sender,
	}); err != nil {
		return ledger.Response{}, err
	}
	if err := info.Save(deps.Storage, api.ControllerInfo{
		AccountID:   msg.AccountID,
		Name:        strings.TrimSpace(msg.Name),
		Description: msg.Description,
	}); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("account_id", fmt.Sprint(msg.AccountID)), nil
}

func (Contract) Execute(_ context.Context, deps ledger.Deps, _ ledger.Env, mi ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.ControllerExecute
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	cfg, err := config.Load(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	sender := mi.Sender

	// Continuations from the factories carry their own authorisation.
	switch {
	case msg.RegisterModule != nil:
		if sender != cfg.ModuleFactory {
			return ledger.Response{}, fmt.Errorf("%w: register_module requires the module factory", ErrUnauthorized)
		}
		return registerModule(deps.Storage, *msg.RegisterModule)
	case msg.RegisterVault != nil:
		if sender != cfg.Factory {
			return ledger.Response{}, fmt.Errorf("%w: register_vault requires the account factory", ErrUnauthorized)
		}
		return registerVault(deps.Storage, cfg, msg.RegisterVault.Vault)
	}

	if !cfg.Governance.Authorized(sender) {
		return ledger.Response{}, fmt.Errorf("%w: %s does not govern account %d", ErrUnauthorized, sender, cfg.AccountID)
	}
	switch {
	case msg.InstallModule != nil:
		return installModule(deps, cfg, *msg.InstallModule)
	case msg.UpgradeModule != nil:
		return upgradeModule(deps, cfg, *msg.UpgradeModule)
	case msg.UninstallModule != nil:
		return uninstallModule(deps.Storage, cfg, msg.UninstallModule.ModuleID)
	case msg.ExecOnModule != nil:
		return execOnModule(deps.Storage, *msg.ExecOnModule)
	case msg.ExecOnVault != nil:
		return execOnVault(cfg, msg.ExecOnVault.Msgs)
	case msg.UpdateVaultFee != nil:
		return callVault(cfg, "update_vault_fee", api.VaultExecute{UpdateFee: msg.UpdateVaultFee})
	case msg.SetVaultController != nil:
		return handOverVault(deps.Storage, cfg, *msg.SetVaultController)
	case msg.SetGovernance != nil:
		return setGovernance(deps.Storage, cfg, *msg.SetGovernance)
	case msg.UpdateInfo != nil:
		return updateInfo(deps.Storage, *msg.UpdateInfo)
	}
	return ledger.Response{}, fmt.Errorf("%w: unknown controller message", ledger.ErrInvalidMsg)
}

func installModule(deps ledger.Deps, cfg api.ControllerConfig, msg api.InstallModule) (ledger.Response, error) {
	record, err := resolve(deps.Querier, cfg.Registry, msg.Module.ID, msg.Module.Version)
	if err != nil {
		return ledger.Response{}, err
	}
	id := record.Info().ID()
	if current, ok, err := modules.Load(deps.Storage, id); err != nil {
		return ledger.Response{}, err
	} else if ok {
		return ledger.Response{}, fmt.Errorf("%w: %s@%s (%s)", ErrModuleAlreadyInstalled, id, current.Version, current.Status)
	}
	kind := record.Reference.Kind()
	if kind == api.KindAccountBase {
		return ledger.Response{}, fmt.Errorf("%w: %s is an account base", ledger.ErrInvalidMsg, id)
	}
	if err := modules.Save(deps.Storage, id, api.ModuleEntry{
		ModuleID: id,
		Version:  record.Version,
		Kind:     kind,
		Status:   api.StatusInstalling,
	}); err != nil {
		return ledger.Response{}, err
	}
	call, err := ledger.NewExecute(cfg.ModuleFactory, api.ModuleFactoryExecute{
		InstallModule: &api.InstallModuleRequest{
			AccountID: cfg.AccountID,
			Module:    api.ModuleRef{ID: id, Version: record.Version},
			InitMsg:   msg.InitMsg,
		},
	}, nil)
	if err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("controller.Contract.installModule account=%d module=%s version=%s", cfg.AccountID, id, record.Version)
	return ledger.NewResponse().
		AddAttribute("action", "install_module").
		AddAttribute("module", id).
		AddAttribute("version", record.Version).
		AddMessage(call), nil
}

func registerModule(store ledger.Storage, msg api.RegisterInstall) (ledger.Response, error) {
	entry, ok, err := modules.Load(store, msg.ModuleID)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok {
		return ledger.Response{}, fmt.Errorf("%w: %s", ErrModuleNotInstalled, msg.ModuleID)
	}
	if entry.Status != api.StatusInstalling {
		return ledger.Response{}, fmt.Errorf("%w: %s is %s, not installing", ErrInvalidState, msg.ModuleID, entry.Status)
	}
	if msg.Address.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: register_module without address", ledger.ErrInvalidMsg)
	}
	entry.Address = msg.Address
	entry.Version = msg.Version
	entry.Kind = msg.Kind
	entry.Status = api.StatusInstalled
	if err := modules.Save(store, msg.ModuleID, entry); err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("controller.Contract.registerModule module=%s address=%s", msg.ModuleID, msg.Address)
	return ledger.NewResponse().
		AddAttribute("action", "register_module").
		AddAttribute("module", msg.ModuleID).
		AddAttribute("address", msg.Address.String()), nil
}

func upgradeModule(deps ledger.Deps, cfg api.ControllerConfig, msg api.UpgradeModule) (ledger.Response, error) {
	id := strings.TrimSpace(msg.ModuleID)
	entry, ok, err := modules.Load(deps.Storage, id)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok {
		return ledger.Response{}, fmt.Errorf("%w: %s", ErrModuleNotInstalled, id)
	}
	if entry.Status != api.StatusInstalled && entry.Status != api.StatusUpgradeFailed {
		return ledger.Response{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, entry.Status)
	}
	record, err := resolve(deps.Querier, cfg.Registry, id, msg.Version)
	if err != nil {
		return ledger.Response{}, err
	}
	current, err := version.Parse(entry.Version)
	if err != nil {
		return ledger.Response{}, err
	}
	target, err := version.Parse(record.Version)
	if err != nil {
		return ledger.Response{}, err
	}
	if !current.Less(target) {
		return ledger.Response{}, &registry.VersionNotMonotonicError{Module: id, Rejected: target.String(), Latest: current.String()}
	}
	if kind := record.Reference.Kind(); kind != entry.Kind {
		return ledger.Response{}, fmt.Errorf("%w: %s cannot change kind from %s to %s", ledger.ErrInvalidMsg, id, entry.Kind, kind)
	}

	if entry.Kind == api.KindAdapter {
		prev := entry.Address
		entry.Address = record.Reference.Adapter.Address
		entry.Version = record.Version
		entry.Status = api.StatusInstalled
		entry.LastError = ""
		if err := modules.Save(deps.Storage, id, entry); err != nil {
			return ledger.Response{}, err
		}
		log.Debug().Msgf("controller.Contract.upgradeModule module=%s adapter=%s->%s", id, prev, entry.Address)
		return ledger.NewResponse().
			AddAttribute("action", "upgrade_module").
			AddAttribute("module", id).
			AddAttribute("version", record.Version), nil
	}

	code, _ := record.Reference.CodeID()
	migrateMsg := msg.MigrateMsg
	if len(migrateMsg) == 0 {
		migrateMsg = json.RawMessage(`{}`)
	}
	entry.Status = api.StatusUpgrading
	entry.PendingVersion = record.Version
	if err := modules.Save(deps.Storage, id, entry); err != nil {
		return ledger.Response{}, err
	}
	if err := upgrades.Save(deps.Storage, pendingUpgrade{ModuleID: id, Version: record.Version}); err != nil {
		return ledger.Response{}, err
	}
	migrate := ledger.Msg{Migrate: &ledger.MigrateMsg{Contract: entry.Address, CodeID: code, Msg: migrateMsg}}
	log.Debug().Msgf("controller.Contract.upgradeModule module=%s from=%s to=%s", id, entry.Version, record.Version)
	return ledger.NewResponse().
		AddAttribute("action", "upgrade_module").
		AddAttribute("module", id).
		AddSubMessage(ledger.SubMsg{ID: replyUpgrade, Msg: migrate, ReplyOn: ledger.ReplyAlways}), nil
}

// Reply settles a pending migration. A failed migration is recorded, not raised.
func (Contract) Reply(_ context.Context, deps ledger.Deps, _ ledger.Env, reply ledger.Reply) (ledger.Response, error) {
	if reply.ID != replyUpgrade {
		return ledger.Response{}, fmt.Errorf("%w: unknown reply id %d", ledger.ErrInvalidReply, reply.ID)
	}
	p, ok, err := upgrades.May(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok {
		return ledger.Response{}, fmt.Errorf("%w: no pending upgrade", ledger.ErrInvalidReply)
	}
	upgrades.Remove(deps.Storage)
	entry, ok, err := modules.Load(deps.Storage, p.ModuleID)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok {
		return ledger.Response{}, fmt.Errorf("%w: %s", ErrModuleNotInstalled, p.ModuleID)
	}
	entry.PendingVersion = ""
	outcome := "upgraded"
	if reply.Failed() {
		entry.Status = api.StatusUpgradeFailed
		entry.LastError = reply.Result.Err
		outcome = "failed"
		log.Warn().Msgf("controller.Contract.Reply module=%s version=%s upgrade failed: %s", p.ModuleID, p.Version, reply.Result.Err)
	} else {
		entry.Status = api.StatusInstalled
		entry.Version = p.Version
		entry.LastError = ""
		log.Debug().Msgf("controller.Contract.Reply module=%s version=%s upgraded", p.ModuleID, p.Version)
	}
	if err := modules.Save(deps.Storage, p.ModuleID, entry); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().
		AddAttribute("action", "upgrade_reply").
		AddAttribute("module", p.ModuleID).
		AddAttribute("outcome", outcome), nil
}

func uninstallModule(store ledger.Storage, cfg api.ControllerConfig, id string) (ledger.Response, error) {
	id = strings.TrimSpace(id)
	entry, ok, err := modules.Load(store, id)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok {
		return ledger.Response{}, fmt.Errorf("%w: %s", ErrModuleNotInstalled, id)
	}
	modules.Remove(store, id)
	log.Debug().Msgf("controller.Contract.uninstallModule account=%d module=%s address=%s", cfg.AccountID, id, entry.Address)
	return ledger.NewResponse().
		AddAttribute("action", "uninstall_module").
		AddAttribute("module", id), nil
}

func execOnModule(store ledger.Storage, msg api.ExecOnModule) (ledger.Response, error) {
	id := strings.TrimSpace(msg.ModuleID)
	entry, ok, err := modules.Load(store, id)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok || entry.Address.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: %s", ErrModuleNotInstalled, id)
	}
	return ledger.NewResponse().
		AddAttribute("action", "exec_on_module").
		AddAttribute("module", id).
		AddMessage(ledger.Msg{Execute: &ledger.ExecuteMsg{Contract: entry.Address, Msg: msg.Msg}}), nil
}

func execOnVault(cfg api.ControllerConfig, msgs []ledger.Msg) (ledger.Response, error) {
	if cfg.Vault.IsZero() {
		return ledger.Response{}, ErrVaultNotRegistered
	}
	call, err := ledger.NewExecute(cfg.Vault, api.VaultExecute{
		ExecuteOnBehalf: &api.ExecuteOnBehalf{Msgs: msgs},
	}, nil)
	if err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().
		AddAttribute("action", "exec_on_vault").
		AddAttribute("msgs", fmt.Sprint(len(msgs))).
		AddMessage(call), nil
}

// callVault sends a vault message with the controller as sender.
func callVault(cfg api.ControllerConfig, action string, msg api.VaultExecute) (ledger.Response, error) {
	if cfg.Vault.IsZero() {
		return ledger.Response{}, ErrVaultNotRegistered
	}
	call, err := ledger.NewExecute(cfg.Vault, msg, nil)
	if err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("controller.Contract.callVault account=%d vault=%s action=%s", cfg.AccountID, cfg.Vault, action)
	return ledger.NewResponse().
		AddAttribute("action", action).
		AddMessage(call), nil
}

// handOverVault passes the vault to another controller. This controller
// forgets the vault once the handover commits.
func handOverVault(store ledger.Storage, cfg api.ControllerConfig, msg api.SetController) (ledger.Response, error) {
	if msg.Controller.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: controller address is required", ledger.ErrInvalidMsg)
	}
	resp, err := callVault(cfg, "set_vault_controller", api.VaultExecute{SetController: &msg})
	if err != nil {
		return ledger.Response{}, err
	}
	prev := cfg.Vault
	cfg.Vault = ""
	if err := config.Save(store, cfg); err != nil {
		return ledger.Response{}, err
	}
	log.Info().Msgf("controller.Contract.handOverVault account=%d vault=%s controller=%s", cfg.AccountID, prev, msg.Controller)
	return resp.AddAttribute("controller", msg.Controller.String()), nil
}

func setGovernance(store ledger.Storage, cfg api.ControllerConfig, msg api.SetGovernance) (ledger.Response, error) {
	if err := msg.Governance.Validate(); err != nil {
		return ledger.Response{}, err
	}
	prev := cfg.Governance.Owner()
	cfg.Governance = msg.Governance
	if err := config.Save(store, cfg); err != nil {
		return ledger.Response{}, err
	}
	log.Info().Msgf("controller.Contract.setGovernance account=%d owner=%s->%s kind=%s", cfg.AccountID, prev, msg.Governance.Owner(), msg.Governance.Kind())
	return ledger.NewResponse().
		AddAttribute("action", "set_governance").
		AddAttribute("kind", msg.Governance.Kind()).
		AddAttribute("owner", msg.Governance.Owner().String()), nil
}

func updateInfo(store ledger.Storage, msg api.UpdateInfo) (ledger.Response, error) {
	cur, err := info.Load(store)
	if err != nil {
		return ledger.Response{}, err
	}
	if msg.Name != nil {
		name := strings.TrimSpace(*msg.Name)
		if name == "" {
			return ledger.Response{}, fmt.Errorf("%w: account name cannot be empty", ledger.ErrInvalidMsg)
		}
		cur.Name = name
	}
	if msg.Description != nil {
		cur.Description = *msg.Description
	}
	if err := info.Save(store, cur); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "update_info"), nil
}

func registerVault(store ledger.Storage, cfg api.ControllerConfig, vault ledger.Address) (ledger.Response, error) {
	if !cfg.Vault.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: %s", ErrVaultRegistered, cfg.Vault)
	}
	if vault.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: vault address is required", ledger.ErrInvalidMsg)
	}
	cfg.Vault = vault
	if err := config.Save(store, cfg); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().
		AddAttribute("action", "register_vault").
		AddAttribute("vault", vault.String()), nil
}

// Migrate upgrades the controller's own code; the stored version must rise.
func (Contract) Migrate(_ context.Context, deps ledger.Deps, _ ledger.Env, _ json.RawMessage) (ledger.Response, error) {
	if err := ledger.AssertMigration(deps.Storage, ContractName, ContractVersion); err != nil {
		return ledger.Response{}, err
	}
	if err := ledger.SetContractVersion(deps.Storage, ContractName, ContractVersion); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "migrate"), nil
}

func resolve(q ledger.Querier, reg ledger.Address, id, constraint string) (api.ModuleRecord, error) {
	mi, err := api.ParseModuleID(id)
	if err != nil {
		return api.ModuleRecord{}, err
	}
	var record api.ModuleRecord
	if err := q.QueryContract(reg, api.RegistryQuery{
		Resolve: &api.ResolveModule{Namespace: mi.Namespace, Name: mi.Name, Constraint: constraint},
	}, &record); err != nil {
		return api.ModuleRecord{}, err
	}
	return record, nil
}
