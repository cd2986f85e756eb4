package api

import (
	"encoding/json"

	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
)

// Module factory.

type ModuleFactoryInstantiate struct {
	Admin    ledger.Address `json:"admin"`
	Registry ledger.Address `json:"registry"`
}

type ModuleFactoryExecute struct {
	InstallModule *InstallModuleRequest `json:"install_module,omitempty"`
	UpdateConfig  *FactoryConfigUpdate  `json:"update_config,omitempty"`
}

// InstallModuleRequest is sent by a controller on behalf of its account.
type InstallModuleRequest struct {
	AccountID uint64          `json:"account_id"`
	Module    ModuleRef       `json:"module"`
	InitMsg   json.RawMessage `json:"init_msg,omitempty"`
}

type FactoryConfigUpdate struct {
	Admin         ledger.Address `json:"admin,omitempty"`
	Registry      ledger.Address `json:"registry,omitempty"`
	ModuleFactory ledger.Address `json:"module_factory,omitempty"`
}

type FactoryQuery struct {
	Config *struct{} `json:"config,omitempty"`
}

type FactoryConfig struct {
	Admin         ledger.Address `json:"admin"`
	Registry      ledger.Address `json:"registry"`
	ModuleFactory ledger.Address `json:"module_factory,omitempty"`
	NextAccountID uint64         `json:"next_account_id,omitempty"`
}

// Account factory.

type AccountFactoryInstantiate struct {
	Admin         ledger.Address `json:"admin"`
	Registry      ledger.Address `json:"registry"`
	ModuleFactory ledger.Address `json:"module_factory"`
}

type AccountFactoryExecute struct {
	CreateAccount *CreateAccount       `json:"create_account,omitempty"`
	UpdateConfig  *FactoryConfigUpdate `json:"update_config,omitempty"`
}

type CreateAccount struct {
	Governance  governance.Details `json:"governance"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
}

// Controller.

type ControllerInstantiate struct {
	AccountID     uint64             `json:"account_id"`
	Governance    governance.Details `json:"governance"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Registry      ledger.Address     `json:"registry"`
	ModuleFactory ledger.Address     `json:"module_factory"`
}

type ControllerExecute struct {
	InstallModule   *InstallModule   `json:"install_module,omitempty"`
	RegisterModule  *RegisterInstall `json:"register_module,omitempty"`
	UpgradeModule   *UpgradeModule   `json:"upgrade_module,omitempty"`
	UninstallModule *UninstallModule `json:"uninstall_module,omitempty"`
	ExecOnModule    *ExecOnModule    `json:"exec_on_module,omitempty"`
	ExecOnVault     *ExecOnVault     `json:"exec_on_vault,omitempty"`
	SetGovernance   *SetGovernance   `json:"set_governance,omitempty"`
	UpdateInfo      *UpdateInfo      `json:"update_info,omitempty"`
	RegisterVault   *RegisterVault   `json:"register_vault,omitempty"`

	UpdateVaultFee     *UpdateFee     `json:"update_vault_fee,omitempty"`
	SetVaultController *SetController `json:"set_vault_controller,omitempty"`
}

type InstallModule struct {
	Module  ModuleRef       `json:"module"`
	InitMsg json.RawMessage `json:"init_msg,omitempty"`
}

// RegisterInstall completes an install; only the module factory sends it.
type RegisterInstall struct {
	ModuleID string         `json:"module_id"`
	Address  ledger.Address `json:"address"`
	Version  string         `json:"version"`
	Kind     string         `json:"kind"`
}

type UpgradeModule struct {
	ModuleID   string          `json:"module_id"`
	Version    string          `json:"version,omitempty"`
	MigrateMsg json.RawMessage `json:"migrate_msg,omitempty"`
}

type UninstallModule struct {
	ModuleID string `json:"module_id"`
}

type ExecOnModule struct {
	ModuleID string          `json:"module_id"`
	Msg      json.RawMessage `json:"msg"`
}

type ExecOnVault struct {
	Msgs []ledger.Msg `json:"msgs"`
}

type SetGovernance struct {
	Governance governance.Details `json:"governance"`
}

type UpdateInfo struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type RegisterVault struct {
	Vault ledger.Address `json:"vault"`
}

type ControllerQuery struct {
	Info    *struct{}    `json:"info,omitempty"`
	Config  *struct{}    `json:"config,omitempty"`
	Module  *ModuleQuery `json:"module,omitempty"`
	Modules *PageQuery   `json:"modules,omitempty"`
}

type ModuleQuery struct {
	ModuleID string `json:"module_id"`
}

// Installed module lifecycle states.
const (
	StatusInstalling    = "installing"
	StatusInstalled     = "installed"
	StatusUpgrading     = "upgrading"
	StatusUpgradeFailed = "upgrade_failed"
)

// ModuleEntry is the controller's record of one installed module.
type ModuleEntry struct {
	ModuleID       string         `json:"module_id"`
	Address        ledger.Address `json:"address,omitempty"`
	Version        string         `json:"version"`
	Kind           string         `json:"kind"`
	Status         string         `json:"status"`
	PendingVersion string         `json:"pending_version,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}

type ControllerInfo struct {
	AccountID   uint64 `json:"account_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ControllerConfig struct {
	AccountID     uint64             `json:"account_id"`
	Governance    governance.Details `json:"governance"`
	Vault         ledger.Address     `json:"vault,omitempty"`
	Registry      ledger.Address     `json:"registry"`
	ModuleFactory ledger.Address     `json:"module_factory"`
	Factory       ledger.Address     `json:"factory"`
}

type ModulesPage struct {
	Modules []ModuleEntry `json:"modules"`
}

// Vault.

type VaultInstantiate struct {
	AccountID  uint64         `json:"account_id"`
	Controller ledger.Address `json:"controller"`
}

type VaultExecute struct {
	ExecuteOnBehalf *ExecuteOnBehalf `json:"execute_on_behalf,omitempty"`
	SetController   *SetController   `json:"set_controller,omitempty"`
	UpdateFee       *UpdateFee       `json:"update_fee,omitempty"`
}

type ExecuteOnBehalf struct {
	Msgs []ledger.Msg `json:"msgs"`
}

type SetController struct {
	Controller ledger.Address `json:"controller"`
}

type UpdateFee struct {
	Fee *Fee `json:"fee"`
}

// Fee is charged by fee-wrapping deployments, in basis points.
type Fee struct {
	BasisPoints uint32         `json:"basis_points"`
	Recipient   ledger.Address `json:"recipient"`
}

type VaultQuery struct {
	Config   *struct{}      `json:"config,omitempty"`
	Balances *BalancesQuery `json:"balances,omitempty"`
}

type BalancesQuery struct {
	Denoms []string `json:"denoms,omitempty"`
}

type VaultConfig struct {
	AccountID  uint64         `json:"account_id"`
	Controller ledger.Address `json:"controller"`
	Fee        *Fee           `json:"fee,omitempty"`
}

type BalancesResponse struct {
	Balances ledger.Coins `json:"balances"`
}
