// Package api holds the JSON message and response types exchanged with the
// account system's contracts. Every message struct is a closed variant with
// exactly one non-nil field.
package api

import "github.com/danmuck/acctos/internal/ledger"

type RegistryInstantiate struct {
	Admin ledger.Address `json:"admin"`
}

type RegistryExecute struct {
	ClaimNamespace *ClaimNamespace `json:"claim_namespace,omitempty"`
	Register       *RegisterModule `json:"register,omitempty"`
	SetFactory     *SetFactory     `json:"set_factory,omitempty"`
	AddAccount     *AddAccount     `json:"add_account,omitempty"`
	SetAdmin       *SetAdmin       `json:"set_admin,omitempty"`
}

// ClaimNamespace claims for the sender, or for Owner when the admin sends it.
type ClaimNamespace struct {
	Namespace string         `json:"namespace"`
	Owner     ledger.Address `json:"owner,omitempty"`
}

type RegisterModule struct {
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Reference Reference `json:"reference"`
}

type SetFactory struct {
	Address ledger.Address `json:"address"`
}

type AddAccount struct {
	Bundle AccountBundle `json:"bundle"`
}

type SetAdmin struct {
	Admin ledger.Address `json:"admin"`
}

type RegistryQuery struct {
	Resolve             *ResolveModule       `json:"resolve,omitempty"`
	Versions            *ModuleVersions      `json:"versions,omitempty"`
	Modules             *ListModules         `json:"modules,omitempty"`
	Namespace           *NamespaceQuery      `json:"namespace,omitempty"`
	Account             *AccountQuery        `json:"account,omitempty"`
	AccountByController *AccountByController `json:"account_by_controller,omitempty"`
	Config              *struct{}            `json:"config,omitempty"`
}

type ResolveModule struct {
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	Constraint string `json:"constraint,omitempty"`
}

type ModuleVersions struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

type ListModules struct {
	Namespace  string `json:"namespace"`
	StartAfter string `json:"start_after,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type NamespaceQuery struct {
	Namespace string `json:"namespace"`
}

type AccountQuery struct {
	AccountID uint64 `json:"account_id"`
}

type AccountByController struct {
	Controller ledger.Address `json:"controller"`
}

type VersionsResponse struct {
	Versions []string `json:"versions"`
}

// ModulesResponse lists the latest record of each module in a namespace.
type ModulesResponse struct {
	Modules []ModuleRecord `json:"modules"`
}

type NamespaceResponse struct {
	Namespace string         `json:"namespace"`
	Owner     ledger.Address `json:"owner"`
}

type RegistryConfig struct {
	Admin          ledger.Address `json:"admin"`
	AccountFactory ledger.Address `json:"account_factory,omitempty"`
	AccountCount   uint64         `json:"account_count"`
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageLimit clamps a requested page size.
func PageLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}
