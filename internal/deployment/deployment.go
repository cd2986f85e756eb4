// Package deployment stands up and reopens a full account system on a chain:
// registry, name resolution, both factories, and the account base modules.
package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/acctos/internal/ans"
	"github.com/danmuck/acctos/internal/ansync"
	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/controller"
	"github.com/danmuck/acctos/internal/factory"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/registry"
	"github.com/danmuck/acctos/internal/vault"
	"github.com/danmuck/acctos/internal/version"
	"github.com/rs/zerolog/log"
)

// Namespace holds the account base modules.
const Namespace = "acctos"

const manifestKey = "deployment"

var (
	ErrAlreadyDeployed = errors.New("deployment: already deployed")
	ErrNotDeployed     = errors.New("deployment: not deployed")
	ErrCodeMismatch    = errors.New("deployment: code mismatch")
)

// Codes are the stored code ids of the system contracts.
type Codes struct {
	Registry       ledger.CodeID `json:"registry"`
	ANS            ledger.CodeID `json:"ans"`
	ModuleFactory  ledger.CodeID `json:"module_factory"`
	AccountFactory ledger.CodeID `json:"account_factory"`
	Controller     ledger.CodeID `json:"controller"`
	Vault          ledger.CodeID `json:"vault"`
}

// Manifest is persisted with the chain so Load can find the contracts again.
type Manifest struct {
	Version        string         `json:"version"`
	Admin          ledger.Address `json:"admin"`
	Codes          Codes          `json:"codes"`
	Registry       ledger.Address `json:"registry"`
	ANS            ledger.Address `json:"ans"`
	ModuleFactory  ledger.Address `json:"module_factory"`
	AccountFactory ledger.Address `json:"account_factory"`
}

// Deployment is a handle on one deployed system. It holds no global state;
// several deployments may live on separate chains in one process.
type Deployment struct {
	chain    *ledger.Chain
	manifest Manifest

	Registry       *registry.Client
	ANS            *ans.Client
	ModuleFactory  *factory.Client
	AccountFactory *factory.Client
}

// Deploy stores every system code, instantiates the contracts, registers the
// account base modules at ver, and records the manifest.
func Deploy(ctx context.Context, chain *ledger.Chain, admin ledger.Address, ver string) (*Deployment, error) {
	if admin.IsZero() {
		return nil, fmt.Errorf("%w: admin address is required", ledger.ErrInvalidMsg)
	}
	if _, err := version.Parse(ver); err != nil {
		return nil, err
	}
	if _, ok := chain.Meta(manifestKey); ok {
		return nil, ErrAlreadyDeployed
	}
	codes, err := storeCodes(ctx, chain)
	if err != nil {
		return nil, err
	}
	m := Manifest{Version: ver, Admin: admin, Codes: codes}

	if m.Registry, _, err = chain.Instantiate(ctx, admin, codes.Registry, api.RegistryInstantiate{Admin: admin}, "registry", admin); err != nil {
		return nil, fmt.Errorf("instantiate registry: %w", err)
	}
	if m.ANS, _, err = chain.Instantiate(ctx, admin, codes.ANS, api.AnsInstantiate{Admin: admin}, "ans", admin); err != nil {
		return nil, fmt.Errorf("instantiate ans: %w", err)
	}
	if m.ModuleFactory, _, err = chain.Instantiate(ctx, admin, codes.ModuleFactory, api.ModuleFactoryInstantiate{
		Admin:    admin,
		Registry: m.Registry,
	}, "module-factory", admin); err != nil {
		return nil, fmt.Errorf("instantiate module factory: %w", err)
	}
	if m.AccountFactory, _, err = chain.Instantiate(ctx, admin, codes.AccountFactory, api.AccountFactoryInstantiate{
		Admin:         admin,
		Registry:      m.Registry,
		ModuleFactory: m.ModuleFactory,
	}, "account-factory", admin); err != nil {
		return nil, fmt.Errorf("instantiate account factory: %w", err)
	}

	d := newDeployment(chain, m)
	if err := d.Registry.ClaimNamespace(ctx, admin, Namespace, admin); err != nil {
		return nil, fmt.Errorf("claim %s namespace: %w", Namespace, err)
	}
	for _, base := range []struct {
		name string
		code ledger.CodeID
	}{
		{name: "controller", code: codes.Controller},
		{name: "vault", code: codes.Vault},
	} {
		if err := d.Registry.Register(ctx, admin, api.ModuleRecord{
			Namespace: Namespace,
			Name:      base.name,
			Version:   ver,
			Reference: api.AccountBaseRef(base.code),
		}); err != nil {
			return nil, fmt.Errorf("register %s:%s: %w", Namespace, base.name, err)
		}
	}
	if err := d.Registry.SetFactory(ctx, admin, m.AccountFactory); err != nil {
		return nil, fmt.Errorf("set account factory: %w", err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := chain.SetMeta(ctx, manifestKey, raw); err != nil {
		return nil, fmt.Errorf("persist manifest: %w", err)
	}
	log.Info().Msgf("deployment.Deploy version=%s registry=%s ans=%s account_factory=%s", ver, m.Registry, m.ANS, m.AccountFactory)
	return d, nil
}

// Load reopens the deployment recorded on chain and rebinds the system codes.
func Load(ctx context.Context, chain *ledger.Chain) (*Deployment, error) {
	raw, ok := chain.Meta(manifestKey)
	if !ok {
		return nil, ErrNotDeployed
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	codes, err := storeCodes(ctx, chain)
	if err != nil {
		return nil, err
	}
	if codes != m.Codes {
		return nil, fmt.Errorf("%w: manifest %+v, bound %+v", ErrCodeMismatch, m.Codes, codes)
	}
	log.Debug().Msgf("deployment.Load version=%s registry=%s", m.Version, m.Registry)
	return newDeployment(chain, m), nil
}

// storeCodes binds every system contract; stored codes are reused by name.
func storeCodes(ctx context.Context, chain *ledger.Chain) (Codes, error) {
	var codes Codes
	for _, c := range []struct {
		name string
		impl ledger.Contract
		dst  *ledger.CodeID
	}{
		{registry.ContractName, registry.New(), &codes.Registry},
		{ans.ContractName, ans.New(), &codes.ANS},
		{factory.ModuleFactoryName, factory.NewModuleFactory(), &codes.ModuleFactory},
		{factory.AccountFactoryName, factory.NewAccountFactory(), &codes.AccountFactory},
		{controller.ContractName, controller.New(), &codes.Controller},
		{vault.ContractName, vault.New(), &codes.Vault},
	} {
		id, err := chain.StoreCode(ctx, c.name, c.impl)
		if err != nil {
			return Codes{}, fmt.Errorf("store %s: %w", c.name, err)
		}
		*c.dst = id
	}
	return codes, nil
}

func newDeployment(chain *ledger.Chain, m Manifest) *Deployment {
	return &Deployment{
		chain:          chain,
		manifest:       m,
		Registry:       registry.NewClient(chain, m.Registry),
		ANS:            ans.NewClient(chain, m.ANS),
		ModuleFactory:  factory.NewClient(chain, m.ModuleFactory),
		AccountFactory: factory.NewClient(chain, m.AccountFactory),
	}
}

func (d *Deployment) Chain() *ledger.Chain {
	return d.chain
}

func (d *Deployment) Manifest() Manifest {
	return d.manifest
}

func (d *Deployment) Admin() ledger.Address {
	return d.manifest.Admin
}

// CreateAccount creates a controller and vault in one transaction.
func (d *Deployment) CreateAccount(ctx context.Context, sender ledger.Address, gov governance.Details, name string) (api.AccountBundle, error) {
	bundle, err := d.AccountFactory.CreateAccount(ctx, sender, gov, name, "")
	if err != nil {
		return api.AccountBundle{}, err
	}
	log.Info().Msgf("deployment.Deployment.CreateAccount account=%d controller=%s vault=%s", bundle.AccountID, bundle.Controller, bundle.Vault)
	return bundle, nil
}

// Account returns a handle on a registered account.
func (d *Deployment) Account(ctx context.Context, id uint64) (*Account, error) {
	bundle, err := d.Registry.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.AccountFor(bundle), nil
}

// AccountFor wraps a known bundle without a registry lookup.
func (d *Deployment) AccountFor(bundle api.AccountBundle) *Account {
	return &Account{
		Bundle:     bundle,
		exec:       d.chain,
		controller: controller.NewClient(d.chain, bundle.Controller),
		vault:      vault.NewClient(d.chain, bundle.Vault),
	}
}

// StoreModuleCode binds module code so it can be published and installed.
func (d *Deployment) StoreModuleCode(ctx context.Context, name string, impl ledger.Contract) (ledger.CodeID, error) {
	return d.chain.StoreCode(ctx, name, impl)
}

// ClaimNamespace claims ns for owner. Claims for someone else need the admin.
func (d *Deployment) ClaimNamespace(ctx context.Context, sender ledger.Address, ns string, owner ledger.Address) error {
	return d.Registry.ClaimNamespace(ctx, sender, ns, owner)
}

// PublishModule registers a new module version under a namespace publisher owns.
func (d *Deployment) PublishModule(ctx context.Context, publisher ledger.Address, record api.ModuleRecord) error {
	if err := d.Registry.Register(ctx, publisher, record); err != nil {
		return err
	}
	log.Info().Msgf("deployment.Deployment.PublishModule module=%s version=%s kind=%s", record.Info().ID(), record.Version, record.Reference.Kind())
	return nil
}

// Submitter returns a chunked name-resolution submitter acting as the admin.
func (d *Deployment) Submitter(opts ansync.Options) *ansync.Submitter {
	return ansync.NewSubmitter(d.ANS, d.manifest.Admin, opts)
}
