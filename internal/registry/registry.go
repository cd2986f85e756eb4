// Package registry is the version-controlled module registry and account
// directory. Module records are append-only and versions are strictly
// increasing per (namespace, name).
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/version"
	"github.com/rs/zerolog/log"
)

const (
	ContractName    = "acctos:registry"
	ContractVersion = "0.4.0"
)

var (
	ErrNamespaceClaimed      = errors.New("registry: namespace already claimed")
	ErrNamespaceUnauthorized = errors.New("registry: namespace unauthorized")
	ErrVersionNotMonotonic   = errors.New("registry: version not monotonic")
	ErrInvalidVersion        = errors.New("registry: invalid version")
	ErrInvalidName           = errors.New("registry: invalid name")
	ErrNotFound              = errors.New("registry: not found")
	ErrUnauthorized          = errors.New("registry: unauthorized")
	ErrAccountExists         = errors.New("registry: account already registered")
)

// VersionNotMonotonicError carries the rejected version and the current latest.
type VersionNotMonotonicError struct {
	Module   string
	Rejected string
	Latest   string
}

func (e *VersionNotMonotonicError) Error() string {
	return fmt.Sprintf("%s: %s %s is not above latest %s", ErrVersionNotMonotonic, e.Module, e.Rejected, e.Latest)
}

func (e *VersionNotMonotonicError) Unwrap() error {
	return ErrVersionNotMonotonic
}

var (
	config      = ledger.NewItem[api.RegistryConfig]("config")
	namespaces  = ledger.NewMap[ledger.Address]("ns")
	accounts    = ledger.NewMap[api.AccountBundle]("account")
	controllers = ledger.NewMap[uint64]("controller")
)

func moduleVersions(ns, name string) ledger.Map[api.ModuleRecord] {
	return ledger.NewMap[api.ModuleRecord]("mod/" + ns + "/" + name)
}

func moduleIndex(ns string) ledger.Map[bool] {
	return ledger.NewMap[bool]("modidx/" + ns)
}

func accountKey(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

// Contract implements ledger.Contract.
type Contract struct{}

var _ ledger.Contract = Contract{}

func New() Contract {
	return Contract{}
}

func (Contract) Instantiate(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.RegistryInstantiate
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	admin := msg.Admin
	if admin.IsZero() {
		admin = info.Sender
	}
	if err := ledger.SetContractVersion(deps.Storage, ContractName, ContractVersion); err != nil {
		return ledger.Response{}, err
	}
	if err := config.Save(deps.Storage, api.RegistryConfig{Admin: admin}); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "instantiate").AddAttribute("admin", admin.String()), nil
}

func (c Contract) Execute(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.RegistryExecute
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	switch {
	case msg.ClaimNamespace != nil:
		return claimNamespace(deps.Storage, info.Sender, *msg.ClaimNamespace)
	case msg.Register != nil:
		return register(deps.Storage, info.Sender, *msg.Register)
	case msg.SetFactory != nil:
		return setFactory(deps.Storage, info.Sender, msg.SetFactory.Address)
	case msg.AddAccount != nil:
		return addAccount(deps.Storage, info.Sender, msg.AddAccount.Bundle)
	case msg.SetAdmin != nil:
		return setAdmin(deps.Storage, info.Sender, msg.SetAdmin.Admin)
	}
	return ledger.Response{}, fmt.Errorf("%w: unknown registry message", ledger.ErrInvalidMsg)
}

func claimNamespace(store ledger.Storage, sender ledger.Address, msg api.ClaimNamespace) (ledger.Response, error) {
	ns := strings.TrimSpace(msg.Namespace)
	if !isValidID(ns) {
		return ledger.Response{}, fmt.Errorf("%w: namespace %q", ErrInvalidName, msg.Namespace)
	}
	cfg, err := config.Load(store)
	if err != nil {
		return ledger.Response{}, err
	}
	owner := sender
	if !msg.Owner.IsZero() && msg.Owner != sender {
		if sender != cfg.Admin {
			return ledger.Response{}, fmt.Errorf("%w: only the admin may claim for another owner", ErrUnauthorized)
		}
		owner = msg.Owner
	}
	if current, ok, err := namespaces.Load(store, ns); err != nil {
		return ledger.Response{}, err
	} else if ok && sender != cfg.Admin {
		return ledger.Response{}, fmt.Errorf("%w: %q is owned by %s", ErrNamespaceClaimed, ns, current)
	}
	if err := namespaces.Save(store, ns, owner); err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("registry.Contract.claimNamespace namespace=%s owner=%s", ns, owner)
	return ledger.NewResponse().
		AddAttribute("action", "claim_namespace").
		AddAttribute("namespace", ns).
		AddAttribute("owner", owner.String()), nil
}

func register(store ledger.Storage, sender ledger.Address, msg api.RegisterModule) (ledger.Response, error) {
	ns := strings.TrimSpace(msg.Namespace)
	name := strings.TrimSpace(msg.Name)
	if !isValidID(ns) || !isValidID(name) {
		return ledger.Response{}, fmt.Errorf("%w: module %q:%q", ErrInvalidName, msg.Namespace, msg.Name)
	}
	owner, ok, err := namespaces.Load(store, ns)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok || owner != sender {
		return ledger.Response{}, fmt.Errorf("%w: %s may not publish to %q", ErrNamespaceUnauthorized, sender, ns)
	}
	v, err := version.Parse(msg.Version)
	if err != nil {
		return ledger.Response{}, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	if err := msg.Reference.Validate(); err != nil {
		return ledger.Response{}, err
	}
	id := ns + ":" + name
	versions := moduleVersions(ns, name)
	if latest, ok, err := latestVersion(store, ns, name); err != nil {
		return ledger.Response{}, err
	} else if ok && v.Compare(latest) <= 0 {
		return ledger.Response{}, &VersionNotMonotonicError{Module: id, Rejected: v.String(), Latest: latest.String()}
	}

	record := api.ModuleRecord{Namespace: ns, Name: name, Version: v.String(), Reference: msg.Reference}
	if err := versions.Save(store, v.String(), record); err != nil {
		return ledger.Response{}, err
	}
	if err := moduleIndex(ns).Save(store, name, true); err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("registry.Contract.register module=%s version=%s kind=%s", id, v, msg.Reference.Kind())
	return ledger.NewResponse().
		AddAttribute("action", "register").
		AddAttribute("module", id).
		AddAttribute("version", v.String()).
		AddAttribute("kind", msg.Reference.Kind()), nil
}

func setFactory(store ledger.Storage, sender, factory ledger.Address) (ledger.Response, error) {
	cfg, err := config.Load(store)
	if err != nil {
		return ledger.Response{}, err
	}
	if sender != cfg.Admin {
		return ledger.Response{}, fmt.Errorf("%w: set_factory requires admin", ErrUnauthorized)
	}
	cfg.AccountFactory = factory
	if err := config.Save(store, cfg); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "set_factory").AddAttribute("factory", factory.String()), nil
}

func addAccount(store ledger.Storage, sender ledger.Address, bundle api.AccountBundle) (ledger.Response, error) {
	cfg, err := config.Load(store)
	if err != nil {
		return ledger.Response{}, err
	}
	if cfg.AccountFactory.IsZero() || sender != cfg.AccountFactory {
		return ledger.Response{}, fmt.Errorf("%w: add_account requires the account factory", ErrUnauthorized)
	}
	if bundle.Controller.IsZero() || bundle.Vault.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: bundle needs controller and vault", ErrInvalidName)
	}
	key := accountKey(bundle.AccountID)
	if accounts.Has(store, key) || controllers.Has(store, bundle.Controller.String()) {
		return ledger.Response{}, fmt.Errorf("%w: account %d", ErrAccountExists, bundle.AccountID)
	}
	if err := accounts.Save(store, key, bundle); err != nil {
		return ledger.Response{}, err
	}
	if err := controllers.Save(store, bundle.Controller.String(), bundle.AccountID); err != nil {
		return ledger.Response{}, err
	}
	cfg.AccountCount++
	if err := config.Save(store, cfg); err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("registry.Contract.addAccount account_id=%d controller=%s", bundle.AccountID, bundle.Controller)
	return ledger.NewResponse().
		AddAttribute("action", "add_account").
		AddAttribute("account_id", fmt.Sprint(bundle.AccountID)), nil
}

func setAdmin(store ledger.Storage, sender, admin ledger.Address) (ledger.Response, error) {
	cfg, err := config.Load(store)
	if err != nil {
		return ledger.Response{}, err
	}
	if sender != cfg.Admin {
		return ledger.Response{}, fmt.Errorf("%w: set_admin requires admin", ErrUnauthorized)
	}
	if admin.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: admin address is required", ErrInvalidName)
	}
	cfg.Admin = admin
	if err := config.Save(store, cfg); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "set_admin").AddAttribute("admin", admin.String()), nil
}

func (Contract) Query(_ context.Context, deps ledger.QueryDeps, _ ledger.Env, raw json.RawMessage) ([]byte, error) {
	var msg api.RegistryQuery
	if err := ledger.Decode(raw, &msg); err != nil {
		return nil, err
	}
	store := deps.Storage
	switch {
	case msg.Resolve != nil:
		record, err := Resolve(store, msg.Resolve.Namespace, msg.Resolve.Name, msg.Resolve.Constraint)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(record)
	case msg.Versions != nil:
		vs, err := versionsOf(store, msg.Versions.Namespace, msg.Versions.Name)
		if err != nil {
			return nil, err
		}
		out := api.VersionsResponse{Versions: make([]string, 0, len(vs))}
		for _, v := range vs {
			out.Versions = append(out.Versions, v.String())
		}
		return ledger.Encode(out)
	case msg.Modules != nil:
		return queryModules(store, *msg.Modules)
	case msg.Namespace != nil:
		owner, ok, err := namespaces.Load(store, msg.Namespace.Namespace)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: namespace %q", ErrNotFound, msg.Namespace.Namespace)
		}
		return ledger.Encode(api.NamespaceResponse{Namespace: msg.Namespace.Namespace, Owner: owner})
	case msg.Account != nil:
		bundle, ok, err := accounts.Load(store, accountKey(msg.Account.AccountID))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: account %d", ErrNotFound, msg.Account.AccountID)
		}
		return ledger.Encode(bundle)
	case msg.AccountByController != nil:
		id, ok, err := controllers.Load(store, msg.AccountByController.Controller.String())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: controller %s", ErrNotFound, msg.AccountByController.Controller)
		}
		bundle, _, err := accounts.Load(store, accountKey(id))
		if err != nil {
			return nil, err
		}
		return ledger.Encode(bundle)
	case msg.Config != nil:
		cfg, err := config.Load(store)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(cfg)
	}
	return nil, fmt.Errorf("%w: unknown registry query", ledger.ErrInvalidMsg)
}

// Resolve picks the highest version of namespace:name matching constraint.
func Resolve(store ledger.ReadStorage, ns, name, constraint string) (api.ModuleRecord, error) {
	c, err := version.ParseConstraint(constraint)
	if err != nil {
		return api.ModuleRecord{}, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	vs, err := versionsOf(store, ns, name)
	if err != nil {
		return api.ModuleRecord{}, err
	}
	chosen, ok := c.Select(vs)
	if !ok {
		return api.ModuleRecord{}, fmt.Errorf("%w: %s:%s@%s", ErrNotFound, ns, name, c)
	}
	record, _, err := moduleVersions(ns, name).Load(store, chosen.String())
	return record, err
}

func latestVersion(store ledger.ReadStorage, ns, name string) (version.Version, bool, error) {
	vs, err := versionsOf(store, ns, name)
	if err != nil {
		return version.Version{}, false, err
	}
	latest, ok := version.Max(vs)
	return latest, ok, nil
}

// versionsOf returns every published version in ascending order.
func versionsOf(store ledger.ReadStorage, ns, name string) ([]version.Version, error) {
	keys := moduleVersions(ns, name).Keys(store)
	out := make([]version.Version, 0, len(keys))
	for _, k := range keys {
		v, err := version.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("%w: stored version %q: %v", ErrInvalidVersion, k, err)
		}
		out = append(out, v)
	}
	version.Sort(out)
	return out, nil
}

func queryModules(store ledger.ReadStorage, q api.ListModules) ([]byte, error) {
	names, err := moduleIndex(q.Namespace).Range(store, q.StartAfter, api.PageLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	out := api.ModulesResponse{Modules: make([]api.ModuleRecord, 0, len(names))}
	for _, n := range names {
		record, err := Resolve(store, q.Namespace, n.Key, "")
		if err != nil {
			return nil, err
		}
		out.Modules = append(out.Modules, record)
	}
	return ledger.Encode(out)
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 || i == len(id)-1 {
			if isSep {
				return false
			}
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
