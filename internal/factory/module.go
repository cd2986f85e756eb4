// Package factory instantiates accounts and the modules installed on them.
//
// Both factories work in two phases: the call issues an instantiate
// sub-message and records a pending continuation; the reply reads the new
// address back, clears the continuation, and wires the instance into the
// account.
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/rs/zerolog/log"
)

const (
	ModuleFactoryName  = "acctos:module-factory"
	AccountFactoryName = "acctos:account-factory"
	ContractVersion    = "0.4.0"
)

var (
	ErrUnauthorized         = errors.New("factory: unauthorized")
	ErrCodeResolutionFailed = errors.New("factory: code resolution failed")
	ErrInstantiationFailed  = errors.New("factory: instantiation failed")
	ErrContinuationFailed   = errors.New("factory: continuation failed")
)

// pendingInstall is the continuation for one module instantiation.
type pendingInstall struct {
	AccountID  uint64         `json:"account_id"`
	Controller ledger.Address `json:"controller"`
	ModuleID   string         `json:"module_id"`
	Version    string         `json:"version"`
	Kind       string         `json:"kind"`
}

var (
	moduleConfig = ledger.NewItem[api.FactoryConfig]("config")
	installSeq   = ledger.NewItem[uint64]("install_seq")
	installs     = ledger.NewMap[pendingInstall]("pending")
)

// ModuleFactory installs registry modules on behalf of account controllers.
type ModuleFactory struct{}

var (
	_ ledger.Contract = ModuleFactory{}
	_ ledger.Replier  = ModuleFactory{}
)

func NewModuleFactory() ModuleFactory {
	return ModuleFactory{}
}

func (ModuleFactory) Instantiate(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.ModuleFactoryInstantiate
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	admin := msg.Admin
	if admin.IsZero() {
		admin = info.Sender
	}
	if msg.Registry.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: registry address is required", ledger.ErrInvalidMsg)
	}
	if err := ledger.SetContractVersion(deps.Storage, ModuleFactoryName, ContractVersion); err != nil {
		return ledger.Response{}, err
	}
	if err := moduleConfig.Save(deps.Storage, api.FactoryConfig{Admin: admin, Registry: msg.Registry}); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "instantiate"), nil
}

func (ModuleFactory) Execute(_ context.Context, deps ledger.Deps, env ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.ModuleFactoryExecute
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	switch {
	case msg.InstallModule != nil:
		return installModule(deps, info.Sender, *msg.InstallModule)
	case msg.UpdateConfig != nil:
		return updateConfig(deps.Storage, moduleConfig, info.Sender, *msg.UpdateConfig)
	}
	return ledger.Response{}, fmt.Errorf("%w: unknown module factory message", ledger.ErrInvalidMsg)
}

func installModule(deps ledger.Deps, sender ledger.Address, req api.InstallModuleRequest) (ledger.Response, error) {
	cfg, err := moduleConfig.Load(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	var bundle api.AccountBundle
	if err := deps.Querier.QueryContract(cfg.Registry, api.RegistryQuery{
		AccountByController: &api.AccountByController{Controller: sender},
	}, &bundle); err != nil {
		return ledger.Response{}, fmt.Errorf("%w: %s is not a registered controller: %v", ErrUnauthorized, sender, err)
	}
	if bundle.AccountID != req.AccountID {
		return ledger.Response{}, fmt.Errorf("%w: controller %s belongs to account %d, not %d", ErrUnauthorized, sender, bundle.AccountID, req.AccountID)
	}

	record, err := resolve(deps.Querier, cfg.Registry, req.Module.ID, req.Module.Version)
	if err != nil {
		return ledger.Response{}, err
	}
	kind := record.Reference.Kind()
	moduleID := record.Info().ID()

	switch kind {
	case api.KindAdapter:
		reg, err := registerInstallMsg(sender, moduleID, record.Reference.Adapter.Address, record.Version, kind)
		if err != nil {
			return ledger.Response{}, err
		}
		log.Debug().Msgf("factory.ModuleFactory.installModule account=%d module=%s kind=adapter", req.AccountID, moduleID)
		return ledger.NewResponse().
			AddAttribute("action", "install_module").
			AddAttribute("module", moduleID).
			AddMessage(reg), nil
	case api.KindApp, api.KindStandalone:
	default:
		return ledger.Response{}, fmt.Errorf("%w: %s is a %s and cannot be installed", ErrCodeResolutionFailed, moduleID, kind)
	}

	code, _ := record.Reference.CodeID()
	seq, _, err := installSeq.May(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	seq++
	if err := installSeq.Save(deps.Storage, seq); err != nil {
		return ledger.Response{}, err
	}
	if err := installs.Save(deps.Storage, strconv.FormatUint(seq, 10), pendingInstall{
		AccountID:  req.AccountID,
		Controller: sender,
		ModuleID:   moduleID,
		Version:    record.Version,
		Kind:       kind,
	}); err != nil {
		return ledger.Response{}, err
	}

	initMsg := req.InitMsg
	if len(initMsg) == 0 {
		initMsg = json.RawMessage(`{}`)
	}
	inst := ledger.Msg{Instantiate: &ledger.InstantiateMsg{
		CodeID: code,
		Msg:    initMsg,
		Label:  fmt.Sprintf("account-%d %s@%s", req.AccountID, moduleID, record.Version),
		Admin:  sender,
	}}
	log.Debug().Msgf("factory.ModuleFactory.installModule account=%d module=%s version=%s correlation=%d", req.AccountID, moduleID, record.Version, seq)
	return ledger.NewResponse().
		AddAttribute("action", "install_module").
		AddAttribute("module", moduleID).
		AddSubMessage(ledger.SubMsg{ID: seq, Msg: inst, ReplyOn: ledger.ReplyAlways}), nil
}

func (ModuleFactory) Reply(_ context.Context, deps ledger.Deps, _ ledger.Env, reply ledger.Reply) (ledger.Response, error) {
	key := strconv.FormatUint(reply.ID, 10)
	p, ok, err := installs.Load(deps.Storage, key)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok {
		return ledger.Response{}, fmt.Errorf("%w: no pending install for reply %d", ErrContinuationFailed, reply.ID)
	}
	installs.Remove(deps.Storage, key)
	if reply.Failed() {
		return ledger.Response{}, fmt.Errorf("%w: %s: %s", ErrInstantiationFailed, p.ModuleID, reply.Result.Err)
	}
	addr, err := ledger.ParseInstantiateReply(reply)
	if err != nil {
		return ledger.Response{}, fmt.Errorf("%w: %v", ErrContinuationFailed, err)
	}
	reg, err := registerInstallMsg(p.Controller, p.ModuleID, addr, p.Version, p.Kind)
	if err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("factory.ModuleFactory.Reply account=%d module=%s address=%s", p.AccountID, p.ModuleID, addr)
	return ledger.NewResponse().
		AddAttribute("action", "install_module_reply").
		AddAttribute("module", p.ModuleID).
		AddAttribute("address", addr.String()).
		AddMessage(reg), nil
}

func (ModuleFactory) Query(_ context.Context, deps ledger.QueryDeps, _ ledger.Env, raw json.RawMessage) ([]byte, error) {
	return queryConfig(deps.Storage, moduleConfig, raw)
}

func registerInstallMsg(controller ledger.Address, moduleID string, addr ledger.Address, version, kind string) (ledger.Msg, error) {
	return ledger.NewExecute(controller, api.ControllerExecute{
		RegisterModule: &api.RegisterInstall{ModuleID: moduleID, Address: addr, Version: version, Kind: kind},
	}, nil)
}

func resolve(q ledger.Querier, registry ledger.Address, id, constraint string) (api.ModuleRecord, error) {
	info, err := api.ParseModuleID(id)
	if err != nil {
		return api.ModuleRecord{}, fmt.Errorf("%w: %v", ErrCodeResolutionFailed, err)
	}
	var record api.ModuleRecord
	if err := q.QueryContract(registry, api.RegistryQuery{
		Resolve: &api.ResolveModule{Namespace: info.Namespace, Name: info.Name, Constraint: constraint},
	}, &record); err != nil {
		return api.ModuleRecord{}, fmt.Errorf("%w: %s@%s: %v", ErrCodeResolutionFailed, id, constraint, err)
	}
	return record, nil
}

func updateConfig(store ledger.Storage, item ledger.Item[api.FactoryConfig], sender ledger.Address, upd api.FactoryConfigUpdate) (ledger.Response, error) {
	cfg, err := item.Load(store)
	if err != nil {
		return ledger.Response{}, err
	}
	if sender != cfg.Admin {
		return ledger.Response{}, fmt.Errorf("%w: update_config requires admin", ErrUnauthorized)
	}
	if !upd.Admin.IsZero() {
		cfg.Admin = upd.Admin
	}
	if !upd.Registry.IsZero() {
		cfg.Registry = upd.Registry
	}
	if !upd.ModuleFactory.IsZero() {
		cfg.ModuleFactory = upd.ModuleFactory
	}
	if err := item.Save(store, cfg); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "update_config"), nil
}

func queryConfig(store ledger.ReadStorage, item ledger.Item[api.FactoryConfig], raw json.RawMessage) ([]byte, error) {
	var msg api.FactoryQuery
	if err := ledger.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Config == nil {
		return nil, fmt.Errorf("%w: unknown factory query", ledger.ErrInvalidMsg)
	}
	cfg, err := item.Load(store)
	if err != nil {
		return nil, err
	}
	return ledger.Encode(cfg)
}
