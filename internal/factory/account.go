package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/rs/zerolog/log"
)

// Base module ids resolved for every new account.
const (
	ControllerModuleID = "acctos:controller"
	VaultModuleID      = "acctos:vault"
)

const (
	replyController uint64 = 1
	replyVault      uint64 = 2
)

// pendingAccount carries a create_account call across its two replies.
type pendingAccount struct {
	AccountID   uint64             `json:"account_id"`
	Governance  governance.Details `json:"governance"`
	VaultCode   ledger.CodeID      `json:"vault_code"`
	Controller  ledger.Address     `json:"controller,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
}

var (
	accountConfig = ledger.NewItem[api.FactoryConfig]("config")
	pendingCreate = ledger.NewItem[pendingAccount]("pending_account")
)

// AccountFactory creates an account's controller and vault and registers the
// pair with the registry.
type AccountFactory struct{}

var (
	_ ledger.Contract = AccountFactory{}
	_ ledger.Replier  = AccountFactory{}
)

func NewAccountFactory() AccountFactory {
	return AccountFactory{}
}

func (AccountFactory) Instantiate(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.AccountFactoryInstantiate
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	if msg.Registry.IsZero() || msg.ModuleFactory.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: registry and module factory are required", ledger.ErrInvalidMsg)
	}
	admin := msg.Admin
	if admin.IsZero() {
		admin = info.Sender
	}
	if err := ledger.SetContractVersion(deps.Storage, AccountFactoryName, ContractVersion); err != nil {
		return ledger.Response{}, err
	}
	cfg := api.FactoryConfig{
		Admin:         admin,
		Registry:      msg.Registry,
		ModuleFactory: msg.ModuleFactory,
		NextAccountID: 1,
	}
	if err := accountConfig.Save(deps.Storage, cfg); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "instantiate"), nil
}

func (AccountFactory) Execute(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.AccountFactoryExecute
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	switch {
	case msg.CreateAccount != nil:
		return createAccount(deps, *msg.CreateAccount)
	case msg.UpdateConfig != nil:
		return updateConfig(deps.Storage, accountConfig, info.Sender, *msg.UpdateConfig)
	}
	return ledger.Response{}, fmt.Errorf("%w: unknown account factory message", ledger.ErrInvalidMsg)
}

func createAccount(deps ledger.Deps, msg api.CreateAccount) (ledger.Response, error) {
	if err := msg.Governance.Validate(); err != nil {
		return ledger.Response{}, err
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		return ledger.Response{}, fmt.Errorf("%w: account name is required", ledger.ErrInvalidMsg)
	}
	cfg, err := accountConfig.Load(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	if _, busy, err := pendingCreate.May(deps.Storage); err != nil {
		return ledger.Response{}, err
	} else if busy {
		return ledger.Response{}, fmt.Errorf("%w: account creation already in progress", ErrContinuationFailed)
	}

	controllerCode, err := resolveBase(deps.Querier, cfg.Registry, ControllerModuleID)
	if err != nil {
		return ledger.Response{}, err
	}
	vaultCode, err := resolveBase(deps.Querier, cfg.Registry, VaultModuleID)
	if err != nil {
		return ledger.Response{}, err
	}

	id := cfg.NextAccountID
	cfg.NextAccountID++
	if err := accountConfig.Save(deps.Storage, cfg); err != nil {
		return ledger.Response{}, err
	}
	if err := pendingCreate.Save(deps.Storage, pendingAccount{
		AccountID:   id,
		Governance:  msg.Governance,
		VaultCode:   vaultCode,
		Name:        name,
		Description: msg.Description,
	}); err != nil {
		return ledger.Response{}, err
	}

	inst, err := ledger.NewInstantiate(controllerCode, api.ControllerInstantiate{
		AccountID:     id,
		Governance:    msg.Governance,
		Name:          name,
		Description:   msg.Description,
		Registry:      cfg.Registry,
		ModuleFactory: cfg.ModuleFactory,
	}, fmt.Sprintf("account-%d controller", id), msg.Governance.Owner())
	if err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("factory.AccountFactory.createAccount account=%d name=%q governance=%s", id, name, msg.Governance.Kind())
	return ledger.NewResponse().
		AddAttribute("action", "create_account").
		AddAttribute("account_id", fmt.Sprint(id)).
		AddSubMessage(ledger.SubMsg{ID: replyController, Msg: inst, ReplyOn: ledger.ReplyAlways}), nil
}

func (AccountFactory) Reply(_ context.Context, deps ledger.Deps, env ledger.Env, reply ledger.Reply) (ledger.Response, error) {
	p, ok, err := pendingCreate.May(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	if !ok {
		return ledger.Response{}, fmt.Errorf("%w: no pending account for reply %d", ErrContinuationFailed, reply.ID)
	}
	if reply.Failed() {
		return ledger.Response{}, fmt.Errorf("%w: account %d reply %d: %s", ErrInstantiationFailed, p.AccountID, reply.ID, reply.Result.Err)
	}
	addr, err := ledger.ParseInstantiateReply(reply)
	if err != nil {
		return ledger.Response{}, fmt.Errorf("%w: %v", ErrContinuationFailed, err)
	}

	switch reply.ID {
	case replyController:
		return controllerCreated(deps, p, addr)
	case replyVault:
		return vaultCreated(deps, p, addr)
	}
	return ledger.Response{}, fmt.Errorf("%w: unknown reply id %d", ErrContinuationFailed, reply.ID)
}

func controllerCreated(deps ledger.Deps, p pendingAccount, controller ledger.Address) (ledger.Response, error) {
	p.Controller = controller
	if err := pendingCreate.Save(deps.Storage, p); err != nil {
		return ledger.Response{}, err
	}
	inst, err := ledger.NewInstantiate(p.VaultCode, api.VaultInstantiate{
		AccountID:  p.AccountID,
		Controller: controller,
	}, fmt.Sprintf("account-%d vault", p.AccountID), p.Governance.Owner())
	if err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("factory.AccountFactory.Reply account=%d controller=%s", p.AccountID, controller)
	return ledger.NewResponse().
		AddAttribute("controller", controller.String()).
		AddSubMessage(ledger.SubMsg{ID: replyVault, Msg: inst, ReplyOn: ledger.ReplyAlways}), nil
}

func vaultCreated(deps ledger.Deps, p pendingAccount, vault ledger.Address) (ledger.Response, error) {
	if p.Controller.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: vault reply before controller for account %d", ErrContinuationFailed, p.AccountID)
	}
	cfg, err := accountConfig.Load(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	pendingCreate.Remove(deps.Storage)

	bundle := api.AccountBundle{
		AccountID:  p.AccountID,
		Controller: p.Controller,
		Vault:      vault,
		Governance: api.GovernanceInfo{Kind: p.Governance.Kind(), Owner: p.Governance.Owner()},
	}
	registerVault, err := ledger.NewExecute(p.Controller, api.ControllerExecute{
		RegisterVault: &api.RegisterVault{Vault: vault},
	}, nil)
	if err != nil {
		return ledger.Response{}, err
	}
	addAccount, err := ledger.NewExecute(cfg.Registry, api.RegistryExecute{
		AddAccount: &api.AddAccount{Bundle: bundle},
	}, nil)
	if err != nil {
		return ledger.Response{}, err
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return ledger.Response{}, err
	}
	log.Info().Msgf("factory.AccountFactory.Reply account=%d controller=%s vault=%s", p.AccountID, p.Controller, vault)
	return ledger.NewResponse().
		AddAttribute("vault", vault.String()).
		AddMessage(registerVault).
		AddMessage(addAccount).
		SetData(data), nil
}

func (AccountFactory) Query(_ context.Context, deps ledger.QueryDeps, _ ledger.Env, raw json.RawMessage) ([]byte, error) {
	return queryConfig(deps.Storage, accountConfig, raw)
}

// resolveBase resolves the latest account-base code for id.
func resolveBase(q ledger.Querier, registry ledger.Address, id string) (ledger.CodeID, error) {
	record, err := resolve(q, registry, id, "")
	if err != nil {
		return 0, err
	}
	if record.Reference.AccountBase == nil {
		return 0, fmt.Errorf("%w: %s is a %s, not an account base", ErrCodeResolutionFailed, id, record.Reference.Kind())
	}
	return record.Reference.AccountBase.CodeID, nil
}
