package factory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/controller"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/registry"
	"github.com/danmuck/acctos/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

const (
	admin ledger.Address = "acct1admin"
	owner ledger.Address = "acct1owner"
)

// broken refuses to instantiate.
type broken struct{}

func (broken) Instantiate(context.Context, ledger.Deps, ledger.Env, ledger.MessageInfo, json.RawMessage) (ledger.Response, error) {
	return ledger.Response{}, errors.New("broken: refusing to start")
}

func (broken) Execute(context.Context, ledger.Deps, ledger.Env, ledger.MessageInfo, json.RawMessage) (ledger.Response, error) {
	return ledger.Response{}, nil
}

func (broken) Query(context.Context, ledger.QueryDeps, ledger.Env, json.RawMessage) ([]byte, error) {
	return nil, nil
}

type fixture struct {
	ctx      context.Context
	chain    *ledger.Chain
	registry *registry.Client
	accounts *Client
}

// newFixture deploys the registry and both factories and publishes the
// account base modules with vault backed by vaultImpl.
func newFixture(t *testing.T, vaultImpl ledger.Contract) *fixture {
	t.Helper()
	testlog.Start(t)
	ctx := context.Background()
	chain, err := ledger.NewChain(ctx, ledger.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	store := func(name string, impl ledger.Contract) ledger.CodeID {
		id, err := chain.StoreCode(ctx, name, impl)
		if err != nil {
			t.Fatalf("store %s: %v", name, err)
		}
		return id
	}
	instantiate := func(code ledger.CodeID, msg any, label string) ledger.Address {
		addr, _, err := chain.Instantiate(ctx, admin, code, msg, label, admin)
		if err != nil {
			t.Fatalf("instantiate %s: %v", label, err)
		}
		return addr
	}

	regAddr := instantiate(store(registry.ContractName, registry.New()), api.RegistryInstantiate{Admin: admin}, "registry")
	modAddr := instantiate(store(ModuleFactoryName, NewModuleFactory()), api.ModuleFactoryInstantiate{Admin: admin, Registry: regAddr}, "module-factory")
	accAddr := instantiate(store(AccountFactoryName, NewAccountFactory()), api.AccountFactoryInstantiate{
		Admin:         admin,
		Registry:      regAddr,
		ModuleFactory: modAddr,
	}, "account-factory")

	reg := registry.NewClient(chain, regAddr)
	if err := reg.ClaimNamespace(ctx, admin, "acctos", admin); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for name, code := range map[string]ledger.CodeID{
		"controller": store(controller.ContractName, controller.New()),
		"vault":      store("test:vault", vaultImpl),
	} {
		if err := reg.Register(ctx, admin, api.ModuleRecord{
			Namespace: "acctos", Name: name, Version: "1.0.0", Reference: api.AccountBaseRef(code),
		}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := reg.SetFactory(ctx, admin, accAddr); err != nil {
		t.Fatalf("set factory: %v", err)
	}
	return &fixture{ctx: ctx, chain: chain, registry: reg, accounts: NewClient(chain, accAddr)}
}

func TestCreateAccountRollsBackWhenVaultFails(t *testing.T) {
	f := newFixture(t, broken{})
	heightBefore := f.chain.Height()

	_, err := f.accounts.CreateAccount(f.ctx, owner, governance.NewMonarchy(owner), "doomed", "")
	if !errors.Is(err, ErrInstantiationFailed) {
		t.Fatalf("expected ErrInstantiationFailed, got %v", err)
	}

	cfg, err := f.accounts.Config(f.ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.NextAccountID != 1 {
		t.Fatalf("account id consumed by failed create, next=%d", cfg.NextAccountID)
	}
	regCfg, err := f.registry.Config(f.ctx)
	if err != nil {
		t.Fatalf("registry config: %v", err)
	}
	if regCfg.AccountCount != 0 {
		t.Fatalf("failed create registered %d accounts", regCfg.AccountCount)
	}
	if f.chain.Height() != heightBefore {
		t.Fatalf("failed create committed a block: %d -> %d", heightBefore, f.chain.Height())
	}
}

func TestCreateAccountRequiresAccountBaseModules(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	chain, err := ledger.NewChain(ctx, ledger.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	regCode, _ := chain.StoreCode(ctx, registry.ContractName, registry.New())
	regAddr, _, err := chain.Instantiate(ctx, admin, regCode, api.RegistryInstantiate{Admin: admin}, "registry", admin)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	accCode, _ := chain.StoreCode(ctx, AccountFactoryName, NewAccountFactory())
	accAddr, _, err := chain.Instantiate(ctx, admin, accCode, api.AccountFactoryInstantiate{
		Admin: admin, Registry: regAddr, ModuleFactory: "acct1modules",
	}, "account-factory", admin)
	if err != nil {
		t.Fatalf("account factory: %v", err)
	}

	_, err = NewClient(chain, accAddr).CreateAccount(ctx, owner, governance.NewMonarchy(owner), "nobase", "")
	if !errors.Is(err, ErrCodeResolutionFailed) {
		t.Fatalf("expected ErrCodeResolutionFailed, got %v", err)
	}
}

func TestCreateAccountReturnsBundle(t *testing.T) {
	f := newFixture(t, broken{})
	// Swap in a working vault at a higher version.
	vaultCode, err := f.chain.StoreCode(f.ctx, "test:vault-ok", okVault{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := f.registry.Register(f.ctx, admin, api.ModuleRecord{
		Namespace: "acctos", Name: "vault", Version: "1.1.0", Reference: api.AccountBaseRef(vaultCode),
	}); err != nil {
		t.Fatalf("register vault 1.1.0: %v", err)
	}

	bundle, err := f.accounts.CreateAccount(f.ctx, owner, governance.NewMonarchy(owner), "works", "")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	stored, err := f.registry.Account(f.ctx, bundle.AccountID)
	if err != nil {
		t.Fatalf("registry account: %v", err)
	}
	if diff := cmp.Diff(bundle, stored); diff != "" {
		t.Fatalf("bundle mismatch (-want +got):\n%s", diff)
	}
	info, err := f.chain.ContractInfo(bundle.Vault)
	if err != nil {
		t.Fatalf("vault info: %v", err)
	}
	if info.CodeID != vaultCode || info.Admin != owner {
		t.Fatalf("unexpected vault instance %+v", info)
	}
}

// okVault accepts any instantiate.
type okVault struct{ broken }

func (okVault) Instantiate(context.Context, ledger.Deps, ledger.Env, ledger.MessageInfo, json.RawMessage) (ledger.Response, error) {
	return ledger.NewResponse(), nil
}

func TestModuleFactoryReplyWithoutPendingInstall(t *testing.T) {
	testlog.Start(t)
	deps := ledger.Deps{Storage: ledger.NewMemStorage()}
	_, err := NewModuleFactory().Reply(context.Background(), deps, ledger.Env{}, ledger.Reply{
		ID:     7,
		Result: ledger.SubMsgResult{Ok: &ledger.SubMsgResponse{}},
	})
	if !errors.Is(err, ErrContinuationFailed) {
		t.Fatalf("expected ErrContinuationFailed, got %v", err)
	}
}

func TestModuleFactoryReplyConsumesPendingInstall(t *testing.T) {
	testlog.Start(t)
	store := ledger.NewMemStorage()
	deps := ledger.Deps{Storage: store}
	if err := installs.Save(store, "3", pendingInstall{AccountID: 1, Controller: "acct1ctrl", ModuleID: "mock:app", Version: "1.0.0", Kind: api.KindApp}); err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	malformed := ledger.Reply{ID: 3, Result: ledger.SubMsgResult{Ok: &ledger.SubMsgResponse{Data: []byte(`{}`)}}}
	if _, err := NewModuleFactory().Reply(context.Background(), deps, ledger.Env{}, malformed); !errors.Is(err, ErrContinuationFailed) {
		t.Fatalf("expected ErrContinuationFailed for reply without address, got %v", err)
	}
	if installs.Has(store, "3") {
		t.Fatalf("pending install must be cleared once its reply arrives")
	}

	if err := installs.Save(store, "4", pendingInstall{AccountID: 1, Controller: "acct1ctrl", ModuleID: "mock:app", Version: "1.0.0", Kind: api.KindApp}); err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	data, _ := json.Marshal(ledger.InstantiateResult{Address: "acct1module"})
	resp, err := NewModuleFactory().Reply(context.Background(), deps, ledger.Env{}, ledger.Reply{
		ID:     4,
		Result: ledger.SubMsgResult{Ok: &ledger.SubMsgResponse{Data: data}},
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Msg.Execute == nil || resp.Messages[0].Msg.Execute.Contract != "acct1ctrl" {
		t.Fatalf("expected register_module to the controller, got %+v", resp.Messages)
	}
	var call api.ControllerExecute
	if err := json.Unmarshal(resp.Messages[0].Msg.Execute.Msg, &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	want := &api.RegisterInstall{ModuleID: "mock:app", Address: "acct1module", Version: "1.0.0", Kind: api.KindApp}
	if diff := cmp.Diff(want, call.RegisterModule); diff != "" {
		t.Fatalf("register_module mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateConfigRequiresAdmin(t *testing.T) {
	f := newFixture(t, broken{})
	if err := f.accounts.UpdateConfig(f.ctx, owner, api.FactoryConfigUpdate{Admin: owner}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.accounts.UpdateConfig(f.ctx, admin, api.FactoryConfigUpdate{Admin: owner}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	cfg, err := f.accounts.Config(f.ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Admin != owner || cfg.NextAccountID != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
