package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/acctos/internal/ansync"
	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/deployment"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/testutil/mockmodule"
	"github.com/danmuck/acctos/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

const (
	admin ledger.Address = "acct1admin"
	owner ledger.Address = "acct1owner"
)

type fixture struct {
	srv     *Server
	account api.AccountBundle
}

// newFixture deploys a system with one published module, one synced pool
// and one account with that module installed.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	testlog.Start(t)
	ctx := context.Background()
	chain, err := ledger.NewChain(ctx, ledger.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	d, err := deployment.Deploy(ctx, chain, admin, "0.4.0")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := d.ClaimNamespace(ctx, admin, "mock", admin); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for _, ver := range []string{"1.0.0", "1.1.0"} {
		m := mockmodule.New(ver)
		code, err := d.StoreModuleCode(ctx, m.CodeName(), m)
		if err != nil {
			t.Fatalf("store %s: %v", ver, err)
		}
		if err := d.PublishModule(ctx, admin, api.ModuleRecord{Namespace: "mock", Name: "app", Version: ver, Reference: api.AppRef(code)}); err != nil {
			t.Fatalf("publish %s: %v", ver, err)
		}
	}

	sub := d.Submitter(ansync.DefaultOptions())
	if _, err := sub.Sync(ctx, ansync.Dataset{
		Assets: []api.Pair[string, api.AssetInfo]{
			api.NewPair("juno", api.AssetInfo{Native: "ujuno"}),
		},
		Pools: []api.Pair[api.PoolAddress, api.PoolMetadata]{
			api.NewPair(api.PoolAddress{Contract: "acct1pool"}, api.PoolMetadata{
				Dex: "junoswap", PoolType: "constant_product", Assets: []string{"juno", "atom"},
			}),
		},
	}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	bundle, err := d.CreateAccount(ctx, owner, governance.NewMonarchy(owner), "treasury")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if _, err := d.AccountFor(bundle).Install(ctx, owner, "mock:app", "1.0.0", mockmodule.InitMsg{Value: "hi"}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := chain.Fund(ctx, bundle.Vault, ledger.Coins{{Denom: "ujuno", Amount: 42}}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	return &fixture{srv: New("acctos-test", ":0", d, nil), account: bundle}
}

func (f *fixture) get(t *testing.T, path string, wantStatus int, out any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	f.srv.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d body=%s", path, wantStatus, rr.Code, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	var health map[string]any
	f.get(t, "/health", http.StatusOK, &health)
	if health["status"] != "ok" || health["service"] != "acctos-test" {
		t.Fatalf("unexpected health %#v", health)
	}
	var ready map[string]any
	f.get(t, "/ready", http.StatusOK, &ready)
	if ready["ready"] != true || ready["version"] != "0.4.0" {
		t.Fatalf("unexpected ready %#v", ready)
	}

	idle := New("idle", ":0", nil, nil)
	rr := httptest.NewRecorder()
	idle.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without deployment, got %d", rr.Code)
	}
}

func TestModuleRoute(t *testing.T) {
	f := newFixture(t)
	var body struct {
		Module   api.ModuleRecord `json:"module"`
		Kind     string           `json:"kind"`
		Versions []string         `json:"versions"`
	}
	f.get(t, "/modules/mock/app", http.StatusOK, &body)
	if body.Module.Version != "1.1.0" || body.Kind != api.KindApp {
		t.Fatalf("unexpected latest %+v", body)
	}
	if diff := cmp.Diff([]string{"1.0.0", "1.1.0"}, body.Versions); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}

	f.get(t, "/modules/mock/app?version=1.0.0", http.StatusOK, &body)
	if body.Module.Version != "1.0.0" {
		t.Fatalf("constraint ignored: %+v", body.Module)
	}
	f.get(t, "/modules/mock/missing", http.StatusNotFound, nil)
	f.get(t, "/modules/mock/app?version=banana", http.StatusBadRequest, nil)
}

func TestANSRoutes(t *testing.T) {
	f := newFixture(t)
	var asset struct {
		Name  string        `json:"name"`
		Asset api.AssetInfo `json:"asset"`
	}
	f.get(t, "/ans/assets/JUNO", http.StatusOK, &asset)
	if asset.Name != "juno" || asset.Asset.Native != "ujuno" {
		t.Fatalf("unexpected asset %+v", asset)
	}
	f.get(t, "/ans/assets/nope", http.StatusNotFound, nil)

	var dexes api.DexesResponse
	f.get(t, "/ans/dexes", http.StatusOK, &dexes)
	if diff := cmp.Diff([]string{"junoswap"}, dexes.Dexes); diff != "" {
		t.Fatalf("dexes mismatch (-want +got):\n%s", diff)
	}

	var pools api.PoolsResponse
	f.get(t, "/ans/pools?limit=10", http.StatusOK, &pools)
	if len(pools.Pools) != 1 || pools.Pools[0].Value.Dex != "junoswap" {
		t.Fatalf("unexpected pools %+v", pools.Pools)
	}
	f.get(t, "/ans/pools?limit=-1", http.StatusBadRequest, nil)
}

func TestAccountRoutes(t *testing.T) {
	f := newFixture(t)
	var acct struct {
		Account  api.AccountBundle  `json:"account"`
		Info     api.ControllerInfo `json:"info"`
		Balances ledger.Coins       `json:"balances"`
	}
	f.get(t, "/accounts/1", http.StatusOK, &acct)
	if diff := cmp.Diff(f.account, acct.Account); diff != "" {
		t.Fatalf("bundle mismatch (-want +got):\n%s", diff)
	}
	if acct.Info.Name != "treasury" {
		t.Fatalf("unexpected info %+v", acct.Info)
	}
	if diff := cmp.Diff(ledger.Coins{{Denom: "ujuno", Amount: 42}}, acct.Balances); diff != "" {
		t.Fatalf("balances mismatch (-want +got):\n%s", diff)
	}

	var modules api.ModulesPage
	f.get(t, "/accounts/1/modules", http.StatusOK, &modules)
	if len(modules.Modules) != 1 || modules.Modules[0].ModuleID != "mock:app" || modules.Modules[0].Status != api.StatusInstalled {
		t.Fatalf("unexpected modules %+v", modules.Modules)
	}

	f.get(t, "/accounts/7", http.StatusNotFound, nil)
	f.get(t, "/accounts/zero", http.StatusBadRequest, nil)
}

func TestMetricsRouteCountsRequests(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/health", http.StatusOK, nil)
	rr := httptest.NewRecorder()
	f.srv.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `acctos_http_requests_total{method="GET",node="acctos-test",path="/health",status="200"}`) {
		t.Fatalf("health request not counted:\n%s", rr.Body.String())
	}
}
