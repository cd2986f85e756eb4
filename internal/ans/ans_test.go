package ans

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

const admin ledger.Address = "admin"

func newANS(t *testing.T) *Client {
	t.Helper()
	testlog.Start(t)
	ctx := context.Background()
	chain, err := ledger.NewChain(ctx, ledger.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	code, err := chain.StoreCode(ctx, ContractName, New())
	if err != nil {
		t.Fatalf("store code: %v", err)
	}
	addr, _, err := chain.Instantiate(ctx, admin, code, api.AnsInstantiate{Admin: admin}, "ans", admin)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return NewClient(chain, addr)
}

func addAssets(pairs ...api.Pair[string, api.AssetInfo]) api.AnsExecute {
	return api.AnsExecute{UpdateAssets: &api.UpdateAssets{ToAdd: pairs}}
}

func TestUpdateRequiresAdmin(t *testing.T) {
	c := newANS(t)
	_, err := c.Update(context.Background(), "mallory", addAssets(api.NewPair("junox", api.AssetInfo{Native: "ujunox"})))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAssetReconcileIsIdempotent(t *testing.T) {
	c := newANS(t)
	ctx := context.Background()
	msg := addAssets(
		api.NewPair("JunoX", api.AssetInfo{Native: "ujunox"}),
		api.NewPair("crab", api.AssetInfo{Cw20: "juno1crab"}),
	)
	for i := 0; i < 2; i++ {
		if _, err := c.Update(ctx, admin, msg); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	got, err := c.Assets(ctx, api.PageQuery{})
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	want := []api.Pair[string, api.AssetInfo]{
		api.NewPair("crab", api.AssetInfo{Cw20: "juno1crab"}),
		api.NewPair("junox", api.AssetInfo{Native: "ujunox"}),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("assets mismatch (-want +got):\n%s", diff)
	}
	info, err := c.Asset(ctx, "JUNOX")
	if err != nil || info.Native != "ujunox" {
		t.Fatalf("asset lookup: %+v %v", info, err)
	}
}

func TestRemoveWinsAndAbsentRemoveIsNoop(t *testing.T) {
	c := newANS(t)
	ctx := context.Background()
	msg := api.AnsExecute{UpdateAssets: &api.UpdateAssets{
		ToAdd:    []api.Pair[string, api.AssetInfo]{api.NewPair("junox", api.AssetInfo{Native: "ujunox"})},
		ToRemove: []string{"junox", "never-added"},
	}}
	if _, err := c.Update(ctx, admin, msg); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := c.Asset(ctx, "junox"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected remove to win, got %v", err)
	}
}

func TestInvalidEntryFailsWholeCall(t *testing.T) {
	c := newANS(t)
	ctx := context.Background()
	msg := addAssets(
		api.NewPair("junox", api.AssetInfo{Native: "ujunox"}),
		api.NewPair("broken", api.AssetInfo{}),
	)
	if _, err := c.Update(ctx, admin, msg); !errors.Is(err, api.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if _, err := c.Asset(ctx, "junox"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("partial write survived: %v", err)
	}
}

func TestContractsAndChannels(t *testing.T) {
	c := newANS(t)
	ctx := context.Background()
	entry := api.ContractEntry{Protocol: "JunoSwap", Contract: "staking/crab,junox"}
	if _, err := c.Update(ctx, admin, api.AnsExecute{UpdateContracts: &api.UpdateContracts{
		ToAdd: []api.Pair[api.ContractEntry, string]{api.NewPair(entry, "juno1staking")},
	}}); err != nil {
		t.Fatalf("update contracts: %v", err)
	}
	addr, err := c.Contract(ctx, api.ContractEntry{Protocol: "junoswap", Contract: "staking/crab,junox"})
	if err != nil || addr != "juno1staking" {
		t.Fatalf("contract lookup: %q %v", addr, err)
	}

	ch, _ := api.ParseChannelEntry("osmosis>ics20")
	if _, err := c.Update(ctx, admin, api.AnsExecute{UpdateChannels: &api.UpdateChannels{
		ToAdd: []api.Pair[api.ChannelEntry, string]{api.NewPair(ch, "channel-0")},
	}}); err != nil {
		t.Fatalf("update channels: %v", err)
	}
	id, err := c.Channel(ctx, ch)
	if err != nil || id != "channel-0" {
		t.Fatalf("channel lookup: %q %v", id, err)
	}
	list, _ := c.Channels(ctx, api.PageQuery{})
	if len(list) != 1 {
		t.Fatalf("unexpected channel list: %+v", list)
	}
}

func TestEntryKeysCannotCollide(t *testing.T) {
	c := newANS(t)
	ctx := context.Background()
	msg := api.AnsExecute{UpdateContracts: &api.UpdateContracts{
		ToAdd: []api.Pair[api.ContractEntry, string]{
			api.NewPair(api.ContractEntry{Protocol: "a:b", Contract: "c"}, "addr-one"),
			api.NewPair(api.ContractEntry{Protocol: "a", Contract: "b:c"}, "addr-two"),
		},
	}}
	if _, err := c.Update(ctx, admin, msg); !errors.Is(err, api.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if list, _ := c.Contracts(ctx, api.PageQuery{}); len(list) != 0 {
		t.Fatalf("colliding contracts stored: %+v", list)
	}

	ch := api.ChannelEntry{ConnectedChain: "osmosis>juno", Protocol: "ics20"}
	if _, err := c.Update(ctx, admin, api.AnsExecute{UpdateChannels: &api.UpdateChannels{
		ToAdd: []api.Pair[api.ChannelEntry, string]{api.NewPair(ch, "channel-1")},
	}}); !errors.Is(err, api.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestPoolRequiresRegisteredDex(t *testing.T) {
	c := newANS(t)
	ctx := context.Background()
	pool := api.NewPair(api.PoolContract("juno1pool"), api.PoolMetadata{
		Dex:      "junoswap",
		PoolType: "constant_product",
		Assets:   []string{"crab", "junox"},
	})
	addPool := api.AnsExecute{UpdatePools: &api.UpdatePools{ToAdd: []api.Pair[api.PoolAddress, api.PoolMetadata]{pool}}}

	if _, err := c.Update(ctx, admin, addPool); !errors.Is(err, ErrUnknownDex) {
		t.Fatalf("expected ErrUnknownDex, got %v", err)
	}
	if _, err := c.Update(ctx, admin, api.AnsExecute{UpdateDexes: &api.UpdateDexes{ToAdd: []string{"JunoSwap"}}}); err != nil {
		t.Fatalf("register dex: %v", err)
	}
	if _, err := c.Update(ctx, admin, addPool); err != nil {
		t.Fatalf("add pool: %v", err)
	}
	meta, err := c.Pool(ctx, api.PoolContract("juno1pool"))
	if err != nil || meta.Dex != "junoswap" {
		t.Fatalf("pool lookup: %+v %v", meta, err)
	}

	if _, err := c.Update(ctx, admin, api.AnsExecute{UpdateDexes: &api.UpdateDexes{ToRemove: []string{"junoswap"}}}); !errors.Is(err, ErrDexInUse) {
		t.Fatalf("expected ErrDexInUse, got %v", err)
	}
	if _, err := c.Update(ctx, admin, api.AnsExecute{UpdatePools: &api.UpdatePools{ToRemove: []api.PoolAddress{api.PoolContract("juno1pool")}}}); err != nil {
		t.Fatalf("remove pool: %v", err)
	}
	if _, err := c.Update(ctx, admin, api.AnsExecute{UpdateDexes: &api.UpdateDexes{ToRemove: []string{"junoswap"}}}); err != nil {
		t.Fatalf("remove dex: %v", err)
	}
	dexes, _ := c.Dexes(ctx)
	if len(dexes) != 0 {
		t.Fatalf("unexpected dexes: %v", dexes)
	}
}

func TestAssetPagination(t *testing.T) {
	c := newANS(t)
	ctx := context.Background()
	var pairs []api.Pair[string, api.AssetInfo]
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		pairs = append(pairs, api.NewPair(n, api.AssetInfo{Native: "u" + n}))
	}
	if _, err := c.Update(ctx, admin, addAssets(pairs...)); err != nil {
		t.Fatalf("update: %v", err)
	}
	page, _ := c.Assets(ctx, api.PageQuery{Limit: 2})
	if len(page) != 2 || page[1].Key != "b" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	page, _ = c.Assets(ctx, api.PageQuery{StartAfter: "b", Limit: 2})
	if len(page) != 2 || page[0].Key != "c" || page[1].Key != "d" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}
