package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPairDecodesDatasetTuple(t *testing.T) {
	raw := `[{"contract":"juno1pool"},{"dex":"JunoSwap","pool_type":"constant_product","assets":["CRAB","junox"]}]`
	var p Pair[PoolAddress, PoolMetadata]
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Key.Key() != "contract:juno1pool" {
		t.Fatalf("unexpected key: %s", p.Key.Key())
	}
	want := PoolMetadata{Dex: "junoswap", PoolType: "constant_product", Assets: []string{"crab", "junox"}}
	if diff := cmp.Diff(want, p.Value.Normalize()); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
	out, _ := json.Marshal(NewPair("junox", AssetInfo{Native: "ujunox"}))
	if string(out) != `["junox",{"native":"ujunox"}]` {
		t.Fatalf("unexpected encoding: %s", out)
	}
}

func TestPairRejectsWrongArity(t *testing.T) {
	var p Pair[string, string]
	if err := json.Unmarshal([]byte(`["a"]`), &p); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestEntryParsing(t *testing.T) {
	ch, err := ParseChannelEntry("Osmosis>ICS20")
	if err != nil {
		t.Fatalf("parse channel: %v", err)
	}
	if ch.String() != "osmosis>ics20" {
		t.Fatalf("unexpected channel: %s", ch)
	}
	if _, err := ParseChannelEntry("osmosis"); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	ce, err := ParseContractEntry("junoswap:staking/crab,junox")
	if err != nil || ce.Contract != "staking/crab,junox" {
		t.Fatalf("parse contract: %+v %v", ce, err)
	}
	pool, err := ParsePoolKey(PoolID(12).Key())
	if err != nil || pool.ID == nil || *pool.ID != 12 {
		t.Fatalf("pool key round trip: %+v %v", pool, err)
	}
}

func TestValidation(t *testing.T) {
	bad := []interface{ Validate() error }{
		AssetInfo{},
		AssetInfo{Native: "u", Cw20: "c"},
		ContractEntry{Protocol: "x"},
		ContractEntry{Protocol: "a:b", Contract: "c"},
		ChannelEntry{ConnectedChain: "osmosis>juno", Protocol: "ics20"},
		PoolAddress{},
		PoolMetadata{Dex: "d", PoolType: "triangle", Assets: []string{"a", "b"}},
		PoolMetadata{Dex: "d", PoolType: "stable", Assets: []string{"a"}},
		Reference{},
		Reference{App: &CodeRef{CodeID: 0}},
		Reference{Adapter: &AddrRef{}},
	}
	for i, v := range bad {
		if err := v.Validate(); !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("case %d: expected ErrInvalidEntry, got %v", i, err)
		}
	}
	if err := AppRef(3).Validate(); err != nil {
		t.Fatalf("app ref: %v", err)
	}
}

func TestParseModuleID(t *testing.T) {
	m, err := ParseModuleID("acctos:dex")
	if err != nil || m.Namespace != "acctos" || m.Name != "dex" {
		t.Fatalf("unexpected: %+v %v", m, err)
	}
	for _, raw := range []string{"", "acctos", ":dex", "acctos:"} {
		if _, err := ParseModuleID(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
