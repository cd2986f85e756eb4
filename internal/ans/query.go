package ans

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
)

func (Contract) Query(_ context.Context, deps ledger.QueryDeps, _ ledger.Env, raw json.RawMessage) ([]byte, error) {
	var msg api.AnsQuery
	if err := ledger.Decode(raw, &msg); err != nil {
		return nil, err
	}
	store := deps.Storage
	switch {
	case msg.Asset != nil:
		name := api.NormalizeName(msg.Asset.Name)
		info, err := load(store, assets, name, "asset")
		if err != nil {
			return nil, err
		}
		return ledger.Encode(api.NewPair(name, info))
	case msg.Contract != nil:
		p, err := load(store, contracts, msg.Contract.Entry.String(), "contract")
		if err != nil {
			return nil, err
		}
		return ledger.Encode(p)
	case msg.Channel != nil:
		p, err := load(store, channels, msg.Channel.Entry.String(), "channel")
		if err != nil {
			return nil, err
		}
		return ledger.Encode(p)
	case msg.Pool != nil:
		p, err := load(store, pools, msg.Pool.Address.Key(), "pool")
		if err != nil {
			return nil, err
		}
		return ledger.Encode(p)
	case msg.AssetList != nil:
		page, err := assets.Range(store, msg.AssetList.StartAfter, api.PageLimit(msg.AssetList.Limit))
		if err != nil {
			return nil, err
		}
		out := api.AssetsResponse{Assets: make([]api.Pair[string, api.AssetInfo], 0, len(page))}
		for _, e := range page {
			out.Assets = append(out.Assets, api.NewPair(e.Key, e.Value))
		}
		return ledger.Encode(out)
	case msg.Contracts != nil:
		page, err := values(store, contracts, *msg.Contracts)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(api.ContractsResponse{Contracts: page})
	case msg.Channels != nil:
		page, err := values(store, channels, *msg.Channels)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(api.ChannelsResponse{Channels: page})
	case msg.PoolList != nil:
		page, err := values(store, pools, *msg.PoolList)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(api.PoolsResponse{Pools: page})
	case msg.Dexes != nil:
		return ledger.Encode(api.DexesResponse{Dexes: nonNil(dexes.Keys(store))})
	case msg.Config != nil:
		cfg, err := config.Load(store)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(cfg)
	}
	return nil, fmt.Errorf("%w: unknown ans query", ledger.ErrInvalidMsg)
}

func load[T any](store ledger.ReadStorage, m ledger.Map[T], key, kind string) (T, error) {
	v, ok, err := m.Load(store, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: %s %q", ErrNotFound, kind, key)
	}
	return v, nil
}

func values[T any](store ledger.ReadStorage, m ledger.Map[T], q api.PageQuery) ([]T, error) {
	page, err := m.Range(store, q.StartAfter, api.PageLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(page))
	for _, e := range page {
		out = append(out, e.Value)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
