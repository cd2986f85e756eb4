// Package ans is the name-resolution registry: human-readable names for
// assets, contracts, channels, and pools, plus the set of registered dexes.
//
// Every update carries adds and removes for one entry kind. A call is
// validated in full before any write. Adds are applied before removes, so a
// key present in both ends up removed.
package ans

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
	ContractName    = "acctos:ans"
	ContractVersion = "0.4.0"
)

var (
	ErrUnauthorized = errors.New("ans: unauthorized")
	ErrNotFound     = errors.New("ans: not found")
	ErrUnknownDex   = errors.New("ans: unknown dex")
	ErrDexInUse     = errors.New("ans: dex in use")
)

var (
	config    = ledger.NewItem[api.AnsConfig]("config")
	assets    = ledger.NewMap[api.AssetInfo]("asset")
	contracts = ledger.NewMap[api.Pair[api.ContractEntry, string]]("contract")
	channels  = ledger.NewMap[api.Pair[api.ChannelEntry, string]]("channel")
	pools     = ledger.NewMap[api.Pair[api.PoolAddress, api.PoolMetadata]]("pool")
	dexes     = ledger.NewMap[bool]("dex")
)

type Contract struct{}

var _ ledger.Contract = Contract{}

func New() Contract {
	return Contract{}
}

func (Contract) Instantiate(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.AnsInstantiate
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
	if err := config.Save(deps.Storage, api.AnsConfig{Admin: admin}); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "instantiate").AddAttribute("admin", admin.String()), nil
}

func (Contract) Execute(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.AnsExecute
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	store := deps.Storage
	cfg, err := config.Load(store)
	if err != nil {
		return ledger.Response{}, err
	}
	if info.Sender != cfg.Admin {
		return ledger.Response{}, fmt.Errorf("%w: %s is not the admin", ErrUnauthorized, info.Sender)
	}

	var kind string
	var added, removed int
	switch {
	case msg.UpdateAssets != nil:
		kind, added, removed = api.EntryAssets, len(msg.UpdateAssets.ToAdd), len(msg.UpdateAssets.ToRemove)
		err = updateAssets(store, *msg.UpdateAssets)
	case msg.UpdateContracts != nil:
		kind, added, removed = api.EntryContracts, len(msg.UpdateContracts.ToAdd), len(msg.UpdateContracts.ToRemove)
		err = updateContracts(store, *msg.UpdateContracts)
	case msg.UpdateChannels != nil:
		kind, added, removed = api.EntryChannels, len(msg.UpdateChannels.ToAdd), len(msg.UpdateChannels.ToRemove)
		err = updateChannels(store, *msg.UpdateChannels)
	case msg.UpdatePools != nil:
		kind, added, removed = api.EntryPools, len(msg.UpdatePools.ToAdd), len(msg.UpdatePools.ToRemove)
		err = updatePools(store, *msg.UpdatePools)
	case msg.UpdateDexes != nil:
		kind, added, removed = api.EntryDexes, len(msg.UpdateDexes.ToAdd), len(msg.UpdateDexes.ToRemove)
		err = updateDexes(store, *msg.UpdateDexes)
	case msg.SetAdmin != nil:
		if msg.SetAdmin.Admin.IsZero() {
			return ledger.Response{}, fmt.Errorf("%w: admin address is required", api.ErrInvalidEntry)
		}
		cfg.Admin = msg.SetAdmin.Admin
		if err := config.Save(store, cfg); err != nil {
			return ledger.Response{}, err
		}
		return ledger.NewResponse().AddAttribute("action", "set_admin").AddAttribute("admin", cfg.Admin.String()), nil
	default:
		return ledger.Response{}, fmt.Errorf("%w: unknown ans message", ledger.ErrInvalidMsg)
	}
	if err != nil {
		return ledger.Response{}, err
	}
	log.Debug().Msgf("ans.Contract.Execute kind=%s added=%d removed=%d", kind, added, removed)
	return ledger.NewResponse().
		AddAttribute("action", "update_"+kind).
		AddAttribute("added", strconv.Itoa(added)).
		AddAttribute("removed", strconv.Itoa(removed)), nil
}

func updateAssets(store ledger.Storage, msg api.UpdateAssets) error {
	adds := make([]ledger.Entry[api.AssetInfo], 0, len(msg.ToAdd))
	for _, p := range msg.ToAdd {
		name := api.NormalizeName(p.Key)
		if name == "" {
			return fmt.Errorf("%w: asset name is empty", api.ErrInvalidEntry)
		}
		if err := p.Value.Validate(); err != nil {
			return fmt.Errorf("asset %q: %w", name, err)
		}
		adds = append(adds, ledger.Entry[api.AssetInfo]{Key: name, Value: p.Value})
	}
	removes := make([]string, 0, len(msg.ToRemove))
	for _, name := range msg.ToRemove {
		removes = append(removes, api.NormalizeName(name))
	}
	return reconcile(store, assets, adds, removes)
}

func updateContracts(store ledger.Storage, msg api.UpdateContracts) error {
	adds := make([]ledger.Entry[api.Pair[api.ContractEntry, string]], 0, len(msg.ToAdd))
	for _, p := range msg.ToAdd {
		if err := p.Key.Validate(); err != nil {
			return err
		}
		if p.Value == "" {
			return fmt.Errorf("%w: contract %s has no address", api.ErrInvalidEntry, p.Key)
		}
		entry := p.Key.Normalize()
		adds = append(adds, ledger.Entry[api.Pair[api.ContractEntry, string]]{
			Key:   entry.String(),
			Value: api.NewPair(entry, p.Value),
		})
	}
	removes := make([]string, 0, len(msg.ToRemove))
	for _, e := range msg.ToRemove {
		removes = append(removes, e.String())
	}
	return reconcile(store, contracts, adds, removes)
}

func updateChannels(store ledger.Storage, msg api.UpdateChannels) error {
	adds := make([]ledger.Entry[api.Pair[api.ChannelEntry, string]], 0, len(msg.ToAdd))
	for _, p := range msg.ToAdd {
		if err := p.Key.Validate(); err != nil {
			return err
		}
		if p.Value == "" {
			return fmt.Errorf("%w: channel %s has no id", api.ErrInvalidEntry, p.Key)
		}
		entry := p.Key.Normalize()
		adds = append(adds, ledger.Entry[api.Pair[api.ChannelEntry, string]]{
			Key:   entry.String(),
			Value: api.NewPair(entry, p.Value),
		})
	}
	removes := make([]string, 0, len(msg.ToRemove))
	for _, e := range msg.ToRemove {
		removes = append(removes, e.String())
	}
	return reconcile(store, channels, adds, removes)
}

func updatePools(store ledger.Storage, msg api.UpdatePools) error {
	adds := make([]ledger.Entry[api.Pair[api.PoolAddress, api.PoolMetadata]], 0, len(msg.ToAdd))
	for _, p := range msg.ToAdd {
		if err := p.Key.Validate(); err != nil {
			return err
		}
		if err := p.Value.Validate(); err != nil {
			return fmt.Errorf("pool %s: %w", p.Key.Key(), err)
		}
		meta := p.Value.Normalize()
		if !dexes.Has(store, meta.Dex) {
			return fmt.Errorf("%w: pool %s references %q", ErrUnknownDex, p.Key.Key(), meta.Dex)
		}
		adds = append(adds, ledger.Entry[api.Pair[api.PoolAddress, api.PoolMetadata]]{
			Key:   p.Key.Key(),
			Value: api.NewPair(p.Key, meta),
		})
	}
	removes := make([]string, 0, len(msg.ToRemove))
	for _, addr := range msg.ToRemove {
		if err := addr.Validate(); err != nil {
			return err
		}
		removes = append(removes, addr.Key())
	}
	return reconcile(store, pools, adds, removes)
}

func updateDexes(store ledger.Storage, msg api.UpdateDexes) error {
	adds := make([]ledger.Entry[bool], 0, len(msg.ToAdd))
	for _, d := range msg.ToAdd {
		name := api.NormalizeName(d)
		if name == "" {
			return fmt.Errorf("%w: dex name is empty", api.ErrInvalidEntry)
		}
		adds = append(adds, ledger.Entry[bool]{Key: name, Value: true})
	}
	removes := make([]string, 0, len(msg.ToRemove))
	for _, d := range msg.ToRemove {
		removes = append(removes, api.NormalizeName(d))
	}
	if len(removes) > 0 {
		inUse, err := dexesInUse(store)
		if err != nil {
			return err
		}
		for _, d := range removes {
			if inUse[d] {
				return fmt.Errorf("%w: %q still has registered pools", ErrDexInUse, d)
			}
		}
	}
	return reconcile(store, dexes, adds, removes)
}

func dexesInUse(store ledger.ReadStorage) (map[string]bool, error) {
	all, err := pools.Range(store, "", 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, p := range all {
		out[p.Value.Value.Dex] = true
	}
	return out, nil
}

// reconcile upserts adds then deletes removes. Removing an absent key is a no-op.
func reconcile[T any](store ledger.Storage, m ledger.Map[T], adds []ledger.Entry[T], removes []string) error {
	for _, e := range adds {
		if err := m.Save(store, e.Key, e.Value); err != nil {
			return err
		}
	}
	for _, k := range removes {
		m.Remove(store, k)
	}
	return nil
}
