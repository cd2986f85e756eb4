package api

import "github.com/danmuck/acctos/internal/ledger"

// Entry kinds handled by the name-resolution registry.
const (
	EntryAssets    = "assets"
	EntryContracts = "contracts"
	EntryChannels  = "channels"
	EntryPools     = "pools"
	EntryDexes     = "dexes"
)

type AnsInstantiate struct {
	Admin ledger.Address `json:"admin"`
}

type AnsExecute struct {
	UpdateAssets    *UpdateAssets    `json:"update_assets,omitempty"`
	UpdateContracts *UpdateContracts `json:"update_contracts,omitempty"`
	UpdateChannels  *UpdateChannels  `json:"update_channels,omitempty"`
	UpdatePools     *UpdatePools     `json:"update_pools,omitempty"`
	UpdateDexes     *UpdateDexes     `json:"update_dexes,omitempty"`
	SetAdmin        *SetAdmin        `json:"set_admin,omitempty"`
}

type UpdateAssets struct {
	ToAdd    []Pair[string, AssetInfo] `json:"to_add"`
	ToRemove []string                  `json:"to_remove"`
}

type UpdateContracts struct {
	ToAdd    []Pair[ContractEntry, string] `json:"to_add"`
	ToRemove []ContractEntry               `json:"to_remove"`
}

type UpdateChannels struct {
	ToAdd    []Pair[ChannelEntry, string] `json:"to_add"`
	ToRemove []ChannelEntry               `json:"to_remove"`
}

type UpdatePools struct {
	ToAdd    []Pair[PoolAddress, PoolMetadata] `json:"to_add"`
	ToRemove []PoolAddress                     `json:"to_remove"`
}

type UpdateDexes struct {
	ToAdd    []string `json:"to_add"`
	ToRemove []string `json:"to_remove"`
}

type AnsQuery struct {
	Asset     *AssetQuery    `json:"asset,omitempty"`
	Contract  *ContractQuery `json:"contract,omitempty"`
	Channel   *ChannelQuery  `json:"channel,omitempty"`
	Pool      *PoolQuery     `json:"pool,omitempty"`
	AssetList *PageQuery     `json:"asset_list,omitempty"`
	Contracts *PageQuery     `json:"contract_list,omitempty"`
	Channels  *PageQuery     `json:"channel_list,omitempty"`
	PoolList  *PageQuery     `json:"pool_list,omitempty"`
	Dexes     *struct{}      `json:"dexes,omitempty"`
	Config    *struct{}      `json:"config,omitempty"`
}

type AssetQuery struct {
	Name string `json:"name"`
}

type ContractQuery struct {
	Entry ContractEntry `json:"entry"`
}

type ChannelQuery struct {
	Entry ChannelEntry `json:"entry"`
}

type PoolQuery struct {
	Address PoolAddress `json:"address"`
}

// PageQuery pages through one entry kind in key order. StartAfter is the
// storage key of the last entry seen.
type PageQuery struct {
	StartAfter string `json:"start_after,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type AssetsResponse struct {
	Assets []Pair[string, AssetInfo] `json:"assets"`
}

type ContractsResponse struct {
	Contracts []Pair[ContractEntry, string] `json:"contracts"`
}

type ChannelsResponse struct {
	Channels []Pair[ChannelEntry, string] `json:"channels"`
}

type PoolsResponse struct {
	Pools []Pair[PoolAddress, PoolMetadata] `json:"pools"`
}

type DexesResponse struct {
	Dexes []string `json:"dexes"`
}

type AnsConfig struct {
	Admin ledger.Address `json:"admin"`
}
