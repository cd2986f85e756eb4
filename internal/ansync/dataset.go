// Package ansync reconciles the name-resolution registry against external
// datasets, one bounded chunk per transaction.
package ansync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/acctos/internal/api"
	"github.com/tidwall/gjson"
)

var (
	ErrNetworkNotFound = errors.New("ansync: network not found")
	ErrInvalidDataset  = errors.New("ansync: invalid dataset")
)

// Dataset is every entry kind for one chain and network.
type Dataset struct {
	Assets    []api.Pair[string, api.AssetInfo]
	Contracts []api.Pair[api.ContractEntry, string]
	Channels  []api.Pair[api.ChannelEntry, string]
	Pools     []api.Pair[api.PoolAddress, api.PoolMetadata]
}

func (d Dataset) Empty() bool {
	return len(d.Assets)+len(d.Contracts)+len(d.Channels)+len(d.Pools) == 0
}

// Paths locates the dataset files. Empty paths are skipped.
type Paths struct {
	Assets    string `toml:"assets" env:"ASSETS"`
	Contracts string `toml:"contracts" env:"CONTRACTS"`
	Channels  string `toml:"channels" env:"CHANNELS"`
	Pools     string `toml:"pools" env:"POOLS"`
}

// LoadDataset reads each configured file and selects chainID/networkID.
func LoadDataset(paths Paths, chainID, networkID string) (Dataset, error) {
	var ds Dataset
	var err error
	if ds.Assets, err = loadFile(paths.Assets, chainID, networkID, ParseAssets); err != nil {
		return Dataset{}, err
	}
	if ds.Contracts, err = loadFile(paths.Contracts, chainID, networkID, ParseContracts); err != nil {
		return Dataset{}, err
	}
	if ds.Channels, err = loadFile(paths.Channels, chainID, networkID, ParseChannels); err != nil {
		return Dataset{}, err
	}
	if ds.Pools, err = loadFile(paths.Pools, chainID, networkID, ParsePools); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func loadFile[T any](path, chainID, networkID string, parse func([]byte, string, string) ([]T, error)) ([]T, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	out, err := parse(data, chainID, networkID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// network returns the {chain_id: {network_id: ...}} section.
func network(data []byte, chainID, networkID string) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: not valid JSON", ErrInvalidDataset)
	}
	chain := gjson.GetBytes(data, gjson.Escape(chainID))
	if !chain.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: chain %q", ErrNetworkNotFound, chainID)
	}
	net := chain.Get(gjson.Escape(networkID))
	if !net.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s/%s", ErrNetworkNotFound, chainID, networkID)
	}
	return net, nil
}

// parsePairs decodes an array of [key, value] tuples.
func parsePairs[K, V any](data []byte, chainID, networkID string) ([]api.Pair[K, V], error) {
	net, err := network(data, chainID, networkID)
	if err != nil {
		return nil, err
	}
	if !net.IsArray() {
		return nil, fmt.Errorf("%w: %s/%s must be an array", ErrInvalidDataset, chainID, networkID)
	}
	var out []api.Pair[K, V]
	for i, item := range net.Array() {
		var p api.Pair[K, V]
		if err := json.Unmarshal([]byte(item.Raw), &p); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidDataset, i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func ParseAssets(data []byte, chainID, networkID string) ([]api.Pair[string, api.AssetInfo], error) {
	return parsePairs[string, api.AssetInfo](data, chainID, networkID)
}

func ParseContracts(data []byte, chainID, networkID string) ([]api.Pair[api.ContractEntry, string], error) {
	return parsePairs[api.ContractEntry, string](data, chainID, networkID)
}

func ParsePools(data []byte, chainID, networkID string) ([]api.Pair[api.PoolAddress, api.PoolMetadata], error) {
	return parsePairs[api.PoolAddress, api.PoolMetadata](data, chainID, networkID)
}

// ParseChannels decodes an object of "chain>protocol": "channel-id".
func ParseChannels(data []byte, chainID, networkID string) ([]api.Pair[api.ChannelEntry, string], error) {
	net, err := network(data, chainID, networkID)
	if err != nil {
		return nil, err
	}
	if !net.IsObject() {
		return nil, fmt.Errorf("%w: %s/%s must be an object", ErrInvalidDataset, chainID, networkID)
	}
	var out []api.Pair[api.ChannelEntry, string]
	var parseErr error
	net.ForEach(func(key, value gjson.Result) bool {
		entry, err := api.ParseChannelEntry(key.String())
		if err != nil {
			parseErr = fmt.Errorf("%w: %v", ErrInvalidDataset, err)
			return false
		}
		if value.Type != gjson.String {
			parseErr = fmt.Errorf("%w: channel %s id must be a string", ErrInvalidDataset, key.String())
			return false
		}
		out = append(out, api.NewPair(entry, value.String()))
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}
