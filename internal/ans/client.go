package ans

import (
	"context"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
)

// Client drives a deployed name-resolution registry.
type Client struct {
	exec ledger.Executor
	addr ledger.Address
}

func NewClient(exec ledger.Executor, addr ledger.Address) *Client {
	return &Client{exec: exec, addr: addr}
}

func (c *Client) Address() ledger.Address {
	return c.addr
}

// Update submits one update message as its own transaction.
func (c *Client) Update(ctx context.Context, sender ledger.Address, msg api.AnsExecute) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, msg, nil)
}

func (c *Client) Asset(ctx context.Context, name string) (api.AssetInfo, error) {
	var out api.Pair[string, api.AssetInfo]
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Asset: &api.AssetQuery{Name: name}}, &out)
	return out.Value, err
}

func (c *Client) Contract(ctx context.Context, entry api.ContractEntry) (string, error) {
	var out api.Pair[api.ContractEntry, string]
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Contract: &api.ContractQuery{Entry: entry}}, &out)
	return out.Value, err
}

func (c *Client) Channel(ctx context.Context, entry api.ChannelEntry) (string, error) {
	var out api.Pair[api.ChannelEntry, string]
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Channel: &api.ChannelQuery{Entry: entry}}, &out)
	return out.Value, err
}

func (c *Client) Pool(ctx context.Context, addr api.PoolAddress) (api.PoolMetadata, error) {
	var out api.Pair[api.PoolAddress, api.PoolMetadata]
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Pool: &api.PoolQuery{Address: addr}}, &out)
	return out.Value, err
}

func (c *Client) Assets(ctx context.Context, page api.PageQuery) ([]api.Pair[string, api.AssetInfo], error) {
	var out api.AssetsResponse
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{AssetList: &page}, &out)
	return out.Assets, err
}

func (c *Client) Contracts(ctx context.Context, page api.PageQuery) ([]api.Pair[api.ContractEntry, string], error) {
	var out api.ContractsResponse
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Contracts: &page}, &out)
	return out.Contracts, err
}

func (c *Client) Channels(ctx context.Context, page api.PageQuery) ([]api.Pair[api.ChannelEntry, string], error) {
	var out api.ChannelsResponse
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Channels: &page}, &out)
	return out.Channels, err
}

func (c *Client) Pools(ctx context.Context, page api.PageQuery) ([]api.Pair[api.PoolAddress, api.PoolMetadata], error) {
	var out api.PoolsResponse
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{PoolList: &page}, &out)
	return out.Pools, err
}

func (c *Client) Dexes(ctx context.Context) ([]string, error) {
	var out api.DexesResponse
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Dexes: &struct{}{}}, &out)
	return out.Dexes, err
}

func (c *Client) Config(ctx context.Context) (api.AnsConfig, error) {
	var out api.AnsConfig
	err := c.exec.Query(ctx, c.addr, api.AnsQuery{Config: &struct{}{}}, &out)
	return out, err
}
