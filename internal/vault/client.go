package vault

import (
	"context"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
)

// Client reads a vault and submits its controller-only messages.
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

func (c *Client) ExecuteOnBehalf(ctx context.Context, sender ledger.Address, msgs ...ledger.Msg) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.VaultExecute{
		ExecuteOnBehalf: &api.ExecuteOnBehalf{Msgs: msgs},
	}, nil)
}

func (c *Client) Config(ctx context.Context) (api.VaultConfig, error) {
	var out api.VaultConfig
	err := c.exec.Query(ctx, c.addr, api.VaultQuery{Config: &struct{}{}}, &out)
	return out, err
}

// Balances returns the vault's holdings of denoms, or all holdings when none are named.
func (c *Client) Balances(ctx context.Context, denoms ...string) (ledger.Coins, error) {
	var out api.BalancesResponse
	err := c.exec.Query(ctx, c.addr, api.VaultQuery{Balances: &api.BalancesQuery{Denoms: denoms}}, &out)
	return out.Balances, err
}
