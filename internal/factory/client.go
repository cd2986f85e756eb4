package factory

import (
	"context"
	"fmt"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
)

// Client drives a deployed account or module factory.
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

// CreateAccount runs create_account as one transaction and returns the new bundle.
func (c *Client) CreateAccount(ctx context.Context, sender ledger.Address, gov governance.Details, name, description string) (api.AccountBundle, error) {
	res, err := c.exec.Execute(ctx, sender, c.addr, api.AccountFactoryExecute{
		CreateAccount: &api.CreateAccount{Governance: gov, Name: name, Description: description},
	}, nil)
	if err != nil {
		return api.AccountBundle{}, err
	}
	var bundle api.AccountBundle
	if err := res.DecodeData(&bundle); err != nil {
		return api.AccountBundle{}, fmt.Errorf("%w: create_account data: %v", ErrContinuationFailed, err)
	}
	return bundle, nil
}

func (c *Client) UpdateConfig(ctx context.Context, sender ledger.Address, upd api.FactoryConfigUpdate) error {
	_, err := c.exec.Execute(ctx, sender, c.addr, factoryUpdate{UpdateConfig: &upd}, nil)
	return err
}

func (c *Client) Config(ctx context.Context) (api.FactoryConfig, error) {
	var out api.FactoryConfig
	err := c.exec.Query(ctx, c.addr, api.FactoryQuery{Config: &struct{}{}}, &out)
	return out, err
}

// factoryUpdate is the update_config variant both factories accept.
type factoryUpdate struct {
	UpdateConfig *api.FactoryConfigUpdate `json:"update_config"`
}
