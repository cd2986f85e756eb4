package registry

import (
	"context"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
)

// Client drives a deployed registry through top-level transactions.
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

func (c *Client) ClaimNamespace(ctx context.Context, sender ledger.Address, ns string, owner ledger.Address) error {
	_, err := c.exec.Execute(ctx, sender, c.addr, api.RegistryExecute{
		ClaimNamespace: &api.ClaimNamespace{Namespace: ns, Owner: owner},
	}, nil)
	return err
}

func (c *Client) Register(ctx context.Context, sender ledger.Address, record api.ModuleRecord) error {
	_, err := c.exec.Execute(ctx, sender, c.addr, api.RegistryExecute{
		Register: &api.RegisterModule{
			Namespace: record.Namespace,
			Name:      record.Name,
			Version:   record.Version,
			Reference: record.Reference,
		},
	}, nil)
	return err
}

func (c *Client) SetFactory(ctx context.Context, sender, factory ledger.Address) error {
	_, err := c.exec.Execute(ctx, sender, c.addr, api.RegistryExecute{
		SetFactory: &api.SetFactory{Address: factory},
	}, nil)
	return err
}

func (c *Client) Resolve(ctx context.Context, id, constraint string) (api.ModuleRecord, error) {
	info, err := api.ParseModuleID(id)
	if err != nil {
		return api.ModuleRecord{}, err
	}
	var out api.ModuleRecord
	err = c.exec.Query(ctx, c.addr, api.RegistryQuery{
		Resolve: &api.ResolveModule{Namespace: info.Namespace, Name: info.Name, Constraint: constraint},
	}, &out)
	return out, err
}

func (c *Client) Versions(ctx context.Context, id string) ([]string, error) {
	info, err := api.ParseModuleID(id)
	if err != nil {
		return nil, err
	}
	var out api.VersionsResponse
	err = c.exec.Query(ctx, c.addr, api.RegistryQuery{
		Versions: &api.ModuleVersions{Namespace: info.Namespace, Name: info.Name},
	}, &out)
	return out.Versions, err
}

func (c *Client) Modules(ctx context.Context, ns, startAfter string, limit int) ([]api.ModuleRecord, error) {
	var out api.ModulesResponse
	err := c.exec.Query(ctx, c.addr, api.RegistryQuery{
		Modules: &api.ListModules{Namespace: ns, StartAfter: startAfter, Limit: limit},
	}, &out)
	return out.Modules, err
}

func (c *Client) Namespace(ctx context.Context, ns string) (api.NamespaceResponse, error) {
	var out api.NamespaceResponse
	err := c.exec.Query(ctx, c.addr, api.RegistryQuery{Namespace: &api.NamespaceQuery{Namespace: ns}}, &out)
	return out, err
}

func (c *Client) Account(ctx context.Context, id uint64) (api.AccountBundle, error) {
	var out api.AccountBundle
	err := c.exec.Query(ctx, c.addr, api.RegistryQuery{Account: &api.AccountQuery{AccountID: id}}, &out)
	return out, err
}

func (c *Client) AccountByController(ctx context.Context, controller ledger.Address) (api.AccountBundle, error) {
	var out api.AccountBundle
	err := c.exec.Query(ctx, c.addr, api.RegistryQuery{
		AccountByController: &api.AccountByController{Controller: controller},
	}, &out)
	return out, err
}

func (c *Client) Config(ctx context.Context) (api.RegistryConfig, error) {
	var out api.RegistryConfig
	err := c.exec.Query(ctx, c.addr, api.RegistryQuery{Config: &struct{}{}}, &out)
	return out, err
}
