package controller

import (
	"context"
	"encoding/json"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
)

// Client drives one account's controller through top-level transactions.
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

func (c *Client) Install(ctx context.Context, sender ledger.Address, ref api.ModuleRef, initMsg json.RawMessage) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		InstallModule: &api.InstallModule{Module: ref, InitMsg: initMsg},
	}, nil)
}

func (c *Client) Upgrade(ctx context.Context, sender ledger.Address, moduleID, constraint string, migrateMsg json.RawMessage) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		UpgradeModule: &api.UpgradeModule{ModuleID: moduleID, Version: constraint, MigrateMsg: migrateMsg},
	}, nil)
}

func (c *Client) Uninstall(ctx context.Context, sender ledger.Address, moduleID string) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		UninstallModule: &api.UninstallModule{ModuleID: moduleID},
	}, nil)
}

func (c *Client) ExecOnModule(ctx context.Context, sender ledger.Address, moduleID string, payload any) (*ledger.Result, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		ExecOnModule: &api.ExecOnModule{ModuleID: moduleID, Msg: raw},
	}, nil)
}

func (c *Client) ExecOnVault(ctx context.Context, sender ledger.Address, msgs ...ledger.Msg) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		ExecOnVault: &api.ExecOnVault{Msgs: msgs},
	}, nil)
}

func (c *Client) UpdateVaultFee(ctx context.Context, sender ledger.Address, fee *api.Fee) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		UpdateVaultFee: &api.UpdateFee{Fee: fee},
	}, nil)
}

func (c *Client) SetVaultController(ctx context.Context, sender, next ledger.Address) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		SetVaultController: &api.SetController{Controller: next},
	}, nil)
}

func (c *Client) SetGovernance(ctx context.Context, sender ledger.Address, gov governance.Details) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		SetGovernance: &api.SetGovernance{Governance: gov},
	}, nil)
}

func (c *Client) UpdateInfo(ctx context.Context, sender ledger.Address, name, description *string) (*ledger.Result, error) {
	return c.exec.Execute(ctx, sender, c.addr, api.ControllerExecute{
		UpdateInfo: &api.UpdateInfo{Name: name, Description: description},
	}, nil)
}

func (c *Client) Info(ctx context.Context) (api.ControllerInfo, error) {
	var out api.ControllerInfo
	err := c.exec.Query(ctx, c.addr, api.ControllerQuery{Info: &struct{}{}}, &out)
	return out, err
}

func (c *Client) Config(ctx context.Context) (api.ControllerConfig, error) {
	var out api.ControllerConfig
	err := c.exec.Query(ctx, c.addr, api.ControllerQuery{Config: &struct{}{}}, &out)
	return out, err
}

func (c *Client) Module(ctx context.Context, moduleID string) (api.ModuleEntry, error) {
	var out api.ModuleEntry
	err := c.exec.Query(ctx, c.addr, api.ControllerQuery{Module: &api.ModuleQuery{ModuleID: moduleID}}, &out)
	return out, err
}

func (c *Client) Modules(ctx context.Context, startAfter string, limit int) ([]api.ModuleEntry, error) {
	var out api.ModulesPage
	err := c.exec.Query(ctx, c.addr, api.ControllerQuery{Modules: &api.PageQuery{StartAfter: startAfter, Limit: limit}}, &out)
	return out.Modules, err
}
