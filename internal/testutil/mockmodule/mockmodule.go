// Package mockmodule is an installable app module for tests. Its migration
// can be made to fail on demand.
package mockmodule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/acctos/internal/ledger"
)

var ErrMigrationRefused = errors.New("mockmodule: migration refused")

type InitMsg struct {
	Value string `json:"value,omitempty"`
}

type ExecuteMsg struct {
	Set  *SetValue `json:"set,omitempty"`
	Fail *struct{} `json:"fail,omitempty"`
}

type SetValue struct {
	Value string `json:"value"`
}

// MigrateMsg writes Value during migration, then refuses if Fail is set.
// The write lets tests check that a refused migration leaves no trace.
type MigrateMsg struct {
	Fail  bool   `json:"fail,omitempty"`
	Value string `json:"value,omitempty"`
}

type QueryMsg struct {
	State *struct{} `json:"state,omitempty"`
}

// State is what the state query returns.
type State struct {
	Value   string         `json:"value"`
	Version string         `json:"version"`
	Owner   ledger.Address `json:"owner"`
	Calls   int            `json:"calls"`
}

var state = ledger.NewItem[State]("state")

// Module is one version of the mock app; StoreCode it under CodeName.
type Module struct {
	Version string
}

var (
	_ ledger.Contract = Module{}
	_ ledger.Migrator = Module{}
)

func New(version string) Module {
	return Module{Version: version}
}

func (m Module) CodeName() string {
	return "mock:app@" + m.Version
}

func (m Module) Instantiate(_ context.Context, deps ledger.Deps, _ ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg InitMsg
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	if err := state.Save(deps.Storage, State{Value: msg.Value, Version: m.Version, Owner: info.Sender}); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "instantiate"), nil
}

func (m Module) Execute(_ context.Context, deps ledger.Deps, _ ledger.Env, _ ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg ExecuteMsg
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	if msg.Fail != nil {
		return ledger.Response{}, fmt.Errorf("mockmodule: asked to fail")
	}
	st, err := state.Load(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	st.Calls++
	if msg.Set != nil {
		st.Value = msg.Set.Value
	}
	if err := state.Save(deps.Storage, st); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().AddAttribute("action", "set").AddAttribute("value", st.Value), nil
}

func (m Module) Migrate(_ context.Context, deps ledger.Deps, _ ledger.Env, raw json.RawMessage) (ledger.Response, error) {
	var msg MigrateMsg
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	st, err := state.Load(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	if msg.Value != "" {
		st.Value = msg.Value
	}
	st.Version = m.Version
	if err := state.Save(deps.Storage, st); err != nil {
		return ledger.Response{}, err
	}
	if msg.Fail {
		return ledger.Response{}, fmt.Errorf("%w: to %s", ErrMigrationRefused, m.Version)
	}
	return ledger.NewResponse().AddAttribute("action", "migrate").AddAttribute("version", m.Version), nil
}

func (m Module) Query(_ context.Context, deps ledger.QueryDeps, _ ledger.Env, raw json.RawMessage) ([]byte, error) {
	var msg QueryMsg
	if err := ledger.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.State == nil {
		return nil, fmt.Errorf("%w: unknown mock query", ledger.ErrInvalidMsg)
	}
	st, err := state.Load(deps.Storage)
	if err != nil {
		return nil, err
	}
	return ledger.Encode(st)
}

// QueryState reads a deployed instance's state.
func QueryState(ctx context.Context, exec ledger.Executor, addr ledger.Address) (State, error) {
	var out State
	err := exec.Query(ctx, addr, QueryMsg{State: &struct{}{}}, &out)
	return out, err
}
