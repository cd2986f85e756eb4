package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
)

func (Contract) Query(_ context.Context, deps ledger.QueryDeps, _ ledger.Env, raw json.RawMessage) ([]byte, error) {
	var msg api.ControllerQuery
	if err := ledger.Decode(raw, &msg); err != nil {
		return nil, err
	}
	store := deps.Storage
	switch {
	case msg.Info != nil:
		out, err := info.Load(store)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(out)
	case msg.Config != nil:
		out, err := config.Load(store)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(out)
	case msg.Module != nil:
		id := strings.TrimSpace(msg.Module.ModuleID)
		entry, ok, err := modules.Load(store, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotInstalled, id)
		}
		return ledger.Encode(entry)
	case msg.Modules != nil:
		page, err := modules.Range(store, msg.Modules.StartAfter, api.PageLimit(msg.Modules.Limit))
		if err != nil {
			return nil, err
		}
		out := api.ModulesPage{Modules: make([]api.ModuleEntry, 0, len(page))}
		for _, e := range page {
			out.Modules = append(out.Modules, e.Value)
		}
		return ledger.Encode(out)
	}
	return nil, fmt.Errorf("%w: unknown controller query", ledger.ErrInvalidMsg)
}
