// Package vault holds an account's assets. Only the account's controller may
// move them.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/rs/zerolog/log"
)

const (
	ContractName    = "acctos:vault"
	ContractVersion = "0.4.0"

	// MaxBasisPoints is one hundred percent; fees must stay below it.
	MaxBasisPoints = 10000
)

var (
	ErrUnauthorized = errors.New("vault: unauthorized")
	ErrInvalidFee   = errors.New("vault: invalid fee")
)

var config = ledger.NewItem[api.VaultConfig]("config")

type Contract struct{}

var _ ledger.Contract = Contract{}

func New() Contract {
	return Contract{}
}

func (Contract) Instantiate(_ context.Context, deps ledger.Deps, _ ledger.Env, _ ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	var msg api.VaultInstantiate
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	if msg.Controller.IsZero() {
		return ledger.Response{}, fmt.Errorf("%w: controller address is required", ledger.ErrInvalidMsg)
	}
	if err := ledger.SetContractVersion(deps.Storage, ContractName, ContractVersion); err != nil {
		return ledger.Response{}, err
	}
	if err := config.Save(deps.Storage, api.VaultConfig{AccountID: msg.AccountID, Controller: msg.Controller}); err != nil {
		return ledger.Response{}, err
	}
	return ledger.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("controller", msg.Controller.String()), nil
}

// Execute authorises the sender before decoding the payload, so every
// message from a non-controller fails the same way.
func (Contract) Execute(_ context.Context, deps ledger.Deps, env ledger.Env, info ledger.MessageInfo, raw json.RawMessage) (ledger.Response, error) {
	cfg, err := config.Load(deps.Storage)
	if err != nil {
		return ledger.Response{}, err
	}
	if info.Sender != cfg.Controller {
		log.Warn().Msgf("vault.Contract.Execute vault=%s rejected sender=%s", env.Contract, info.Sender)
		return ledger.Response{}, fmt.Errorf("%w: %s is not the controller of account %d", ErrUnauthorized, info.Sender, cfg.AccountID)
	}
	var msg api.VaultExecute
	if err := ledger.Decode(raw, &msg); err != nil {
		return ledger.Response{}, err
	}
	switch {
	case msg.ExecuteOnBehalf != nil:
		resp := ledger.NewResponse().
			AddAttribute("action", "execute_on_behalf").
			AddAttribute("msgs", fmt.Sprint(len(msg.ExecuteOnBehalf.Msgs)))
		for _, m := range msg.ExecuteOnBehalf.Msgs {
			resp = resp.AddMessage(m)
		}
		log.Debug().Msgf("vault.Contract.executeOnBehalf account=%d msgs=%d", cfg.AccountID, len(msg.ExecuteOnBehalf.Msgs))
		return resp, nil
	case msg.SetController != nil:
		if msg.SetController.Controller.IsZero() {
			return ledger.Response{}, fmt.Errorf("%w: controller address is required", ledger.ErrInvalidMsg)
		}
		cfg.Controller = msg.SetController.Controller
		if err := config.Save(deps.Storage, cfg); err != nil {
			return ledger.Response{}, err
		}
		return ledger.NewResponse().
			AddAttribute("action", "set_controller").
			AddAttribute("controller", cfg.Controller.String()), nil
	case msg.UpdateFee != nil:
		if fee := msg.UpdateFee.Fee; fee != nil {
			if fee.BasisPoints >= MaxBasisPoints {
				return ledger.Response{}, fmt.Errorf("%w: %d basis points", ErrInvalidFee, fee.BasisPoints)
			}
			if fee.Recipient.IsZero() {
				return ledger.Response{}, fmt.Errorf("%w: recipient is required", ErrInvalidFee)
			}
		}
		cfg.Fee = msg.UpdateFee.Fee
		if err := config.Save(deps.Storage, cfg); err != nil {
			return ledger.Response{}, err
		}
		return ledger.NewResponse().AddAttribute("action", "update_fee"), nil
	}
	return ledger.Response{}, fmt.Errorf("%w: unknown vault message", ledger.ErrInvalidMsg)
}

func (Contract) Query(_ context.Context, deps ledger.QueryDeps, env ledger.Env, raw json.RawMessage) ([]byte, error) {
	var msg api.VaultQuery
	if err := ledger.Decode(raw, &msg); err != nil {
		return nil, err
	}
	switch {
	case msg.Config != nil:
		cfg, err := config.Load(deps.Storage)
		if err != nil {
			return nil, err
		}
		return ledger.Encode(cfg)
	case msg.Balances != nil:
		if len(msg.Balances.Denoms) == 0 {
			return ledger.Encode(api.BalancesResponse{Balances: deps.Querier.AllBalances(env.Contract)})
		}
		var out ledger.Coins
		for _, denom := range msg.Balances.Denoms {
			out = append(out, ledger.Coin{Denom: denom, Amount: deps.Querier.Balance(env.Contract, denom)})
		}
		return ledger.Encode(api.BalancesResponse{Balances: out.Normalize()})
	}
	return nil, fmt.Errorf("%w: unknown vault query", ledger.ErrInvalidMsg)
}
