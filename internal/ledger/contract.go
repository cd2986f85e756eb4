package ledger

import (
	"context"
	"encoding/json"
)

// Contract is the entry-point surface every stored code implements.
type Contract interface {
	Instantiate(ctx context.Context, deps Deps, env Env, info MessageInfo, msg json.RawMessage) (Response, error)
	Execute(ctx context.Context, deps Deps, env Env, info MessageInfo, msg json.RawMessage) (Response, error)
	Query(ctx context.Context, deps QueryDeps, env Env, msg json.RawMessage) ([]byte, error)
}

// Migrator is implemented by code that accepts migrate messages.
type Migrator interface {
	Migrate(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (Response, error)
}

// Replier is implemented by code that issues sub-messages with a reply.
type Replier interface {
	Reply(ctx context.Context, deps Deps, env Env, reply Reply) (Response, error)
}

// Querier gives contracts read access to other contracts and the bank.
// Reads observe uncommitted writes of the running transaction.
type Querier interface {
	QueryContract(contract Address, msg any, out any) error
	ContractInfo(contract Address) (ContractInfo, error)
	Balance(addr Address, denom string) uint64
	AllBalances(addr Address) Coins
}

type Deps struct {
	Storage Storage
	Querier Querier
}

type QueryDeps struct {
	Storage ReadStorage
	Querier Querier
}

// Executor is the top-level transaction surface clients drive; *Chain
// implements it.
type Executor interface {
	Execute(ctx context.Context, sender, contract Address, payload any, funds Coins) (*Result, error)
	Query(ctx context.Context, contract Address, msg any, out any) error
}

var _ Executor = (*Chain)(nil)
