package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

type txContext struct {
	ctx   context.Context
	chain *Chain
	hash  string
	block BlockInfo
}

func (tx *txContext) env(contract Address) Env {
	return Env{Block: tx.block, Contract: contract, TxHash: tx.hash}
}

func (tx *txContext) code(id CodeID) (Contract, error) {
	impl, ok := tx.chain.codes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d is not bound in this process", ErrCodeNotFound, id)
	}
	return impl, nil
}

func (tx *txContext) deps(store Storage, contract Address) Deps {
	return Deps{
		Storage: newPrefixStore(store, contractStorePref+string(contract)+"/"),
		Querier: tx.querier(store),
	}
}

// dispatch executes msg on store, which the caller owns and discards on error.
func (tx *txContext) dispatch(store Storage, sender Address, msg Msg, depth int) ([]byte, []Event, error) {
	if depth > tx.chain.cfg.MaxCallDepth {
		return nil, nil, fmt.Errorf("%w: depth %d", ErrCallDepthExceeded, depth)
	}
	if err := tx.ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := msg.validate(); err != nil {
		return nil, nil, err
	}
	switch {
	case msg.Send != nil:
		return tx.send(store, sender, msg.Send)
	case msg.Execute != nil:
		return tx.execute(store, sender, msg.Execute, depth)
	case msg.Instantiate != nil:
		return tx.instantiate(store, sender, msg.Instantiate, depth)
	default:
		return tx.migrate(store, sender, msg.Migrate, depth)
	}
}

func (tx *txContext) send(store Storage, sender Address, m *SendMsg) ([]byte, []Event, error) {
	if m.To.IsZero() {
		return nil, nil, fmt.Errorf("%w: send requires a recipient", ErrInvalidMsg)
	}
	if err := transfer(store, sender, m.To, m.Amount); err != nil {
		return nil, nil, err
	}
	ev := Event{Type: "transfer", Attributes: []Attribute{
		{Key: "sender", Value: string(sender)},
		{Key: "recipient", Value: string(m.To)},
		{Key: "amount", Value: coinsString(m.Amount)},
	}}
	return nil, []Event{ev}, nil
}

func (tx *txContext) execute(store Storage, sender Address, m *ExecuteMsg, depth int) ([]byte, []Event, error) {
	info, err := loadContractInfo(store, m.Contract)
	if err != nil {
		return nil, nil, err
	}
	impl, err := tx.code(info.CodeID)
	if err != nil {
		return nil, nil, err
	}
	if err := transfer(store, sender, m.Contract, m.Funds); err != nil {
		return nil, nil, err
	}
	resp, err := impl.Execute(tx.ctx, tx.deps(store, m.Contract), tx.env(m.Contract), MessageInfo{Sender: sender, Funds: m.Funds.Normalize()}, m.Msg)
	if err != nil {
		return nil, nil, fmt.Errorf("execute %s: %w", m.Contract, err)
	}
	events := []Event{{Type: "execute", Attributes: []Attribute{{Key: "_contract_address", Value: string(m.Contract)}}}}
	data, sub, err := tx.handleResponse(store, m.Contract, resp, depth)
	if err != nil {
		return nil, nil, err
	}
	return data, append(events, sub...), nil
}

func (tx *txContext) instantiate(store Storage, sender Address, m *InstantiateMsg, depth int) ([]byte, []Event, error) {
	impl, err := tx.code(m.CodeID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := loadCodeInfo(store, m.CodeID); err != nil {
		return nil, nil, err
	}
	addr := tx.chain.deriveAddress(nextSeq(store, contractSeqKey))
	saveContractInfo(store, ContractInfo{
		Address: addr,
		CodeID:  m.CodeID,
		Creator: sender,
		Admin:   m.Admin,
		Label:   m.Label,
	})
	if err := transfer(store, sender, addr, m.Funds); err != nil {
		return nil, nil, err
	}
	resp, err := impl.Instantiate(tx.ctx, tx.deps(store, addr), tx.env(addr), MessageInfo{Sender: sender, Funds: m.Funds.Normalize()}, m.Msg)
	if err != nil {
		return nil, nil, fmt.Errorf("instantiate code %d: %w", m.CodeID, err)
	}
	events := []Event{{Type: "instantiate", Attributes: []Attribute{
		{Key: "_contract_address", Value: string(addr)},
		{Key: "code_id", Value: strconv.FormatUint(uint64(m.CodeID), 10)},
	}}}
	inner, sub, err := tx.handleResponse(store, addr, resp, depth)
	if err != nil {
		return nil, nil, err
	}
	data, _ := json.Marshal(InstantiateResult{Address: addr, Data: inner})
	return data, append(events, sub...), nil
}

func (tx *txContext) migrate(store Storage, sender Address, m *MigrateMsg, depth int) ([]byte, []Event, error) {
	info, err := loadContractInfo(store, m.Contract)
	if err != nil {
		return nil, nil, err
	}
	if info.Admin.IsZero() || info.Admin != sender {
		return nil, nil, fmt.Errorf("%w: %s is not admin of %s", ErrUnauthorized, sender, m.Contract)
	}
	impl, err := tx.code(m.CodeID)
	if err != nil {
		return nil, nil, err
	}
	migrator, ok := impl.(Migrator)
	if !ok {
		return nil, nil, fmt.Errorf("%w: code %d", ErrMigrateUnsupported, m.CodeID)
	}
	info.CodeID = m.CodeID
	saveContractInfo(store, info)
	resp, err := migrator.Migrate(tx.ctx, tx.deps(store, m.Contract), tx.env(m.Contract), m.Msg)
	if err != nil {
		return nil, nil, fmt.Errorf("migrate %s: %w", m.Contract, err)
	}
	events := []Event{{Type: "migrate", Attributes: []Attribute{
		{Key: "_contract_address", Value: string(m.Contract)},
		{Key: "code_id", Value: strconv.FormatUint(uint64(m.CodeID), 10)},
	}}}
	data, sub, err := tx.handleResponse(store, m.Contract, resp, depth)
	if err != nil {
		return nil, nil, err
	}
	return data, append(events, sub...), nil
}

// handleResponse emits the contract's events, then runs its sub-messages in
// order. A reply's data replaces the data of the response that issued it.
func (tx *txContext) handleResponse(store Storage, contract Address, resp Response, depth int) ([]byte, []Event, error) {
	events := contractEvents(contract, resp)
	data := resp.Data
	for _, sub := range resp.Messages {
		branch := newCache(store)
		subData, subEvents, err := tx.dispatch(branch, contract, sub.Msg, depth+1)
		var reply Reply
		switch {
		case err == nil:
			branch.write()
			events = append(events, subEvents...)
			if !sub.ReplyOn.onSuccess() {
				continue
			}
			reply = Reply{ID: sub.ID, Result: SubMsgResult{Ok: &SubMsgResponse{Events: subEvents, Data: subData}}}
		case sub.ReplyOn.onError():
			reply = Reply{ID: sub.ID, Result: SubMsgResult{Err: err.Error()}}
		default:
			return nil, nil, err
		}
		replyData, replyEvents, err := tx.reply(store, contract, reply, depth)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, replyEvents...)
		if replyData != nil {
			data = replyData
		}
	}
	return data, events, nil
}

func (tx *txContext) reply(store Storage, contract Address, reply Reply, depth int) ([]byte, []Event, error) {
	info, err := loadContractInfo(store, contract)
	if err != nil {
		return nil, nil, err
	}
	impl, err := tx.code(info.CodeID)
	if err != nil {
		return nil, nil, err
	}
	replier, ok := impl.(Replier)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrReplyUnsupported, contract)
	}
	resp, err := replier.Reply(tx.ctx, tx.deps(store, contract), tx.env(contract), reply)
	if err != nil {
		return nil, nil, fmt.Errorf("reply %s id=%d: %w", contract, reply.ID, err)
	}
	events := []Event{{Type: "reply", Attributes: []Attribute{
		{Key: "_contract_address", Value: string(contract)},
		{Key: "id", Value: strconv.FormatUint(reply.ID, 10)},
	}}}
	data, sub, err := tx.handleResponse(store, contract, resp, depth)
	if err != nil {
		return nil, nil, err
	}
	return data, append(events, sub...), nil
}

func (tx *txContext) query(store ReadStorage, contract Address, msg json.RawMessage) ([]byte, error) {
	info, err := loadContractInfo(store, contract)
	if err != nil {
		return nil, err
	}
	impl, err := tx.code(info.CodeID)
	if err != nil {
		return nil, err
	}
	scratch := newCache(store)
	deps := QueryDeps{
		Storage: newPrefixStore(scratch, contractStorePref+string(contract)+"/"),
		Querier: tx.querier(store),
	}
	out, err := impl.Query(tx.ctx, deps, tx.env(contract), msg)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", contract, err)
	}
	return out, nil
}

func (tx *txContext) querier(store ReadStorage) Querier {
	return &txQuerier{tx: tx, store: store}
}

type txQuerier struct {
	tx    *txContext
	store ReadStorage
}

func (q *txQuerier) QueryContract(contract Address, msg any, out any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode query: %v", ErrInvalidMsg, err)
	}
	res, err := q.tx.query(q.store, contract, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return fmt.Errorf("decode query response from %s: %w", contract, err)
	}
	return nil
}

func (q *txQuerier) ContractInfo(contract Address) (ContractInfo, error) {
	return loadContractInfo(q.store, contract)
}

func (q *txQuerier) Balance(addr Address, denom string) uint64 {
	return balanceOf(q.store, addr, denom)
}

func (q *txQuerier) AllBalances(addr Address) Coins {
	return balancesOf(q.store, addr)
}

func contractEvents(contract Address, resp Response) []Event {
	var out []Event
	if len(resp.Attributes) > 0 {
		attrs := append([]Attribute{{Key: "_contract_address", Value: string(contract)}}, resp.Attributes...)
		out = append(out, Event{Type: "wasm", Attributes: attrs})
	}
	for _, ev := range resp.Events {
		attrs := append([]Attribute{{Key: "_contract_address", Value: string(contract)}}, ev.Attributes...)
		out = append(out, Event{Type: "wasm-" + ev.Type, Attributes: attrs})
	}
	return out
}

func coinsString(cs Coins) string {
	out := ""
	for i, c := range cs.Normalize() {
		if i > 0 {
			out += ","
		}
		out += c.String()
	}
	return out
}
