package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/acctos/internal/testutil/testlog"
)

type counterExec struct {
	Incr *struct{} `json:"incr,omitempty"`
	Fail *struct{} `json:"fail,omitempty"`
	Call *callMsg  `json:"call,omitempty"`
}

type callMsg struct {
	Target  Address         `json:"target"`
	Msg     json.RawMessage `json:"msg"`
	ReplyOn ReplyOn         `json:"reply_on"`
}

type counter struct{}

var (
	countItem = NewItem[int]("count")
	lastReply = NewItem[Reply]("last_reply")
)

func (counter) Instantiate(_ context.Context, deps Deps, _ Env, _ MessageInfo, _ json.RawMessage) (Response, error) {
	if err := countItem.Save(deps.Storage, 0); err != nil {
		return Response{}, err
	}
	return NewResponse().SetData([]byte("init")), nil
}

func (counter) Execute(_ context.Context, deps Deps, _ Env, _ MessageInfo, raw json.RawMessage) (Response, error) {
	var msg counterExec
	if err := Decode(raw, &msg); err != nil {
		return Response{}, err
	}
	n, _ := countItem.Load(deps.Storage)
	switch {
	case msg.Incr != nil:
		_ = countItem.Save(deps.Storage, n+1)
		return NewResponse().AddAttribute("action", "incr").SetData([]byte("incr")), nil
	case msg.Fail != nil:
		_ = countItem.Save(deps.Storage, 999)
		return Response{}, errors.New("counter: forced failure")
	case msg.Call != nil:
		_ = countItem.Save(deps.Storage, n+1)
		return NewResponse().
			SetData([]byte("call")).
			AddSubMessage(SubMsg{
				ID:      7,
				Msg:     Msg{Execute: &ExecuteMsg{Contract: msg.Call.Target, Msg: msg.Call.Msg}},
				ReplyOn: msg.Call.ReplyOn,
			}), nil
	}
	return Response{}, errors.New("counter: unknown message")
}

func (counter) Query(_ context.Context, deps QueryDeps, _ Env, _ json.RawMessage) ([]byte, error) {
	n, err := countItem.Load(deps.Storage)
	if err != nil {
		return nil, err
	}
	return Encode(n)
}

func (counter) Reply(_ context.Context, deps Deps, _ Env, reply Reply) (Response, error) {
	if err := lastReply.Save(deps.Storage, reply); err != nil {
		return Response{}, err
	}
	return NewResponse().SetData([]byte("replied")), nil
}

func (counter) Migrate(_ context.Context, deps Deps, _ Env, _ json.RawMessage) (Response, error) {
	return NewResponse(), countItem.Save(deps.Storage, 100)
}

func newTestChain(t *testing.T, backend Backend) (*Chain, CodeID) {
	t.Helper()
	testlog.Start(t)
	ctx := context.Background()
	chain, err := NewChain(ctx, DefaultConfig(), backend)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	code, err := chain.StoreCode(ctx, "counter", counter{})
	if err != nil {
		t.Fatalf("store code: %v", err)
	}
	return chain, code
}

func instantiateCounter(t *testing.T, chain *Chain, code CodeID, admin Address) Address {
	t.Helper()
	addr, _, err := chain.Instantiate(context.Background(), "alice", code, map[string]any{}, "counter", admin)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return addr
}

func count(t *testing.T, chain *Chain, addr Address) int {
	t.Helper()
	var n int
	if err := chain.Query(context.Background(), addr, map[string]any{"count": struct{}{}}, &n); err != nil {
		t.Fatalf("query: %v", err)
	}
	return n
}

func TestExecuteCommitsState(t *testing.T) {
	chain, code := newTestChain(t, nil)
	addr := instantiateCounter(t, chain, code, "")
	res, err := chain.Execute(context.Background(), "alice", addr, counterExec{Incr: &struct{}{}}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(res.Data) != "incr" {
		t.Fatalf("unexpected data: %q", res.Data)
	}
	ev, ok := res.Event("wasm")
	if !ok {
		t.Fatalf("missing wasm event: %+v", res.Events)
	}
	if v, _ := ev.Attr("action"); v != "incr" {
		t.Fatalf("unexpected attribute: %q", v)
	}
	if n := count(t, chain, addr); n != 1 {
		t.Fatalf("count=%d want 1", n)
	}
	if res.TxHash == "" || res.Height != chain.Height() {
		t.Fatalf("unexpected result metadata: %+v", res)
	}
}

func TestFailedTransactionRollsBack(t *testing.T) {
	chain, code := newTestChain(t, nil)
	addr := instantiateCounter(t, chain, code, "")
	height := chain.Height()
	if _, err := chain.Execute(context.Background(), "alice", addr, counterExec{Fail: &struct{}{}}, nil); err == nil {
		t.Fatalf("expected failure")
	}
	if n := count(t, chain, addr); n != 0 {
		t.Fatalf("failed tx leaked state: count=%d", n)
	}
	if chain.Height() != height {
		t.Fatalf("failed tx advanced height")
	}
}

func TestSubMessageFailureWithoutReplyAbortsCaller(t *testing.T) {
	chain, code := newTestChain(t, nil)
	caller := instantiateCounter(t, chain, code, "")
	target := instantiateCounter(t, chain, code, "")
	failMsg, _ := json.Marshal(counterExec{Fail: &struct{}{}})

	call := counterExec{Call: &callMsg{Target: target, Msg: failMsg, ReplyOn: ReplyNever}}
	_, err := chain.Execute(context.Background(), "alice", caller, call, nil)
	if err == nil || !strings.Contains(err.Error(), "forced failure") {
		t.Fatalf("expected propagated failure, got %v", err)
	}
	if count(t, chain, caller) != 0 || count(t, chain, target) != 0 {
		t.Fatalf("aborted tx leaked state")
	}
}

func TestReplyOnErrorDiscardsOnlySubBranch(t *testing.T) {
	chain, code := newTestChain(t, nil)
	caller := instantiateCounter(t, chain, code, "")
	target := instantiateCounter(t, chain, code, "")
	failMsg, _ := json.Marshal(counterExec{Fail: &struct{}{}})

	call := counterExec{Call: &callMsg{Target: target, Msg: failMsg, ReplyOn: ReplyError}}
	res, err := chain.Execute(context.Background(), "alice", caller, call, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(res.Data) != "replied" {
		t.Fatalf("reply data should replace parent data, got %q", res.Data)
	}
	if n := count(t, chain, caller); n != 1 {
		t.Fatalf("caller count=%d want 1", n)
	}
	if n := count(t, chain, target); n != 0 {
		t.Fatalf("failed sub-call leaked state: count=%d", n)
	}
}

func TestReplyOnSuccessCarriesSubData(t *testing.T) {
	chain, code := newTestChain(t, nil)
	caller := instantiateCounter(t, chain, code, "")
	target := instantiateCounter(t, chain, code, "")
	incr, _ := json.Marshal(counterExec{Incr: &struct{}{}})

	call := counterExec{Call: &callMsg{Target: target, Msg: incr, ReplyOn: ReplyAlways}}
	if _, err := chain.Execute(context.Background(), "alice", caller, call, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n := count(t, chain, target); n != 1 {
		t.Fatalf("target count=%d want 1", n)
	}
}

func TestSubmitRejectsOversizedPayload(t *testing.T) {
	chain, code := newTestChain(t, nil)
	addr := instantiateCounter(t, chain, code, "")
	huge := map[string]string{"incr": strings.Repeat("x", DefaultMaxMsgBytes)}
	_, err := chain.Execute(context.Background(), "alice", addr, huge, nil)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestMigrateRequiresAdmin(t *testing.T) {
	chain, code := newTestChain(t, nil)
	addr := instantiateCounter(t, chain, code, "owner")
	ctx := context.Background()
	if _, err := chain.Migrate(ctx, "mallory", addr, code, map[string]any{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := chain.Migrate(ctx, "owner", addr, code, map[string]any{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if n := count(t, chain, addr); n != 100 {
		t.Fatalf("migration did not run: count=%d", n)
	}
}

func TestSendMovesFunds(t *testing.T) {
	chain, _ := newTestChain(t, nil)
	ctx := context.Background()
	if err := chain.Fund(ctx, "alice", Coins{{Denom: "uacct", Amount: 10}}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := chain.Send(ctx, "alice", "bob", Coins{{Denom: "uacct", Amount: 4}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := chain.Send(ctx, "alice", "bob", Coins{{Denom: "uacct", Amount: 7}}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if chain.Balance("alice", "uacct") != 6 || chain.Balance("bob", "uacct") != 4 {
		t.Fatalf("unexpected balances: %v %v", chain.Balances("alice"), chain.Balances("bob"))
	}
}

type failingBackend struct {
	*MemBackend
	fail int
}

func (f *failingBackend) Commit(ctx context.Context, changes []Change) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("disk full")
	}
	return f.MemBackend.Commit(ctx, changes)
}

func TestCommitFailureLeavesStateUntouched(t *testing.T) {
	backend := &failingBackend{MemBackend: NewMemBackend()}
	chain, code := newTestChain(t, backend)
	addr := instantiateCounter(t, chain, code, "")

	backend.fail = 1
	_, err := chain.Execute(context.Background(), "alice", addr, counterExec{Incr: &struct{}{}}, nil)
	if !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("expected ErrCommitFailed, got %v", err)
	}
	if n := count(t, chain, addr); n != 0 {
		t.Fatalf("count=%d after failed commit", n)
	}
}

func TestStoreCodeIsIdempotentAcrossRestart(t *testing.T) {
	backend := NewMemBackend()
	chain, code := newTestChain(t, backend)
	addr := instantiateCounter(t, chain, code, "")
	_ = chain.Close()

	reopened, err := NewChain(context.Background(), DefaultConfig(), backend)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again, err := reopened.StoreCode(context.Background(), "counter", counter{})
	if err != nil {
		t.Fatalf("store code: %v", err)
	}
	if again != code {
		t.Fatalf("code id changed across restart: %d -> %d", code, again)
	}
	if n := count(t, reopened, addr); n != 0 {
		t.Fatalf("count=%d", n)
	}
}
