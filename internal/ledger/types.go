package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Address identifies an account or contract instance.
type Address string

func (a Address) String() string { return string(a) }

func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

// CodeID identifies stored contract code.
type CodeID uint64

type Coin struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount"`
}

func (c Coin) String() string {
	return fmt.Sprintf("%d%s", c.Amount, c.Denom)
}

type Coins []Coin

// Normalize merges duplicate denoms, drops zero amounts, and sorts by denom.
func (cs Coins) Normalize() Coins {
	if len(cs) == 0 {
		return nil
	}
	sum := make(map[string]uint64, len(cs))
	for _, c := range cs {
		sum[c.Denom] += c.Amount
	}
	out := make(Coins, 0, len(sum))
	for denom, amount := range sum {
		if amount == 0 {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}

// Msg is a closed variant: exactly one field is set.
type Msg struct {
	Send        *SendMsg        `json:"send,omitempty"`
	Execute     *ExecuteMsg     `json:"execute,omitempty"`
	Instantiate *InstantiateMsg `json:"instantiate,omitempty"`
	Migrate     *MigrateMsg     `json:"migrate,omitempty"`
}

type SendMsg struct {
	To     Address `json:"to"`
	Amount Coins   `json:"amount"`
}

type ExecuteMsg struct {
	Contract Address         `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
	Funds    Coins           `json:"funds,omitempty"`
}

type InstantiateMsg struct {
	CodeID CodeID          `json:"code_id"`
	Msg    json.RawMessage `json:"msg"`
	Label  string          `json:"label"`
	Admin  Address         `json:"admin,omitempty"`
	Funds  Coins           `json:"funds,omitempty"`
}

type MigrateMsg struct {
	Contract Address         `json:"contract"`
	CodeID   CodeID          `json:"code_id"`
	Msg      json.RawMessage `json:"msg"`
}

// Kind names the populated variant.
func (m Msg) Kind() string {
	switch {
	case m.Send != nil:
		return "send"
	case m.Execute != nil:
		return "execute"
	case m.Instantiate != nil:
		return "instantiate"
	case m.Migrate != nil:
		return "migrate"
	default:
		return ""
	}
}

func (m Msg) validate() error {
	n := 0
	for _, set := range []bool{m.Send != nil, m.Execute != nil, m.Instantiate != nil, m.Migrate != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: message must set exactly one variant, got %d", ErrInvalidMsg, n)
	}
	return nil
}

// NewExecute encodes payload as the execute body for contract.
func NewExecute(contract Address, payload any, funds Coins) (Msg, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Msg{}, fmt.Errorf("%w: encode execute: %v", ErrInvalidMsg, err)
	}
	return Msg{Execute: &ExecuteMsg{Contract: contract, Msg: raw, Funds: funds}}, nil
}

// NewInstantiate encodes payload as the instantiate body for code.
func NewInstantiate(code CodeID, payload any, label string, admin Address) (Msg, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Msg{}, fmt.Errorf("%w: encode instantiate: %v", ErrInvalidMsg, err)
	}
	return Msg{Instantiate: &InstantiateMsg{CodeID: code, Msg: raw, Label: label, Admin: admin}}, nil
}

// NewMigrate encodes payload as the migrate body for contract.
func NewMigrate(contract Address, code CodeID, payload any) (Msg, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Msg{}, fmt.Errorf("%w: encode migrate: %v", ErrInvalidMsg, err)
	}
	return Msg{Migrate: &MigrateMsg{Contract: contract, CodeID: code, Msg: raw}}, nil
}

// ReplyOn selects when the issuing contract's Reply runs for a sub-message.
type ReplyOn string

const (
	ReplyNever   ReplyOn = "never"
	ReplySuccess ReplyOn = "success"
	ReplyError   ReplyOn = "error"
	ReplyAlways  ReplyOn = "always"
)

func (r ReplyOn) onSuccess() bool { return r == ReplySuccess || r == ReplyAlways }

func (r ReplyOn) onError() bool { return r == ReplyError || r == ReplyAlways }

type SubMsg struct {
	ID      uint64  `json:"id"`
	Msg     Msg     `json:"msg"`
	ReplyOn ReplyOn `json:"reply_on"`
}

// Reply is delivered to the issuing contract once a sub-message resolves.
type Reply struct {
	ID     uint64       `json:"id"`
	Result SubMsgResult `json:"result"`
}

type SubMsgResult struct {
	Ok  *SubMsgResponse `json:"ok,omitempty"`
	Err string          `json:"error,omitempty"`
}

type SubMsgResponse struct {
	Events []Event `json:"events"`
	Data   []byte  `json:"data,omitempty"`
}

func (r Reply) Failed() bool { return r.Result.Ok == nil }

// InstantiateResult is the data payload of an instantiate message.
type InstantiateResult struct {
	Address Address `json:"address"`
	Data    []byte  `json:"data,omitempty"`
}

// ParseInstantiateReply extracts the new instance address from a successful reply.
func ParseInstantiateReply(r Reply) (Address, error) {
	if r.Result.Ok == nil {
		return "", fmt.Errorf("%w: reply %d failed: %s", ErrInvalidReply, r.ID, r.Result.Err)
	}
	var res InstantiateResult
	if err := json.Unmarshal(r.Result.Ok.Data, &res); err != nil {
		return "", fmt.Errorf("%w: reply %d: %v", ErrInvalidReply, r.ID, err)
	}
	if res.Address.IsZero() {
		return "", fmt.Errorf("%w: reply %d has no address", ErrInvalidReply, r.ID)
	}
	return res.Address, nil
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Attr returns the first attribute value for key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Response is what a contract entry point returns to the substrate.
type Response struct {
	Messages   []SubMsg    `json:"messages,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Events     []Event     `json:"events,omitempty"`
	Data       []byte      `json:"data,omitempty"`
}

func NewResponse() Response { return Response{} }

func (r Response) AddAttribute(key, value string) Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// AddMessage appends a sub-message with ReplyNever; any failure aborts the transaction.
func (r Response) AddMessage(msg Msg) Response {
	r.Messages = append(r.Messages, SubMsg{Msg: msg, ReplyOn: ReplyNever})
	return r
}

func (r Response) AddSubMessage(sub SubMsg) Response {
	r.Messages = append(r.Messages, sub)
	return r
}

func (r Response) AddEvent(ev Event) Response {
	r.Events = append(r.Events, ev)
	return r
}

func (r Response) SetData(data []byte) Response {
	r.Data = data
	return r
}

type BlockInfo struct {
	Height  uint64    `json:"height"`
	Time    time.Time `json:"time"`
	ChainID string    `json:"chain_id"`
}

// Env describes where an entry point runs.
type Env struct {
	Block    BlockInfo `json:"block"`
	Contract Address   `json:"contract"`
	TxHash   string    `json:"tx_hash"`
}

// MessageInfo describes who called an entry point and what they attached.
type MessageInfo struct {
	Sender Address `json:"sender"`
	Funds  Coins   `json:"funds,omitempty"`
}

// ContractInfo is substrate metadata for one instance.
type ContractInfo struct {
	Address Address `json:"address"`
	CodeID  CodeID  `json:"code_id"`
	Creator Address `json:"creator"`
	Admin   Address `json:"admin,omitempty"`
	Label   string  `json:"label"`
}

// CodeInfo is substrate metadata for stored code.
type CodeInfo struct {
	ID       CodeID `json:"id"`
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

// Result is the committed outcome of a top-level transaction.
type Result struct {
	TxHash string  `json:"tx_hash"`
	Height uint64  `json:"height"`
	Data   []byte  `json:"data,omitempty"`
	Events []Event `json:"events"`
}

// Event returns the first event of the given type.
func (r *Result) Event(typ string) (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	for _, ev := range r.Events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

// DecodeData unmarshals the transaction data into out.
func (r *Result) DecodeData(out any) error {
	if r == nil || len(r.Data) == 0 {
		return fmt.Errorf("%w: transaction returned no data", ErrInvalidMsg)
	}
	return json.Unmarshal(r.Data, out)
}
