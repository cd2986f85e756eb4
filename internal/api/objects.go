package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/acctos/internal/ledger"
)

var ErrInvalidEntry = errors.New("api: invalid entry")

// Pair encodes as the two-element JSON array [key, value].
type Pair[K, V any] struct {
	Key   K
	Value V
}

func NewPair[K, V any](k K, v V) Pair[K, V] {
	return Pair[K, V]{Key: k, Value: v}
}

func (p Pair[K, V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, p.Value})
}

func (p *Pair[K, V]) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("%w: pair: %v", ErrInvalidEntry, err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("%w: pair has %d elements", ErrInvalidEntry, len(parts))
	}
	if err := json.Unmarshal(parts[0], &p.Key); err != nil {
		return fmt.Errorf("%w: pair key: %v", ErrInvalidEntry, err)
	}
	if err := json.Unmarshal(parts[1], &p.Value); err != nil {
		return fmt.Errorf("%w: pair value: %v", ErrInvalidEntry, err)
	}
	return nil
}

// AssetInfo names where an asset lives: a native denom or a token contract.
type AssetInfo struct {
	Native string `json:"native,omitempty"`
	Cw20   string `json:"cw20,omitempty"`
}

func (a AssetInfo) Validate() error {
	native := strings.TrimSpace(a.Native) != ""
	cw20 := strings.TrimSpace(a.Cw20) != ""
	if native == cw20 {
		return fmt.Errorf("%w: asset info must set exactly one of native or cw20", ErrInvalidEntry)
	}
	return nil
}

func (a AssetInfo) String() string {
	if a.Native != "" {
		return "native:" + a.Native
	}
	return "cw20:" + a.Cw20
}

// NormalizeName lower-cases and trims a name-resolution key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ContractEntry keys a well-known contract by protocol and contract name.
type ContractEntry struct {
	Protocol string `json:"protocol"`
	Contract string `json:"contract"`
}

func (e ContractEntry) Normalize() ContractEntry {
	return ContractEntry{Protocol: NormalizeName(e.Protocol), Contract: NormalizeName(e.Contract)}
}

func (e ContractEntry) Validate() error {
	if NormalizeName(e.Protocol) == "" || NormalizeName(e.Contract) == "" {
		return fmt.Errorf("%w: contract entry needs protocol and contract", ErrInvalidEntry)
	}
	if strings.Contains(e.Protocol, ":") || strings.Contains(e.Contract, ":") {
		return fmt.Errorf("%w: contract entry %q:%q must not contain ':'", ErrInvalidEntry, e.Protocol, e.Contract)
	}
	return nil
}

func (e ContractEntry) String() string {
	n := e.Normalize()
	return n.Protocol + ":" + n.Contract
}

func ParseContractEntry(raw string) (ContractEntry, error) {
	protocol, contract, ok := strings.Cut(raw, ":")
	e := ContractEntry{Protocol: protocol, Contract: contract}
	if !ok {
		return ContractEntry{}, fmt.Errorf("%w: contract entry %q must be protocol:contract", ErrInvalidEntry, raw)
	}
	if err := e.Validate(); err != nil {
		return ContractEntry{}, err
	}
	return e.Normalize(), nil
}

// ChannelEntry keys an inter-chain channel by remote chain and protocol.
type ChannelEntry struct {
	ConnectedChain string `json:"connected_chain"`
	Protocol       string `json:"protocol"`
}

func (e ChannelEntry) Normalize() ChannelEntry {
	return ChannelEntry{ConnectedChain: NormalizeName(e.ConnectedChain), Protocol: NormalizeName(e.Protocol)}
}

func (e ChannelEntry) Validate() error {
	if NormalizeName(e.ConnectedChain) == "" || NormalizeName(e.Protocol) == "" {
		return fmt.Errorf("%w: channel entry needs connected_chain and protocol", ErrInvalidEntry)
	}
	if strings.Contains(e.ConnectedChain, ">") || strings.Contains(e.Protocol, ">") {
		return fmt.Errorf("%w: channel entry %q>%q must not contain '>'", ErrInvalidEntry, e.ConnectedChain, e.Protocol)
	}
	return nil
}

// String renders the dataset form "chain>protocol".
func (e ChannelEntry) String() string {
	n := e.Normalize()
	return n.ConnectedChain + ">" + n.Protocol
}

func ParseChannelEntry(raw string) (ChannelEntry, error) {
	chain, protocol, ok := strings.Cut(raw, ">")
	e := ChannelEntry{ConnectedChain: chain, Protocol: protocol}
	if !ok {
		return ChannelEntry{}, fmt.Errorf("%w: channel entry %q must be chain>protocol", ErrInvalidEntry, raw)
	}
	if err := e.Validate(); err != nil {
		return ChannelEntry{}, err
	}
	return e.Normalize(), nil
}

// PoolAddress identifies a pool by contract address or numeric pool id.
type PoolAddress struct {
	Contract string  `json:"contract,omitempty"`
	ID       *uint64 `json:"id,omitempty"`
}

func PoolContract(addr string) PoolAddress {
	return PoolAddress{Contract: addr}
}

func PoolID(id uint64) PoolAddress {
	return PoolAddress{ID: &id}
}

func (p PoolAddress) Validate() error {
	hasContract := strings.TrimSpace(p.Contract) != ""
	if hasContract == (p.ID != nil) {
		return fmt.Errorf("%w: pool address must set exactly one of contract or id", ErrInvalidEntry)
	}
	return nil
}

// Key is the storage key for the pool.
func (p PoolAddress) Key() string {
	if p.ID != nil {
		return "id:" + strconv.FormatUint(*p.ID, 10)
	}
	return "contract:" + strings.TrimSpace(p.Contract)
}

func ParsePoolKey(key string) (PoolAddress, error) {
	kind, val, ok := strings.Cut(key, ":")
	if !ok {
		return PoolAddress{}, fmt.Errorf("%w: pool key %q", ErrInvalidEntry, key)
	}
	switch kind {
	case "id":
		id, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return PoolAddress{}, fmt.Errorf("%w: pool id %q", ErrInvalidEntry, val)
		}
		return PoolID(id), nil
	case "contract":
		return PoolContract(val), nil
	}
	return PoolAddress{}, fmt.Errorf("%w: pool key %q", ErrInvalidEntry, key)
}

var poolTypes = map[string]bool{
	"constant_product":    true,
	"stable":              true,
	"weighted":            true,
	"liquidity_bootstrap": true,
}

// PoolMetadata describes a liquidity pool on a registered dex.
type PoolMetadata struct {
	Dex      string   `json:"dex"`
	PoolType string   `json:"pool_type"`
	Assets   []string `json:"assets"`
}

func (m PoolMetadata) Normalize() PoolMetadata {
	out := PoolMetadata{Dex: NormalizeName(m.Dex), PoolType: NormalizeName(m.PoolType)}
	for _, a := range m.Assets {
		out.Assets = append(out.Assets, NormalizeName(a))
	}
	return out
}

func (m PoolMetadata) Validate() error {
	n := m.Normalize()
	if n.Dex == "" {
		return fmt.Errorf("%w: pool metadata needs a dex", ErrInvalidEntry)
	}
	if !poolTypes[n.PoolType] {
		return fmt.Errorf("%w: unknown pool type %q", ErrInvalidEntry, m.PoolType)
	}
	if len(n.Assets) < 2 {
		return fmt.Errorf("%w: pool needs at least two assets, got %d", ErrInvalidEntry, len(n.Assets))
	}
	for _, a := range n.Assets {
		if a == "" {
			return fmt.Errorf("%w: pool asset name is empty", ErrInvalidEntry)
		}
	}
	return nil
}

// AccountBundle is the registry record of one account.
type AccountBundle struct {
	AccountID  uint64         `json:"account_id"`
	Controller ledger.Address `json:"controller"`
	Vault      ledger.Address `json:"vault"`
	Governance GovernanceInfo `json:"governance"`
}

// GovernanceInfo is the flattened governance summary stored with a bundle.
type GovernanceInfo struct {
	Kind  string         `json:"kind"`
	Owner ledger.Address `json:"owner"`
}
