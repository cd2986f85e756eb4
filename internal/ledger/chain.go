// Package ledger is an in-process execution substrate for contract-style
// components.
//
// Top-level transactions run one at a time. Each transaction executes on a
// cache branch of committed state; sub-messages run depth-first on nested
// branches and may hand control back to the issuing contract through a
// reply. A failed transaction leaves committed state untouched.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/acctos/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultChainID       = "acctos-local"
	DefaultAddressPrefix = "acct"
	DefaultMaxMsgBytes   = 64 * 1024
	DefaultMaxCallDepth  = 32

	metaPrefix        = "meta/"
	contractInfoKey   = metaPrefix + "contract/"
	codeInfoKey       = metaPrefix + "code/"
	codeIndexKey      = metaPrefix + "codeidx/"
	codeSeqKey        = metaPrefix + "seq/code"
	contractSeqKey    = metaPrefix + "seq/contract"
	heightKey         = metaPrefix + "height"
	userMetaKey       = metaPrefix + "kv/"
	contractStorePref = "c/"
)

type Config struct {
	ChainID       string
	AddressPrefix string
	MaxMsgBytes   int
	MaxCallDepth  int
	Clock         func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ChainID:       DefaultChainID,
		AddressPrefix: DefaultAddressPrefix,
		MaxMsgBytes:   DefaultMaxMsgBytes,
		MaxCallDepth:  DefaultMaxCallDepth,
		Clock:         time.Now,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ChainID) == "" {
		c.ChainID = def.ChainID
	}
	if strings.TrimSpace(c.AddressPrefix) == "" {
		c.AddressPrefix = def.AddressPrefix
	}
	if c.MaxMsgBytes <= 0 {
		c.MaxMsgBytes = def.MaxMsgBytes
	}
	if c.MaxCallDepth <= 0 {
		c.MaxCallDepth = def.MaxCallDepth
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	return c
}

// Chain owns committed state and serialises top-level transactions.
type Chain struct {
	mu      sync.RWMutex
	cfg     Config
	backend Backend
	state   *memState
	codes   map[CodeID]Contract
	height  uint64
	closed  bool
}

// NewChain loads committed state from backend. Code must be rebound with
// StoreCode after a restart before its contracts can run.
func NewChain(ctx context.Context, cfg Config, backend Backend) (*Chain, error) {
	if backend == nil {
		backend = NewMemBackend()
	}
	items, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	c := &Chain{
		cfg:     cfg.withDefaults(),
		backend: backend,
		state:   newMemState(items),
		codes:   make(map[CodeID]Contract),
	}
	if raw, ok := c.state.Get(heightKey); ok {
		c.height, _ = strconv.ParseUint(string(raw), 10, 64)
	}
	log.Debug().Msgf("ledger.NewChain chain_id=%s height=%d keys=%d", c.cfg.ChainID, c.height, len(items))
	return c, nil
}

func (c *Chain) Config() Config {
	return c.cfg
}

func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.backend.Close()
}

// StoreCode binds impl under name. Storing the same name again returns the
// existing id, so a restarted process rebinds its code ids.
func (c *Chain) StoreCode(ctx context.Context, name string, impl Contract) (CodeID, error) {
	name = strings.TrimSpace(name)
	if name == "" || impl == nil {
		return 0, fmt.Errorf("%w: code name and implementation are required", ErrInvalidMsg)
	}
	sum := sha256.Sum256([]byte(name))
	checksum := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if raw, ok := c.state.Get(codeIndexKey + checksum); ok {
		id, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: corrupt code index for %q", ErrCodeNotFound, name)
		}
		c.codes[CodeID(id)] = impl
		return CodeID(id), nil
	}

	root := newCache(c.state)
	id := CodeID(nextSeq(root, codeSeqKey))
	info, _ := json.Marshal(CodeInfo{ID: id, Name: name, Checksum: checksum})
	root.Set(codeInfoKey+strconv.FormatUint(uint64(id), 10), info)
	root.Set(codeIndexKey+checksum, []byte(strconv.FormatUint(uint64(id), 10)))
	if err := c.commit(ctx, root); err != nil {
		return 0, err
	}
	c.codes[id] = impl
	log.Debug().Msgf("ledger.Chain.StoreCode name=%s code_id=%d", name, id)
	return id, nil
}

func (c *Chain) CodeInfo(id CodeID) (CodeInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loadCodeInfo(c.state, id)
}

// Submit runs msg as one top-level transaction from sender.
func (c *Chain) Submit(ctx context.Context, sender Address, msg Msg) (*Result, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMsg, err)
	}
	if len(raw) > c.cfg.MaxMsgBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(raw), c.cfg.MaxMsgBytes)
	}
	return c.run(ctx, msg.Kind(), func(tx *txContext, root *cacheStore) ([]byte, []Event, error) {
		return tx.dispatch(root, sender, msg, 0)
	})
}

func (c *Chain) Execute(ctx context.Context, sender, contract Address, payload any, funds Coins) (*Result, error) {
	msg, err := NewExecute(contract, payload, funds)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, sender, msg)
}

func (c *Chain) Instantiate(ctx context.Context, sender Address, code CodeID, payload any, label string, admin Address) (Address, *Result, error) {
	msg, err := NewInstantiate(code, payload, label, admin)
	if err != nil {
		return "", nil, err
	}
	res, err := c.Submit(ctx, sender, msg)
	if err != nil {
		return "", nil, err
	}
	var out InstantiateResult
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return "", res, fmt.Errorf("%w: instantiate data: %v", ErrInvalidReply, err)
	}
	return out.Address, res, nil
}

func (c *Chain) Migrate(ctx context.Context, sender, contract Address, code CodeID, payload any) (*Result, error) {
	msg, err := NewMigrate(contract, code, payload)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, sender, msg)
}

func (c *Chain) Send(ctx context.Context, from, to Address, amount Coins) (*Result, error) {
	return c.Submit(ctx, from, Msg{Send: &SendMsg{To: to, Amount: amount}})
}

// Fund mints coins to addr outside of any contract; genesis and tests only.
func (c *Chain) Fund(ctx context.Context, addr Address, amount Coins) error {
	_, err := c.run(ctx, "fund", func(_ *txContext, root *cacheStore) ([]byte, []Event, error) {
		mint(root, addr, amount)
		return nil, nil, nil
	})
	return err
}

// Query runs a smart query against committed state and decodes into out.
func (c *Chain) Query(ctx context.Context, contract Address, msg any, out any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx := c.newTx(ctx)
	return tx.querier(c.state).QueryContract(contract, msg, out)
}

func (c *Chain) QueryRaw(ctx context.Context, contract Address, msg json.RawMessage) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx := c.newTx(ctx)
	return tx.query(c.state, contract, msg)
}

func (c *Chain) Balance(addr Address, denom string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return balanceOf(c.state, addr, denom)
}

func (c *Chain) Balances(addr Address) Coins {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return balancesOf(c.state, addr)
}

func (c *Chain) ContractInfo(addr Address) (ContractInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loadContractInfo(c.state, addr)
}

// Meta reads an off-contract record stored with SetMeta.
func (c *Chain) Meta(name string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Get(userMetaKey + name)
}

// SetMeta commits an off-contract record such as a deployment manifest.
func (c *Chain) SetMeta(ctx context.Context, name string, value []byte) error {
	_, err := c.run(ctx, "meta", func(_ *txContext, root *cacheStore) ([]byte, []Event, error) {
		root.Set(userMetaKey+name, value)
		return nil, nil, nil
	})
	return err
}

type txFunc func(tx *txContext, root *cacheStore) ([]byte, []Event, error)

func (c *Chain) run(ctx context.Context, entry string, fn txFunc) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	tx := c.newTx(ctx)
	tx.block.Height = c.height + 1
	root := newCache(c.state)
	data, events, err := fn(tx, root)
	if err != nil {
		observability.RecordTransaction(entry, false, time.Since(start))
		log.Debug().Msgf("ledger.Chain.run reverted entry=%s tx=%s err=%v", entry, tx.hash, err)
		return nil, err
	}
	root.Set(heightKey, []byte(strconv.FormatUint(tx.block.Height, 10)))
	if err := c.commit(ctx, root); err != nil {
		observability.RecordTransaction(entry, false, time.Since(start))
		log.Warn().Msgf("ledger.Chain.run commit failed entry=%s tx=%s err=%v", entry, tx.hash, err)
		return nil, err
	}
	c.height = tx.block.Height
	observability.RecordTransaction(entry, true, time.Since(start))
	log.Debug().Msgf("ledger.Chain.run committed entry=%s tx=%s height=%d events=%d", entry, tx.hash, c.height, len(events))
	if events == nil {
		events = []Event{}
	}
	return &Result{TxHash: tx.hash, Height: c.height, Data: data, Events: events}, nil
}

// commit persists root then applies it to committed state. Caller holds mu.
func (c *Chain) commit(ctx context.Context, root *cacheStore) error {
	changes := root.changes()
	if err := c.backend.Commit(ctx, changes); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	c.state.apply(changes)
	return nil
}

func (c *Chain) newTx(ctx context.Context) *txContext {
	return &txContext{
		ctx:   ctx,
		chain: c,
		hash:  uuid.NewString(),
		block: BlockInfo{Height: c.height, Time: c.cfg.Clock(), ChainID: c.cfg.ChainID},
	}
}

func (c *Chain) deriveAddress(seq uint64) Address {
	sum := sha256.Sum256([]byte(c.cfg.ChainID + "/contract/" + strconv.FormatUint(seq, 10)))
	return Address(c.cfg.AddressPrefix + "1" + hex.EncodeToString(sum[:])[:38])
}

func nextSeq(store Storage, key string) uint64 {
	var n uint64
	if raw, ok := store.Get(key); ok {
		n, _ = strconv.ParseUint(string(raw), 10, 64)
	}
	n++
	store.Set(key, []byte(strconv.FormatUint(n, 10)))
	return n
}

func loadContractInfo(store ReadStorage, addr Address) (ContractInfo, error) {
	raw, ok := store.Get(contractInfoKey + string(addr))
	if !ok {
		return ContractInfo{}, fmt.Errorf("%w: %q", ErrContractNotFound, addr)
	}
	var info ContractInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ContractInfo{}, fmt.Errorf("%w: %q: %v", ErrContractNotFound, addr, err)
	}
	return info, nil
}

func saveContractInfo(store Storage, info ContractInfo) {
	raw, _ := json.Marshal(info)
	store.Set(contractInfoKey+string(info.Address), raw)
}

func loadCodeInfo(store ReadStorage, id CodeID) (CodeInfo, error) {
	raw, ok := store.Get(codeInfoKey + strconv.FormatUint(uint64(id), 10))
	if !ok {
		return CodeInfo{}, fmt.Errorf("%w: %d", ErrCodeNotFound, id)
	}
	var info CodeInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return CodeInfo{}, fmt.Errorf("%w: %d: %v", ErrCodeNotFound, id, err)
	}
	return info, nil
}
