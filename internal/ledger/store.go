package ledger

import (
	"sort"
	"strings"
)

// ReadStorage is the read half of contract storage.
type ReadStorage interface {
	Get(key string) ([]byte, bool)
	// Range visits keys under prefix in ascending order, starting strictly
	// after startAfter when it is non-empty. Returning false stops the walk.
	Range(prefix, startAfter string, fn func(key string, value []byte) bool)
}

// Storage is a contract's private key space.
type Storage interface {
	ReadStorage
	Set(key string, value []byte)
	Delete(key string)
}

// Change is one committed key mutation.
type Change struct {
	Key    string
	Value  []byte
	Delete bool
}

type memState struct {
	items map[string][]byte
}

func newMemState(items map[string][]byte) *memState {
	if items == nil {
		items = make(map[string][]byte)
	}
	return &memState{items: items}
}

func (m *memState) Get(key string) ([]byte, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *memState) Range(prefix, startAfter string, fn func(string, []byte) bool) {
	keys := make([]string, 0)
	for k := range m.items {
		if strings.HasPrefix(k, prefix) && (startAfter == "" || k > startAfter) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, m.items[k]) {
			return
		}
	}
}

func (m *memState) apply(changes []Change) {
	for _, c := range changes {
		if c.Delete {
			delete(m.items, c.Key)
			continue
		}
		m.items[c.Key] = c.Value
	}
}

type pending struct {
	value   []byte
	deleted bool
}

// cacheStore buffers writes over a parent until write or discard.
type cacheStore struct {
	parent ReadStorage
	writes map[string]pending
}

func newCache(parent ReadStorage) *cacheStore {
	return &cacheStore{parent: parent, writes: make(map[string]pending)}
}

func (c *cacheStore) Get(key string) ([]byte, bool) {
	if p, ok := c.writes[key]; ok {
		if p.deleted {
			return nil, false
		}
		return p.value, true
	}
	return c.parent.Get(key)
}

func (c *cacheStore) Set(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	c.writes[key] = pending{value: cp}
}

func (c *cacheStore) Delete(key string) {
	c.writes[key] = pending{deleted: true}
}

func (c *cacheStore) Range(prefix, startAfter string, fn func(string, []byte) bool) {
	merged := make(map[string][]byte)
	c.parent.Range(prefix, startAfter, func(k string, v []byte) bool {
		merged[k] = v
		return true
	})
	for k, p := range c.writes {
		if !strings.HasPrefix(k, prefix) || (startAfter != "" && k <= startAfter) {
			continue
		}
		if p.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = p.value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, merged[k]) {
			return
		}
	}
}

// write flushes buffered writes into a parent that accepts them.
func (c *cacheStore) write() {
	parent, ok := c.parent.(Storage)
	if !ok {
		return
	}
	for k, p := range c.writes {
		if p.deleted {
			parent.Delete(k)
			continue
		}
		parent.Set(k, p.value)
	}
	c.writes = make(map[string]pending)
}

func (c *cacheStore) changes() []Change {
	out := make([]Change, 0, len(c.writes))
	for k, p := range c.writes {
		out = append(out, Change{Key: k, Value: p.value, Delete: p.deleted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// prefixStore scopes a Storage under a fixed key prefix.
type prefixStore struct {
	inner  Storage
	prefix string
}

func newPrefixStore(inner Storage, prefix string) *prefixStore {
	return &prefixStore{inner: inner, prefix: prefix}
}

func (p *prefixStore) Get(key string) ([]byte, bool) {
	return p.inner.Get(p.prefix + key)
}

func (p *prefixStore) Set(key string, value []byte) {
	p.inner.Set(p.prefix+key, value)
}

func (p *prefixStore) Delete(key string) {
	p.inner.Delete(p.prefix + key)
}

func (p *prefixStore) Range(prefix, startAfter string, fn func(string, []byte) bool) {
	after := ""
	if startAfter != "" {
		after = p.prefix + startAfter
	}
	p.inner.Range(p.prefix+prefix, after, func(k string, v []byte) bool {
		return fn(strings.TrimPrefix(k, p.prefix), v)
	})
}

// NewMemStorage returns a standalone in-memory Storage, useful for tests of
// storage helpers outside a chain.
func NewMemStorage() Storage {
	return newCache(newMemState(nil))
}
