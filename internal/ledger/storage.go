package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Item is a single JSON value under a fixed key.
type Item[T any] struct {
	key string
}

func NewItem[T any](key string) Item[T] {
	return Item[T]{key: key}
}

func (i Item[T]) Load(s ReadStorage) (T, error) {
	v, ok, err := i.May(s)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: %s", ErrStateNotFound, i.key)
	}
	return v, nil
}

// May is Load that reports absence instead of failing.
func (i Item[T]) May(s ReadStorage) (T, bool, error) {
	var v T
	raw, ok := s.Get(i.key)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", i.key, err)
	}
	return v, true, nil
}

func (i Item[T]) Save(s Storage, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", i.key, err)
	}
	s.Set(i.key, raw)
	return nil
}

func (i Item[T]) Remove(s Storage) {
	s.Delete(i.key)
}

// Entry is one key/value pair read from a Map.
type Entry[T any] struct {
	Key   string
	Value T
}

// Map stores JSON values under string keys within one namespace.
type Map[T any] struct {
	prefix string
}

func NewMap[T any](namespace string) Map[T] {
	return Map[T]{prefix: namespace + "/"}
}

func (m Map[T]) Load(s ReadStorage, key string) (T, bool, error) {
	var v T
	raw, ok := s.Get(m.prefix + key)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s%s: %w", m.prefix, key, err)
	}
	return v, true, nil
}

func (m Map[T]) Has(s ReadStorage, key string) bool {
	_, ok := s.Get(m.prefix + key)
	return ok
}

func (m Map[T]) Save(s Storage, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s%s: %w", m.prefix, key, err)
	}
	s.Set(m.prefix+key, raw)
	return nil
}

func (m Map[T]) Remove(s Storage, key string) {
	s.Delete(m.prefix + key)
}

// Range returns up to limit entries in key order after startAfter.
// A limit of zero or less returns every entry.
func (m Map[T]) Range(s ReadStorage, startAfter string, limit int) ([]Entry[T], error) {
	after := ""
	if startAfter != "" {
		after = m.prefix + startAfter
	}
	var out []Entry[T]
	var decodeErr error
	s.Range(m.prefix, after, func(k string, raw []byte) bool {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			decodeErr = fmt.Errorf("decode %s: %w", k, err)
			return false
		}
		out = append(out, Entry[T]{Key: strings.TrimPrefix(k, m.prefix), Value: v})
		return limit <= 0 || len(out) < limit
	})
	return out, decodeErr
}

// Keys lists every key in the namespace in order.
func (m Map[T]) Keys(s ReadStorage) []string {
	var out []string
	s.Range(m.prefix, "", func(k string, _ []byte) bool {
		out = append(out, strings.TrimPrefix(k, m.prefix))
		return true
	})
	return out
}
