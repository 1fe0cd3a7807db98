package kvstore

import (
	"bytes"
	"context"
	"iter"
	"sort"
	"sync"
)

// Memory is an in-memory Engine backed by a map. It is safe for concurrent
// use and snapshots matching entries before iterating, so callers may write
// while ranging over a List result.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[string(encodeKey(key))]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := listPrefix(prefix)

	m.mu.RLock()
	keys := make([]string, 0)
	vals := make(map[string][]byte)
	for k, v := range m.data {
		if len(p) == 0 || bytes.HasPrefix([]byte(k), p) {
			keys = append(keys, k)
			vals[k] = bytes.Clone(v)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	return func(yield func(Entry, error) bool) {
		for _, k := range keys {
			if !yield(Entry{Key: decodeKey([]byte(k)), Value: vals[k]}, nil) {
				return
			}
		}
	}
}

func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.data[string(encodeKey(e.Key))] = bytes.Clone(e.Value)
	}
	return nil
}

func (m *Memory) BatchDelete(_ context.Context, keys []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, string(encodeKey(k)))
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
