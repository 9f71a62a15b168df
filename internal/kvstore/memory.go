package kvstore

import (
	"sort"
	"sync"
)

// Memory is an in-process Store. It backs tests and deployments that
// run without a database configured.
type Memory struct {
	mux        sync.RWMutex
	partitions map[string]*memPartition
}

type memPartition struct {
	keys   []string // sorted ascending
	values map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{partitions: make(map[string]*memPartition)}
}

func (m *Memory) Put(partition, key string, value []byte) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	p, ok := m.partitions[partition]
	if !ok {
		p = &memPartition{values: make(map[string][]byte)}
		m.partitions[partition] = p
	}

	if _, exists := p.values[key]; !exists {
		i := sort.SearchStrings(p.keys, key)
		p.keys = append(p.keys, "")
		copy(p.keys[i+1:], p.keys[i:])
		p.keys[i] = key
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	p.values[key] = cp
	return nil
}

func (m *Memory) Get(partition, key string) ([]byte, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()

	p, ok := m.partitions[partition]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := p.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Delete(partition, key string) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	p, ok := m.partitions[partition]
	if !ok {
		return nil
	}
	if _, exists := p.values[key]; !exists {
		return nil
	}
	delete(p.values, key)
	i := sort.SearchStrings(p.keys, key)
	p.keys = append(p.keys[:i], p.keys[i+1:]...)
	if len(p.keys) == 0 {
		delete(m.partitions, partition)
	}
	return nil
}

func (m *Memory) Scan(partition string, q Query) ([]Record, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()

	p, ok := m.partitions[partition]
	if !ok {
		return nil, nil
	}

	var out []Record
	for i := len(p.keys) - 1; i >= 0; i-- {
		key := p.keys[i]
		if q.Before != "" && key >= q.Before {
			continue
		}
		if q.After != "" && key <= q.After {
			break
		}
		v := p.values[key]
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, Record{Key: key, Value: cp})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) DeletePartition(partition string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.partitions, partition)
	return nil
}

func (m *Memory) Close() error { return nil }
