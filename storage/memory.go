package storage

import (
	"context"
	"sync"
)

// Memory keeps slots in process memory. Contents are lost on restart.
type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, partition, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[slotKey(partition, key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(_ context.Context, partition, key string, value []byte) error {
	m.mu.Lock()
	m.slots[slotKey(partition, key)] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, partition, key string) error {
	m.mu.Lock()
	delete(m.slots, slotKey(partition, key))
	m.mu.Unlock()
	return nil
}

func slotKey(partition, key string) string {
	return partition + ":" + key
}
