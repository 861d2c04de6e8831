// File: internal/store/memory.go
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Memory is an in-process Store. It is the default backend; hosts that need
// durability across restarts configure postgres instead.
type Memory struct {
	logger *zap.Logger

	mu          sync.RWMutex
	data        map[string][]byte
	initialized bool
	closed      bool
}

// NewMemory creates an uninitialized in-memory store.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		logger: logger.Named("store.memory"),
		data:   make(map[string][]byte),
	}
}

// Init implements schemas.Store.
func (m *Memory) Init(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.initialized = true
	m.logger.Debug("In-memory store initialized")
	return nil
}

// Close implements schemas.Store. Closing drops all data.
func (m *Memory) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

func (m *Memory) ready() error {
	if m.closed {
		return ErrClosed
	}
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Get implements schemas.Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, false, err
	}
	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	// Copy so callers cannot mutate stored bytes.
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set implements schemas.Store.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ready(); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Delete implements schemas.Store. Deleting a missing key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ready(); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

// Keys implements schemas.Store.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
