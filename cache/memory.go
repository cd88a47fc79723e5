package cache

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Cache = (*Memory)(nil)

// Memory is a process-local snapshot cache.
type Memory struct {
	mu     sync.RWMutex
	snaps  map[string]*Snapshot
	expiry map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		snaps:  make(map[string]*Snapshot),
		expiry: make(map[string]time.Time),
	}
}

func (m *Memory) Get(_ context.Context, skuID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if exp, ok := m.expiry[skuID]; ok && time.Now().Before(exp) {
		if snap, ok := m.snaps[skuID]; ok {
			c := *snap
			return &c, nil
		}
	}
	return nil, ErrMiss
}

func (m *Memory) Set(_ context.Context, snap *Snapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *snap
	m.snaps[snap.SKUID] = &c
	m.expiry[snap.SKUID] = time.Now().Add(ttl)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, skuID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snaps, skuID)
	delete(m.expiry, skuID)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
