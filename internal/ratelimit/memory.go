package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryWindow is an in-process WindowStore, used in tests and as a fallback
// when no Redis is configured. Not durable across restarts.
type MemoryWindow struct {
	mu    sync.Mutex
	times []time.Time
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{}
}

func (m *MemoryWindow) RecordRequest(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.times = append(m.times, at)
	return nil
}

func (m *MemoryWindow) CountSince(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.times {
		if !t.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryWindow) OldestSince(_ context.Context, cutoff time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest time.Time
	found := false
	for _, t := range m.times {
		if t.Before(cutoff) {
			continue
		}
		if !found || t.Before(oldest) {
			oldest = t
			found = true
		}
	}
	return oldest, found, nil
}

func (m *MemoryWindow) Prune(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.times[:0]
	for _, t := range m.times {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	m.times = kept
	return nil
}
