package dashcache

import (
	"context"
	"sync"
	"time"

	"github.com/mindmate/cognition/internal/patient"
)

// Memory is an in-process Cache. One mutex guards every operation, so a
// read-modify-write such as UpdateSessionData is atomic.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		entries: make(map[string]*Entry),
		ttl:     o.ttl,
		now:     o.now,
	}
}

func (m *Memory) Get(ctx context.Context, patientID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[patientID]
	if !ok {
		return nil, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, patientID)
		return nil, nil
	}
	return e.clone(), nil
}

func (m *Memory) Set(ctx context.Context, patientID string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	e := entry.clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	e.stamp(patientID, m.now(), ttl)
	m.entries[patientID] = e
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, patientID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[patientID]; !ok {
		return false, nil
	}
	delete(m.entries, patientID)
	return true, nil
}

func (m *Memory) ClearAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.entries)
	m.entries = make(map[string]*Entry)
	return n, nil
}

func (m *Memory) CleanupExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) UpdateSessionData(ctx context.Context, patientID string, summary patient.Summary) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[patientID]
	if !ok {
		return false, nil
	}
	e.addSummary(summary, m.now())
	return true, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := Stats{
		Backend:         BackendMemory,
		TotalEntries:    len(m.entries),
		DefaultTTLHours: m.ttl.Hours(),
	}
	for _, e := range m.entries {
		if e.expired(now) {
			s.ExpiredEntries++
		} else {
			s.ActiveEntries++
		}
	}
	return s, nil
}
