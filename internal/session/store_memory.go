package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory behind a per-user lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]*memoryEntry
}

type memoryEntry struct {
	mu sync.Mutex
	s  Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[int64]*memoryEntry{}}
}

func (m *MemoryStore) entry(userID int64) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[userID]
	if e == nil {
		e = &memoryEntry{s: Session{UserID: userID, State: StateIdle}}
		m.entries[userID] = e
	}
	return e
}

func (m *MemoryStore) Update(_ context.Context, userID int64, fn func(*Session) error) error {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	// fn mutates a copy so a failed transition leaves the session as-is.
	next := e.s
	if err := fn(&next); err != nil {
		return err
	}
	e.s = next
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (Session, error) {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s, nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}
