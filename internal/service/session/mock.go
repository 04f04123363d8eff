package session

import (
	"context"
	"sync"
	"time"
)

// MockStore implements Store in memory for unit tests.
type MockStore struct {
	mu        sync.Mutex
	accounts  AccountReader
	snapshots map[string]*Snapshot
	refreshes int
	err       error
}

// NewMockStore creates a store that refreshes from accounts.
func NewMockStore(accounts AccountReader) *MockStore {
	return &MockStore{accounts: accounts, snapshots: make(map[string]*Snapshot)}
}

// Put seeds a cached snapshot.
func (m *MockStore) Put(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := snap
	m.snapshots[snap.UserID] = &cp
}

// FailWith makes later Snapshot, Refresh and Invalidate calls return err.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Refreshes returns the number of successful Refresh calls.
func (m *MockStore) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

func (m *MockStore) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return nil, m.err
	}
	if snap, ok := m.snapshots[userID]; ok {
		cp := *snap
		m.mu.Unlock()
		return &cp, nil
	}
	m.mu.Unlock()
	return m.Refresh(ctx, userID)
}

func (m *MockStore) Refresh(ctx context.Context, userID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	acc, err := m.accounts.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	var version int64
	if prev, ok := m.snapshots[userID]; ok {
		version = prev.Version
	}
	snap := snapshotFromAccount(acc, version+1, time.Now().UTC())
	m.snapshots[userID] = snap
	m.refreshes++
	cp := *snap
	return &cp, nil
}

func (m *MockStore) Invalidate(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.snapshots, userID)
	return nil
}

// Compile-time interface check
var _ Store = (*MockStore)(nil)
