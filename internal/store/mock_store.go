// ABOUTME: In-memory CredentialStore for tests.
// ABOUTME: Mirrors SQLiteStore semantics without touching disk.

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type mockCredential struct {
	token         string
	createdAt     time.Time
	updatedAt     time.Time
	registrations int
}

// MockStore is an in-memory CredentialStore.
type MockStore struct {
	mu    sync.RWMutex
	creds map[string]*mockCredential

	// Now is the clock used for timestamps; defaults to time.Now.
	Now func() time.Time
}

var _ CredentialStore = (*MockStore)(nil)

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		creds: make(map[string]*mockCredential),
		Now:   time.Now,
	}
}

func (m *MockStore) SaveCredential(ctx context.Context, identity, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if c, ok := m.creds[identity]; ok {
		c.token = token
		c.updatedAt = now
		c.registrations++
		return true, nil
	}
	m.creds[identity] = &mockCredential{token: token, createdAt: now, updatedAt: now, registrations: 1}
	return false, nil
}

func (m *MockStore) GetCredential(ctx context.Context, identity string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.creds[identity]
	if !ok {
		return "", ErrNotFound
	}
	return c.token, nil
}

func (m *MockStore) DeleteCredential(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.creds[identity]; !ok {
		return ErrNotFound
	}
	delete(m.creds, identity)
	return nil
}

func (m *MockStore) ListIdentities(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.creds))
	for id := range m.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockStore) CredentialStats(ctx context.Context, since time.Time) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Total: len(m.creds)}
	for _, c := range m.creds {
		if !c.createdAt.Before(since) {
			st.NewSince++
		}
		if c.registrations > 1 && !c.updatedAt.Before(since) {
			st.ReconnectedSince++
		}
	}
	return st, nil
}

func (m *MockStore) Close() error { return nil }
