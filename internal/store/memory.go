package store

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-process Directory used in development and
// tests, and as the default when no Redis backend is configured.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]Membership
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]Membership)}
}

// Upsert installs or replaces a user record.
func (d *MemoryDirectory) Upsert(userID string, m Membership) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = m
}

// Remove deletes a user record.
func (d *MemoryDirectory) Remove(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, userID)
}

func (d *MemoryDirectory) Membership(_ context.Context, userID string) (*Membership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.users[userID]
	if !ok {
		return nil, ErrUserUnknown
	}
	snapshot := m
	snapshot.TeamIDs = append([]string(nil), m.TeamIDs...)
	return &snapshot, nil
}

func (d *MemoryDirectory) Ping(context.Context) error {
	return nil
}
