package session

import (
	"context"
	"sync"
)

// MemoryBackend keeps sessions in process memory.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]Session),
	}
}

// Load implements Backend.
func (b *MemoryBackend) Load(ctx context.Context, accountID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[accountID], nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(ctx context.Context, accountID string, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[accountID] = s
	return nil
}

// Accounts returns the ids of all accounts that were ever saved.
func (b *MemoryBackend) Accounts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	return ids
}
