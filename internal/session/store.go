package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrEmptyAccountID is returned when a store operation receives no account id.
var ErrEmptyAccountID = errors.New("session: empty account id")

// Backend persists sessions keyed by account id.
// Load returns an empty Session and no error for an unknown account.
type Backend interface {
	Load(ctx context.Context, accountID string) (Session, error)
	Save(ctx context.Context, accountID string, s Session) error
}

// Store serializes access to the sessions of a Backend.
//
// SECURITY: token values are NEVER logged, only account ids and metadata.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store on top of backend. A nil backend is replaced by a
// MemoryBackend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}

	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Now returns the current time of the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns the session of accountID. An unknown account yields an empty session.
func (s *Store) Get(ctx context.Context, accountID string) (Session, error) {
	if accountID == "" {
		return Session{}, ErrEmptyAccountID
	}

	lock := s.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	return s.load(ctx, accountID)
}

// SaveTokens replaces the whole session of accountID in a single backend write.
func (s *Store) SaveTokens(ctx context.Context, accountID string, session Session) error {
	return s.Update(ctx, accountID, func(current *Session) error {
		*current = session
		return nil
	})
}

// ClearTokens empties the session of accountID and persists the empty state.
func (s *Store) ClearTokens(ctx context.Context, accountID string) error {
	return s.Update(ctx, accountID, func(current *Session) error {
		*current = Session{}
		return nil
	})
}

// Update runs fn on the current session of accountID and saves the result.
// Calls for the same account are serialized. If fn returns an error nothing
// is written.
func (s *Store) Update(ctx context.Context, accountID string, fn func(*Session) error) error {
	if accountID == "" {
		return ErrEmptyAccountID
	}

	lock := s.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}

	next := current
	if err := fn(&next); err != nil {
		return err
	}

	if err := s.backend.Save(ctx, accountID, next); err != nil {
		s.logger.Warn("SECURITY_AUDIT: OAuth session storage failed",
			"event", "session_store_failed",
			"account_id", accountID,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist session: %w", err)
	}

	if next.IsEmpty() {
		s.logger.Info("SECURITY_AUDIT: OAuth session cleared",
			"event", "session_cleared",
			"account_id", accountID,
		)
		return nil
	}

	s.logger.Info("SECURITY_AUDIT: OAuth session stored",
		"event", "session_stored",
		"account_id", accountID,
		"has_access_token", next.HasAccessToken(),
		"has_refresh_token", next.HasRefreshToken(),
		"access_token_expiration", formatExpiration(next.AccessTokenExpiration),
	)
	return nil
}

func (s *Store) load(ctx context.Context, accountID string) (Session, error) {
	session, err := s.backend.Load(ctx, accountID)
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// lockFor returns the mutex guarding accountID. Locks are never removed; the
// number of accounts per process is small.
func (s *Store) lockFor(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[accountID] = lock
	}
	return lock
}

func formatExpiration(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format(time.RFC3339)
}
