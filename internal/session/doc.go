// Package session holds the token state of an OAuth client registration and
// persists it through a pluggable Backend.
//
// A Session is keyed by the registration's account id. The Store serializes
// every read-modify-write per account id so that concurrent refreshes and
// logouts cannot lose updates, and answers expiry questions against an
// injectable clock.
//
// # Backends
//
//   - MemoryBackend: process-local map, used in tests and for --storage=memory
//   - FileBackend: one 0600 JSON file per account under ~/.config/authflow/sessions,
//     watched with fsnotify so sessions written by other processes are seen
//   - RedisBackend: JSON values in Redis, for clients sharing a session across hosts
//
// # Usage
//
//	backend, err := session.NewFileBackend(session.FileBackendConfig{Dir: dir})
//	store := session.NewStore(backend)
//
//	err = store.SaveTokens(ctx, accountID, session.Session{AccessToken: "..."})
//	s, err := store.Get(ctx, accountID)
//	if s.TokenIsNotExpired(time.Now()) { ... }
package session
