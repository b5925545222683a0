package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultSessionDir is the default directory for session files, relative to
// the user's home directory.
const DefaultSessionDir = ".config/authflow/sessions"

// FileBackend stores one JSON file per account.
//
// SECURITY: This backend handles sensitive OAuth credentials.
//   - Files are created with 0600 permissions (owner read/write only)
//   - The storage directory is created with 0700 permissions (owner only)
//   - File names are hashes of the account id, never the id itself
//   - Files are replaced atomically (write to temp file, then rename)
type FileBackend struct {
	mu      sync.RWMutex
	dir     string
	cache   map[string]Session // keyed by file key
	// gens counts invalidations per key. A read only fills the cache when
	// no invalidation happened while the file was being read.
	gens    map[string]uint64
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	afterRead func(key string) // test hook
}

// FileBackendConfig configures the file backend.
type FileBackendConfig struct {
	// Dir is the directory for session files.
	// Defaults to ~/.config/authflow/sessions
	Dir string

	// Watch enables cache invalidation when session files change on disk,
	// e.g. when another process completed a login.
	Watch bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewFileBackend creates the storage directory if needed and, when requested,
// starts watching it.
func NewFileBackend(cfg FileBackendConfig) (*FileBackend, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultSessionDir)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session storage directory: %w", err)
	}

	b := &FileBackend{
		dir:    dir,
		cache:  make(map[string]Session),
		gens:   make(map[string]uint64),
		logger: logger,
		done:   make(chan struct{}),
	}

	if cfg.Watch {
		if err := b.startWatcher(); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Dir returns the storage directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

// Load implements Backend.
func (b *FileBackend) Load(ctx context.Context, accountID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	key := fileKey(accountID)

	b.mu.RLock()
	if s, ok := b.cache[key]; ok {
		b.mu.RUnlock()
		return s, nil
	}
	gen := b.gens[key]
	b.mu.RUnlock()

	s, err := b.readFile(key)
	if b.afterRead != nil {
		b.afterRead(key)
	}
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}

	b.mu.Lock()
	if b.gens[key] == gen {
		b.cache[key] = s
	}
	b.mu.Unlock()

	return s, nil
}

// Save implements Backend.
func (b *FileBackend) Save(ctx context.Context, accountID string, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := fileKey(accountID)
	if err := b.writeFile(key, accountID, s); err != nil {
		return err
	}

	b.mu.Lock()
	b.gens[key]++
	b.cache[key] = s
	b.mu.Unlock()
	return nil
}

// Close stops the directory watcher, if any.
func (b *FileBackend) Close() error {
	if b.watcher == nil {
		return nil
	}

	select {
	case <-b.done:
		return nil
	default:
		close(b.done)
	}

	err := b.watcher.Close()
	b.wg.Wait()
	return err
}

// sessionFile is the on-disk representation. The account id is kept for
// humans inspecting the directory; lookups go through the hashed file name.
type sessionFile struct {
	AccountID string  `json:"account_id"`
	Session   Session `json:"session"`
}

// fileKey derives a filesystem-safe name from an account id.
func fileKey(accountID string) string {
	hash := sha256.Sum256([]byte(accountID))
	return hex.EncodeToString(hash[:16])
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

func (b *FileBackend) readFile(key string) (Session, error) {
	// #nosec G304 -- path is built from a hashed key, not user input
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		return Session{}, err
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return f.Session, nil
}

func (b *FileBackend) writeFile(key, accountID string, s Session) error {
	data, err := json.MarshalIndent(sessionFile{AccountID: accountID, Session: s}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to restrict session file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (b *FileBackend) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create session watcher: %w", err)
	}
	if err := watcher.Add(b.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch session directory: %w", err)
	}
	b.watcher = watcher

	b.wg.Add(1)
	go b.watch()
	return nil
}

func (b *FileBackend) watch() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if filepath.Ext(name) != ".json" {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				b.invalidate(strings.TrimSuffix(name, ".json"))
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("Session directory watcher error", "dir", b.dir, "error", err.Error())
		}
	}
}

func (b *FileBackend) invalidate(key string) {
	b.mu.Lock()
	_, cached := b.cache[key]
	delete(b.cache, key)
	b.gens[key]++
	b.mu.Unlock()

	if cached {
		b.logger.Debug("Session file changed on disk, cache invalidated", "key", key)
	}
}
