package session

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileBackend(FileBackendConfig{Dir: dir})
	require.NoError(t, err)

	want := Session{
		AccessToken:            "a",
		RefreshToken:           "r",
		AccessTokenExpiration:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		RefreshTokenExpiration: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		IDToken:                "id",
	}
	require.NoError(t, first.Save(ctx, "acc", want))

	// simulates an app restart
	second, err := NewFileBackend(FileBackendConfig{Dir: dir})
	require.NoError(t, err)

	got, err := second.Load(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.IDToken, got.IDToken)
	assert.True(t, want.AccessTokenExpiration.Equal(got.AccessTokenExpiration))
	assert.True(t, want.RefreshTokenExpiration.Equal(got.RefreshTokenExpiration))
}

func TestFileBackend_MissingAccount(t *testing.T) {
	backend, err := NewFileBackend(FileBackendConfig{Dir: t.TempDir()})
	require.NoError(t, err)

	got, err := backend.Load(context.Background(), "unknown")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestFileBackend_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permissions are not enforced on Windows")
	}

	dir := filepath.Join(t.TempDir(), "sessions")
	backend, err := NewFileBackend(FileBackendConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, backend.Save(context.Background(), "acc", Session{AccessToken: "secret"}))

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	fileInfo, err := os.Stat(filepath.Join(dir, fileKey("acc")+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileBackend_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(FileBackendConfig{Dir: dir})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, fileKey("acc")+".json"), []byte("{not json"), 0600))

	_, err = backend.Load(context.Background(), "acc")
	assert.Error(t, err)
}

func TestFileBackend_WatchPicksUpExternalWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer, err := NewFileBackend(FileBackendConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, writer.Save(ctx, "acc", Session{AccessToken: "v1"}))

	reader, err := NewFileBackend(FileBackendConfig{Dir: dir, Watch: true})
	require.NoError(t, err)
	defer reader.Close()

	got, err := reader.Load(ctx, "acc")
	require.NoError(t, err)
	require.Equal(t, "v1", got.AccessToken)

	require.NoError(t, writer.Save(ctx, "acc", Session{AccessToken: "v2"}))

	assert.Eventually(t, func() bool {
		got, err := reader.Load(ctx, "acc")
		return err == nil && got.AccessToken == "v2"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFileBackend_CloseIsIdempotent(t *testing.T) {
	backend, err := NewFileBackend(FileBackendConfig{Dir: t.TempDir(), Watch: true})
	require.NoError(t, err)

	assert.NoError(t, backend.Close())
	assert.NoError(t, backend.Close())
}

func TestFileBackend_InvalidationDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer, err := NewFileBackend(FileBackendConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, writer.Save(ctx, "acc", Session{AccessToken: "v1"}))

	reader, err := NewFileBackend(FileBackendConfig{Dir: dir})
	require.NoError(t, err)

	// Another process replaces the file after reader has read v1 but
	// before the result reaches the cache.
	reader.afterRead = func(key string) {
		reader.afterRead = nil
		require.NoError(t, writer.Save(ctx, "acc", Session{AccessToken: "v2"}))
		reader.invalidate(key)
	}

	got, err := reader.Load(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.AccessToken)

	got, err = reader.Load(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.AccessToken, "the value read before the invalidation must not be cached")
}
