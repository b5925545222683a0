//go:build !windows

package lifecycle

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroadcaster_NotifyOnSignals(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notified := make(chan struct{}, 1)
	b.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	b.NotifyOnSignals(ctx, syscall.SIGUSR1)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not trigger a notification")
	}
}
