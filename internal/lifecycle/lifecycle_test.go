package lifecycle

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_Notify(t *testing.T) {
	b := NewBroadcaster()

	got := make(chan int, 2)
	b.Subscribe(func() { got <- 1 })
	b.Subscribe(func() { got <- 2 })

	b.Notify()

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-got:
			seen[v] = true
		case <-time.After(time.Second):
			t.Fatal("subscriber was not notified")
		}
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, seen)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	var b Broadcaster

	var calls atomic.Int32
	unsubscribe := b.Subscribe(func() { calls.Add(1) })
	require.Equal(t, 1, b.Len())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, b.Len())

	b.Notify()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestBroadcaster_UnsubscribeKeepsOthers(t *testing.T) {
	b := NewBroadcaster()

	first := b.Subscribe(func() {})
	b.Subscribe(func() {})

	first()
	first()
	assert.Equal(t, 1, b.Len())
}

func TestBroadcaster_PanickingSubscriber(t *testing.T) {
	b := NewBroadcaster()

	done := make(chan struct{})
	b.Subscribe(func() { panic("boom") })
	b.Subscribe(func() { close(done) })

	b.Notify()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("healthy subscriber was not notified")
	}
}
