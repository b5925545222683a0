// Package lifecycle broadcasts "application became active" events to the
// authorization flow.
//
// A pending authorization is abandoned when the application is resumed
// without the external user-agent having delivered a result. The CLI feeds
// the broadcaster from job-control signals; embedders call Notify from their
// own foreground hooks.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"authflow/pkg/logging"
)

// Broadcaster fans out activation events to its subscribers.
// The zero value is ready to use.
type Broadcaster struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]func()
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers fn for activation events. The returned function
// removes the subscription; calling it more than once is safe.
func (b *Broadcaster) Subscribe(fn func()) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers == nil {
		b.subscribers = make(map[uint64]func())
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Notify delivers an activation event. Each subscriber runs in its own
// goroutine; a panicking subscriber is logged and does not affect others.
func (b *Broadcaster) Notify() {
	b.mu.Lock()
	subscribers := make([]func(), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subscribers = append(subscribers, fn)
	}
	b.mu.Unlock()

	logging.Debug("Lifecycle", "Application became active, notifying %d subscribers", len(subscribers))

	for _, fn := range subscribers {
		go func(fn func()) {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("Lifecycle", fmt.Errorf("panic in lifecycle subscriber: %v", r), "Lifecycle subscriber panicked")
				}
			}()
			fn()
		}(fn)
	}
}

// NotifyOnSignals calls Notify whenever one of sigs is received, until ctx
// is done. Without sigs, ResumeSignals is used.
func (b *Broadcaster) NotifyOnSignals(ctx context.Context, sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = ResumeSignals()
	}
	if len(sigs) == 0 {
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				b.Notify()
			}
		}
	}()
}
