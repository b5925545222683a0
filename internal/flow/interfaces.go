package flow

//go:generate mockgen -destination=mocks/mocks.go -package=mocks authflow/internal/flow Transport

import (
	"context"
	"net/url"
)

// Decision tells the user-agent whether to continue a navigation.
type Decision int

const (
	// Allow lets the user-agent load the target.
	Allow Decision = iota
	// Deny stops the navigation; the controller handled the target.
	Deny
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	if d == Deny {
		return "deny"
	}
	return "allow"
}

// NavigationDelegate receives the events of one authorization attempt.
type NavigationDelegate interface {
	// NavigationAttempt is called before the user-agent navigates to target.
	NavigationAttempt(target string) Decision

	// LoadFailed reports that failingURL could not be loaded, including
	// load timeouts.
	LoadFailed(failingURL string, err error)

	// UserCancelled reports that the user dismissed the authorization surface.
	UserCancelled()
}

// UserAgent is the external surface that shows the authorization page.
//
// Load must return promptly and report the outcome through the delegate
// from another goroutine. Close tears down the surface and must not call
// back into the delegate.
// Load and Close are never called concurrently by a Controller.
type UserAgent interface {
	Load(target string, delegate NavigationDelegate) error
	Close()
}

// Transport performs the HTTP calls to the provider.
// Non-2xx answers are returned as *oauth.TransportError.
type Transport interface {
	Get(ctx context.Context, endpoint string, params url.Values, out any) error
	PostForm(ctx context.Context, endpoint string, form url.Values, out any) error
}

// LifecycleSource delivers "application became active" events.
// The returned unsubscribe function must be idempotent.
type LifecycleSource interface {
	Subscribe(fn func()) (unsubscribe func())
}

// CookieClearer is implemented by collaborators that keep provider cookies.
// ClearTokens calls it on the transport and the user-agent when they
// implement it.
type CookieClearer interface {
	ClearCookies() error
}

// nopLifecycle never fires.
type nopLifecycle struct{}

func (nopLifecycle) Subscribe(func()) func() { return func() {} }
