package flow

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"authflow/internal/metrics"
	"authflow/pkg/oauth"
)

type phase int

const (
	phasePending phase = iota
	phaseApproved
	phaseResolved
)

// attempt is one run of the authorization step. It is the NavigationDelegate
// handed to the user-agent for that run.
type attempt struct {
	c                *Controller
	ctx              context.Context
	state            string
	authorizationURL string
	onComplete       func(accessToken string, err error)

	mu          sync.Mutex
	phase       phase
	retries     int
	unsubscribe func()
	stopCtx     func() bool

	once sync.Once
}

var _ NavigationDelegate = (*attempt)(nil)

func (c *Controller) newAttempt(ctx context.Context, onComplete func(string, error)) *attempt {
	state := c.newState()
	return &attempt{
		c:                c,
		ctx:              ctx,
		state:            state,
		authorizationURL: c.config.AuthorizationURL(state),
		onComplete:       onComplete,
	}
}

// watch ends the attempt when the application becomes active again or ctx
// is done while it is still pending.
func (a *attempt) watch(ctx context.Context, source LifecycleSource) {
	unsubscribe := source.Subscribe(a.interrupted)
	stop := context.AfterFunc(ctx, func() {
		a.resolve("", ctx.Err())
	})

	a.mu.Lock()
	if a.phase == phasePending {
		a.unsubscribe = unsubscribe
		a.stopCtx = stop
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	// Resolved before the listeners were registered.
	unsubscribe()
	stop()
}

func (a *attempt) isPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase == phasePending
}

// detach removes the listeners of the attempt. Safe to call repeatedly.
func (a *attempt) detach() {
	a.mu.Lock()
	unsubscribe, stop := a.unsubscribe, a.stopCtx
	a.unsubscribe, a.stopCtx = nil, nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if stop != nil {
		stop()
	}
}

// resolve ends the attempt. Only the first call has an effect.
func (a *attempt) resolve(token string, err error) {
	a.once.Do(func() {
		a.mu.Lock()
		a.phase = phaseResolved
		a.mu.Unlock()

		a.detach()

		c := a.c
		c.mu.Lock()
		if c.attempt == a && err != nil {
			c.state = StateUnknown
		}
		c.mu.Unlock()

		c.closeSurfaceFor(a)

		if err != nil {
			c.metrics.FlowCompleted(c.config.ClientID, metrics.OutcomeError, oauth.Kind(err).String())
			c.logger.Info("Authorization flow failed", "kind", oauth.Kind(err).String(), "error", err)
		} else {
			c.metrics.FlowCompleted(c.config.ClientID, metrics.OutcomeSuccess, "")
			c.logger.Info("Authorization flow completed", "account_id", c.config.Account())
		}

		go a.onComplete(token, err)
	})
}

// approve moves the attempt to Approved and exchanges code. Returns false if
// the attempt was no longer pending.
func (a *attempt) approve(code string) bool {
	a.mu.Lock()
	if a.phase != phasePending {
		a.mu.Unlock()
		return false
	}
	a.phase = phaseApproved
	a.mu.Unlock()

	a.detach()

	c := a.c
	c.mu.Lock()
	if c.attempt == a {
		c.state = StateApproved
	}
	c.mu.Unlock()

	c.logger.Debug("Authorization code received, exchanging")

	go func() {
		token, err := c.exchange(a.ctx, code)
		a.resolve(token, err)
	}()
	return true
}

// NavigationAttempt implements NavigationDelegate.
func (a *attempt) NavigationAttempt(target string) Decision {
	if !a.isPending() {
		return Deny
	}

	query := oauth.QueryOf(target)
	params := oauth.ParseQuery(query)

	if code, ok := params["code"]; ok {
		if params["state"] != a.state {
			a.c.logger.Warn("OAuth state mismatch detected - possible CSRF attack",
				"expected_state_len", len(a.state),
				"received_state_len", len(params["state"]),
			)
			a.resolve("", &oauth.AuthorizationError{
				Code:        "state_mismatch",
				Description: "state parameter does not match the authorization request",
			})
			return Deny
		}
		a.approve(code)
		return Deny
	}

	if errCode, ok := params["error"]; ok && a.c.isRedirect(target) {
		a.resolve("", &oauth.AuthorizationError{
			Code:        errCode,
			Description: params["error_description"],
		})
		return Deny
	}

	_, rawHasType := params["response_type"]
	_, decodedHasType := oauth.ParseQuery(oauth.Unescape(query))["response_type"]
	if !rawHasType && !decodedHasType {
		a.resolve("", oauth.ErrUserCancelled)
		return Deny
	}

	return Allow
}

// LoadFailed implements NavigationDelegate.
func (a *attempt) LoadFailed(failingURL string, err error) {
	if !a.isPending() {
		return
	}

	c := a.c
	if c.isLoopbackRedirect(failingURL) {
		c.logger.Debug("Ignoring load failure of loopback redirect target", "error", err)
		return
	}

	a.mu.Lock()
	a.retries++
	retries := a.retries
	a.mu.Unlock()

	if retries > c.retryLimit {
		c.logger.Warn("Authorization page could not be loaded", "attempts", retries, "error", err)
		if err == nil {
			a.resolve("", oauth.ErrConnection)
			return
		}
		a.resolve("", fmt.Errorf("%w: %w", oauth.ErrConnection, err))
		return
	}

	c.metrics.LoadRetried()
	c.logger.Debug("Authorization page load failed, retrying", "retry", retries, "error", err)

	c.surfaceMu.Lock()
	loadErr := c.loadIfCurrent(a)
	c.surfaceMu.Unlock()

	if loadErr != nil {
		go a.LoadFailed(a.authorizationURL, loadErr)
	}
}

// UserCancelled implements NavigationDelegate.
func (a *attempt) UserCancelled() {
	if !a.isPending() {
		return
	}
	a.resolve("", oauth.ErrUserCancelled)
}

// interrupted handles an "application became active" event.
func (a *attempt) interrupted() {
	if !a.isPending() {
		return
	}
	a.c.logger.Debug("Application became active while authorization was pending")
	a.resolve("", oauth.ErrAppInterrupted)
}

// isRedirect reports whether target is the configured redirect URL or below it.
func (c *Controller) isRedirect(target string) bool {
	return strings.HasPrefix(target, c.config.RedirectURL)
}

// isLoopbackRedirect reports whether failingURL targets the host of the
// redirect URL and that host is a loopback address.
func (c *Controller) isLoopbackRedirect(failingURL string) bool {
	failing, err := url.Parse(failingURL)
	if err != nil {
		return false
	}
	redirect, err := url.Parse(c.config.RedirectURL)
	if err != nil {
		return false
	}

	host := redirect.Hostname()
	if !strings.EqualFold(failing.Hostname(), host) || failing.Port() != redirect.Port() {
		return false
	}
	return isLoopbackHost(host)
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
