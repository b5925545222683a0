package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"authflow/internal/metrics"
	"authflow/internal/session"
	"authflow/internal/transport"
	"authflow/pkg/oauth"
)

// MaxLoadRetries is the number of times a failed authorization page load is
// retried before the attempt fails with oauth.ErrConnection.
const MaxLoadRetries = 3

// ErrClosed is returned by operations on a closed Controller.
var ErrClosed = errors.New("flow: controller closed")

// Controller drives the authorization code flow of one client registration.
type Controller struct {
	config     oauth.Config
	store      *session.Store
	transport  Transport
	userAgent  UserAgent
	lifecycle  LifecycleSource
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	newState   func() string
	retryLimit int

	// mu guards state, attempt and closed.
	mu      sync.Mutex
	state   AuthState
	attempt *attempt
	closed  bool

	// surfaceMu serializes Load and Close on the user-agent so a finished
	// attempt never tears down the surface of its successor.
	surfaceMu sync.Mutex

	group singleflight.Group
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore sets the session store. Defaults to an in-memory store.
func WithStore(store *session.Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithTransport sets the HTTP transport. Defaults to transport.NewClient().
func WithTransport(t Transport) Option {
	return func(c *Controller) {
		c.transport = t
	}
}

// WithUserAgent sets the external user-agent. Without one,
// RequestAuthorizationCode fails with a configuration error.
func WithUserAgent(ua UserAgent) Option {
	return func(c *Controller) {
		c.userAgent = ua
	}
}

// WithLifecycle sets the source of "application became active" events.
func WithLifecycle(source LifecycleSource) Option {
	return func(c *Controller) {
		c.lifecycle = source
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics records flow metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock replaces time.Now for expiry checks and token expirations.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithStateGenerator replaces the generator of the per-attempt state value.
func WithStateGenerator(gen func() string) Option {
	return func(c *Controller) {
		c.newState = gen
	}
}

// New creates a Controller for cfg. cfg is validated and its account id is
// derived when unset.
func New(cfg oauth.Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		config:     cfg.WithDefaults(),
		lifecycle:  nopLifecycle{},
		logger:     slog.Default(),
		now:        time.Now,
		newState:   uuid.NewString,
		retryLimit: MaxLoadRetries,
		state:      StateIdle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.store == nil {
		c.store = session.NewStore(session.NewMemoryBackend(),
			session.WithLogger(c.logger),
			session.WithClock(c.now))
	}
	if c.transport == nil {
		c.transport = transport.NewClient(
			transport.WithLogger(c.logger),
			transport.WithMetrics(c.metrics))
	}
	if c.lifecycle == nil {
		c.lifecycle = nopLifecycle{}
	}

	c.logger = c.logger.With("client_id", c.config.ClientID)
	return c, nil
}

// Config returns the client registration with derived fields filled in.
func (c *Controller) Config() oauth.Config {
	return c.config
}

// State returns the current state of the authorization state machine.
func (c *Controller) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestAuthorizationCode starts an authorization attempt: the user-agent
// loads the authorization URL and the controller waits for the redirect.
// A pending attempt is superseded. onComplete receives the access token
// once the code was exchanged, or the error that ended the attempt.
func (c *Controller) RequestAuthorizationCode(ctx context.Context, onComplete func(accessToken string, err error)) {
	if err := c.checkOpen(); err != nil {
		go onComplete("", err)
		return
	}
	if c.userAgent == nil {
		go onComplete("", &oauth.ConfigurationError{
			Field:   "UserAgent",
			Message: "no user agent configured for the authorization step",
		})
		return
	}

	a := c.newAttempt(ctx, onComplete)

	c.mu.Lock()
	previous := c.attempt
	c.attempt = a
	c.state = StatePendingExternalApproval
	c.mu.Unlock()

	superseded := previous != nil && previous.isPending()
	if superseded {
		c.logger.Info("Superseding pending authorization attempt")
		previous.resolve("", oauth.ErrSuperseded)
	}

	a.watch(ctx, c.lifecycle)

	c.metrics.FlowStarted(c.config.ClientID)
	c.logger.Info("Authorization flow started", "account_id", c.config.Account())
	c.logger.Debug("Loading authorization page", "authorization_endpoint", c.config.Resolve(c.config.AuthorizationEndpoint))

	c.surfaceMu.Lock()
	if superseded {
		c.userAgent.Close()
	}
	err := c.loadIfCurrent(a)
	c.surfaceMu.Unlock()

	if err != nil {
		go a.LoadFailed(a.authorizationURL, err)
	}
}

// ExchangeAuthorizationCode trades code for tokens at the token endpoint,
// persists them and closes the user-agent surface. The session is left
// untouched on error.
func (c *Controller) ExchangeAuthorizationCode(ctx context.Context, code string, onComplete func(accessToken string, err error)) {
	go func() {
		token, err := c.exchange(ctx, code)
		c.closeSurfaceIfIdle()
		onComplete(token, err)
	}()
}

// RefreshAccessToken obtains a new access token with the stored refresh
// token. The refresh token itself is kept. Without a refresh token the
// result is oauth.ErrNoRefreshToken.
func (c *Controller) RefreshAccessToken(ctx context.Context, onComplete func(accessToken string, err error)) {
	go func() {
		onComplete(c.refresh(ctx))
	}()
}

// RequestAccess resolves with a usable access token: the stored one while
// it is not expired, a refreshed one while the refresh token is not
// expired, and otherwise one obtained through a new authorization attempt.
//
// Concurrent calls share one acquisition. The shared acquisition runs with
// the context of the call that started it.
func (c *Controller) RequestAccess(ctx context.Context, onComplete func(accessToken string, err error)) {
	go func() {
		onComplete(c.acquire(ctx))
	}()
}

// AccessToken is the blocking form of RequestAccess.
func (c *Controller) AccessToken(ctx context.Context) (string, error) {
	return c.acquire(ctx)
}

// Login requests access and fetches the user's OpenID Connect claims from
// the user-info endpoint. Without a user-info endpoint it fails with a
// configuration error before any network call. Errors of the access
// request are passed through unchanged.
func (c *Controller) Login(ctx context.Context, onComplete func(accessToken string, claims *oauth.OpenIDClaim, err error)) {
	if c.config.UserInfoURL() == "" {
		go onComplete("", nil, &oauth.ConfigurationError{
			Field:   "UserInfoEndpoint",
			Message: "OpenID Connect login requires a user info endpoint",
		})
		return
	}

	go func() {
		token, err := c.acquire(ctx)
		if err != nil {
			onComplete("", nil, err)
			return
		}

		claims, err := c.userInfo(ctx, token)
		if err != nil {
			onComplete("", nil, err)
			return
		}
		onComplete(token, claims, nil)
	}()
}

// RevokeAccess revokes the access token at the revocation endpoint and
// clears the session on success. Without an access token nothing happens
// and onComplete is never called.
func (c *Controller) RevokeAccess(ctx context.Context, onComplete func(err error)) {
	go func() {
		s, err := c.store.Get(ctx, c.config.Account())
		if err != nil {
			onComplete(err)
			return
		}
		if !s.HasAccessToken() {
			c.logger.Debug("Revoke requested without access token, nothing to do")
			return
		}
		onComplete(c.revoke(ctx, s.AccessToken))
	}()
}

// ClearTokens empties the session and drops provider cookies from the
// transport and the user-agent. It does nothing when no access token is
// stored.
func (c *Controller) ClearTokens(ctx context.Context) error {
	account := c.config.Account()

	s, err := c.store.Get(ctx, account)
	if err != nil {
		return err
	}
	if !s.HasAccessToken() {
		return nil
	}

	if err := c.store.ClearTokens(ctx, account); err != nil {
		return err
	}

	var errs []error
	for _, collaborator := range []any{c.transport, c.userAgent} {
		if clearer, ok := collaborator.(CookieClearer); ok {
			if err := clearer.ClearCookies(); err != nil {
				errs = append(errs, fmt.Errorf("failed to clear cookies: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// AuthorizationFields returns the Authorization header for the stored
// access token, or nil when there is none.
func (c *Controller) AuthorizationFields(ctx context.Context) (map[string]string, error) {
	s, err := c.store.Get(ctx, c.config.Account())
	if err != nil {
		return nil, err
	}
	if !s.HasAccessToken() {
		return nil, nil
	}
	return map[string]string{"Authorization": "Bearer " + s.AccessToken}, nil
}

// IsAuthorized reports whether an access token is stored and not expired.
// A session that cannot be read counts as not authorized.
func (c *Controller) IsAuthorized(ctx context.Context) bool {
	s, err := c.store.Get(ctx, c.config.Account())
	if err != nil {
		c.logger.Warn("Failed to read session", "error", err)
		return false
	}
	return s.IsAuthorized(c.now())
}

// Session returns a copy of the persisted session.
func (c *Controller) Session(ctx context.Context) (session.Session, error) {
	return c.store.Get(ctx, c.config.Account())
}

// IDTokenClaims decodes the ID token received with the last code exchange.
func (c *Controller) IDTokenClaims(ctx context.Context) (*oauth.OpenIDClaim, error) {
	s, err := c.store.Get(ctx, c.config.Account())
	if err != nil {
		return nil, err
	}
	if s.IDToken == "" {
		return nil, oauth.ErrNoIDToken
	}
	return oauth.ClaimsFromIDToken(s.IDToken)
}

// TokenSource returns an oauth2.TokenSource backed by RequestAccess.
func (c *Controller) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c}
}

// HTTPClient returns an HTTP client that authorizes every request with an
// access token obtained through RequestAccess.
func (c *Controller) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}

// Close ends a pending authorization attempt with ErrClosed and tears down
// the user-agent surface. Later operations fail with ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	a := c.attempt
	c.mu.Unlock()

	if a != nil && a.isPending() {
		a.resolve("", ErrClosed)
	}
	return nil
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// acquire implements RequestAccess.
func (c *Controller) acquire(ctx context.Context) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}

	v, err, shared := c.group.Do(c.config.Account(), func() (interface{}, error) {
		s, err := c.store.Get(ctx, c.config.Account())
		if err != nil {
			return "", err
		}

		now := c.now()
		switch {
		case s.IsAuthorized(now):
			return s.AccessToken, nil
		case s.CanRefresh(now):
			c.logger.Debug("Access token expired, refreshing")
			return c.refresh(ctx)
		default:
			c.logger.Debug("No usable token, requesting authorization")
			return c.authorize(ctx)
		}
	})
	if shared {
		c.logger.Debug("Joined in-flight access request")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// authorize runs an authorization attempt and waits for its result.
func (c *Controller) authorize(ctx context.Context) (string, error) {
	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	c.RequestAuthorizationCode(ctx, func(token string, err error) {
		done <- result{token, err}
	})
	r := <-done
	return r.token, r.err
}

// loadIfCurrent loads the authorization page for a if it is still the
// latest pending attempt. Must be called with surfaceMu held.
func (c *Controller) loadIfCurrent(a *attempt) error {
	c.mu.Lock()
	current := c.attempt == a && a.isPending()
	c.mu.Unlock()

	if !current {
		return nil
	}
	return c.userAgent.Load(a.authorizationURL, a)
}

// closeSurfaceFor closes the user-agent if a is the latest attempt.
func (c *Controller) closeSurfaceFor(a *attempt) {
	if c.userAgent == nil {
		return
	}

	c.surfaceMu.Lock()
	defer c.surfaceMu.Unlock()

	c.mu.Lock()
	latest := c.attempt == a
	c.mu.Unlock()

	if latest {
		c.userAgent.Close()
	}
}

// closeSurfaceIfIdle closes the user-agent unless an attempt is pending.
func (c *Controller) closeSurfaceIfIdle() {
	if c.userAgent == nil {
		return
	}

	c.surfaceMu.Lock()
	defer c.surfaceMu.Unlock()

	c.mu.Lock()
	pending := c.attempt != nil && c.attempt.isPending()
	c.mu.Unlock()

	if !pending {
		c.userAgent.Close()
	}
}

// tokenSource adapts the controller to oauth2.TokenSource.
type tokenSource struct {
	ctx context.Context
	c   *Controller
}

// Token implements oauth2.TokenSource.
func (ts *tokenSource) Token() (*oauth2.Token, error) {
	if _, err := ts.c.acquire(ts.ctx); err != nil {
		return nil, err
	}

	s, err := ts.c.store.Get(ts.ctx, ts.c.config.Account())
	if err != nil {
		return nil, err
	}
	if !s.HasAccessToken() {
		return nil, oauth.ErrNoAccessToken
	}
	return s.OAuth2Token(), nil
}
