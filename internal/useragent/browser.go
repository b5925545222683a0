package useragent

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"authflow/internal/flow"
)

// DefaultLoadTimeout bounds the reachability check of the authorization page.
const DefaultLoadTimeout = 10 * time.Second

// shutdownTimeout bounds the graceful stop of the callback listener.
const shutdownTimeout = 5 * time.Second

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(successHTML))
	errorTemplate   = template.Must(template.New("error").Parse(errorHTML))
)

// ErrNoRedirectListener is returned by Navigate when no attempt is loaded.
var ErrNoRedirectListener = errors.New("no authorization in progress")

// Browser is a flow.UserAgent backed by the system web browser.
//
// When the redirect URL points to a loopback address, Browser listens on it
// and forwards every callback to the delegate of the current attempt.
// Otherwise the redirect has to be handed in through Navigate.
type Browser struct {
	redirect    *url.URL
	clientName  string
	launch      Launcher
	checker     *http.Client
	loadTimeout time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	delegate   flow.NavigationDelegate
	generation uint64
	server     *http.Server
	listener   net.Listener
}

var _ flow.UserAgent = (*Browser)(nil)

// Option configures a Browser.
type Option func(*Browser)

// WithLauncher replaces the function that opens the authorization page.
func WithLauncher(launch Launcher) Option {
	return func(b *Browser) {
		b.launch = launch
	}
}

// WithLoadTimeout sets the timeout of the reachability check.
func WithLoadTimeout(d time.Duration) Option {
	return func(b *Browser) {
		b.loadTimeout = d
	}
}

// WithCheckClient sets the HTTP client used for the reachability check.
func WithCheckClient(client *http.Client) Option {
	return func(b *Browser) {
		b.checker = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Browser) {
		b.logger = logger
	}
}

// WithClientName sets the name shown on the callback pages.
func WithClientName(name string) Option {
	return func(b *Browser) {
		b.clientName = name
	}
}

// NewBrowser creates a Browser for the given redirect URL.
func NewBrowser(redirectURL string, opts ...Option) (*Browser, error) {
	redirect, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	if !redirect.IsAbs() || redirect.Host == "" {
		return nil, fmt.Errorf("invalid redirect URL %q: must be absolute", redirectURL)
	}

	b := &Browser{
		redirect:    redirect,
		launch:      OpenBrowser,
		loadTimeout: DefaultLoadTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.checker == nil {
		b.checker = &http.Client{
			Timeout: b.loadTimeout,
			// Only reachability matters; the login page usually redirects.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	b.logger = b.logger.With("subsystem", "UserAgent")
	return b, nil
}

// ListensForRedirect reports whether the redirect URL is served locally.
func (b *Browser) ListensForRedirect() bool {
	return isLoopback(b.redirect.Hostname())
}

// Load implements flow.UserAgent. The page is checked for reachability and
// then opened in the browser, both in the background.
func (b *Browser) Load(target string, delegate flow.NavigationDelegate) error {
	b.mu.Lock()
	b.generation++
	generation := b.generation
	b.delegate = delegate

	if b.ListensForRedirect() && b.server == nil {
		if err := b.startLocked(); err != nil {
			b.mu.Unlock()
			return err
		}
	}
	b.mu.Unlock()

	go b.open(generation, target)
	return nil
}

// Close implements flow.UserAgent. The redirect listener is stopped and the
// delegate is released.
func (b *Browser) Close() {
	b.mu.Lock()
	b.generation++
	b.delegate = nil
	server, listener := b.server, b.listener
	b.server, b.listener = nil, nil
	b.mu.Unlock()

	if server == nil {
		return
	}

	// The port is released right away; in-flight callbacks may still finish.
	_ = listener.Close()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()
}

// Cancel reports that the user gave up on the current attempt.
func (b *Browser) Cancel() {
	delegate, _ := b.current()
	if delegate == nil {
		return
	}
	go delegate.UserCancelled()
}

// Navigate hands target to the current attempt as if the browser navigated
// to it. It serves redirect URLs that cannot be received locally, for
// example when the user pastes the URL from the address bar.
func (b *Browser) Navigate(target string) (flow.Decision, error) {
	delegate, _ := b.current()
	if delegate == nil {
		return flow.Allow, ErrNoRedirectListener
	}
	return delegate.NavigationAttempt(target), nil
}

func (b *Browser) current() (flow.NavigationDelegate, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delegate, b.generation
}

// open checks that target answers and opens it. Failures are reported to
// the delegate of generation unless the attempt was replaced in between.
func (b *Browser) open(generation uint64, target string) {
	err := b.check(target)
	if err == nil {
		err = b.launch(target)
	}
	if err == nil {
		b.logger.Info("Opened authorization page in browser")
		return
	}

	delegate, current := b.current()
	if delegate == nil || current != generation {
		return
	}
	b.logger.Debug("Authorization page failed to load", "error", err)
	delegate.LoadFailed(target, err)
}

func (b *Browser) check(target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.loadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := b.checker.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// startLocked starts the redirect listener. Must be called with mu held.
func (b *Browser) startLocked() error {
	addr := b.redirect.Host
	if b.redirect.Port() == "" {
		addr = net.JoinHostPort(b.redirect.Hostname(), defaultPort(b.redirect.Scheme))
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	path := b.redirect.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, b.handleCallback)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			b.logger.Warn("Callback server stopped", "error", err)
		}
	}()

	b.server, b.listener = server, listener
	b.logger.Debug("Callback server listening", "addr", listener.Addr().String())
	return nil
}

func (b *Browser) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	delegate, _ := b.current()
	if delegate == nil {
		http.Error(w, "No authorization in progress", http.StatusGone)
		return
	}

	target := b.redirect.Scheme + "://" + b.redirect.Host + r.URL.RequestURI()
	delegate.NavigationAttempt(target)

	query := r.URL.Query()
	var (
		tmpl *template.Template
		data map[string]string
	)
	switch {
	case query.Get("error") != "":
		tmpl = errorTemplate
		data = map[string]string{
			"Error":       query.Get("error"),
			"Description": query.Get("error_description"),
		}
	case query.Get("code") != "":
		tmpl = successTemplate
		data = map[string]string{"Client": b.clientName}
	default:
		tmpl = errorTemplate
		data = map[string]string{"Error": "cancelled"}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func defaultPort(scheme string) string {
	if strings.EqualFold(scheme, "https") {
		return "443"
	}
	return "80"
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
