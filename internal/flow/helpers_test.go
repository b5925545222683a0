package flow

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"authflow/internal/flow/mocks"
	"authflow/internal/lifecycle"
	"authflow/internal/session"
	"authflow/pkg/oauth"
)

const (
	testTokenURL    = "https://idp.example.com/token"
	testRevokeURL   = "https://idp.example.com/revoke"
	testUserInfoURL = "https://idp.example.com/userinfo"
	testRedirectURL = "https://app.example.com/cb"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testConfig() oauth.Config {
	return oauth.Config{
		ClientID:              "app",
		BaseURL:               "https://idp.example.com",
		AuthorizationEndpoint: "/authorize",
		AccessTokenEndpoint:   "/token",
		RevokeTokenEndpoint:   "/revoke",
		UserInfoEndpoint:      "/userinfo",
		RedirectURL:           testRedirectURL,
		Scope:                 "openid profile",
	}
}

// fakeUserAgent records loads and closes and lets tests drive the delegate.
type fakeUserAgent struct {
	mu        sync.Mutex
	loads     []string
	delegates []NavigationDelegate
	closes    int
	loadErr   error
	cleared   int
}

func (f *fakeUserAgent) Load(target string, delegate NavigationDelegate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, target)
	f.delegates = append(f.delegates, delegate)
	return f.loadErr
}

func (f *fakeUserAgent) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeUserAgent) ClearCookies() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeUserAgent) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func (f *fakeUserAgent) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeUserAgent) lastLoad() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return ""
	}
	return f.loads[len(f.loads)-1]
}

func (f *fakeUserAgent) delegate(i int) NavigationDelegate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegates[i]
}

type result struct {
	token string
	err   error
}

// resultSink collects completions and counts them.
type resultSink struct {
	ch    chan result
	calls atomic.Int32
}

func newResultSink() *resultSink {
	return &resultSink{ch: make(chan result, 8)}
}

func (s *resultSink) complete(token string, err error) {
	s.calls.Add(1)
	s.ch <- result{token: token, err: err}
}

func (s *resultSink) await(t *testing.T) result {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("completion was not invoked")
		return result{}
	}
}

func (s *resultSink) assertNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-s.ch:
		t.Fatalf("unexpected completion: token=%q err=%v", r.token, r.err)
	case <-time.After(wait):
	}
}

type harness struct {
	t         *testing.T
	config    oauth.Config
	ctrl      *Controller
	transport *mocks.MockTransport
	ua        *fakeUserAgent
	lifecycle *lifecycle.Broadcaster
	store     *session.Store
}

func newHarness(t *testing.T, opts ...Option) *harness {
	return newHarnessWithConfig(t, testConfig(), opts...)
}

func newHarnessWithConfig(t *testing.T, cfg oauth.Config, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		config:    cfg,
		transport: mocks.NewMockTransport(gomock.NewController(t)),
		ua:        &fakeUserAgent{},
		lifecycle: lifecycle.NewBroadcaster(),
	}
	clock := func() time.Time { return testNow }
	h.store = session.NewStore(session.NewMemoryBackend(), session.WithClock(clock))

	var counter atomic.Int32
	base := []Option{
		WithStore(h.store),
		WithTransport(h.transport),
		WithUserAgent(h.ua),
		WithLifecycle(h.lifecycle),
		WithClock(clock),
		WithStateGenerator(func() string {
			return "state-" + strconv.Itoa(int(counter.Add(1)))
		}),
	}

	ctrl, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) seed(s session.Session) {
	h.t.Helper()
	require.NoError(h.t, h.store.SaveTokens(context.Background(), h.ctrl.Config().Account(), s))
}

func (h *harness) session() session.Session {
	h.t.Helper()
	s, err := h.ctrl.Session(context.Background())
	require.NoError(h.t, err)
	return s
}

// expectExchange expects exactly one code exchange for code and answers
// with resp.
func (h *harness) expectExchange(code string, resp oauth.TokenResponse) {
	h.transport.EXPECT().
		PostForm(gomock.Any(), testTokenURL, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, form url.Values, out any) error {
			if form.Get("code") != code {
				h.t.Errorf("expected code %q, got %q", code, form.Get("code"))
			}
			*out.(*oauth.TokenResponse) = resp
			return nil
		}).
		Times(1)
}

// redirect builds a redirect URL carrying code and state.
func redirect(code, state string) string {
	return testRedirectURL + "?code=" + url.QueryEscape(code) + "&state=" + url.QueryEscape(state)
}
