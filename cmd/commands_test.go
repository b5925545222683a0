package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/session"
)

const (
	testAccount  = "ACCOUNT_FOR_CLIENTID_app"
	testRedirect = "https://app.example.com/callback"
	testCode     = "XYZ"
)

// provider is a fake identity provider.
type provider struct {
	*httptest.Server

	// authorize receives the query of every authorization page load.
	authorize chan url.Values

	mu      sync.Mutex
	revoked []string
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{authorize: make(chan url.Values, 8)}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/authorize":
			select {
			case p.authorize <- r.URL.Query():
			default:
			}
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>sign in</html>"))
		case "/token":
			if r.PostForm.Get("grant_type") == "authorization_code" {
				if r.PostForm.Get("code") != testCode || r.PostForm.Get("redirect_uri") != testRedirect {
					w.WriteHeader(http.StatusBadRequest)
					_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
					return
				}
				_, _ = w.Write([]byte(`{"access_token":"issued","refresh_token":"R","expires_in":3600}`))
				return
			}
			if r.PostForm.Get("refresh_token") != "R" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"refreshed","expires_in":3600}`))
		case "/revoke":
			p.mu.Lock()
			p.revoked = append(p.revoked, r.PostForm.Get("token"))
			p.mu.Unlock()
		case "/userinfo":
			_, _ = w.Write([]byte(`{"sub":"42","preferred_username":"jdoe","email":"jdoe@example.com","email_verified":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *provider) revokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// pasteRedirect waits for the authorization page to be loaded and writes the
// redirect URL carrying the attempt's state to w, as a user would.
func (p *provider) pasteRedirect(t *testing.T, w io.Writer) {
	t.Helper()
	go func() {
		select {
		case query := <-p.authorize:
			redirect := testRedirect + "?code=" + testCode + "&state=" + url.QueryEscape(query.Get("state"))
			_, _ = fmt.Fprintln(w, redirect)
		case <-time.After(10 * time.Second):
		}
	}()
}

// testEnv is a config file plus a file-backed session directory.
type testEnv struct {
	configPath string
	sessionDir string
}

func newTestEnv(t *testing.T, p *provider) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		sessionDir: filepath.Join(dir, "sessions"),
	}

	config := fmt.Sprintf(`
clients:
  app:
    clientId: app
    baseURL: %s
    authorizationEndpoint: /authorize
    accessTokenEndpoint: /token
    revokeTokenEndpoint: /revoke
    userInfoEndpoint: /userinfo
    redirectURL: %s
storage:
  type: file
  dir: %s
  watch: false
timeouts:
  login: 30s
`, p.URL, testRedirect, env.sessionDir)
	require.NoError(t, os.WriteFile(env.configPath, []byte(config), 0600))
	return env
}

func (e *testEnv) seed(t *testing.T, s session.Session) {
	t.Helper()
	backend, err := session.NewFileBackend(session.FileBackendConfig{Dir: e.sessionDir})
	require.NoError(t, err)
	defer backend.Close()
	require.NoError(t, backend.Save(context.Background(), testAccount, s))
}

func (e *testEnv) load(t *testing.T) session.Session {
	t.Helper()
	backend, err := session.NewFileBackend(session.FileBackendConfig{Dir: e.sessionDir})
	require.NoError(t, err)
	defer backend.Close()
	s, err := backend.Load(context.Background(), testAccount)
	require.NoError(t, err)
	return s
}

// execute runs the root command with args and returns stdout.
func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{
		"--config", e.configPath,
		"--client", "",
		"--quiet=false",
		"--trace-endpoint", "",
		"--metrics-file", "",
	}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestTokenCommand_ValidToken(t *testing.T) {
	env := newTestEnv(t, newProvider(t))
	env.seed(t, session.Session{AccessToken: "valid", AccessTokenExpiration: time.Now().Add(time.Hour)})

	out, err := env.execute(t, "token", "--header=false")
	require.NoError(t, err)
	assert.Equal(t, "valid\n", out)

	out, err = env.execute(t, "token", "--header")
	require.NoError(t, err)
	assert.Equal(t, "Authorization: Bearer valid\n", out)
}

func TestTokenCommand_RefreshesExpiredToken(t *testing.T) {
	env := newTestEnv(t, newProvider(t))
	env.seed(t, session.Session{
		AccessToken:           "stale",
		AccessTokenExpiration: time.Now().Add(-time.Minute),
		RefreshToken:          "R",
	})

	out, err := env.execute(t, "token", "--header=false")
	require.NoError(t, err)
	assert.Equal(t, "refreshed\n", out)

	s := env.load(t)
	assert.Equal(t, "refreshed", s.AccessToken)
	assert.Equal(t, "R", s.RefreshToken)
}

func TestTokenCommand_NoSession(t *testing.T) {
	env := newTestEnv(t, newProvider(t))

	_, err := env.execute(t, "token", "--header=false")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestRefreshCommand(t *testing.T) {
	env := newTestEnv(t, newProvider(t))
	env.seed(t, session.Session{AccessToken: "old", RefreshToken: "R"})

	out, err := env.execute(t, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Token refreshed")
	assert.Equal(t, "refreshed", env.load(t).AccessToken)
}

func TestRefreshCommand_Failures(t *testing.T) {
	env := newTestEnv(t, newProvider(t))

	env.seed(t, session.Session{AccessToken: "old"})
	_, err := env.execute(t, "refresh")
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))

	env.seed(t, session.Session{AccessToken: "old", RefreshToken: "revoked"})
	_, err = env.execute(t, "refresh")
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))
	assert.Equal(t, "old", env.load(t).AccessToken)
}

func TestStatusCommand(t *testing.T) {
	env := newTestEnv(t, newProvider(t))
	env.seed(t, session.Session{
		AccessToken:           "valid",
		AccessTokenExpiration: time.Now().Add(2 * time.Hour),
		RefreshToken:          "R",
	})

	out, err := env.execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "app")
	assert.Contains(t, out, testAccount)
	assert.Contains(t, out, "Authenticated")
	assert.Contains(t, out, "available")
}

func TestWhoamiCommand(t *testing.T) {
	env := newTestEnv(t, newProvider(t))
	env.seed(t, session.Session{AccessToken: "valid"})

	out, err := env.execute(t, "whoami", "--all=false")
	require.NoError(t, err)
	assert.Contains(t, out, "jdoe")
	assert.Contains(t, out, "jdoe@example.com")
}

func TestLogoutCommand(t *testing.T) {
	p := newProvider(t)
	env := newTestEnv(t, p)
	env.seed(t, session.Session{AccessToken: "valid", RefreshToken: "R"})

	out, err := env.execute(t, "logout", "--local=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked access")
	assert.Equal(t, []string{"valid"}, p.revokedTokens())
	assert.True(t, env.load(t).IsEmpty())

	out, err = env.execute(t, "logout", "--local=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
	assert.Len(t, p.revokedTokens(), 1)
}

func TestLogoutCommand_Local(t *testing.T) {
	p := newProvider(t)
	env := newTestEnv(t, p)
	env.seed(t, session.Session{AccessToken: "valid"})

	out, err := env.execute(t, "logout", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared local session")
	assert.Empty(t, p.revokedTokens())
	assert.True(t, env.load(t).IsEmpty())
}

func TestVersionCommand(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)
	SetVersion("1.2.3-test")

	env := &testEnv{configPath: filepath.Join(t.TempDir(), "missing.yaml")}
	out, err := env.execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "authflow version 1.2.3-test", strings.TrimSpace(out))
}

func TestLoginCommand_PastedRedirect(t *testing.T) {
	p := newProvider(t)
	env := newTestEnv(t, p)

	stdin, paste := io.Pipe()
	defer paste.Close()
	rootCmd.SetIn(stdin)
	defer rootCmd.SetIn(nil)
	p.pasteRedirect(t, paste)

	out, err := env.execute(t, "login", "--no-browser", "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Authenticated with app")
	assert.Contains(t, out, "Logged in as jdoe")

	s := env.load(t)
	assert.Equal(t, "issued", s.AccessToken)
	assert.Equal(t, "R", s.RefreshToken)
}

func TestLoginCommand_StdinClosedCancels(t *testing.T) {
	env := newTestEnv(t, newProvider(t))

	rootCmd.SetIn(strings.NewReader(""))
	defer rootCmd.SetIn(nil)

	_, err := env.execute(t, "login", "--no-browser", "--force=false")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))
	assert.True(t, env.load(t).IsEmpty())
}

func TestLoginCommand_AlreadyAuthenticated(t *testing.T) {
	p := newProvider(t)
	env := newTestEnv(t, p)
	env.seed(t, session.Session{AccessToken: "valid", AccessTokenExpiration: time.Now().Add(time.Hour)})

	out, err := env.execute(t, "login", "--no-browser", "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Already authenticated with app")
	assert.Empty(t, p.authorize, "no authorization page may be loaded")
	assert.Equal(t, "valid", env.load(t).AccessToken)
}

func TestLoginCommand_ForceReauthorizes(t *testing.T) {
	p := newProvider(t)
	env := newTestEnv(t, p)
	env.seed(t, session.Session{AccessToken: "valid", AccessTokenExpiration: time.Now().Add(time.Hour)})

	stdin, paste := io.Pipe()
	defer paste.Close()
	rootCmd.SetIn(stdin)
	defer rootCmd.SetIn(nil)
	p.pasteRedirect(t, paste)

	out, err := env.execute(t, "login", "--no-browser", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Authenticated with app")
	assert.Equal(t, "issued", env.load(t).AccessToken)
}

func TestMetricsFile(t *testing.T) {
	env := newTestEnv(t, newProvider(t))
	env.seed(t, session.Session{
		AccessToken:           "stale",
		AccessTokenExpiration: time.Now().Add(-time.Minute),
		RefreshToken:          "R",
	})
	path := filepath.Join(t.TempDir(), "authflow.prom")

	_, err := env.execute(t, "token", "--header=false", "--metrics-file", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `authflow_token_refresh_total{client_id="app",outcome="success"} 1`)
	assert.Contains(t, string(data), `authflow_http_request_duration_seconds_count{method="POST",status="200"} 1`)
}

func TestTraceEndpoint(t *testing.T) {
	var exports atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			exports.Add(1)
		}
	}))
	defer collector.Close()

	env := newTestEnv(t, newProvider(t))
	env.seed(t, session.Session{AccessToken: "old", RefreshToken: "R"})

	_, err := env.execute(t, "refresh", "--trace-endpoint", collector.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), exports.Load(), "spans are flushed before the command returns")
}
