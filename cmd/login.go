package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authflow/internal/flow"
	"authflow/internal/useragent"
	"authflow/pkg/logging"
	"authflow/pkg/oauth"
)

func newLoginCmd() *cobra.Command {
	var (
		noBrowser bool
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize a client registration",
		Long: `Authorize a client registration with its identity provider.

The authorization page opens in the default browser. When the redirect URL
points to this machine, the redirect is received automatically; otherwise
paste the URL the browser was redirected to.

An existing session is reused: a valid access token is kept and an expired
one is refreshed. Use --force to run a new authorization anyway.

Examples:
  authflow login                       # Login with the default client
  authflow login --client work         # Login with a specific client
  authflow login --no-browser          # Print the authorization URL instead
  authflow login --force               # Re-authorize even if a session exists`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, noBrowser, force)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	cmd.Flags().BoolVar(&force, "force", false, "run a new authorization even if a session exists")
	return cmd
}

func runLogin(cmd *cobra.Command, noBrowser, force bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	launch := rt.launcher
	if noBrowser {
		launch = func(target string) error {
			fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL in a browser to authorize:\n\n  %s\n\n", target)
			return nil
		}
	}
	opened := make(chan struct{})
	var openedOnce sync.Once
	rt.launcher = func(target string) error {
		if err := launch(target); err != nil {
			return err
		}
		openedOnce.Do(func() { close(opened) })
		return nil
	}

	c, err := rt.client(clientName)
	if err != nil {
		return err
	}

	if !force && c.ctrl.IsAuthorized(ctx) {
		printf(out, "Already authenticated with %s.\n", c.name)
		return nil
	}

	if rt.cfg.Timeouts.Login > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.Timeouts.Login)
		defer cancel()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	// A resumed process means the user came back without finishing.
	rt.lifecycle.NotifyOnSignals(ctx)

	if !c.browser.ListensForRedirect() {
		go readRedirect(ctx, opened, cmd.InOrStdin(), cmd.ErrOrStderr(), c.browser)
	}

	var s *spinner.Spinner
	if !quiet && !noBrowser && c.browser.ListensForRedirect() {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Waiting for authorization in the browser..."
		s.Start()
	}

	_, err = obtainToken(ctx, c, force)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return loginError(c.name, err)
	}

	printf(out, "%s Authenticated with %s.\n", text.FgGreen.Sprint("✓"), c.name)

	if c.config.UserInfoURL() == "" {
		return nil
	}
	claims, err := fetchClaims(ctx, c)
	if err != nil {
		printf(out, "Could not fetch user info: %v\n", err)
		return nil
	}
	if name := displayName(claims); name != "" {
		printf(out, "Logged in as %s.\n", name)
	}
	return nil
}

// obtainToken returns an access token, running a new authorization when
// force is set.
func obtainToken(ctx context.Context, c *client, force bool) (string, error) {
	if !force {
		return c.ctrl.AccessToken(ctx)
	}

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	c.ctrl.RequestAuthorizationCode(ctx, func(token string, err error) {
		done <- result{token, err}
	})
	r := <-done
	return r.token, r.err
}

// fetchClaims is the blocking form of Controller.Login.
func fetchClaims(ctx context.Context, c *client) (*oauth.OpenIDClaim, error) {
	type result struct {
		claims *oauth.OpenIDClaim
		err    error
	}
	done := make(chan result, 1)
	c.ctrl.Login(ctx, func(_ string, claims *oauth.OpenIDClaim, err error) {
		done <- result{claims, err}
	})
	r := <-done
	return r.claims, r.err
}

// readRedirect lets the user paste the redirect URL when the browser cannot
// deliver it to a local listener. Reading starts once the authorization page
// was opened; EOF or Ctrl+C cancels the attempt.
func readRedirect(ctx context.Context, opened <-chan struct{}, in io.Reader, prompt io.Writer, browser *useragent.Browser) {
	select {
	case <-ctx.Done():
		return
	case <-opened:
	}

	interactive := in == os.Stdin && readline.DefaultIsTerminal()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 "redirect URL> ",
		FuncIsTerminal:         func() bool { return interactive },
		InterruptPrompt:        "^C",
		DisableAutoSaveHistory: true,
		Stdin:                  readline.NewCancelableStdin(in),
		Stdout:                 prompt,
		Stderr:                 prompt,
	})
	if err != nil {
		logging.Error("Login", err, "Failed to read the redirect URL")
		browser.Cancel()
		return
	}

	var closeOnce sync.Once
	closeReader := func() {
		closeOnce.Do(func() { _ = rl.Close() })
	}
	defer closeReader()
	go func() {
		<-ctx.Done()
		closeReader()
	}()

	fmt.Fprintln(prompt, "After authorizing, paste the URL your browser was redirected to:")

	for {
		line, err := rl.Readline()
		if ctx.Err() != nil {
			return
		}
		if err == readline.ErrInterrupt || err == io.EOF {
			browser.Cancel()
			return
		}
		if err != nil {
			logging.Error("Login", err, "Failed to read the redirect URL")
			browser.Cancel()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		decision, err := browser.Navigate(line)
		if err != nil || decision == flow.Deny {
			return
		}
		fmt.Fprintln(prompt, "That URL does not complete the authorization, paste the redirect URL:")
	}
}

// loginError maps a flow error to the CLI error reported to the user.
func loginError(name string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AuthFailedError{Client: name, Reason: errors.New("timed out waiting for authorization")}
	case oauth.Kind(err) == oauth.KindConfiguration:
		return err
	default:
		return &AuthFailedError{Client: name, Reason: err}
	}
}
