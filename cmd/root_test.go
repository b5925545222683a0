package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"authflow/pkg/oauth"
)

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "authflow", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)

	for _, flag := range []string{"config", "client", "debug", "quiet"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"login", "status", "token", "refresh", "logout", "whoami", "version"})
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), ExitCodeError},
		{"auth required", &AuthRequiredError{Client: "work"}, ExitCodeAuthRequired},
		{"wrapped auth required", fmt.Errorf("token: %w", &AuthRequiredError{Client: "work"}), ExitCodeAuthRequired},
		{"auth failed", &AuthFailedError{Client: "work", Reason: errors.New("denied")}, ExitCodeAuthFailed},
		{"user cancelled", oauth.ErrUserCancelled, ExitCodeAuthFailed},
		{"authorization error", &oauth.AuthorizationError{Code: "access_denied"}, ExitCodeAuthFailed},
		{"configuration", &oauth.ConfigurationError{Field: "ClientID"}, ExitCodeError},
		{"transport", &oauth.TransportError{Method: "POST", StatusCode: 500}, ExitCodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestAuthFailedError(t *testing.T) {
	reason := errors.New("denied")
	err := &AuthFailedError{Client: "work", Reason: reason}

	assert.ErrorIs(t, err, reason)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), &AuthFailedError{})
	assert.Contains(t, err.Error(), "authflow login --client work")
}

func TestAuthRequiredError(t *testing.T) {
	err := &AuthRequiredError{Client: "work"}

	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), &AuthRequiredError{})
	assert.NotErrorIs(t, err, &AuthFailedError{})
	assert.Contains(t, err.Error(), "Authentication required for work")
}
