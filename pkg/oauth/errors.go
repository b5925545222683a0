package oauth

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUserCancelled is returned when the user dismissed the authorization
	// surface or the provider redirected back without a code.
	ErrUserCancelled = errors.New("user cancelled authorization")

	// ErrConnection is returned when the authorization page could not be
	// loaded after all retries.
	ErrConnection = errors.New("could not connect to the authorization server")

	// ErrAppInterrupted is returned when the application became active again
	// while an authorization attempt was still waiting for approval.
	ErrAppInterrupted = errors.New("authorization interrupted: application resumed before approval")

	// ErrSuperseded is returned to an authorization attempt that was replaced
	// by a newer one.
	ErrSuperseded = errors.New("authorization superseded by a newer request")

	// ErrNoRefreshToken is returned by a refresh when no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrNoAccessToken is returned when an operation needs an access token
	// and the session has none.
	ErrNoAccessToken = errors.New("no access token available")

	// ErrNoIDToken is returned when ID token claims are requested and the
	// session holds no ID token.
	ErrNoIDToken = errors.New("no id token available")
)

// ErrorKind classifies flow errors.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUserCancelled
	KindConnection
	KindTransport
	KindConfiguration
	KindAppInterrupted
	KindAuthorization
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUserCancelled:
		return "user_cancelled"
	case KindConnection:
		return "connection_error"
	case KindTransport:
		return "transport_error"
	case KindConfiguration:
		return "configuration_error"
	case KindAppInterrupted:
		return "app_interrupted"
	case KindAuthorization:
		return "authorization_error"
	default:
		return "unknown"
	}
}

// Kind classifies err. Errors that belong to no kind, including nil, are
// KindUnknown.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var transportErr *TransportError
	var configErr *ConfigurationError
	var authzErr *AuthorizationError

	switch {
	case errors.Is(err, ErrUserCancelled), errors.Is(err, context.Canceled):
		return KindUserCancelled
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrAppInterrupted), errors.Is(err, ErrSuperseded):
		return KindAppInterrupted
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &authzErr):
		return KindAuthorization
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindUnknown
	}
}

// TransportError describes a failed HTTP exchange with one of the provider's
// endpoints. StatusCode is zero when no response was received.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte

	// Code and Description carry the OAuth error response fields
	// ("error", "error_description") when the body held one.
	Code        string
	Description string

	// Err is the underlying network or decoding error, if any.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("%s %s: status %d: %s: %s", e.Method, e.URL, e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing or malformed part of the client registration.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// AuthorizationError is an error answer of the authorization endpoint,
// delivered through the redirect URL.
type AuthorizationError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}
