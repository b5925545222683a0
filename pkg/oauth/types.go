package oauth

import (
	"encoding/json"
	"math"
	"time"
)

// Grant types sent to the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenResponse is the JSON answer of the token and refresh endpoints.
type TokenResponse struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the token lifetime in seconds. Providers send it either
	// as a number or as a numeric string.
	ExpiresIn json.Number `json:"expires_in,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OIDC ID token (if available).
	IDToken string `json:"id_token,omitempty"`
}

// Lifetime returns the expires_in value as a duration, or zero when the
// response carries none or an unusable one. Values beyond the range of
// time.Duration are capped.
func (r *TokenResponse) Lifetime() time.Duration {
	if r.ExpiresIn == "" {
		return 0
	}
	seconds, err := r.ExpiresIn.Float64()
	if err != nil || seconds <= 0 {
		return 0
	}
	nanos := seconds * float64(time.Second)
	if nanos >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(nanos)
}

// ExpiresAt returns the absolute expiry relative to now, or the zero time
// when the lifetime is unknown.
func (r *TokenResponse) ExpiresAt(now time.Time) time.Time {
	lifetime := r.Lifetime()
	if lifetime == 0 {
		return time.Time{}
	}
	return now.Add(lifetime)
}
