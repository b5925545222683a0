package session

import (
	"time"

	"golang.org/x/oauth2"
)

// Session is the token state of one account.
// Zero values mean absent: an empty token was never issued, a zero
// expiration is unknown.
type Session struct {
	// AccessToken is the OAuth access token.
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is the OAuth refresh token (if available).
	RefreshToken string `json:"refresh_token,omitempty"`

	// AccessTokenExpiration is when the access token expires.
	AccessTokenExpiration time.Time `json:"access_token_expiration,omitempty"`

	// RefreshTokenExpiration is when the refresh token expires.
	RefreshTokenExpiration time.Time `json:"refresh_token_expiration,omitempty"`

	// IDToken is the OIDC ID token of the last code exchange (if available).
	IDToken string `json:"id_token,omitempty"`
}

// HasAccessToken reports whether an access token is present.
func (s Session) HasAccessToken() bool {
	return s.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is present.
func (s Session) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

// TokenIsNotExpired reports whether the access token expiration lies after now.
// A missing expiration counts as not expired.
func (s Session) TokenIsNotExpired(now time.Time) bool {
	return notExpired(s.AccessTokenExpiration, now)
}

// RefreshTokenIsNotExpired reports whether the refresh token expiration lies
// after now. A missing expiration counts as not expired.
func (s Session) RefreshTokenIsNotExpired(now time.Time) bool {
	return notExpired(s.RefreshTokenExpiration, now)
}

// IsAuthorized reports whether the session holds a usable access token.
func (s Session) IsAuthorized(now time.Time) bool {
	return s.HasAccessToken() && s.TokenIsNotExpired(now)
}

// CanRefresh reports whether the session holds a usable refresh token.
func (s Session) CanRefresh(now time.Time) bool {
	return s.HasRefreshToken() && s.RefreshTokenIsNotExpired(now)
}

// IsEmpty reports whether no token of any kind is present.
func (s Session) IsEmpty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.IDToken == "" &&
		s.AccessTokenExpiration.IsZero() && s.RefreshTokenExpiration.IsZero()
}

// OAuth2Token converts the session to an oauth2.Token for use with
// golang.org/x/oauth2 clients.
func (s Session) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.AccessTokenExpiration,
	}

	if s.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": s.IDToken,
		})
	}

	return token
}

func notExpired(expiration, now time.Time) bool {
	if expiration.IsZero() {
		return true
	}
	return expiration.After(now)
}
