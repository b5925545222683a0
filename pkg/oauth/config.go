package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AccountIDPrefix is prepended to the client id when a Config carries no
// explicit account id.
const AccountIDPrefix = "ACCOUNT_FOR_CLIENTID_"

// Config describes an OAuth 2.0 client registration.
// A Config is treated as immutable once handed to a flow controller.
type Config struct {
	// ClientID is the registered client identifier.
	ClientID string `yaml:"clientId" validate:"required"`

	// ClientSecret is sent with token requests when set (confidential clients).
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// BaseURL is prepended to relative endpoints.
	BaseURL string `yaml:"baseURL,omitempty" validate:"omitempty,url"`

	AuthorizationEndpoint string `yaml:"authorizationEndpoint" validate:"required"`
	AccessTokenEndpoint   string `yaml:"accessTokenEndpoint" validate:"required"`

	// RefreshTokenEndpoint defaults to AccessTokenEndpoint when empty.
	RefreshTokenEndpoint string `yaml:"refreshTokenEndpoint,omitempty"`
	RevokeTokenEndpoint  string `yaml:"revokeTokenEndpoint,omitempty"`
	UserInfoEndpoint     string `yaml:"userInfoEndpoint,omitempty"`

	// RedirectURL must match the redirect URI registered with the provider.
	RedirectURL string `yaml:"redirectURL" validate:"required,url"`

	// Scope is the space-separated scope requested during authorization.
	Scope string `yaml:"scope,omitempty"`

	// AccountID keys the persisted session. See Account.
	AccountID string `yaml:"accountId,omitempty"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Account returns the identity key of the session bound to this registration.
// Without an explicit AccountID it is derived from the client id, so the same
// client always finds its session again.
func (c Config) Account() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return AccountIDPrefix + c.ClientID
}

// WithDefaults returns a copy with the derived fields filled in.
func (c Config) WithDefaults() Config {
	c.AccountID = c.Account()
	return c
}

// Validate checks that the registration carries everything the authorization
// code flow needs and that every endpoint resolves to an absolute URL.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return &ConfigurationError{
				Field:   first.Field(),
				Message: fmt.Sprintf("failed %q validation", first.Tag()),
			}
		}
		return fmt.Errorf("invalid client configuration: %w", err)
	}

	endpoints := map[string]string{
		"AuthorizationEndpoint": c.AuthorizationEndpoint,
		"AccessTokenEndpoint":   c.AccessTokenEndpoint,
		"RefreshTokenEndpoint":  c.RefreshTokenEndpoint,
		"RevokeTokenEndpoint":   c.RevokeTokenEndpoint,
		"UserInfoEndpoint":      c.UserInfoEndpoint,
	}
	for field, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		resolved := c.Resolve(endpoint)
		u, err := url.Parse(resolved)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return &ConfigurationError{
				Field:   field,
				Message: fmt.Sprintf("%q does not resolve to an absolute URL", endpoint),
			}
		}
	}
	return nil
}

// Resolve returns endpoint as an absolute URL. Absolute endpoints are returned
// unchanged, relative ones are appended to BaseURL.
func (c Config) Resolve(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	if c.BaseURL == "" {
		return endpoint
	}
	base := strings.TrimSuffix(c.BaseURL, "/")
	if endpoint == "" {
		return base
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// TokenURL returns the resolved access token endpoint.
func (c Config) TokenURL() string {
	return c.Resolve(c.AccessTokenEndpoint)
}

// RefreshURL returns the resolved refresh endpoint, falling back to the
// access token endpoint as plain OAuth 2.0 providers only expose one.
func (c Config) RefreshURL() string {
	if c.RefreshTokenEndpoint == "" {
		return c.TokenURL()
	}
	return c.Resolve(c.RefreshTokenEndpoint)
}

// RevokeURL returns the resolved revocation endpoint or "" if none is configured.
func (c Config) RevokeURL() string {
	if c.RevokeTokenEndpoint == "" {
		return ""
	}
	return c.Resolve(c.RevokeTokenEndpoint)
}

// UserInfoURL returns the resolved user-info endpoint or "" if none is configured.
func (c Config) UserInfoURL() string {
	if c.UserInfoEndpoint == "" {
		return ""
	}
	return c.Resolve(c.UserInfoEndpoint)
}

// AuthorizationURL builds the URL the external user-agent loads to start the
// authorization step. Parameter order is fixed:
// scope, redirect_uri, client_id, response_type, state.
func (c Config) AuthorizationURL(state string) string {
	var b strings.Builder
	b.WriteString(c.Resolve(c.AuthorizationEndpoint))
	b.WriteString("?scope=")
	b.WriteString(url.QueryEscape(c.Scope))
	b.WriteString("&redirect_uri=")
	b.WriteString(url.QueryEscape(c.RedirectURL))
	b.WriteString("&client_id=")
	b.WriteString(url.QueryEscape(c.ClientID))
	b.WriteString("&response_type=code&state=")
	b.WriteString(url.QueryEscape(state))
	return b.String()
}
