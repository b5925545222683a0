// Package oauth provides the OAuth 2.0 / OpenID Connect protocol types shared by
// the authorization flow controller, the transport adapter and the CLI.
//
// # Core Components
//
//   - Config: immutable client registration with account id derivation
//   - TokenResponse: token endpoint answer with expiry computation
//   - OpenIDClaim: standard claims decoded from a user-info response or an ID token
//   - ParseQuery: tolerant query-string parser used on redirect URLs
//   - Errors: sentinel and typed errors for every failure kind of the flow
//
// # Usage
//
//	cfg := oauth.Config{
//	    ClientID:              "my-app",
//	    BaseURL:               "https://idp.example.com",
//	    AuthorizationEndpoint: "/oauth/authorize",
//	    AccessTokenEndpoint:   "/oauth/token",
//	    RedirectURL:           "http://127.0.0.1:8100/callback",
//	    Scope:                 "openid profile email",
//	}.WithDefaults()
//
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	authURL := cfg.AuthorizationURL(nonce)
package oauth
