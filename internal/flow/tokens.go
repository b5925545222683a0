package flow

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"authflow/internal/metrics"
	"authflow/internal/session"
	"authflow/pkg/oauth"
)

var errMissingAccessToken = errors.New("response has no access_token")

// exchange trades an authorization code for tokens and persists them.
func (c *Controller) exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"code":         {code},
		"client_id":    {c.config.ClientID},
		"redirect_uri": {c.config.RedirectURL},
		"grant_type":   {oauth.GrantTypeAuthorizationCode},
	}
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	tokenURL := c.config.TokenURL()
	var resp oauth.TokenResponse
	if err := c.transport.PostForm(ctx, tokenURL, form, &resp); err != nil {
		c.logger.Warn("OAuth token exchange failed", "error", err)
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &oauth.TransportError{
			Method:     http.MethodPost,
			URL:        tokenURL,
			StatusCode: http.StatusOK,
			Err:        errMissingAccessToken,
		}
	}

	s := session.Session{
		AccessToken:           resp.AccessToken,
		RefreshToken:          resp.RefreshToken,
		AccessTokenExpiration: resp.ExpiresAt(c.now()),
		IDToken:               resp.IDToken,
	}
	if err := c.store.SaveTokens(ctx, c.config.Account(), s); err != nil {
		return "", err
	}

	c.logger.Info("OAuth authentication successful",
		"has_refresh_token", resp.RefreshToken != "",
		"has_id_token", resp.IDToken != "",
	)
	return resp.AccessToken, nil
}

// refresh obtains a new access token with the stored refresh token.
func (c *Controller) refresh(ctx context.Context) (string, error) {
	account := c.config.Account()

	s, err := c.store.Get(ctx, account)
	if err != nil {
		return "", err
	}
	if !s.HasRefreshToken() {
		return "", oauth.ErrNoRefreshToken
	}

	form := url.Values{
		"refresh_token": {s.RefreshToken},
		"client_id":     {c.config.ClientID},
		"grant_type":    {oauth.GrantTypeRefreshToken},
	}
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	refreshURL := c.config.RefreshURL()
	var resp oauth.TokenResponse
	if err := c.transport.PostForm(ctx, refreshURL, form, &resp); err != nil {
		c.metrics.TokenRefreshed(c.config.ClientID, metrics.OutcomeError)
		c.logger.Warn("OAuth token refresh failed", "error", err)
		return "", err
	}
	if resp.AccessToken == "" {
		c.metrics.TokenRefreshed(c.config.ClientID, metrics.OutcomeError)
		return "", &oauth.TransportError{
			Method:     http.MethodPost,
			URL:        refreshURL,
			StatusCode: http.StatusOK,
			Err:        errMissingAccessToken,
		}
	}

	expiration := resp.ExpiresAt(c.now())
	err = c.store.Update(ctx, account, func(current *session.Session) error {
		current.AccessToken = resp.AccessToken
		current.AccessTokenExpiration = expiration
		return nil
	})
	if err != nil {
		c.metrics.TokenRefreshed(c.config.ClientID, metrics.OutcomeError)
		return "", err
	}

	c.metrics.TokenRefreshed(c.config.ClientID, metrics.OutcomeSuccess)
	c.logger.Info("OAuth access token refreshed")
	return resp.AccessToken, nil
}

// revoke revokes accessToken and clears the session.
func (c *Controller) revoke(ctx context.Context, accessToken string) error {
	revokeURL := c.config.RevokeURL()
	if revokeURL == "" {
		return &oauth.ConfigurationError{
			Field:   "RevokeTokenEndpoint",
			Message: "no revocation endpoint configured",
		}
	}

	if err := c.transport.PostForm(ctx, revokeURL, url.Values{"token": {accessToken}}, nil); err != nil {
		c.logger.Warn("OAuth token revocation failed", "error", err)
		return err
	}

	c.logger.Info("SECURITY_AUDIT: OAuth access revoked",
		"event", "access_revoked",
		"account_id", c.config.Account(),
	)
	return c.store.ClearTokens(ctx, c.config.Account())
}

// userInfo fetches and decodes the claims of the user owning accessToken.
func (c *Controller) userInfo(ctx context.Context, accessToken string) (*oauth.OpenIDClaim, error) {
	var payload map[string]any
	params := url.Values{"access_token": {accessToken}}
	if err := c.transport.Get(ctx, c.config.UserInfoURL(), params, &payload); err != nil {
		return nil, err
	}
	return oauth.DecodeClaims(payload), nil
}
