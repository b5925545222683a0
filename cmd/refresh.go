package cmd

import (
	"context"
	"errors"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authflow/pkg/oauth"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		Long: `Exchange the stored refresh token for a new access token, even if the
current one is still valid.

Examples:
  authflow refresh                     # Refresh the default client
  authflow refresh --client work       # Refresh a specific client`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			c, err := rt.client(clientName)
			if err != nil {
				return err
			}

			if err := refreshToken(ctx, c); err != nil {
				if errors.Is(err, oauth.ErrNoRefreshToken) {
					return &AuthRequiredError{Client: c.name}
				}
				return &AuthFailedError{Client: c.name, Reason: err}
			}

			s, err := c.ctrl.Session(ctx)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s Token refreshed, expires %s.\n",
				text.FgGreen.Sprint("✓"), formatExpiry(s.AccessTokenExpiration, rt.store.Now()))
			return nil
		},
	}
}

// refreshToken is the blocking form of Controller.RefreshAccessToken.
func refreshToken(ctx context.Context, c *client) error {
	done := make(chan error, 1)
	c.ctrl.RefreshAccessToken(ctx, func(_ string, err error) {
		done <- err
	})
	return <-done
}
