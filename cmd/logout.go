package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the stored tokens",
		Long: `Revoke the access token at the provider and clear the stored session.

Without a revocation endpoint, or with --local, the session is only cleared
locally.

Examples:
  authflow logout                      # Revoke and clear
  authflow logout --local              # Clear without contacting the provider`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			c, err := rt.client(clientName)
			if err != nil {
				return err
			}

			s, err := c.ctrl.Session(ctx)
			if err != nil {
				return err
			}
			if !s.HasAccessToken() {
				printf(out, "Not logged in to %s.\n", c.name)
				return nil
			}

			if local || c.config.RevokeURL() == "" {
				if err := c.ctrl.ClearTokens(ctx); err != nil {
					return fmt.Errorf("failed to clear tokens: %w", err)
				}
				printf(out, "Cleared local session of %s.\n", c.name)
				return nil
			}

			if err := revokeAccess(ctx, c); err != nil {
				return fmt.Errorf("failed to revoke access: %w", err)
			}
			printf(out, "Revoked access and cleared session of %s.\n", c.name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "only clear the local session")
	return cmd
}

// revokeAccess is the blocking form of Controller.RevokeAccess. The caller
// makes sure an access token is stored; otherwise no completion arrives.
func revokeAccess(ctx context.Context, c *client) error {
	done := make(chan error, 1)
	c.ctrl.RevokeAccess(ctx, func(err error) {
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
