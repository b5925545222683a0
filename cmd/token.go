package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var header bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long: `Print a valid access token for the selected client to stdout.

An expired access token is refreshed first. No browser is opened: without a
usable session the command exits with code 2.

Examples:
  authflow token                                   # Raw token
  curl -H "$(authflow token --header)" https://api.example.com/me`,
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
			if err := requireSession(ctx, c); err != nil {
				return err
			}

			token, err := c.ctrl.AccessToken(ctx)
			if err != nil {
				return loginError(c.name, err)
			}

			if !header {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			fields, err := c.ctrl.AuthorizationFields(ctx)
			if err != nil {
				return err
			}
			for name, value := range fields {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, value)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&header, "header", false, "print an Authorization header instead of the raw token")
	return cmd
}
