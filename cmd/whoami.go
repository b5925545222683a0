package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authflow/pkg/oauth"
)

func newWhoamiCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated identity",
		Long: `Show the identity of the authenticated user.

The claims come from the user-info endpoint when one is configured and from
the stored ID token otherwise.

Examples:
  authflow whoami                      # Standard identity claims
  authflow whoami --all                # Every claim, including custom ones`,
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

			var claims *oauth.OpenIDClaim
			if c.config.UserInfoURL() != "" {
				claims, err = fetchClaims(ctx, c)
			} else {
				claims, err = c.ctrl.IDTokenClaims(ctx)
				if errors.Is(err, oauth.ErrNoIDToken) {
					return fmt.Errorf("%s has no user-info endpoint and the session holds no ID token", c.name)
				}
			}
			if err != nil {
				return err
			}

			renderClaims(cmd, claims, all)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "show every claim")
	return cmd
}

func renderClaims(cmd *cobra.Command, claims *oauth.OpenIDClaim, all bool) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("CLAIM"), text.FgHiCyan.Sprint("VALUE")})

	if all {
		names := make([]string, 0, len(claims.Raw))
		for name := range claims.Raw {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.AppendRow(table.Row{name, truncate(claims.String(name), maxCellWidth)})
		}
		t.Render()
		return
	}

	standard := []struct {
		name  string
		value string
	}{
		{"sub", claims.Subject},
		{"name", claims.Name},
		{"preferred_username", claims.PreferredUsername},
		{"email", claims.Email},
	}
	for _, claim := range standard {
		if claim.value != "" {
			t.AppendRow(table.Row{claim.name, claim.value})
		}
	}
	if claims.Email != "" {
		verified := text.FgYellow.Sprint("no")
		if claims.EmailVerified {
			verified = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{"email_verified", verified})
	}
	t.Render()
}
