package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"

	"authflow/pkg/oauth"
)

// printf prints progress output unless --quiet is set.
func printf(w io.Writer, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// formatExpiry renders an expiration relative to now, e.g. "in 55 minutes"
// or "expired 3 hours ago". A zero time means the token does not expire.
func formatExpiry(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return text.FgHiBlack.Sprint("never")
	}
	if !expiresAt.After(now) {
		return text.FgYellow.Sprint("expired " + humanize.RelTime(expiresAt, now, "ago", ""))
	}
	return "in " + strings.TrimSpace(humanize.RelTime(now, expiresAt, "", ""))
}

// maxCellWidth bounds free-form values such as claims and error messages
// in table output.
const maxCellWidth = 72

// truncate flattens s to a single line of at most limit runes, marking cut
// values with "...".
func truncate(s string, limit int) string {
	if limit < 4 {
		limit = 4
	}
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > limit {
		return string(runes[:limit-3]) + "..."
	}
	return s
}

// displayName picks the most readable identifier of the user.
func displayName(claims *oauth.OpenIDClaim) string {
	if claims == nil {
		return ""
	}
	for _, candidate := range []string{claims.PreferredUsername, claims.Email, claims.Name, claims.Subject} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
