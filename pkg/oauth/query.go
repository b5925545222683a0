package oauth

import (
	"net/url"
	"strings"
)

// ParseQuery splits a raw query string on '&' and '=' and percent-decodes
// names and values. It never fails: pairs without '=' or with an empty name
// are skipped, undecodable parts are kept verbatim, and a leading '?' is
// ignored. Later duplicates overwrite earlier ones.
func ParseQuery(rawQuery string) map[string]string {
	params := make(map[string]string)
	rawQuery = strings.TrimPrefix(rawQuery, "?")

	for _, pair := range strings.Split(rawQuery, "&") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		params[decodeComponent(name)] = decodeComponent(value)
	}
	return params
}

// QueryOf returns the parsed query of rawURL. A URL that does not parse
// yields whatever follows the first '?'.
func QueryOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.RawQuery
	}
	if _, query, ok := strings.Cut(rawURL, "?"); ok {
		query, _, _ = strings.Cut(query, "#")
		return query
	}
	return ""
}

func decodeComponent(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Unescape percent-decodes s, returning s unchanged when it is not valid
// percent-encoding.
func Unescape(s string) string {
	return decodeComponent(s)
}
