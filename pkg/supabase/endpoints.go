package supabase

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// RestPrefix is where PostgREST is mounted on a Supabase project
	RestPrefix = "/rest/v1/"

	// PreferRepresentation asks PostgREST to echo the updated rows
	PreferRepresentation = "return=representation"
)

// TablePath returns the REST path of a table
func TablePath(table string) string {
	return RestPrefix + url.PathEscape(table)
}

// EqFilter builds a PostgREST equality filter value
func EqFilter(value string) string {
	return "eq." + value
}

// NormalizeURL validates a project URL and strips any trailing slash or
// REST prefix, so both "https://x.supabase.co" and
// "https://x.supabase.co/rest/v1" work.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("project URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid project URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid project URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid project URL %q: missing host", raw)
	}

	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), strings.TrimRight(RestPrefix, "/"))
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
