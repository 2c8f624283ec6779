package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	duplicateSlashes = regexp.MustCompile(`/{2,}`)
	trackingParams   = map[string]bool{
		"utm_source":   true,
		"utm_medium":   true,
		"utm_campaign": true,
		"utm_term":     true,
		"utm_content":  true,
		"gclid":        true,
		"fbclid":       true,
	}
)

// Normalize resolves href against base and returns the canonical form used
// for de-duplication and storage. Non-http(s) targets report false.
func Normalize(base, href string) (string, bool) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	u := baseURL.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(strings.TrimSuffix(host, ":80"), ":443")

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	path = duplicateSlashes.ReplaceAllString(path, "/")

	query := u.Query()
	for key := range query {
		if trackingParams[key] {
			query.Del(key)
		}
	}

	out := u.Scheme + "://" + host + path
	if encoded := query.Encode(); encoded != "" {
		out += "?" + encoded
	}
	return out, true
}

// hostAllowed reports whether rawURL's host equals an allowed domain or is a
// sub-domain of one.
func hostAllowed(rawURL string, allowed map[string]bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for domain := range allowed {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
