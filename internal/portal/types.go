// Package portal implements the authenticated protocol against the external
// claims portal: the login handshake and the per-period artifact listing.
// Portal markup is treated as unstable; parsing fails closed with typed
// errors instead of silently returning nothing.
package portal

import (
	"net/http"
	"net/url"
	"strings"
)

// Credentials is the resolved portal login pair, supplied by the
// configuration collaborator.
type Credentials struct {
	Username string
	Password string
}

// Session is an opaque authenticated handle: an http.Client carrying the
// portal cookies plus the base URL. Sessions are never shared across jobs;
// each job authenticates independently.
type Session struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// Do sends the request with the session cookies and user agent.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", s.userAgent)
	return s.client.Do(req)
}

// URL joins a portal-relative path (or returns absolute URLs untouched).
func (s *Session) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(s.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// ArtifactLink is one downloadable artifact recovered from the listing
// page. Filename is exactly as assigned by the source; it is the dedup key.
type ArtifactLink struct {
	URL          string
	Filename     string
	DeclaredType string
	// Params carries form fields for artifacts served by POST instead of
	// a direct link. Empty for direct links.
	Params url.Values
}
