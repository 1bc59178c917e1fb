package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/observability"
)

// Client performs the portal login handshake and listing requests.
type Client struct {
	cfg     config.PortalConfig
	logger  observability.Logger
	metrics observability.Metrics
}

// NewClient creates a portal client from resolved configuration.
func NewClient(cfg config.PortalConfig, logger observability.Logger, metrics observability.Metrics) *Client {
	return &Client{cfg: cfg, logger: logger, metrics: metrics}
}

// Authenticate performs the form login and returns a Session on success.
// The portal answers a successful login with a redirect to the landing
// page; a response that renders the login form again, or a lockout notice,
// is an auth failure. Detecting "login page returned again" matters because
// the portal happily serves it with status 200.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	c.metrics.StartOperation("authenticate")
	defer c.metrics.EndOperation("authenticate")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	session := &Session{
		client: &http.Client{
			Jar:     jar,
			Timeout: c.cfg.Timeout,
		},
		baseURL:   c.cfg.BaseURL,
		userAgent: c.cfg.UserAgent,
	}

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	loginURL := session.URL(c.cfg.LoginPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Info(ctx, "authenticating against portal", observability.Fields{
		"url":      loginURL,
		"username": creds.Username,
	})

	resp, err := session.Do(req)
	if err != nil {
		c.metrics.RecordError("authenticate", "network")
		return nil, domain.E(domain.KindNetwork, "portal.Authenticate", "login request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.RecordError("authenticate", "network")
		return nil, domain.E(domain.KindNetwork, "portal.Authenticate", "reading login response", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordError("authenticate", "auth")
		return nil, domain.E(domain.KindAuth, "portal.Authenticate",
			fmt.Sprintf("login returned status %d", resp.StatusCode), nil)
	}

	if reason, failed := loginFailure(string(body)); failed {
		c.metrics.RecordError("authenticate", "auth")
		c.logger.Warn(ctx, "portal rejected login", observability.Fields{
			"username": creds.Username,
			"reason":   reason,
		})
		return nil, domain.E(domain.KindAuth, "portal.Authenticate", reason, nil)
	}

	c.metrics.RecordSuccess("authenticate")
	c.logger.Info(ctx, "portal session established", observability.Fields{
		"username": creds.Username,
	})
	return session, nil
}

// loginFailure inspects the post-login page for failure markers. The portal
// serves the login form again on bad credentials and a notice page on
// lockout, both with status 200.
func loginFailure(body string) (string, bool) {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, `type="password"`), strings.Contains(lower, "type='password'"):
		return "login page returned again: bad credentials or expired password", true
	case strings.Contains(lower, "account locked"), strings.Contains(lower, "login attempts exceeded"):
		return "portal-side lockout", true
	default:
		return "", false
	}
}
