// Package auth implements the OAuth2 device-flow token lifecycle: acquire,
// persist, refresh, and recover credentials with no interactive input after
// first setup.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/Govanator12/smart-meeting-sign/internal/logger"
)

// ScopeCalendarReadonly is the only scope the sign needs
const ScopeCalendarReadonly = "https://www.googleapis.com/auth/calendar.readonly"

// retryDelays is the bounded retry schedule for transient network failures.
// Permanent authorization errors bypass it entirely.
var retryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// feedInterval bounds the gap between liveness-hook invocations during any
// wait, keeping long blocking sections under the supervisory timeout.
const feedInterval = time.Second

// FeedFunc is the liveness/watchdog-feed hook invoked during waits
type FeedFunc func()

// DisplayFunc presents the one-time verification URL and user code to the
// operator during device authorization.
type DisplayFunc func(verificationURL, userCode string, expiresIn time.Duration)

// Options configures a Manager
type Options struct {
	ClientID     string
	ClientSecret string
	Scope        string

	// Feed is invoked at least once per second during any wait. Optional.
	Feed FeedFunc
	// Display shows authorization instructions. Defaults to stdout.
	Display DisplayFunc

	// Endpoint overrides for tests
	DeviceAuthURL string
	TokenURL      string

	HTTPClient *http.Client
	Now        func() time.Time
}

// Manager owns the in-memory credential plus its persistence. All mutations
// persist the full record before returning to the caller, so a crash right
// after a successful exchange never loses the new token.
type Manager struct {
	clientID     string
	clientSecret string
	scope        string

	store *Store
	cred  *Credential

	httpClient    *http.Client
	feed          FeedFunc
	display       DisplayFunc
	deviceAuthURL string
	tokenURL      string
	now           func() time.Time
}

func NewManager(store *Store, opts Options) *Manager {
	m := &Manager{
		clientID:      opts.ClientID,
		clientSecret:  opts.ClientSecret,
		scope:         opts.Scope,
		store:         store,
		httpClient:    opts.HTTPClient,
		feed:          opts.Feed,
		display:       opts.Display,
		deviceAuthURL: opts.DeviceAuthURL,
		tokenURL:      opts.TokenURL,
		now:           opts.Now,
	}
	if m.scope == "" {
		m.scope = ScopeCalendarReadonly
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if m.feed == nil {
		m.feed = func() {}
	}
	if m.display == nil {
		m.display = printAuthInstructions
	}
	if m.deviceAuthURL == "" {
		m.deviceAuthURL = google.Endpoint.DeviceAuthURL
	}
	if m.tokenURL == "" {
		m.tokenURL = google.Endpoint.TokenURL
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.cred = store.Load()
	if m.cred != nil {
		logger.Info("loaded saved credential",
			"has_refresh_token", m.cred.RefreshToken != "",
			"expiry", m.cred.Expiry.Format(time.RFC3339))
	} else {
		logger.Info("no saved credential, device authorization will be required")
	}

	return m
}

// Token returns a usable access token, refreshing or re-authorizing as
// needed. It fails only when device authorization itself fails, is denied,
// or times out.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if m.cred.Usable(m.now()) {
		return m.cred.AccessToken, nil
	}

	if m.cred != nil && m.cred.RefreshToken != "" {
		if err := m.Refresh(ctx); err == nil {
			return m.cred.AccessToken, nil
		} else {
			logger.Warn("token refresh failed, falling back to device authorization", "error", err)
		}
	}

	if err := m.Authorize(ctx); err != nil {
		return "", fmt.Errorf("device authorization failed: %w", err)
	}
	return m.cred.AccessToken, nil
}

// HasCredential reports whether any credential record is held
func (m *Manager) HasCredential() bool {
	return m.cred != nil
}

// Usable reports whether the held access token is currently usable
func (m *Manager) Usable() bool {
	return m.cred.Usable(m.now())
}

// Invalidate discards the in-memory access token (keeping the refresh
// token) so the next Token call refreshes. Used after a provider 401.
func (m *Manager) Invalidate() {
	if m.cred != nil {
		m.cred.Expiry = time.Time{}
	}
}

// ClearLocal removes the stored credential entirely
func (m *Manager) ClearLocal() error {
	m.cred = nil
	return m.store.Clear()
}

// Refresh exchanges the refresh token for a new access token. An
// invalid_grant response means the user revoked access or the token expired
// server-side: the stored refresh token is cleared before the error is
// returned, so the caller's fallback is a clean device authorization.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.cred == nil || m.cred.RefreshToken == "" {
		return &OAuthError{Code: "invalid_grant", Description: "no refresh token available"}
	}

	params := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"refresh_token": {m.cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	var tok tokenResponse
	err := m.withRetry(ctx, "token_refresh", func() error {
		var reqErr error
		tok, reqErr = m.postTokenEndpoint(ctx, params)
		return reqErr
	})
	if err != nil {
		var oe *OAuthError
		if errors.As(err, &oe) && oe.Code == "invalid_grant" {
			logger.Warn("refresh token invalidated by server, clearing stored token")
			m.cred.RefreshToken = ""
			m.cred.AccessToken = ""
			if saveErr := m.store.Save(m.cred); saveErr != nil {
				logger.Error("failed to persist cleared credential", "error", saveErr)
			}
		}
		return err
	}

	m.cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		m.cred.RefreshToken = tok.RefreshToken
	}
	m.cred.Expiry = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	if err := m.store.Save(m.cred); err != nil {
		return err
	}

	logger.Info("access token refreshed", "expiry", m.cred.Expiry.Format(time.RFC3339))
	return nil
}

// tokenResponse is a successful token-endpoint response
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// postTokenEndpoint posts form params to the token endpoint and returns
// either a token or an OAuthError decoded from the error body.
func (m *Manager) postTokenEndpoint(ctx context.Context, params url.Values) (tokenResponse, error) {
	var tok tokenResponse

	req, err := http.NewRequestWithContext(ctx, "POST", m.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return tok, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return tok, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
			return tok, fmt.Errorf("failed to decode token response: %w", err)
		}
		if tok.AccessToken == "" || tok.ExpiresIn <= 0 {
			return tok, fmt.Errorf("invalid token response: missing required fields")
		}
		return tok, nil
	}

	var errResp struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		return tok, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return tok, &OAuthError{Code: errResp.Error, Description: errResp.ErrorDescription}
}

// withRetry runs fn under the bounded retry policy: a fixed attempt count
// with an increasing delay schedule, feeding the liveness hook through every
// wait. Permanent authorization errors are returned immediately.
func (m *Manager) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var oe *OAuthError
		if errors.As(lastErr, &oe) && oe.Permanent() {
			return lastErr
		}

		if attempt >= len(retryDelays) {
			return fmt.Errorf("%s failed after %d attempts: %w", op, attempt+1, lastErr)
		}

		logger.Warn("retrying after transient failure",
			"operation", op,
			"attempt", attempt+1,
			"delay", retryDelays[attempt],
			"error", lastErr)

		if err := m.sleepFeeding(ctx, retryDelays[attempt]); err != nil {
			return err
		}
	}
}

// sleepFeeding sleeps for d decomposed into sub-second segments, invoking
// the liveness hook at least once per second so an external watchdog is not
// tripped by a long blocking wait.
func (m *Manager) sleepFeeding(ctx context.Context, d time.Duration) error {
	for remaining := d; remaining > 0; remaining -= feedInterval {
		m.feed()
		step := feedInterval
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
	}
	m.feed()
	return nil
}

func printAuthInstructions(verificationURL, userCode string, expiresIn time.Duration) {
	fmt.Println()
	fmt.Println("  DEVICE AUTHORIZATION REQUIRED")
	fmt.Println("  =============================")
	fmt.Println()
	fmt.Printf("  1. On another device, visit: %s\n", verificationURL)
	fmt.Printf("  2. Enter this code: %s\n", userCode)
	fmt.Println()
	if expiresIn > 0 {
		fmt.Printf("  This code expires in %d minutes.\n", int(expiresIn.Minutes()))
	}
	fmt.Println("  Waiting for authorization...")
	fmt.Println()
}
