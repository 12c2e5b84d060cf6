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

	"github.com/Govanator12/smart-meeting-sign/internal/logger"
)

const (
	// defaultAuthExpiry applies when the server omits expires_in
	defaultAuthExpiry = 600 * time.Second
	// defaultPollInterval applies when the server omits interval
	defaultPollInterval = 5 * time.Second
	// slowDownStep is added to the poll interval on a slow_down response
	slowDownStep = 5 * time.Second
)

// deviceCodeResponse is the device authorization endpoint response
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// pollOutcome classifies one token-endpoint poll during device
// authorization. Pending and SlowDown are normal polling states, not
// faults; only Denied, Expired, and Fatal terminate the flow.
type pollOutcome int

const (
	pollAuthorized pollOutcome = iota
	pollPending
	pollSlowDown
	pollDenied
	pollExpired
	pollTransient
	pollFatal
)

// Authorize performs the complete OAuth2 device flow: request a device/user
// code pair, display the verification instructions (the one operator-facing
// step), and poll the token endpoint until success, denial, or expiry of
// the code's validity window. The credential is persisted exactly once, on
// success, before returning.
func (m *Manager) Authorize(ctx context.Context) error {
	dc, err := m.requestDeviceCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to request device code: %w", err)
	}

	expiresIn := defaultAuthExpiry
	if dc.ExpiresIn > 0 {
		expiresIn = time.Duration(dc.ExpiresIn) * time.Second
	}
	interval := defaultPollInterval
	if dc.Interval > 0 {
		interval = time.Duration(dc.Interval) * time.Second
	}

	logger.Info("device code received",
		"user_code", dc.UserCode,
		"expires_in", expiresIn,
		"interval", interval)

	m.display(dc.VerificationURL, dc.UserCode, expiresIn)

	deadline := m.now().Add(expiresIn)
	pollCount := 0
	transientFailures := 0

	for {
		if err := m.sleepFeeding(ctx, interval); err != nil {
			return err
		}
		if m.now().After(deadline) {
			return fmt.Errorf("device code expired after %d polls", pollCount)
		}
		pollCount++

		tok, outcome, err := m.pollToken(ctx, dc.DeviceCode)
		switch outcome {
		case pollAuthorized:
			m.cred = &Credential{
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				Expiry:       m.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
			}
			if err := m.store.Save(m.cred); err != nil {
				return err
			}
			logger.Info("device authorization successful",
				"polls", pollCount,
				"has_refresh_token", tok.RefreshToken != "")
			return nil

		case pollPending:
			// Expected steady state while the operator completes the
			// verification step; does not consume the retry budget
			transientFailures = 0
			continue

		case pollSlowDown:
			interval += slowDownStep
			transientFailures = 0
			logger.Debug("server requested slower polling", "new_interval", interval)
			continue

		case pollTransient:
			transientFailures++
			if transientFailures > len(retryDelays) {
				return fmt.Errorf("polling failed after %d consecutive transport errors: %w", transientFailures, err)
			}
			logger.Warn("transient failure while polling, continuing",
				"consecutive", transientFailures,
				"error", err)
			continue

		case pollDenied:
			return fmt.Errorf("user denied access: %w", err)

		case pollExpired:
			return fmt.Errorf("device code expired: %w", err)

		default:
			return err
		}
	}
}

// requestDeviceCode requests a device/user code pair, retrying transient
// failures under the standard policy.
func (m *Manager) requestDeviceCode(ctx context.Context) (*deviceCodeResponse, error) {
	var dc *deviceCodeResponse
	err := m.withRetry(ctx, "device_code_request", func() error {
		var reqErr error
		dc, reqErr = m.doDeviceCodeRequest(ctx)
		return reqErr
	})
	return dc, err
}

func (m *Manager) doDeviceCodeRequest(ctx context.Context) (*deviceCodeResponse, error) {
	params := url.Values{
		"client_id": {m.clientID},
		"scope":     {m.scope},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.deviceAuthURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, &OAuthError{Code: errResp.Error, Description: errResp.ErrorDescription}
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var dc deviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if dc.DeviceCode == "" || dc.UserCode == "" || dc.VerificationURL == "" {
		return nil, fmt.Errorf("invalid device code response: missing required fields")
	}

	return &dc, nil
}

// pollToken attempts one device-code exchange and classifies the result
func (m *Manager) pollToken(ctx context.Context, deviceCode string) (tokenResponse, pollOutcome, error) {
	params := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"device_code":   {deviceCode},
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
	}

	tok, err := m.postTokenEndpoint(ctx, params)
	if err == nil {
		return tok, pollAuthorized, nil
	}

	var oe *OAuthError
	if errors.As(err, &oe) {
		switch oe.Code {
		case "authorization_pending":
			return tok, pollPending, err
		case "slow_down":
			return tok, pollSlowDown, err
		case "access_denied":
			return tok, pollDenied, err
		case "expired_token":
			return tok, pollExpired, err
		}
		// Unknown server-reported error code
		return tok, pollFatal, err
	}

	// Transport-level failure (timeout, connection reset)
	return tok, pollTransient, err
}
