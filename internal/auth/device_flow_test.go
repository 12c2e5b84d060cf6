package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTokenServer stubs the device-authorization and token endpoints. The
// token handler runs once per poll; its return value is written as-is.
type fakeTokenServer struct {
	t          *testing.T
	server     *httptest.Server
	tokenPolls atomic.Int32

	// tokenHandler decides the response for the nth poll (1-based)
	tokenHandler func(poll int32, w http.ResponseWriter, r *http.Request)
}

func newFakeTokenServer(t *testing.T, tokenHandler func(poll int32, w http.ResponseWriter, r *http.Request)) *fakeTokenServer {
	f := &fakeTokenServer{t: t, tokenHandler: tokenHandler}
	mux := http.NewServeMux()
	mux.HandleFunc("/device/code", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"device_code":      "dev-123",
			"user_code":        "ABCD-EFGH",
			"verification_url": "https://example.com/device",
			"expires_in":       30,
			"interval":         1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHandler(f.tokenPolls.Add(1), w, r)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func oauthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": code})
}

func grantedToken(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "ya29.granted",
		"refresh_token": "1//granted",
		"expires_in":    3600,
		"token_type":    "Bearer",
	})
}

func newTestManager(t *testing.T, f *fakeTokenServer) *Manager {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return NewManager(store, Options{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		DeviceAuthURL: f.server.URL + "/device/code",
		TokenURL:      f.server.URL + "/token",
		Display:       func(url, code string, expires time.Duration) {},
	})
}

func TestAuthorizePendingThenGranted(t *testing.T) {
	f := newFakeTokenServer(t, func(poll int32, w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:device_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("device_code"); got != "dev-123" {
			t.Errorf("device_code = %q", got)
		}

		if poll <= 3 {
			oauthError(w, "authorization_pending")
			return
		}
		grantedToken(w)
	})
	m := newTestManager(t, f)

	if err := m.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if polls := f.tokenPolls.Load(); polls != 4 {
		t.Errorf("Expected 4 polls, got %d", polls)
	}
	if !m.Usable() {
		t.Error("Credential not usable after authorization")
	}

	// Persisted exactly the granted credential
	saved := m.store.Load()
	if saved == nil || saved.AccessToken != "ya29.granted" || saved.RefreshToken != "1//granted" {
		t.Errorf("Persisted credential = %+v", saved)
	}
}

func TestAuthorizeSlowDownStretchesInterval(t *testing.T) {
	f := newFakeTokenServer(t, func(poll int32, w http.ResponseWriter, r *http.Request) {
		if poll == 1 {
			oauthError(w, "slow_down")
			return
		}
		grantedToken(w)
	})
	m := newTestManager(t, f)

	started := time.Now()
	if err := m.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	// First poll after 1s, slow_down raises the interval to 6s, so the
	// second poll lands no earlier than 7s in.
	if elapsed := time.Since(started); elapsed < 7*time.Second {
		t.Errorf("slow_down not honored: finished in %s", elapsed)
	}
}

func TestAuthorizeDenied(t *testing.T) {
	f := newFakeTokenServer(t, func(poll int32, w http.ResponseWriter, r *http.Request) {
		oauthError(w, "access_denied")
	})
	m := newTestManager(t, f)

	err := m.Authorize(context.Background())
	if err == nil {
		t.Fatal("Expected denial error")
	}
	var oe *OAuthError
	if !errors.As(err, &oe) || oe.Code != "access_denied" {
		t.Errorf("Expected access_denied OAuthError, got %v", err)
	}
	if polls := f.tokenPolls.Load(); polls != 1 {
		t.Errorf("Denial must stop polling immediately, got %d polls", polls)
	}
	if m.HasCredential() {
		t.Error("Credential present after denial")
	}
}

func TestAuthorizeExpiredToken(t *testing.T) {
	f := newFakeTokenServer(t, func(poll int32, w http.ResponseWriter, r *http.Request) {
		oauthError(w, "expired_token")
	})
	m := newTestManager(t, f)

	if err := m.Authorize(context.Background()); err == nil {
		t.Fatal("Expected expiry error")
	}
}

func TestAuthorizeFeedsDuringWaits(t *testing.T) {
	f := newFakeTokenServer(t, func(poll int32, w http.ResponseWriter, r *http.Request) {
		if poll <= 2 {
			oauthError(w, "authorization_pending")
			return
		}
		grantedToken(w)
	})

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	var feeds atomic.Int32
	m := NewManager(store, Options{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		DeviceAuthURL: f.server.URL + "/device/code",
		TokenURL:      f.server.URL + "/token",
		Display:       func(url, code string, expires time.Duration) {},
		Feed:          func() { feeds.Add(1) },
	})

	if err := m.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	// Three 1s poll waits, each fed at least once
	if feeds.Load() < 3 {
		t.Errorf("Liveness hook fed %d times across 3 waits", feeds.Load())
	}
}

func TestAuthorizeContextCancellation(t *testing.T) {
	f := newFakeTokenServer(t, func(poll int32, w http.ResponseWriter, r *http.Request) {
		oauthError(w, "authorization_pending")
	})
	m := newTestManager(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	err := m.Authorize(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got %v", err)
	}
}
