package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// tokenSource adapts the Manager to oauth2.TokenSource so the calendar
// client pulls tokens through the full lifecycle (cache, refresh, device
// flow) on demand.
type tokenSource struct {
	ctx context.Context
	m   *Manager
}

// TokenSource returns an oauth2.TokenSource backed by this manager
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, m: m}
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.m.Token(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      ts.m.cred.Expiry,
	}, nil
}
