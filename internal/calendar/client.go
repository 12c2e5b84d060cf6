package calendar

import (
	"context"
	"fmt"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/Govanator12/smart-meeting-sign/internal/auth"
)

// NewService builds the Google Calendar service with tokens supplied lazily
// through the auth manager, so an expired token is refreshed (or
// re-authorized) on the request that first needs it.
func NewService(ctx context.Context, tokens *auth.Manager) (*gcal.Service, error) {
	svc, err := gcal.NewService(ctx, option.WithTokenSource(tokens.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}
