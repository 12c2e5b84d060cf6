package auth

import "fmt"

// OAuthError is an error response from the authorization server
type OAuthError struct {
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("oauth error: %s", e.Code)
	}
	return fmt.Sprintf("oauth error: %s - %s", e.Code, e.Description)
}

// Permanent reports whether the error indicates an authorization problem
// that retrying cannot fix. Permanent errors are never retried; they
// propagate immediately so the caller can fall back to a fresh device
// authorization.
func (e *OAuthError) Permanent() bool {
	switch e.Code {
	case "invalid_grant", "invalid_client", "unauthorized_client", "access_denied":
		return true
	}
	return false
}
