package auth

import (
	"context"
	"time"
)

// AccessToken is an OAuth2 bearer token with optional refresh token and expiry.
type AccessToken struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is nil when the server did not send expires_in.
	ExpiresAt *time.Time

	now func() time.Time
}

// NewAccessToken returns an access token authenticator.
func NewAccessToken(accessToken, refreshToken string, expiresAt *time.Time) *AccessToken {
	return &AccessToken{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: expiresAt}
}

func (a *AccessToken) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *AccessToken) Apply(_ context.Context, t Target) error {
	t.Headers().Add("Authorization", DefaultTokenPrefix+" "+a.AccessToken)
	return nil
}

// IsExpired reports whether the expiry has passed. Tokens without an expiry
// never expire.
func (a *AccessToken) IsExpired() bool {
	if a.ExpiresAt == nil {
		return false
	}
	return !a.clock().Before(*a.ExpiresAt)
}

// IsNotExpired is the inverse of IsExpired.
func (a *AccessToken) IsNotExpired() bool { return !a.IsExpired() }

// IsRefreshable reports whether a refresh token is present.
func (a *AccessToken) IsRefreshable() bool { return a.RefreshToken != "" }

// IsNotRefreshable is the inverse of IsRefreshable.
func (a *AccessToken) IsNotRefreshable() bool { return !a.IsRefreshable() }

// ExpiresIn returns the time left before expiry, or zero when there is none.
func (a *AccessToken) ExpiresIn() time.Duration {
	if a.ExpiresAt == nil {
		return 0
	}
	if d := a.ExpiresAt.Sub(a.clock()); d > 0 {
		return d
	}
	return 0
}
