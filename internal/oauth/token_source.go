package oauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/torosent/courier/internal/auth"
)

// TokenSource caches the access token of a grant and fetches a new one when
// it is about to expire. Concurrent callers share a single fetch.
//
// A TokenSource is an auth.Authenticator, so it can be a connector's default
// authenticator; token requests set their own authenticator and never
// recurse into it.
type TokenSource struct {
	grant         *ClientCredentials
	scopes        []string
	opts          []Option
	refreshBefore time.Duration

	mu              sync.Mutex
	cached          *auth.AccessToken
	fetchInProgress bool
	fetchCond       *sync.Cond
}

// NewTokenSource returns a source that requests scopes from grant. Tokens are
// replaced refreshBefore ahead of their expiry.
func NewTokenSource(grant *ClientCredentials, scopes []string, refreshBefore time.Duration, opts ...Option) *TokenSource {
	s := &TokenSource{
		grant:         grant,
		scopes:        scopes,
		opts:          opts,
		refreshBefore: refreshBefore,
	}
	s.fetchCond = sync.NewCond(&s.mu)
	return s
}

// Token returns a valid access token, using the cache when possible.
func (s *TokenSource) Token(ctx context.Context) (*auth.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid() {
		return s.cached, nil
	}

	for s.fetchInProgress {
		s.fetchCond.Wait()
		if s.valid() {
			return s.cached, nil
		}
	}

	s.fetchInProgress = true
	s.mu.Unlock()

	token, err := s.grant.GetAccessToken(ctx, s.scopes, s.opts...)

	s.mu.Lock()
	s.fetchInProgress = false
	s.fetchCond.Broadcast()

	if err != nil {
		return nil, err
	}
	s.cached = token
	return token, nil
}

// Invalidate drops the cached token.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

// valid reports whether the cached token can be used. The caller holds s.mu.
func (s *TokenSource) valid() bool {
	if s.cached == nil {
		return false
	}
	if s.cached.ExpiresAt == nil {
		return true
	}
	return s.grant.clock().Before(s.cached.ExpiresAt.Add(-s.refreshBefore))
}

func (s *TokenSource) Apply(ctx context.Context, t auth.Target) error {
	token, err := s.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch access token: %w", err)
	}
	return token.Apply(ctx, t)
}
