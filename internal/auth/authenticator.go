// Package auth holds the authenticators that apply credentials to a pending
// request. Authenticators run after every header, query and config merge, so
// whatever they write wins.
package auth

import (
	"context"

	"github.com/torosent/courier/internal/bag"
)

// Target is the part of a pending request an authenticator may change.
type Target interface {
	Headers() *bag.Bag[string]
	Query() *bag.Bag[string]
	Config() *bag.Bag[any]
}

// Authenticator applies credentials to a request.
type Authenticator interface {
	Apply(ctx context.Context, t Target) error
}

// Func adapts a function to the Authenticator interface.
type Func func(ctx context.Context, t Target) error

func (f Func) Apply(ctx context.Context, t Target) error {
	return f(ctx, t)
}

// Null applies nothing. It is used to force an unauthenticated request when
// a connector would otherwise apply its default authenticator.
type Null struct{}

func (Null) Apply(context.Context, Target) error { return nil }

// Multi applies each authenticator in order.
type Multi []Authenticator

func (m Multi) Apply(ctx context.Context, t Target) error {
	for _, a := range m {
		if a == nil {
			continue
		}
		if err := a.Apply(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
