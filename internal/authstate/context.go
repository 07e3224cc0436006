package authstate

import (
	"context"
	"errors"
)

// ErrOutsideProvider is returned when no Provider is attached to a context.
var ErrOutsideProvider = errors.New("useAuth must be used within an AuthProvider")

type ctxKey struct{}

// WithProvider attaches p to ctx.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Use returns the Provider attached to ctx.
func Use(ctx context.Context) (*Provider, error) {
	p, ok := ctx.Value(ctxKey{}).(*Provider)
	if !ok || p == nil {
		return nil, ErrOutsideProvider
	}
	return p, nil
}

// MustUse is Use for code that runs only behind the provider middleware. It
// panics with ErrOutsideProvider otherwise.
func MustUse(ctx context.Context) *Provider {
	p, err := Use(ctx)
	if err != nil {
		panic(err)
	}
	return p
}
