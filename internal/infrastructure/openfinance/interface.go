package openfinance

import (
	"context"
)

// KeyResolver returns the provider API key linked to a user. It returns
// ErrNoProviderKey when the user has not linked the provider.
type KeyResolver interface {
	ProviderKey(ctx context.Context, userID string) (string, error)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(ctx context.Context, userID string) (string, error)

func (f KeyResolverFunc) ProviderKey(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// StaticKey resolves every user to the same key; used by the admin CLI and
// single-tenant deployments.
func StaticKey(key string) KeyResolver {
	return KeyResolverFunc(func(context.Context, string) (string, error) {
		if key == "" {
			return "", ErrNoProviderKey
		}
		return key, nil
	})
}
