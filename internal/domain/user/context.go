package user

import "context"

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the user stored by WithUser.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	if !ok || u.ID == "" {
		return User{}, false
	}
	return u, true
}

// ContextProvider reads the user that the auth middleware put on the
// request context.
type ContextProvider struct{}

var _ Provider = ContextProvider{}

func (ContextProvider) LoggedInUser(ctx context.Context) (*User, error) {
	u, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNotLoggedIn
	}
	return &u, nil
}
