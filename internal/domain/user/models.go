package user

import (
	"context"
	"errors"
)

var ErrNotLoggedIn = errors.New("no user logged in")

// User is the identity handed over by the external identity provider.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Provider resolves the caller of the current request.
type Provider interface {
	// LoggedInUser returns ErrNotLoggedIn when the caller is anonymous.
	LoggedInUser(ctx context.Context) (*User, error)
}
