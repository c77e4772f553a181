package user

import "context"

// Service defines the interface for user-related business logic.
type Service interface {
	RegisterUser(ctx context.Context, email, password, firstName, lastName, phone string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// Authenticate checks a password and fails with errs.ErrAuth on any mismatch,
	// including an unknown email.
	Authenticate(ctx context.Context, email, password string) (*User, error)
}
