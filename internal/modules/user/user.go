package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a storefront customer. Orders and payments are placed on behalf of its ID.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Repository persists customers.
type Repository interface {
	// CreateUser fails with errs.ErrValidation when the email is already registered.
	CreateUser(ctx context.Context, user *User) error
	// GetUserByEmail and GetUserByID fail with errs.ErrNotFound for unknown customers.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
