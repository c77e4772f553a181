package user

import (
	"context"
	"strings"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type service struct {
	repo Repository
	cost int
}

// NewService creates a new user service. cost is the bcrypt cost; 0 means bcrypt.DefaultCost.
func NewService(repo Repository, cost int) Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &service{repo: repo, cost: cost}
}

func (s *service) RegisterUser(ctx context.Context, email, password, firstName, lastName, phone string) (*User, error) {
	if !strings.Contains(email, "@") {
		return nil, errs.New(errs.ErrValidation, "a valid email is required")
	}
	if len(password) < 8 {
		return nil, errs.New(errs.ErrValidation, "password must be at least 8 characters")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.New(),
		Email:        normaliseEmail(email),
		PasswordHash: string(hashedPassword),
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        phone,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if errs.IsNotFound(err) {
		return nil, errs.New(errs.ErrAuth, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errs.New(errs.ErrAuth, "invalid credentials")
	}
	return user, nil
}
