package user

import (
	"context"
	"sync"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/google/uuid"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*User
	byEmail map[string]uuid.UUID
}

// NewMemoryRepository creates an in-process user repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: map[uuid.UUID]*User{}, byEmail: map[string]uuid.UUID{}}
}

func (r *memoryRepository) CreateUser(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := normaliseEmail(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return errs.Newf(errs.ErrValidation, "%s is already registered", user.Email)
	}
	cp := *user
	r.byID[user.ID] = &cp
	r.byEmail[email] = user.ID
	return nil
}

func (r *memoryRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[normaliseEmail(email)]
	if !ok {
		return nil, errs.New(errs.ErrNotFound, "user not found")
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *memoryRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "invalid user id", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[parsedID]
	if !ok {
		return nil, errs.New(errs.ErrNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}
