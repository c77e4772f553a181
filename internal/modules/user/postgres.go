package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, user.ID, normaliseEmail(user.Email), user.PasswordHash,
		user.FirstName, user.LastName, user.Phone)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errs.Newf(errs.ErrValidation, "%s is already registered", user.Email)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const selectUserSQL = `
		SELECT id, email, password_hash, first_name, last_name, phone, created_at, updated_at
		FROM users
	`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var phone sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&phone,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	user.Phone = phone.String
	return user, nil
}

func (r *postgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUserSQL+`WHERE email = $1`, normaliseEmail(email)))
}

func (r *postgresRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "invalid user id", err)
	}
	return scanUser(r.db.QueryRowContext(ctx, selectUserSQL+`WHERE id = $1`, parsedID))
}
