package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestService_RegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository(), bcrypt.MinCost)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, " Demo@Printa.test ", "printa123", "Demo", "Customer", "0971234567")
	require.NoError(t, err)
	assert.Equal(t, "demo@printa.test", u.Email)
	assert.NotEqual(t, "printa123", u.PasswordHash)

	_, err = svc.RegisterUser(ctx, "demo@printa.test", "another-password", "", "", "")
	require.ErrorIs(t, err, errs.ErrValidation)

	got, err := svc.Authenticate(ctx, "DEMO@printa.test", "printa123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "demo@printa.test", "wrong")
	require.ErrorIs(t, err, errs.ErrAuth)
	_, err = svc.Authenticate(ctx, "nobody@printa.test", "printa123")
	require.ErrorIs(t, err, errs.ErrAuth)

	byID, err := svc.GetUser(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "0971234567", byID.Phone)
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), bcrypt.MinCost)

	var tests = []struct {
		name     string
		email    string
		password string
	}{
		{name: "no at sign", email: "demo", password: "printa123"},
		{name: "short password", email: "demo@printa.test", password: "short"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterUser(context.Background(), tt.email, tt.password, "", "", "")
			require.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(NewService(NewMemoryRepository(), bcrypt.MinCost)).RegisterRoutes(r)

	body, _ := json.Marshal(map[string]string{"email": "rider@printa.test", "password": "printa123", "first_name": "Ru"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/users/register", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	var created User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/users/register", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPostgresRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	u := &User{ID: uuid.New(), Email: "Demo@printa.test", PasswordHash: "hash", FirstName: "Demo"}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, "demo@printa.test", "hash", "Demo", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.CreateUser(context.Background(), u))

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})
	require.ErrorIs(t, repo.CreateUser(context.Background(), u), errs.ErrValidation)

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("demo@printa.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "first_name", "last_name", "phone", "created_at", "updated_at"}).
			AddRow(u.ID.String(), "demo@printa.test", "hash", "Demo", "", nil, now, now))
	got, err := repo.GetUserByEmail(context.Background(), "demo@printa.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.GetUserByID(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = repo.GetUserByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}
