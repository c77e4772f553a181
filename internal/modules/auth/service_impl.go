package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
)

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token string `json:"token"`
}

type service struct {
	client  *httpx.Client
	session *Session
}

// NewService creates an auth service that signs in against the backend and keeps the
// token in session. client must not carry a token source.
func NewService(client *httpx.Client, session *Session) Service {
	return &service{client: client, session: session}
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", errs.New(errs.ErrValidation, "email and password are required")
	}

	resp := &LoginResponse{}
	if err := s.client.Do(ctx, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: email, Password: password}, resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if err := s.session.Set(resp.Token); err != nil {
		return "", err
	}
	return resp.Token, nil
}
