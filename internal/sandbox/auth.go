package sandbox

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
	"github.com/georgemunganga/printa-storefront/internal/modules/auth"
	"github.com/georgemunganga/printa-storefront/internal/modules/user"
)

// Tokens issues and verifies HS256 session tokens for registered customers.
type Tokens struct {
	users  user.Service
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

var _ auth.Service = (*Tokens)(nil)

// NewTokens creates the token service. clk may be nil.
func NewTokens(users user.Service, secret string, ttl time.Duration, clk clock.Clock) *Tokens {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{users: users, secret: []byte(secret), ttl: ttl, clock: clk}
}

// Login checks the credentials and returns a signed token whose subject is the
// customer id.
func (t *Tokens) Login(ctx context.Context, email, password string) (string, error) {
	u, err := t.users.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	return t.Issue(u.ID.String())
}

// Issue signs a token for subject.
func (t *Tokens) Issue(subject string) (string, error) {
	now := t.clock.Now()
	claims := &jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks the signature and expiry of token and returns its subject.
func (t *Tokens) Verify(token string) (string, error) {
	if token == "" {
		return "", errs.New(errs.ErrAuth, "missing bearer token")
	}
	claims := &jwt.StandardClaims{}
	parser := &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) { return t.secret, nil })
	if err != nil {
		return "", errs.Wrap(errs.ErrAuth, "invalid token", err)
	}
	if !claims.VerifyExpiresAt(t.clock.Now().Unix(), true) {
		return "", errs.New(errs.ErrAuth, "token expired")
	}
	if claims.Subject == "" {
		return "", errs.New(errs.ErrAuth, "token has no subject")
	}
	return claims.Subject, nil
}

type customerKey struct{}

// RequireCustomer rejects requests without a valid bearer token and stores the
// customer id in the request context.
func RequireCustomer(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httpx.RespondError(w, errs.New(errs.ErrAuth, "missing bearer token"))
				return
			}
			customerID, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), customerKey{}, customerID)))
		})
	}
}

// CustomerFrom returns the customer id stored by RequireCustomer.
func CustomerFrom(ctx context.Context) string {
	id, _ := ctx.Value(customerKey{}).(string)
	return id
}
