package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
)

// TokenSource returns the bearer credential for a request. Returning an error aborts
// the request before anything is sent.
type TokenSource func() (string, error)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Client is a small JSON client for the storefront backend API.
type Client struct {
	baseURL string
	token   TokenSource
	client  *http.Client
}

// NewClient creates a JSON client. token may be nil for unauthenticated endpoints.
func NewClient(baseURL string, timeout time.Duration, token TokenSource) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token TokenSource) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Do sends in as the JSON body (when non-nil) and decodes a 2xx body into out (when
// non-nil). Failures come back as *errs.Error whose kind follows the response status.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errs.Wrap(errs.ErrValidation, "encode request", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errs.Wrap(errs.ErrTransport, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Wrap(errs.ErrTransport, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrTransport, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(&StatusError{Code: resp.StatusCode, Message: errorMessage(raw, resp.Status)})
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Wrap(errs.ErrTransport, "decode response", err)
	}
	return nil
}

// StatusCode returns the HTTP status behind err, or 0 when err did not come from a response.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func classify(se *StatusError) error {
	switch {
	case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
		return errs.Wrap(errs.ErrAuth, se.Message, se)
	case se.Code == http.StatusNotFound:
		return errs.Wrap(errs.ErrNotFound, se.Message, se)
	case se.Code == http.StatusPaymentRequired:
		return errs.Wrap(errs.ErrGateway, se.Message, se)
	case se.Code >= 500:
		return errs.Wrap(errs.ErrTransport, se.Message, se)
	default:
		return errs.Wrap(errs.ErrValidation, se.Message, se)
	}
}

// errorMessage reads the {"error": "..."} body every backend handler responds with.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 200 {
		return s
	}
	return fallback
}
