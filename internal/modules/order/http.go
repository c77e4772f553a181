package order

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
)

// Identity supplies the orderer for new orders.
type Identity interface {
	CustomerID() string
}

type httpRepo struct {
	client   *httpx.Client
	identity Identity
}

// NewHTTPRepository returns a Repository backed by the storefront API. client must carry
// the bearer credential.
func NewHTTPRepository(client *httpx.Client, identity Identity) Repository {
	return &httpRepo{client: client, identity: identity}
}

func (r *httpRepo) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if r.identity != nil && req.CustomerID == "" {
		req.CustomerID = r.identity.CustomerID()
	}

	o := &Order{}
	if err := r.client.Do(ctx, http.MethodPost, "/api/v1/orders", req, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

func (r *httpRepo) GetOrder(ctx context.Context, id string) (*Order, error) {
	if id == "" {
		return nil, errs.New(errs.ErrValidation, "order id is required")
	}
	o := &Order{}
	if err := r.client.Do(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(id), nil, o); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}
