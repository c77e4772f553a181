package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
)

type httpRepo struct{ client *httpx.Client }

// NewHTTPRepository returns a Repository that reads the catalogue from the storefront API.
func NewHTTPRepository(client *httpx.Client) Repository { return &httpRepo{client: client} }

func (r *httpRepo) List(ctx context.Context, category string, activeOnly bool) ([]*Product, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if !activeOnly {
		q.Set("active", "false")
	}
	path := "/api/v1/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var products []*Product
	if err := r.client.Do(ctx, http.MethodGet, path, nil, &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *httpRepo) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	p := &Product{}
	if err := r.client.Do(ctx, http.MethodGet, "/api/v1/products/"+url.PathEscape(NormaliseSKU(sku)), nil, p); err != nil {
		return nil, fmt.Errorf("get product %s: %w", sku, err)
	}
	return p, nil
}
