package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
)

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const selectProductSQL = `SELECT id,sku,name,description,category,price,currency,is_active,created_at,updated_at
	FROM products`

func scanProduct(scan func(...interface{}) error) (*Product, error) {
	p := &Product{}
	var description sql.NullString
	err := scan(&p.ID, &p.SKU, &p.Name, &description, &p.Category, &p.Price,
		&p.Currency, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	return p, nil
}

func (r *postgresRepo) List(ctx context.Context, category string, activeOnly bool) ([]*Product, error) {
	query := selectProductSQL + ` WHERE 1=1`
	args := []interface{}{}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(` AND category=$%d`, len(args))
	}
	if activeOnly {
		query += ` AND is_active=true`
	}
	query += ` ORDER BY sku`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *postgresRepo) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	row := r.db.QueryRowContext(ctx, selectProductSQL+` WHERE sku=$1`, NormaliseSKU(sku))
	p, err := scanProduct(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.ErrNotFound, "product %s not found", sku)
	}
	return p, err
}
