package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/modules/catalog"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Schema creates the sandbox tables. It is safe to run more than once.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	phone         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS products (
	id          UUID PRIMARY KEY,
	sku         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT,
	category    TEXT NOT NULL,
	price       NUMERIC(12,2) NOT NULL,
	currency    TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT true,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS orders (
	id               UUID PRIMARY KEY,
	customer_id      UUID NOT NULL,
	order_number     TEXT NOT NULL UNIQUE,
	status           TEXT NOT NULL,
	payment_method   TEXT NOT NULL,
	delivery_address TEXT NOT NULL,
	delivery_notes   TEXT,
	subtotal         NUMERIC(12,2) NOT NULL,
	tax              NUMERIC(12,2) NOT NULL,
	total            NUMERIC(12,2) NOT NULL,
	currency         TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
	order_id   UUID NOT NULL REFERENCES orders(id),
	position   INT NOT NULL,
	product_id TEXT NOT NULL,
	quantity   INT NOT NULL,
	PRIMARY KEY (order_id, position)
);
CREATE TABLE IF NOT EXISTS payment_transactions (
	id              UUID PRIMARY KEY,
	order_id        UUID NOT NULL REFERENCES orders(id),
	customer_id     UUID NOT NULL,
	provider        TEXT NOT NULL,
	provider_ref    TEXT,
	provider_status TEXT,
	status          TEXT NOT NULL,
	amount          NUMERIC(12,2) NOT NULL,
	currency        TEXT NOT NULL,
	phone_number    TEXT NOT NULL,
	idempotency_key TEXT UNIQUE,
	receipt_id      TEXT,
	last_error      TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS payment_transactions_provider_ref ON payment_transactions (provider, provider_ref);
`

// Migrate applies Schema and seeds the catalogue with products that are not there yet.
func Migrate(ctx context.Context, db *sql.DB, products []*catalog.Product) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate sandbox schema: %w", err)
	}
	for _, p := range products {
		_, err := db.ExecContext(ctx, `
			INSERT INTO products (id, sku, name, description, category, price, currency, is_active)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (sku) DO NOTHING`,
			p.ID, p.SKU, p.Name, nilIfEmpty(p.Description), p.Category, p.Price, p.Currency, p.IsActive)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.SKU, err)
		}
	}
	return nil
}

type postgresStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewPostgresStore returns a Store backed by PostgreSQL through lib/pq.
func NewPostgresStore(db *sql.DB, clk clock.Clock) Store {
	if clk == nil {
		clk = clock.New()
	}
	return &postgresStore{db: db, clock: clk}
}

// ── Orders ────────────────────────────────────────────────────────────────────

// CreateOrder inserts the order and all its items inside a single transaction.
func (r *postgresStore) CreateOrder(ctx context.Context, o *order.Order) error {
	now := r.clock.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
		  (id, customer_id, order_number, status, payment_method, delivery_address, delivery_notes,
		   subtotal, tax, total, currency, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, o.CustomerID, o.OrderNumber, o.Status, o.PaymentMethod,
		o.Delivery.Address, nilIfEmpty(o.Delivery.Notes),
		o.Subtotal, o.Tax, o.Total, o.Currency, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity)
			VALUES ($1,$2,$3,$4)`,
			o.ID, i, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *postgresStore) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o := &order.Order{}
	var notes sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id,customer_id,order_number,status,payment_method,delivery_address,delivery_notes,
		       subtotal,tax,total,currency,created_at,updated_at
		FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.CustomerID, &o.OrderNumber, &o.Status, &o.PaymentMethod,
		&o.Delivery.Address, &notes, &o.Subtotal, &o.Tax, &o.Total, &o.Currency,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ErrNotFound, "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Delivery.Notes = notes.String

	o.Items, err = r.listItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresStore) listItems(ctx context.Context, orderID uuid.UUID) ([]order.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity FROM order_items WHERE order_id=$1 ORDER BY position ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order_items: %w", err)
	}
	defer rows.Close()
	var items []order.LineItem
	for rows.Next() {
		var item order.LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *postgresStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status order.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status=$1, updated_at=$2 WHERE id=$3`,
		status, r.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return mustAffect(res, "order not found")
}

// ── Payments ──────────────────────────────────────────────────────────────────

const selectPaymentSQL = `SELECT id,order_id,customer_id,provider,provider_ref,provider_status,status,
	amount,currency,phone_number,idempotency_key,receipt_id,last_error,created_at,updated_at
	FROM payment_transactions`

func (r *postgresStore) CreatePayment(ctx context.Context, t *Transaction) error {
	now := r.clock.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions
		  (id, order_id, customer_id, provider, provider_ref, provider_status, status,
		   amount, currency, phone_number, idempotency_key, receipt_id, last_error,
		   created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.ID, t.OrderID, t.CustomerID, t.Provider,
		nilIfEmpty(t.ProviderRef), nilIfEmpty(t.ProviderStatus), t.Status,
		t.Amount, t.Currency, t.PhoneNumber, nilIfEmpty(t.IdempotencyKey),
		nilIfEmpty(t.ReceiptID), nilIfEmpty(t.LastError), t.CreatedAt, t.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errs.New(errs.ErrValidation, "duplicate payment request (idempotency key already used)")
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *postgresStore) GetPayment(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return r.scanPayment(r.db.QueryRowContext(ctx, selectPaymentSQL+" WHERE id=$1", id).Scan)
}

func (r *postgresStore) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*Transaction, error) {
	return r.scanPayment(r.db.QueryRowContext(ctx, selectPaymentSQL+" WHERE idempotency_key=$1", key).Scan)
}

func (r *postgresStore) GetPaymentByProviderRef(ctx context.Context, provider Provider, ref string) (*Transaction, error) {
	return r.scanPayment(r.db.QueryRowContext(ctx, selectPaymentSQL+" WHERE provider=$1 AND provider_ref=$2", provider, ref).Scan)
}

func (r *postgresStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectPaymentSQL+" WHERE order_id=$1 ORDER BY created_at DESC", orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []*Transaction
	for rows.Next() {
		t, err := r.scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *postgresStore) UpdatePayment(ctx context.Context, t *Transaction) error {
	t.UpdatedAt = r.clock.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET provider_ref=$1, provider_status=$2, status=$3, receipt_id=$4, last_error=$5, updated_at=$6
		WHERE id=$7`,
		nilIfEmpty(t.ProviderRef), nilIfEmpty(t.ProviderStatus), t.Status,
		nilIfEmpty(t.ReceiptID), nilIfEmpty(t.LastError), t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return mustAffect(res, "payment transaction not found")
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *postgresStore) scanPayment(scan func(...interface{}) error) (*Transaction, error) {
	t := &Transaction{}
	var providerRef, providerStatus, idemKey, receiptID, lastError sql.NullString
	err := scan(&t.ID, &t.OrderID, &t.CustomerID, &t.Provider, &providerRef, &providerStatus,
		&t.Status, &t.Amount, &t.Currency, &t.PhoneNumber, &idemKey, &receiptID, &lastError,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ErrNotFound, "payment transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	t.ProviderRef = providerRef.String
	t.ProviderStatus = providerStatus.String
	t.IdempotencyKey = idemKey.String
	t.ReceiptID = receiptID.String
	t.LastError = lastError.String
	return t, nil
}

func mustAffect(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.ErrNotFound, notFound)
	}
	return nil
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
