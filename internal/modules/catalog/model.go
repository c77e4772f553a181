package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a sellable print product. SKU is the id used in cart and order lines.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NormaliseSKU upper-cases and trims a SKU typed by a user.
func NormaliseSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// DefaultProducts is the catalogue the sandbox starts with.
func DefaultProducts() []*Product {
	p := func(sku, name, category, price string) *Product {
		return &Product{
			ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(sku)),
			SKU:      sku,
			Name:     name,
			Category: category,
			Price:    decimal.RequireFromString(price),
			Currency: "ZMW",
			IsActive: true,
		}
	}
	return []*Product{
		p("PRN-A4-BW", "A4 black & white print", "printing", "1.50"),
		p("PRN-A4-COL", "A4 colour print", "printing", "5.00"),
		p("BND-SPIRAL", "Spiral binding", "finishing", "25.00"),
		p("BNR-1M", "1m vinyl banner", "large-format", "150.00"),
	}
}
