package cart

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/shopspring/decimal"
)

// Line is one product in the cart with the price shown to the customer. The price is
// indicative; the backend computes the order total.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an in-memory cart safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	lines map[string]*Line
	order []string
}

func New() *Cart {
	return &Cart{lines: make(map[string]*Line)}
}

// Add puts qty units of a product in the cart, merging with an existing line.
func (c *Cart) Add(productID, name string, unitPrice decimal.Decimal, qty int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errs.New(errs.ErrValidation, "product id is required")
	}
	if qty <= 0 {
		return errs.New(errs.ErrValidation, fmt.Sprintf("quantity must be > 0 for product %s", productID))
	}
	if unitPrice.IsNegative() {
		return errs.New(errs.ErrValidation, fmt.Sprintf("price must not be negative for product %s", productID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.lines[productID]; ok {
		l.Quantity += qty
		l.UnitPrice = unitPrice
		return nil
	}
	c.lines[productID] = &Line{ProductID: productID, Name: name, UnitPrice: unitPrice, Quantity: qty}
	c.order = append(c.order, productID)
	return nil
}

// Remove drops a product. Removing an absent product is a no-op.
func (c *Cart) Remove(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Lines returns the order line items in insertion order.
func (c *Cart) Lines() []order.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]order.LineItem, 0, len(c.order))
	for _, id := range c.order {
		l := c.lines[id]
		items = append(items, order.LineItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}

// Contents returns a copy of the cart lines sorted by product id.
func (c *Cart) Contents() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Total is the indicative sum of the lines.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Len returns the number of distinct products.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Clear empties the cart. Clearing an empty cart does nothing.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return
	}
	c.lines = make(map[string]*Line)
	c.order = nil
}
