// Package cart implements the invoice aggregate: the in-progress order a
// session builds against a vendor, validated against that session's stock
// cache. One cart belongs to exactly one session and is never shared.
package cart

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/elvisinthecloud/inventory-management-system-sub000/domain"
)

// StockReader is the cache view cart operations validate against.
type StockReader interface {
	Read(productID int64) int64
}

// Validation failures for credit lines and vendor changes. These are real
// errors; stock-related outcomes are Changes, not errors.
var (
	ErrEmptyDescription    = errors.New("credit description is required")
	ErrNonPositiveAmount   = errors.New("credit amount must be greater than zero")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrVendorChangeConfirm = errors.New("changing vendor clears the cart and requires confirmation")
)

// ChangeStatus classifies what a cart mutation did.
type ChangeStatus string

const (
	StatusAdded        ChangeStatus = "added"
	StatusIncremented  ChangeStatus = "incremented"
	StatusUpdated      ChangeStatus = "updated"
	StatusClamped      ChangeStatus = "clamped"
	StatusRemoved      ChangeStatus = "removed"
	StatusOutOfStock   ChangeStatus = "out_of_stock"
	StatusLimitReached ChangeStatus = "limit_reached"
	StatusUnavailable  ChangeStatus = "unavailable"
	StatusNotInCart    ChangeStatus = "not_in_cart"
)

// Change describes the outcome of a cart mutation. Warning statuses such
// as out_of_stock or limit_reached are user-visible corrections, not
// failures: the cart is left in a valid state either way.
type Change struct {
	Status    ChangeStatus `json:"status"`
	ProductID int64        `json:"product_id"`
	Quantity  int64        `json:"quantity"`
	Message   string       `json:"message,omitempty"`
}

// Cart is the mutable invoice under construction. The session hands the
// same cart to every request goroutine of its user, so all access goes
// through the mutex.
type Cart struct {
	mu      sync.RWMutex
	vendor  *domain.Vendor
	items   []domain.InvoiceItem
	credits []domain.CreditLine
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Vendor returns the current vendor selection, nil when unset.
func (c *Cart) Vendor() *domain.Vendor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vendorCopy()
}

func (c *Cart) vendorCopy() *domain.Vendor {
	if c.vendor == nil {
		return nil
	}
	v := *c.vendor
	return &v
}

// Items returns a copy of the ordered line items.
func (c *Cart) Items() []domain.InvoiceItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.InvoiceItem, len(c.items))
	copy(out, c.items)
	return out
}

// Credits returns a copy of the ordered credit lines.
func (c *Cart) Credits() []domain.CreditLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CreditLine, len(c.credits))
	copy(out, c.credits)
	return out
}

// Empty reports whether the cart holds no line items.
func (c *Cart) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items) == 0
}

// AddItem inserts a line for the product, or bumps an existing line by one.
// Known-out-of-stock products are refused with a warning; an existing line
// will not grow past the cached stock level.
func (c *Cart) AddItem(stock StockReader, p domain.Product) Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	available := stock.Read(p.ID)
	if available == 0 {
		return Change{Status: StatusOutOfStock, ProductID: p.ID,
			Message: p.Name + " is out of stock"}
	}

	for i := range c.items {
		if c.items[i].ProductID != p.ID {
			continue
		}
		if c.items[i].Quantity >= available {
			return Change{Status: StatusLimitReached, ProductID: p.ID,
				Quantity: c.items[i].Quantity,
				Message:  "stock limit reached for " + p.Name}
		}
		c.items[i].Quantity++
		return Change{Status: StatusIncremented, ProductID: p.ID, Quantity: c.items[i].Quantity}
	}

	c.items = append(c.items, domain.InvoiceItem{
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		UnitPrice: p.UnitPrice,
		Quantity:  1,
	})
	return Change{Status: StatusAdded, ProductID: p.ID, Quantity: 1}
}

// UpdateQuantity sets a line's quantity. A quantity below 1 removes the
// line. A product the cache reports as gone is removed regardless of the
// requested quantity; otherwise the request is clamped to cached stock.
func (c *Cart) UpdateQuantity(stock StockReader, productID, quantity int64) Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i := range c.items {
		if c.items[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Change{Status: StatusNotInCart, ProductID: productID}
	}

	if quantity < 1 {
		c.items = append(c.items[:idx], c.items[idx+1:]...)
		return Change{Status: StatusRemoved, ProductID: productID}
	}

	available := stock.Read(productID)
	if available == 0 {
		name := c.items[idx].Name
		c.items = append(c.items[:idx], c.items[idx+1:]...)
		return Change{Status: StatusUnavailable, ProductID: productID,
			Message: name + " is no longer available"}
	}

	if quantity > available {
		c.items[idx].Quantity = available
		return Change{Status: StatusClamped, ProductID: productID, Quantity: available,
			Message: "quantity reduced to available stock"}
	}

	c.items[idx].Quantity = quantity
	return Change{Status: StatusUpdated, ProductID: productID, Quantity: quantity}
}

// RemoveItem drops a line unconditionally. Removing an absent line is not
// an error.
func (c *Cart) RemoveItem(productID int64) Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].ProductID == productID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return Change{Status: StatusRemoved, ProductID: productID}
		}
	}
	return Change{Status: StatusRemoved, ProductID: productID}
}

// AddCredit appends a credit line. The caller supplies a positive amount;
// it is stored negated so every credit reduces the subtotal.
func (c *Cart) AddCredit(description string, amount decimal.Decimal, quantity int64) (domain.CreditLine, error) {
	if strings.TrimSpace(description) == "" {
		return domain.CreditLine{}, ErrEmptyDescription
	}
	if !amount.IsPositive() {
		return domain.CreditLine{}, ErrNonPositiveAmount
	}
	if quantity < 1 {
		return domain.CreditLine{}, ErrInvalidQuantity
	}
	credit := domain.CreditLine{
		ID:          uuid.NewString(),
		Description: strings.TrimSpace(description),
		UnitAmount:  amount.Neg(),
		Quantity:    quantity,
	}
	c.mu.Lock()
	c.credits = append(c.credits, credit)
	c.mu.Unlock()
	return credit, nil
}

// RemoveCredit drops a credit line by id.
func (c *Cart) RemoveCredit(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.credits {
		if c.credits[i].ID == id {
			c.credits = append(c.credits[:i], c.credits[i+1:]...)
			return true
		}
	}
	return false
}

// SetVendor selects the vendor the invoice is built against. Switching to
// a different vendor while items exist is destructive: it requires
// confirmed=true and then clears items and credits.
func (c *Cart) SetVendor(v domain.Vendor, confirmed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vendor != nil && c.vendor.ID != v.ID && len(c.items) > 0 {
		if !confirmed {
			return ErrVendorChangeConfirm
		}
		c.items = nil
		c.credits = nil
	}
	c.vendor = &v
	return nil
}

// Clear resets the cart to empty items, empty credits, no vendor.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vendor = nil
	c.items = nil
	c.credits = nil
}

// Totals derives the monetary summary from the current lines.
func (c *Cart) Totals(taxRate, deliveryFee decimal.Decimal) domain.InvoiceTotals {
	c.mu.RLock()
	defer c.mu.RUnlock()

	itemsSubtotal := decimal.Zero
	for _, item := range c.items {
		itemsSubtotal = itemsSubtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	creditsTotal := decimal.Zero
	for _, credit := range c.credits {
		creditsTotal = creditsTotal.Add(credit.UnitAmount.Mul(decimal.NewFromInt(credit.Quantity)))
	}
	subtotal := itemsSubtotal.Add(creditsTotal)
	tax := subtotal.Mul(taxRate).Round(2)
	return domain.InvoiceTotals{
		ItemsSubtotal: itemsSubtotal,
		CreditsTotal:  creditsTotal,
		Subtotal:      subtotal,
		Tax:           tax,
		DeliveryFee:   deliveryFee,
		Total:         subtotal.Add(tax).Add(deliveryFee),
	}
}

// Snapshot is the persistable form of a cart.
type Snapshot struct {
	Vendor  *domain.Vendor       `json:"vendor,omitempty"`
	Items   []domain.InvoiceItem `json:"items"`
	Credits []domain.CreditLine  `json:"credits"`
}

// Snapshot captures the cart for the session journal as one consistent view.
func (c *Cart) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		Vendor:  c.vendorCopy(),
		Items:   make([]domain.InvoiceItem, len(c.items)),
		Credits: make([]domain.CreditLine, len(c.credits)),
	}
	copy(snap.Items, c.items)
	copy(snap.Credits, c.credits)
	return snap
}

// FromSnapshot rebuilds a cart from a persisted snapshot.
func FromSnapshot(s Snapshot) *Cart {
	c := New()
	c.vendor = s.Vendor
	c.items = append(c.items, s.Items...)
	c.credits = append(c.credits, s.Credits...)
	return c
}
