package domain

import "github.com/shopspring/decimal"

// InvoiceItem is one product line in a cart or an archived invoice.
type InvoiceItem struct {
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity  int64           `db:"quantity" json:"quantity"`
}

// CreditLine is a manual price adjustment against an invoice.
// UnitAmount is always stored negative; a positive amount supplied by the
// caller is normalized at creation.
type CreditLine struct {
	ID          string          `db:"credit_id" json:"id"`
	Description string          `db:"description" json:"description"`
	UnitAmount  decimal.Decimal `db:"unit_amount" json:"unit_amount"`
	Quantity    int64           `db:"quantity" json:"quantity"`
}

// InvoiceTotals are derived from items and credits, never stored on a cart.
type InvoiceTotals struct {
	ItemsSubtotal decimal.Decimal `db:"items_subtotal" json:"items_subtotal"`
	CreditsTotal  decimal.Decimal `db:"credits_total" json:"credits_total"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
	DeliveryFee   decimal.Decimal `db:"delivery_fee" json:"delivery_fee"`
	Total         decimal.Decimal `db:"total" json:"total"`
}

// InvoiceRecord is the immutable snapshot archived once a cart commits.
type InvoiceRecord struct {
	ID             int64  `db:"id" json:"id"`
	UserID         int64  `db:"user_id" json:"user_id"`
	VendorID       int64  `db:"vendor_id" json:"vendor_id"`
	VendorName     string `db:"vendor_name" json:"vendor_name"`
	VendorCategory string `db:"vendor_category" json:"vendor_category"`
	InvoiceTotals
	CreatedAt string       `db:"created_at" json:"created_at"`
	Items     []InvoiceItem `json:"items"`
	Credits   []CreditLine  `json:"credits"`
}
