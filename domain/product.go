package domain

import "github.com/shopspring/decimal"

// Product is a catalog entry. Stock is a read copy of the ledger quantity
// taken at query time; the ledger owns the authoritative value.
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Stock     int64           `db:"stock" json:"stock"`
	CreatedAt string          `db:"created_at" json:"created_at,omitempty"`
}

// Vendor is the party an invoice is built against.
type Vendor struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category"`
}
