// Package ledger owns the authoritative per-product stock quantities and
// the all-or-nothing decrement executed when an invoice is finalized.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// ErrProductNotFound is returned by Set when the product has no stock row.
var ErrProductNotFound = errors.New("product not found")

// ErrNegativeQuantity is returned by Set for negative input.
var ErrNegativeQuantity = errors.New("quantity must not be negative")

// ItemSale is one line of a finalized order: sell Quantity units of ProductID.
type ItemSale struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity_sold"`
}

// InsufficientStockError reports the products whose conditional decrement
// failed during a commit. The commit was rolled back; no quantity changed.
type InsufficientStockError struct {
	ProductIDs []int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for products %v", e.ProductIDs)
}

// Ledger is the single source of truth for stock quantities.
type Ledger struct {
	db *sqlx.DB
}

// New wraps the ledger database handle.
func New(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// Get returns the current quantity for a product, or 0 when the product is
// unknown. It never reports not-found as an error.
func (l *Ledger) Get(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := l.db.GetContext(ctx, &qty, `SELECT quantity FROM stock WHERE product_id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// Adjust applies a manual restock or removal. The result is clamped at
// zero rather than rejected; over-subtraction is deliberate silent policy
// for manual adjustment, unlike CommitSale which must reject.
func (l *Ledger) Adjust(ctx context.Context, productID int64, delta int64) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE stock SET quantity = MAX(0, quantity + ?), updated_at = CURRENT_TIMESTAMP WHERE product_id = ?`,
		delta, productID)
	return err
}

// Set is the administrative override. Negative quantities are rejected.
func (l *Ledger) Set(ctx context.Context, productID int64, quantity int64) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE stock SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE product_id = ?`,
		quantity, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Create inserts the stock row for a newly created product.
func (l *Ledger) Create(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int64) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO stock (product_id, quantity) VALUES (?, ?)`, productID, quantity)
	return err
}

// Snapshot reads the full ledger for cache refreshes.
func (l *Ledger) Snapshot(ctx context.Context) (map[int64]int64, error) {
	rows, err := l.db.QueryxContext(ctx, `SELECT product_id, quantity FROM stock`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		snapshot[productID] = qty
	}
	return snapshot, rows.Err()
}

// CommitSale decrements stock for every item or for none. Each decrement is
// conditional at the storage layer: the row is only written when its
// quantity still covers the sale, so two concurrent commits for the same
// product cannot both succeed past the available stock. Any failed
// precondition rolls the whole transaction back and is reported as an
// InsufficientStockError carrying the offending product ids.
func (l *Ledger) CommitSale(ctx context.Context, items []ItemSale) error {
	if len(items) == 0 {
		return errors.New("commit requires at least one item")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("quantity for product %d must be positive", item.ProductID)
		}
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rejected []int64
	for _, item := range items {
		res, err := tx.ExecContext(ctx,
			`UPDATE stock SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
                         WHERE product_id = ? AND quantity >= ?`,
			item.Quantity, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Stock was consumed since the last reconciliation, or the
			// product does not exist. Keep checking the remaining items so
			// the caller learns the full set of conflicts at once.
			rejected = append(rejected, item.ProductID)
		}
	}

	if len(rejected) > 0 {
		sort.Slice(rejected, func(i, j int) bool { return rejected[i] < rejected[j] })
		return &InsufficientStockError{ProductIDs: rejected}
	}

	return tx.Commit()
}
