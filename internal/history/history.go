// Package history is the append-only journal of finalized invoices. It
// lives in the session store: records are written once, after a successful
// stock commit, and are never updated or deleted.
package history

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/elvisinthecloud/inventory-management-system-sub000/domain"
)

// ErrNotFound is returned when a record does not exist for the user.
var ErrNotFound = errors.New("invoice not found")

// Store appends and reads invoice records.
type Store struct {
	db *sqlx.DB
}

// New wraps the session store handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Append archives a finalized invoice with its lines and credits in one
// transaction and returns the assigned id.
func (s *Store) Append(ctx context.Context, record domain.InvoiceRecord) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO invoices (user_id, vendor_id, vendor_name, vendor_category,
                        items_subtotal, credits_total, subtotal, tax, delivery_fee, total)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		record.UserID, record.VendorID, record.VendorName, record.VendorCategory,
		record.ItemsSubtotal, record.CreditsTotal, record.Subtotal,
		record.Tax, record.DeliveryFee, record.Total).Scan(&id)
	if err != nil {
		return 0, err
	}

	for _, item := range record.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO invoice_items (invoice_id, product_id, name, category, unit_price, quantity)
                         VALUES (?, ?, ?, ?, ?, ?)`,
			id, item.ProductID, item.Name, item.Category, item.UnitPrice, item.Quantity); err != nil {
			return 0, err
		}
	}
	for _, credit := range record.Credits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO invoice_credits (invoice_id, credit_id, description, unit_amount, quantity)
                         VALUES (?, ?, ?, ?, ?)`,
			id, credit.ID, credit.Description, credit.UnitAmount, credit.Quantity); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// List returns a user's archived invoices, newest first, with lines loaded.
func (s *Store) List(ctx context.Context, userID int64) ([]domain.InvoiceRecord, error) {
	records := []domain.InvoiceRecord{}
	err := s.db.SelectContext(ctx, &records,
		`SELECT id, user_id, vendor_id, vendor_name, vendor_category,
                        items_subtotal, credits_total, subtotal, tax, delivery_fee, total, created_at
                 FROM invoices WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if err := s.loadLines(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Get returns one archived invoice scoped to its owner.
func (s *Store) Get(ctx context.Context, userID, invoiceID int64) (domain.InvoiceRecord, error) {
	var record domain.InvoiceRecord
	err := s.db.GetContext(ctx, &record,
		`SELECT id, user_id, vendor_id, vendor_name, vendor_category,
                        items_subtotal, credits_total, subtotal, tax, delivery_fee, total, created_at
                 FROM invoices WHERE id = ? AND user_id = ?`, invoiceID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InvoiceRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.InvoiceRecord{}, err
	}
	if err := s.loadLines(ctx, &record); err != nil {
		return domain.InvoiceRecord{}, err
	}
	return record, nil
}

func (s *Store) loadLines(ctx context.Context, record *domain.InvoiceRecord) error {
	if err := s.db.SelectContext(ctx, &record.Items,
		`SELECT product_id, name, category, unit_price, quantity
                 FROM invoice_items WHERE invoice_id = ? ORDER BY id`, record.ID); err != nil {
		return err
	}
	return s.db.SelectContext(ctx, &record.Credits,
		`SELECT credit_id, description, unit_amount, quantity
                 FROM invoice_credits WHERE invoice_id = ? ORDER BY id`, record.ID)
}
