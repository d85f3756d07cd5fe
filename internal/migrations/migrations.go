package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// RunLedger creates the schema of the authoritative ledger database.
func RunLedger(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS vendors (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            category TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS products (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            category TEXT NOT NULL,
            unit_price TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS stock (
            product_id INTEGER PRIMARY KEY,
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(product_id) REFERENCES products(id)
        );`,
	}
	run(db, schema)
}

// RunSessionStore creates the schema of the session journal: cart and
// cache snapshots plus the append-only invoice history. This store is a
// cache/journal, never the authoritative ledger.
func RunSessionStore(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS cart_snapshots (
            user_id INTEGER PRIMARY KEY,
            payload TEXT NOT NULL,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS stock_snapshots (
            user_id INTEGER PRIMARY KEY,
            payload TEXT NOT NULL,
            refreshed_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS invoices (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            vendor_id INTEGER NOT NULL,
            vendor_name TEXT NOT NULL,
            vendor_category TEXT NOT NULL,
            items_subtotal TEXT NOT NULL,
            credits_total TEXT NOT NULL,
            subtotal TEXT NOT NULL,
            tax TEXT NOT NULL,
            delivery_fee TEXT NOT NULL,
            total TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            invoice_id INTEGER NOT NULL,
            product_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            category TEXT NOT NULL,
            unit_price TEXT NOT NULL,
            quantity INTEGER NOT NULL,
            FOREIGN KEY(invoice_id) REFERENCES invoices(id)
        );`,
		`CREATE TABLE IF NOT EXISTS invoice_credits (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            invoice_id INTEGER NOT NULL,
            credit_id TEXT NOT NULL,
            description TEXT NOT NULL,
            unit_amount TEXT NOT NULL,
            quantity INTEGER NOT NULL,
            FOREIGN KEY(invoice_id) REFERENCES invoices(id)
        );`,
	}
	run(db, schema)
}

func run(db *sqlx.DB, schema []string) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}
