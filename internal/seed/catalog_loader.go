package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LoadCatalog ingests the product CSV (name, category, unit_price, stock)
// into the ledger database, ignoring duplicates. Every inserted product
// gets its stock row so the ledger covers the whole catalog.
func LoadCatalog(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load product catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read catalog header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start catalog transaction: %v", err)
		return
	}

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read catalog row: %v", err)
			continue
		}
		if len(record) < 4 {
			continue
		}
		name := strings.TrimSpace(record[0])
		category := strings.TrimSpace(record[1])
		price, priceErr := decimal.NewFromString(strings.TrimSpace(record[2]))
		stock, stockErr := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)

		if name == "" || priceErr != nil || price.IsNegative() || stockErr != nil || stock < 0 {
			log.Printf("skipping invalid catalog row %v", record)
			continue
		}

		res, err := tx.Exec(`INSERT OR IGNORE INTO products (name, category, unit_price) VALUES (?, ?, ?)`,
			name, category, price)
		if err != nil {
			log.Printf("unable to insert product %s: %v", name, err)
			continue
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			continue
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO stock (product_id, quantity)
                         SELECT id, ? FROM products WHERE name = ?`, stock, name); err != nil {
			log.Printf("unable to insert stock for %s: %v", name, err)
			continue
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit catalog seed: %v", err)
	} else {
		log.Printf("seeded product catalog with %d rows", rows)
	}
}

// LoadVendors ingests the vendor CSV (name, category), ignoring duplicates.
func LoadVendors(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load vendor directory %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read vendor header: %v", err)
		return
	}

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read vendor row: %v", err)
			continue
		}
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		category := strings.TrimSpace(record[1])
		if name == "" {
			continue
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO vendors (name, category) VALUES (?, ?)`, name, category); err != nil {
			log.Printf("unable to insert vendor %s: %v", name, err)
			continue
		}
		rows++
	}
	log.Printf("seeded vendor directory with %d rows", rows)
}
