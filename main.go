package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/api"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/config"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/database"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/history"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/ledger"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/migrations"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/seed"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	ledgerDB := database.Connect(cfg.LedgerDSN)
	defer ledgerDB.Close()
	sessionDB := database.Connect(cfg.SessionStoreDSN)
	defer sessionDB.Close()

	migrations.RunLedger(ledgerDB)
	migrations.RunSessionStore(sessionDB)
	seed.LoadCatalog(ledgerDB, "assets/catalog.csv")
	seed.LoadVendors(ledgerDB, "assets/vendors.csv")

	stockLedger := ledger.New(ledgerDB)
	sessions := session.NewManager(sessionDB, stockLedger, cfg.RefreshInterval)
	invoices := history.New(sessionDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.Run(ctx, cfg.RefreshInterval)

	handler := api.New(ledgerDB, stockLedger, sessions, invoices, cfg.Secret, cfg.TaxRate, cfg.DeliveryFee)

	log.Printf("invoice engine starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
