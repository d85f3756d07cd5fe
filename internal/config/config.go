package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds application configuration values.
type Config struct {
	Secret          string
	HTTPPort        string
	LedgerDSN       string
	SessionStoreDSN string
	TaxRate         decimal.Decimal
	DeliveryFee     decimal.Decimal
	RefreshInterval time.Duration
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	ledgerDSN := os.Getenv("LEDGER_DSN")
	if ledgerDSN == "" {
		ledgerDSN = "ledger.db"
	}

	sessionDSN := os.Getenv("SESSION_STORE_DSN")
	if sessionDSN == "" {
		sessionDSN = "session.db"
	}

	return Config{
		Secret:          secret,
		HTTPPort:        port,
		LedgerDSN:       ledgerDSN,
		SessionStoreDSN: sessionDSN,
		TaxRate:         decimalEnv("TAX_RATE", "0.06"),
		DeliveryFee:     decimalEnv("DELIVERY_FEE", "3.99"),
		RefreshInterval: durationEnv("STOCK_REFRESH_INTERVAL", 30*time.Second),
	}
}

func decimalEnv(key, fallback string) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		raw = fallback
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		log.Printf("invalid %s value %q, defaulting to %s", key, raw, fallback)
		value = decimal.RequireFromString(fallback)
	}
	return value
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		log.Printf("invalid %s value %q, defaulting to %s", key, raw, fallback)
		return fallback
	}
	return value
}
