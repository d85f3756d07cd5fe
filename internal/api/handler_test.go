package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/history"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/ledger"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/migrations"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/session"
)

type testServer struct {
	router   http.Handler
	ledgerDB *sqlx.DB
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ledgerDB, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	ledgerDB.SetMaxOpenConns(1)
	t.Cleanup(func() { ledgerDB.Close() })
	migrations.RunLedger(ledgerDB)

	sessionDB, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	sessionDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sessionDB.Close() })
	migrations.RunSessionStore(sessionDB)

	stockLedger := ledger.New(ledgerDB)
	sessions := session.NewManager(sessionDB, stockLedger, time.Minute)
	invoices := history.New(sessionDB)

	h := New(ledgerDB, stockLedger, sessions, invoices, "test_secret",
		decimal.RequireFromString("0.06"), decimal.RequireFromString("3.99"))

	ts := &testServer{router: h.Router(), ledgerDB: ledgerDB}

	res := ts.do(t, http.MethodPost, "/auth/register", map[string]any{
		"username": "ana",
		"email":    "ana@example.com",
		"password": "s3cret",
		"role":     "admin",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &auth))
	ts.token = auth.Token
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seedProduct(t *testing.T, id int64, name, category, price string, stock int64) {
	t.Helper()
	_, err := ts.ledgerDB.Exec(`INSERT INTO products (id, name, category, unit_price) VALUES (?, ?, ?, ?)`,
		id, name, category, price)
	require.NoError(t, err)
	_, err = ts.ledgerDB.Exec(`INSERT INTO stock (product_id, quantity) VALUES (?, ?)`, id, stock)
	require.NoError(t, err)
}

func (ts *testServer) seedVendor(t *testing.T, id int64, name, category string) {
	t.Helper()
	_, err := ts.ledgerDB.Exec(`INSERT INTO vendors (id, name, category) VALUES (?, ?, ?)`, id, name, category)
	require.NoError(t, err)
}

func (ts *testServer) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	var qty int64
	require.NoError(t, ts.ledgerDB.Get(&qty, `SELECT quantity FROM stock WHERE product_id = ?`, productID))
	return qty
}

func TestCommitStockValidatesBeforeLedgerAccess(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 10)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty list", map[string]any{"items": []any{}}},
		{"zero quantity", map[string]any{"items": []map[string]any{
			{"product_id": 1, "quantity_sold": 0},
		}}},
		{"negative quantity", map[string]any{"items": []map[string]any{
			{"product_id": 1, "quantity_sold": -3},
		}}},
		{"duplicate product", map[string]any{"items": []map[string]any{
			{"product_id": 1, "quantity_sold": 1},
			{"product_id": 1, "quantity_sold": 2},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ts.do(t, http.MethodPost, "/stock/commit", tc.body)
			assert.Equal(t, http.StatusBadRequest, res.Code)
			assert.Equal(t, int64(10), ts.stock(t, 1), "rejected request must not touch the ledger")
		})
	}
}

func TestCommitStockSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 3)

	res := ts.do(t, http.MethodPost, "/stock/commit", map[string]any{
		"items": []map[string]any{{"product_id": 1, "quantity_sold": 3}},
	})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, int64(0), ts.stock(t, 1))
}

func TestCommitStockConflictReportsRejectedIDs(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 1)
	ts.seedProduct(t, 2, "Yellow Onions", "Produce", "1.19", 10)

	res := ts.do(t, http.MethodPost, "/stock/commit", map[string]any{
		"items": []map[string]any{
			{"product_id": 1, "quantity_sold": 3},
			{"product_id": 2, "quantity_sold": 2},
		},
	})
	require.Equal(t, http.StatusConflict, res.Code)

	var body struct {
		Rejected []int64 `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, []int64{1}, body.Rejected)

	assert.Equal(t, int64(1), ts.stock(t, 1))
	assert.Equal(t, int64(10), ts.stock(t, 2), "no partial decrement")
}

func TestListProductsByCategory(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 10)
	ts.seedProduct(t, 2, "Whole Milk 1gal", "Dairy", "4.29", 5)

	res := ts.do(t, http.MethodGet, "/products?category=Dairy", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var products []struct {
		Name  string `json:"name"`
		Stock int64  `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Whole Milk 1gal", products[0].Name)
	assert.Equal(t, int64(5), products[0].Stock)
}

func TestCreateProductCreatesStockRow(t *testing.T) {
	ts := newTestServer(t)
	res := ts.do(t, http.MethodPost, "/products", map[string]any{
		"name":       "Lime Juice 1gal",
		"category":   "Beverages",
		"unit_price": "9.99",
		"stock":      16,
	})
	require.Equal(t, http.StatusCreated, res.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, int64(16), ts.stock(t, created.ID))
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 5)

	res := ts.do(t, http.MethodPost, "/products/1/stock/adjust", map[string]any{"delta": -20})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, int64(0), ts.stock(t, 1))
}

func TestSetStockRejectsNegative(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 5)

	res := ts.do(t, http.MethodPut, "/products/1/stock", map[string]any{"quantity": -1})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, int64(5), ts.stock(t, 1))
}

func TestAddItemWarnsWhenOutOfStock(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 0)

	res := ts.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": 1})
	require.Equal(t, http.StatusOK, res.Code, "out of stock is a warning, not a failure")

	var body struct {
		Change struct {
			Status string `json:"status"`
		} `json:"change"`
		Items []any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "out_of_stock", body.Change.Status)
	assert.Empty(t, body.Items)
}

func TestVendorSwitchRequiresConfirmation(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Roma Tomatoes", "Produce", "2.49", 10)
	ts.seedVendor(t, 1, "El Patron Taqueria", "Mexican")
	ts.seedVendor(t, 2, "Sunrise Diner", "American")

	res := ts.do(t, http.MethodPut, "/cart/vendor", map[string]any{
		"vendor": map[string]any{"id": 1, "name": "El Patron Taqueria", "category": "Mexican"},
	})
	require.Equal(t, http.StatusOK, res.Code)
	res = ts.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": 1})
	require.Equal(t, http.StatusOK, res.Code)

	res = ts.do(t, http.MethodPut, "/cart/vendor", map[string]any{
		"vendor": map[string]any{"id": 2, "name": "Sunrise Diner", "category": "American"},
	})
	require.Equal(t, http.StatusConflict, res.Code)
	var conflict struct {
		ConfirmRequired bool `json:"confirm_required"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &conflict))
	assert.True(t, conflict.ConfirmRequired)

	res = ts.do(t, http.MethodPut, "/cart/vendor", map[string]any{
		"vendor":  map[string]any{"id": 2, "name": "Sunrise Diner", "category": "American"},
		"confirm": true,
	})
	require.Equal(t, http.StatusOK, res.Code)
	var view struct {
		Vendor struct {
			ID int64 `json:"id"`
		} `json:"vendor"`
		Items []any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.Equal(t, int64(2), view.Vendor.ID)
	assert.Empty(t, view.Items, "confirmed switch clears the cart")
}

func TestCheckoutPreconditions(t *testing.T) {
	ts := newTestServer(t)
	ts.seedVendor(t, 1, "El Patron Taqueria", "Mexican")

	res := ts.do(t, http.MethodPost, "/cart/checkout", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code, "vendor required")

	res = ts.do(t, http.MethodPut, "/cart/vendor", map[string]any{
		"vendor": map[string]any{"id": 1, "name": "El Patron Taqueria", "category": "Mexican"},
	})
	require.Equal(t, http.StatusOK, res.Code)

	res = ts.do(t, http.MethodPost, "/cart/checkout", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code, "empty cart")
}

func TestCheckoutReconcilesThenCommits(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Chicken Breast 10lb", "Meat", "50", 3)
	ts.seedVendor(t, 1, "El Patron Taqueria", "Mexican")

	res := ts.do(t, http.MethodPut, "/cart/vendor", map[string]any{
		"vendor": map[string]any{"id": 1, "name": "El Patron Taqueria", "category": "Mexican"},
	})
	require.Equal(t, http.StatusOK, res.Code)
	for i := 0; i < 3; i++ {
		res = ts.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": 1})
		require.Equal(t, http.StatusOK, res.Code)
	}

	// Another buyer consumes stock between the session's last refresh and
	// this checkout.
	_, err := ts.ledgerDB.Exec(`UPDATE stock SET quantity = 1 WHERE product_id = 1`)
	require.NoError(t, err)

	res = ts.do(t, http.MethodPost, "/cart/checkout", nil)
	require.Equal(t, http.StatusConflict, res.Code)
	var conflict struct {
		Report struct {
			Entries []struct {
				Outcome string `json:"outcome"`
				Before  int64  `json:"before"`
				After   int64  `json:"after"`
			} `json:"entries"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &conflict))
	require.Len(t, conflict.Report.Entries, 1)
	assert.Equal(t, "adjusted", conflict.Report.Entries[0].Outcome)
	assert.Equal(t, int64(3), conflict.Report.Entries[0].Before)
	assert.Equal(t, int64(1), conflict.Report.Entries[0].After)
	assert.Equal(t, int64(1), ts.stock(t, 1), "aborted checkout changes nothing")

	// Retrying after the report is the acknowledgment.
	res = ts.do(t, http.MethodPost, "/cart/checkout", nil)
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, int64(0), ts.stock(t, 1))

	var receipt struct {
		InvoiceID int64 `json:"invoice_id"`
		Totals    struct {
			Total decimal.Decimal `json:"total"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &receipt))
	require.NotZero(t, receipt.InvoiceID)
	// 50 * 1 = 50, tax 3, delivery 3.99.
	assert.True(t, receipt.Totals.Total.Equal(decimal.RequireFromString("56.99")),
		"got total %s", receipt.Totals.Total)

	res = ts.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var view struct {
		Items []any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.Empty(t, view.Items, "cart archived and cleared")

	res = ts.do(t, http.MethodGet, fmt.Sprintf("/invoices/%d", receipt.InvoiceID), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var record struct {
		VendorName string `json:"vendor_name"`
		Items      []struct {
			Quantity int64 `json:"quantity"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &record))
	assert.Equal(t, "El Patron Taqueria", record.VendorName)
	require.Len(t, record.Items, 1)
	assert.Equal(t, int64(1), record.Items[0].Quantity)
}

func TestCreditsFlowThroughCheckoutTotals(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProduct(t, 1, "Chicken Breast 10lb", "Meat", "50", 10)
	ts.seedVendor(t, 1, "El Patron Taqueria", "Mexican")

	res := ts.do(t, http.MethodPut, "/cart/vendor", map[string]any{
		"vendor": map[string]any{"id": 1, "name": "El Patron Taqueria", "category": "Mexican"},
	})
	require.Equal(t, http.StatusOK, res.Code)
	res = ts.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": 1})
	require.Equal(t, http.StatusOK, res.Code)
	res = ts.do(t, http.MethodPut, "/cart/items/1", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, res.Code)

	res = ts.do(t, http.MethodPost, "/cart/credits", map[string]any{
		"description": "damaged crate",
		"amount":      "10",
		"quantity":    2,
	})
	require.Equal(t, http.StatusCreated, res.Code)

	res = ts.do(t, http.MethodPost, "/cart/checkout", nil)
	require.Equal(t, http.StatusCreated, res.Code)
	var receipt struct {
		Totals struct {
			ItemsSubtotal decimal.Decimal `json:"items_subtotal"`
			CreditsTotal  decimal.Decimal `json:"credits_total"`
			Subtotal      decimal.Decimal `json:"subtotal"`
			Tax           decimal.Decimal `json:"tax"`
			Total         decimal.Decimal `json:"total"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &receipt))
	assert.True(t, receipt.Totals.ItemsSubtotal.Equal(decimal.RequireFromString("100")))
	assert.True(t, receipt.Totals.CreditsTotal.Equal(decimal.RequireFromString("-20")))
	assert.True(t, receipt.Totals.Subtotal.Equal(decimal.RequireFromString("80")))
	assert.True(t, receipt.Totals.Tax.Equal(decimal.RequireFromString("4.80")))
	assert.True(t, receipt.Totals.Total.Equal(decimal.RequireFromString("88.79")))
}

func TestCreditValidation(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodPost, "/cart/credits", map[string]any{
		"description": "",
		"amount":      "10",
		"quantity":    1,
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = ts.do(t, http.MethodPost, "/cart/credits", map[string]any{
		"description": "promo",
		"amount":      "-5",
		"quantity":    1,
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	res := ts.do(t, http.MethodGet, "/products", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
