package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/elvisinthecloud/inventory-management-system-sub000/domain"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/cart"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/history"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/ledger"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/session"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db          *sqlx.DB
	ledger      *ledger.Ledger
	sessions    *session.Manager
	history     *history.Store
	secret      string
	taxRate     decimal.Decimal
	deliveryFee decimal.Decimal
}

// New constructs a Handler. db is the ledger database; cart/cache snapshots
// and invoice history live behind the session manager and history store.
func New(db *sqlx.DB, l *ledger.Ledger, sessions *session.Manager, hist *history.Store,
	secret string, taxRate, deliveryFee decimal.Decimal) *Handler {
	return &Handler{
		db:          db,
		ledger:      l,
		sessions:    sessions,
		history:     hist,
		secret:      secret,
		taxRate:     taxRate,
		deliveryFee: deliveryFee,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Post("/{id}/stock/adjust", h.adjustStock)
			r.Put("/{id}/stock", h.setStock)
		})

		pr.Get("/vendors", h.listVendors)

		pr.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/refresh", h.refreshStock)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{productID}", h.updateCartItem)
			r.Delete("/items/{productID}", h.removeCartItem)
			r.Post("/credits", h.addCredit)
			r.Delete("/credits/{id}", h.removeCredit)
			r.Put("/vendor", h.setVendor)
			r.Post("/checkout", h.checkout)
		})

		pr.Post("/stock/commit", h.commitStock)

		pr.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.listInvoices)
			r.Get("/{id}", h.getInvoice)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string) (string, error) {
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func userID(r *http.Request) int64 {
	return r.Context().Value(ctxUserID).(int64)
}

// Auth Handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "username, email, password and role are required")
		return
	}
	if req.Role != "admin" && req.Role != "staff" {
		respondError(w, http.StatusBadRequest, "role must be admin or staff")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var id int64
	err = h.db.QueryRowx(`INSERT INTO users (username, email, password, role) VALUES (?, ?, ?, ?) RETURNING id`,
		req.Username, strings.ToLower(req.Email), hashed, req.Role).Scan(&id)
	if err != nil {
		respondError(w, http.StatusConflict, "email already exists")
		return
	}

	token, err := h.generateToken(id, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  domain.User{ID: int(id), Username: req.Username, Email: strings.ToLower(req.Email), Role: req.Role},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user, `SELECT id, username, email, password, role FROM users WHERE email = ?`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(int64(user.ID), user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = ? WHERE id = ?`, hashed, userID(r)); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Catalog handlers

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	query := `SELECT p.id, p.name, p.category, p.unit_price, s.quantity AS stock, p.created_at
                  FROM products p JOIN stock s ON s.product_id = p.id`
	args := []any{}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		query += ` WHERE p.category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY p.category, p.name`

	products := []domain.Product{}
	if err := h.db.Select(&products, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

type productRequest struct {
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int64           `json:"stock"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin") {
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Category) == "" {
		respondError(w, http.StatusBadRequest, "name and category are required")
		return
	}
	if req.UnitPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "unit_price must not be negative")
		return
	}
	if req.Stock < 0 {
		respondError(w, http.StatusBadRequest, "stock must not be negative")
		return
	}

	tx, err := h.db.Beginx()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create product")
		return
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowx(`INSERT INTO products (name, category, unit_price) VALUES (?, ?, ?) RETURNING id`,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Category), req.UnitPrice).Scan(&id)
	if err != nil {
		respondError(w, http.StatusConflict, "product already exists")
		return
	}
	if err := h.ledger.Create(r.Context(), tx, id, req.Stock); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create stock entry")
		return
	}
	if err := tx.Commit(); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create product")
		return
	}

	respondJSON(w, http.StatusCreated, domain.Product{
		ID: id, Name: strings.TrimSpace(req.Name), Category: strings.TrimSpace(req.Category),
		UnitPrice: req.UnitPrice, Stock: req.Stock,
	})
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var payload struct {
		Delta int64 `json:"delta"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ledger.Adjust(r.Context(), id, payload.Delta); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to adjust stock")
		return
	}
	qty, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read stock")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"product_id": id, "quantity": qty})
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var payload struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch err := h.ledger.Set(r.Context(), id, payload.Quantity); {
	case errors.Is(err, ledger.ErrNegativeQuantity):
		respondError(w, http.StatusBadRequest, "quantity must not be negative")
	case errors.Is(err, ledger.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product not found")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "unable to set stock")
	default:
		respondJSON(w, http.StatusOK, map[string]any{"product_id": id, "quantity": payload.Quantity})
	}
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors := []domain.Vendor{}
	if err := h.db.Select(&vendors, `SELECT id, name, category FROM vendors ORDER BY name`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list vendors")
		return
	}
	respondJSON(w, http.StatusOK, vendors)
}

// Cart handlers

type cartResponse struct {
	Vendor  *domain.Vendor       `json:"vendor"`
	Items   []domain.InvoiceItem `json:"items"`
	Credits []domain.CreditLine  `json:"credits"`
	Totals  domain.InvoiceTotals `json:"totals"`
	Report  *cart.Report         `json:"report,omitempty"`
	Change  *cart.Change         `json:"change,omitempty"`
}

func (h *Handler) cartView(s *session.Session, report *cart.Report, change *cart.Change) cartResponse {
	if report != nil && report.Clean() {
		report = nil
	}
	return cartResponse{
		Vendor:  s.Cart.Vendor(),
		Items:   s.Cart.Items(),
		Credits: s.Cart.Credits(),
		Totals:  s.Cart.Totals(h.taxRate, h.deliveryFee),
		Report:  report,
		Change:  change,
	}
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.Context(), userID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load session")
		return nil, false
	}
	return s, true
}

func (h *Handler) saveCart(w http.ResponseWriter, r *http.Request, s *session.Session) bool {
	if err := h.sessions.SaveCart(r.Context(), userID(r), s); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to save cart")
		return false
	}
	return true
}

// getCart re-runs reconciliation on every read so a cart re-entered after
// a cache refresh is corrected immediately, with one consolidated report.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	report := s.Cart.Reconcile(s.Cache)
	if !report.Clean() && !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, &report, nil))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	s.Cart.Clear()
	if !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, nil, nil))
}

// refreshStock is the on-demand cache refresh (page visibility, manual
// retry). The refreshed view immediately reconciles the cart.
func (h *Handler) refreshStock(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	if err := s.Cache.Refresh(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, "stock ledger unavailable")
		return
	}
	if err := h.sessions.SaveCache(r.Context(), userID(r), s); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to save stock snapshot")
		return
	}
	report := s.Cart.Reconcile(s.Cache)
	if !report.Clean() && !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, &report, nil))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID int64 `json:"product_id"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var product domain.Product
	err := h.db.Get(&product,
		`SELECT p.id, p.name, p.category, p.unit_price, s.quantity AS stock, p.created_at
                 FROM products p JOIN stock s ON s.product_id = p.id WHERE p.id = ?`, payload.ProductID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load product")
		return
	}

	change := s.Cart.AddItem(s.Cache, product)
	if !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, nil, &change))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var payload struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	change := s.Cart.UpdateQuantity(s.Cache, productID, payload.Quantity)
	if change.Status == cart.StatusNotInCart {
		respondError(w, http.StatusNotFound, "product is not in the cart")
		return
	}
	if !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, nil, &change))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	change := s.Cart.RemoveItem(productID)
	if !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, nil, &change))
}

type creditRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Quantity    int64           `json:"quantity"`
}

func (h *Handler) addCredit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	var req creditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	credit, err := s.Cart.AddCredit(req.Description, req.Amount, req.Quantity)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"credit": credit,
		"totals": s.Cart.Totals(h.taxRate, h.deliveryFee),
	})
}

func (h *Handler) removeCredit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	if !s.Cart.RemoveCredit(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "credit not found")
		return
	}
	if !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, nil, nil))
}

type vendorRequest struct {
	Vendor  domain.Vendor `json:"vendor"`
	Confirm bool          `json:"confirm"`
}

func (h *Handler) setVendor(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	var req vendorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Vendor.ID <= 0 || strings.TrimSpace(req.Vendor.Name) == "" {
		respondError(w, http.StatusBadRequest, "vendor id and name are required")
		return
	}
	if err := s.Cart.SetVendor(req.Vendor, req.Confirm); err != nil {
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":            err.Error(),
			"confirm_required": true,
		})
		return
	}
	if !h.saveCart(w, r, s) {
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(s, nil, nil))
}

// checkout finalizes the invoice: refresh, reconcile, atomic commit,
// archive, clear. A reconciliation that touched anything aborts with the
// consolidated report; retrying after seeing it is the acknowledgment.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}
	vendor := s.Cart.Vendor()
	if vendor == nil {
		respondError(w, http.StatusBadRequest, "select a vendor before checking out")
		return
	}
	if s.Cart.Empty() {
		respondError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	if err := s.Cache.Refresh(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, "stock ledger unavailable")
		return
	}
	if err := h.sessions.SaveCache(r.Context(), userID(r), s); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to save stock snapshot")
		return
	}

	report := s.Cart.Reconcile(s.Cache)
	if !report.Clean() {
		if !h.saveCart(w, r, s) {
			return
		}
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":  "cart was adjusted to current stock, review and retry",
			"report": report,
		})
		return
	}

	items := s.Cart.Items()
	sale := make([]ledger.ItemSale, len(items))
	for i, item := range items {
		sale[i] = ledger.ItemSale{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	if err := h.ledger.CommitSale(r.Context(), sale); err != nil {
		var insufficient *ledger.InsufficientStockError
		if errors.As(err, &insufficient) {
			// A concurrent commit consumed stock after reconciliation.
			// Nothing was decremented; refresh so the next pass sees it.
			if refreshErr := s.Cache.Refresh(r.Context()); refreshErr == nil {
				_ = h.sessions.SaveCache(r.Context(), userID(r), s)
			}
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":    "insufficient stock",
				"rejected": insufficient.ProductIDs,
			})
			return
		}
		respondError(w, http.StatusBadGateway, "stock ledger unavailable")
		return
	}

	totals := s.Cart.Totals(h.taxRate, h.deliveryFee)
	record := domain.InvoiceRecord{
		UserID:         userID(r),
		VendorID:       vendor.ID,
		VendorName:     vendor.Name,
		VendorCategory: vendor.Category,
		InvoiceTotals:  totals,
		Items:          items,
		Credits:        s.Cart.Credits(),
	}
	invoiceID, err := h.history.Append(r.Context(), record)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stock committed but invoice could not be archived")
		return
	}

	s.Cart.Clear()
	if err := s.Cache.Refresh(r.Context()); err == nil {
		_ = h.sessions.SaveCache(r.Context(), userID(r), s)
	}
	if !h.saveCart(w, r, s) {
		return
	}

	record.ID = invoiceID
	respondJSON(w, http.StatusCreated, map[string]any{
		"invoice_id": invoiceID,
		"totals":     totals,
		"invoice":    record,
	})
}

// Stock commit endpoint

type commitStockRequest struct {
	Items []ledger.ItemSale `json:"items"`
}

// commitStock is the externally exposed commit entry point. The whole body
// is validated before any ledger access: a single bad line rejects the
// request with no side effects.
func (h *Handler) commitStock(w http.ResponseWriter, r *http.Request) {
	var req commitStockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items must be a non-empty list")
		return
	}
	seen := make(map[int64]bool, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			respondError(w, http.StatusBadRequest, "product_id must be a positive integer")
			return
		}
		if item.Quantity <= 0 {
			respondError(w, http.StatusBadRequest, "quantity_sold must be a positive integer")
			return
		}
		if seen[item.ProductID] {
			respondError(w, http.StatusBadRequest, "duplicate product_id in items")
			return
		}
		seen[item.ProductID] = true
	}

	if err := h.ledger.CommitSale(r.Context(), req.Items); err != nil {
		var insufficient *ledger.InsufficientStockError
		if errors.As(err, &insufficient) {
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":    "insufficient stock",
				"rejected": insufficient.ProductIDs,
			})
			return
		}
		respondError(w, http.StatusBadGateway, "stock ledger unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

// Invoice history handlers

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.List(r.Context(), userID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list invoices")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	record, err := h.history.Get(r.Context(), userID(r), id)
	if errors.Is(err, history.ErrNotFound) {
		respondError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load invoice")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
