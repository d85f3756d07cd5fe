// Package session ties a user to the cart and stock cache they own.
// Sessions are created on first access, restored from the journal when a
// snapshot survives from an earlier process, and refreshed by a periodic
// non-blocking poll against the ledger.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/cart"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/ledger"
	"github.com/elvisinthecloud/inventory-management-system-sub000/internal/stockcache"
)

// Session is one user's working state. Neither field is ever shared
// between users.
type Session struct {
	Cart  *cart.Cart
	Cache *stockcache.Cache
}

// Manager hands out sessions and persists their snapshots to the session
// store. The store is a journal, never the authoritative ledger.
type Manager struct {
	db     *sqlx.DB
	ledger *ledger.Ledger
	maxAge time.Duration

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager builds a manager over the session store. maxAge bounds how
// stale a restored cache snapshot may be before it is refreshed on load.
func NewManager(db *sqlx.DB, l *ledger.Ledger, maxAge time.Duration) *Manager {
	return &Manager{
		db:       db,
		ledger:   l,
		maxAge:   maxAge,
		sessions: make(map[int64]*Session),
	}
}

type cacheSnapshot struct {
	Quantities  map[int64]int64 `json:"quantities"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// Get returns the user's session, restoring persisted snapshots on first
// access. A missing or stale cache snapshot triggers a ledger refresh. The
// restore runs outside the manager lock so one user's slow first load does
// not block every other session.
func (m *Manager) Get(ctx context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := &Session{
		Cart:  cart.New(),
		Cache: stockcache.New(m.ledger),
	}

	if snap, ok := m.loadCartSnapshot(ctx, userID); ok {
		s.Cart = cart.FromSnapshot(snap)
	}
	if snap, ok := m.loadCacheSnapshot(ctx, userID); ok && time.Since(snap.RefreshedAt) < m.maxAge {
		s.Cache.Restore(snap.Quantities, snap.RefreshedAt)
	} else if err := s.Cache.Refresh(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		// Another request finished the restore first; its session wins.
		return existing, nil
	}
	m.sessions[userID] = s
	return s, nil
}

// SaveCart journals the user's cart after a mutation.
func (m *Manager) SaveCart(ctx context.Context, userID int64, s *Session) error {
	payload, err := json.Marshal(s.Cart.Snapshot())
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO cart_snapshots (user_id, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
                 ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		userID, string(payload))
	return err
}

// SaveCache journals the user's stock cache after a refresh.
func (m *Manager) SaveCache(ctx context.Context, userID int64, s *Session) error {
	payload, err := json.Marshal(cacheSnapshot{
		Quantities:  s.Cache.Snapshot(),
		RefreshedAt: s.Cache.RefreshedAt(),
	})
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO stock_snapshots (user_id, payload, refreshed_at) VALUES (?, ?, CURRENT_TIMESTAMP)
                 ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, refreshed_at = CURRENT_TIMESTAMP`,
		userID, string(payload))
	return err
}

func (m *Manager) loadCartSnapshot(ctx context.Context, userID int64) (cart.Snapshot, bool) {
	var payload string
	if err := m.db.GetContext(ctx, &payload,
		`SELECT payload FROM cart_snapshots WHERE user_id = ?`, userID); err != nil {
		return cart.Snapshot{}, false
	}
	var snap cart.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		log.Printf("discarding unreadable cart snapshot for user %d: %v", userID, err)
		return cart.Snapshot{}, false
	}
	return snap, true
}

func (m *Manager) loadCacheSnapshot(ctx context.Context, userID int64) (cacheSnapshot, bool) {
	var payload string
	if err := m.db.GetContext(ctx, &payload,
		`SELECT payload FROM stock_snapshots WHERE user_id = ?`, userID); err != nil {
		return cacheSnapshot{}, false
	}
	var snap cacheSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		log.Printf("discarding unreadable stock snapshot for user %d: %v", userID, err)
		return cacheSnapshot{}, false
	}
	return snap, true
}

// RefreshAll re-reads the ledger into every live session cache.
func (m *Manager) RefreshAll(ctx context.Context) {
	m.mu.Lock()
	live := make(map[int64]*Session, len(m.sessions))
	for id, s := range m.sessions {
		live[id] = s
	}
	m.mu.Unlock()

	for userID, s := range live {
		if err := s.Cache.Refresh(ctx); err != nil {
			log.Printf("stock cache refresh failed for user %d: %v", userID, err)
			continue
		}
		if err := m.SaveCache(ctx, userID, s); err != nil {
			log.Printf("stock snapshot save failed for user %d: %v", userID, err)
		}
	}
}

// Run polls the ledger on a timer until ctx is cancelled. Each tick is a
// bounded refresh; a slow ledger delays the next tick rather than piling
// up goroutines.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RefreshAll(ctx)
		}
	}
}
