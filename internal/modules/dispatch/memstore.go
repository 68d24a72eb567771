// README: In-memory dispatch store for local development and tests. A
// per-order mutex plays the role of the database row lock; a store-wide
// mutex guards the maps underneath.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"taybat/internal/modules/order"
	"taybat/internal/types"
)

type MemStore struct {
	mu     sync.Mutex
	locks  map[types.ID]*sync.Mutex
	orders map[types.ID]*order.Order
	states map[types.ID]*State

	suggestions []*Suggestion
	history     map[types.ID][]order.StatusHistory
	nextSugID   int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		locks:   make(map[types.ID]*sync.Mutex),
		orders:  make(map[types.ID]*order.Order),
		states:  make(map[types.ID]*State),
		history: make(map[types.ID][]order.StatusHistory),
	}
}

func (m *MemStore) orderLock(id types.ID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *MemStore) WithOrderLock(ctx context.Context, orderID types.ID, fn func(ctx context.Context, tx Tx) error) error {
	l := m.orderLock(orderID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	o, ok := m.orders[orderID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	return fn(ctx, &memTx{store: m, order: o})
}

func (m *MemStore) ListDispatchable(ctx context.Context) ([]types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*order.Order
	for _, o := range m.orders {
		if o.DriverID == nil && order.Dispatchable(o.Status) {
			candidates = append(candidates, o)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	ids := make([]types.ID, len(candidates))
	for i, o := range candidates {
		ids[i] = o.ID
	}
	return ids, nil
}

func (m *MemStore) ListOffers(ctx context.Context, driverID types.ID, now time.Time) ([]Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var offers []Offer
	for _, sug := range m.suggestions {
		if sug.DriverID != driverID || !sug.Live(now) {
			continue
		}
		o, ok := m.orders[sug.OrderID]
		if !ok || o.DriverID != nil || !order.Dispatchable(o.Status) {
			continue
		}
		cp := *o
		offers = append(offers, Offer{Order: &cp, DistanceKm: sug.DistanceKm, ExpiresAt: sug.ExpiresAt})
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].Order.CreatedAt.After(offers[j].Order.CreatedAt)
	})
	return offers, nil
}

// PutOrder seeds an order. Mostly a test hook; the HTTP layer goes through
// the order service instead.
func (m *MemStore) PutOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
}

func (m *MemStore) GetOrder(id types.ID) (*order.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (m *MemStore) StateOf(id types.ID) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}

func (m *MemStore) Suggestions(orderID types.ID) []Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Suggestion
	for _, sug := range m.suggestions {
		if sug.OrderID == orderID {
			out = append(out, *sug)
		}
	}
	return out
}

func (m *MemStore) History(orderID types.ID) []order.StatusHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.StatusHistory(nil), m.history[orderID]...)
}

// memTx runs under the order's mutex, so it mutates shared structures
// directly. The store mutex still wraps each touch of the maps because
// read-only store methods do not take order locks.
type memTx struct {
	store *MemStore
	order *order.Order
}

func (t *memTx) Order() *order.Order { return t.order }

func (t *memTx) State(ctx context.Context) (*State, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	st, ok := t.store.states[t.order.ID]
	if !ok {
		st = &State{OrderID: t.order.ID, IsActive: true, UpdatedAt: time.Now()}
		t.store.states[t.order.ID] = st
	}
	cp := *st
	return &cp, nil
}

func (t *memTx) SaveState(ctx context.Context, st *State) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cp := *st
	cp.UpdatedAt = time.Now()
	t.store.states[st.OrderID] = &cp
	return nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, to order.Status) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.order.Status = to
	t.appendHistory(to)
	return nil
}

func (t *memTx) AssignDriver(ctx context.Context, driverID types.ID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	d := driverID
	t.order.DriverID = &d
	t.order.Status = order.StatusAccepted
	t.appendHistory(order.StatusAccepted)
	return nil
}

func (t *memTx) appendHistory(status order.Status) {
	t.store.history[t.order.ID] = append(t.store.history[t.order.ID], order.StatusHistory{
		OrderID: t.order.ID,
		Status:  status,
		At:      time.Now(),
	})
}

func (t *memTx) SuggestedDriverIDs(ctx context.Context) ([]types.ID, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	seen := make(map[types.ID]bool)
	var ids []types.ID
	for _, sug := range t.store.suggestions {
		if sug.OrderID == t.order.ID && !seen[sug.DriverID] {
			seen[sug.DriverID] = true
			ids = append(ids, sug.DriverID)
		}
	}
	return ids, nil
}

func (t *memTx) LiveSentExists(ctx context.Context, now time.Time) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, sug := range t.store.suggestions {
		if sug.OrderID == t.order.ID && sug.Live(now) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SentSuggestion(ctx context.Context, driverID types.ID) (*Suggestion, error) {
	return t.findSent(driverID, nil)
}

func (t *memTx) LiveSentSuggestion(ctx context.Context, driverID types.ID, now time.Time) (*Suggestion, error) {
	return t.findSent(driverID, &now)
}

func (t *memTx) findSent(driverID types.ID, liveAt *time.Time) (*Suggestion, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.store.suggestions) - 1; i >= 0; i-- {
		sug := t.store.suggestions[i]
		if sug.OrderID != t.order.ID || sug.DriverID != driverID || sug.Status != SuggestionSent {
			continue
		}
		if liveAt != nil && !sug.ExpiresAt.After(*liveAt) {
			continue
		}
		cp := *sug
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) InsertSuggestions(ctx context.Context, suggestions []*Suggestion) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, sug := range suggestions {
		t.store.nextSugID++
		sug.ID = t.store.nextSugID
		cp := *sug
		t.store.suggestions = append(t.store.suggestions, &cp)
	}
	return nil
}

func (t *memTx) ResolveSuggestion(ctx context.Context, id int64, status SuggestionStatus, at time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, sug := range t.store.suggestions {
		if sug.ID == id && sug.Status == SuggestionSent {
			sug.Status = status
			respondedAt := at
			sug.RespondedAt = &respondedAt
		}
	}
	return nil
}

func (t *memTx) ExpireCycleSent(ctx context.Context, cycle int, at time.Time) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var n int64
	for _, sug := range t.store.suggestions {
		if sug.OrderID == t.order.ID && sug.Cycle == cycle && sug.Status == SuggestionSent {
			sug.Status = SuggestionExpired
			respondedAt := at
			sug.RespondedAt = &respondedAt
			n++
		}
	}
	return n, nil
}

func (t *memTx) ExpireOtherSent(ctx context.Context, keepID int64, at time.Time) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var n int64
	for _, sug := range t.store.suggestions {
		if sug.OrderID == t.order.ID && sug.ID != keepID && sug.Status == SuggestionSent {
			sug.Status = SuggestionExpired
			respondedAt := at
			sug.RespondedAt = &respondedAt
			n++
		}
	}
	return n, nil
}
