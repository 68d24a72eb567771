// README: HTTP-level tests for the order and driver endpoints.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"taybat/internal/config"
	"taybat/internal/http/handlers"
	"taybat/internal/modules/dispatch"
	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
	"taybat/internal/notify"
	"taybat/internal/types"
)

type memOrderStore struct {
	mu     sync.Mutex
	orders map[types.ID]*order.Order
}

func (m *memOrderStore) Create(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderStore) Get(ctx context.Context, id types.ID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderStore) UpdateStatus(ctx context.Context, id types.ID, from, to order.Status, driverID *types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if driverID != nil {
		d := *driverID
		o.DriverID = &d
	}
	return true, nil
}

func (m *memOrderStore) AppendHistory(ctx context.Context, h *order.StatusHistory) error {
	return nil
}

type memProfileStore struct {
	mu       sync.Mutex
	profiles map[types.ID]*driver.Profile
}

func (m *memProfileStore) Get(ctx context.Context, id types.ID) (*driver.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfileStore) SetOnline(ctx context.Context, id types.ID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return driver.ErrNotFound
	}
	p.Online = online
	return nil
}

func (m *memProfileStore) ListApprovedOnline(ctx context.Context) ([]driver.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []driver.Profile
	for _, p := range m.profiles {
		if p.Approved() && p.Online {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memLocationStore struct {
	mu        sync.Mutex
	locations map[types.ID]driver.Location
}

func (m *memLocationStore) Update(ctx context.Context, driverID types.ID, p types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[driverID] = driver.Location{DriverID: driverID, Position: p, UpdatedAt: time.Now()}
	return nil
}

func (m *memLocationStore) Locations(ctx context.Context, ids []types.ID) (map[types.ID]driver.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.ID]driver.Location)
	for _, id := range ids {
		if loc, ok := m.locations[id]; ok {
			out[id] = loc
		}
	}
	return out, nil
}

type testApp struct {
	router        *gin.Engine
	dispatchStore *dispatch.MemStore
	dispatchSvc   *dispatch.Service
	profiles      *memProfileStore
	locations     *memLocationStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	orderStore := &memOrderStore{orders: make(map[types.ID]*order.Order)}
	orderSvc := order.NewService(orderStore)

	profiles := &memProfileStore{profiles: make(map[types.ID]*driver.Profile)}
	locations := &memLocationStore{locations: make(map[types.ID]driver.Location)}
	driverSvc := driver.NewService(profiles, locations)

	dispatchStore := dispatch.NewMemStore()
	cfg := config.DispatchConfig{
		SuggestionLimit:   5,
		AcceptanceWindow:  time.Minute,
		MaxCycles:         3,
		RetryDelay:        10 * time.Second,
		LocationStaleness: time.Minute,
		LoopInterval:      time.Second,
	}
	dispatchSvc := dispatch.NewService(
		dispatchStore,
		dispatch.NewSelector(driverSvc, cfg.LocationStaleness),
		driverSvc,
		&notify.LogSender{Logger: log},
		dispatch.TimerScheduler{},
		cfg,
		log,
	)

	r := gin.New()
	orderHandler := handlers.NewOrderHandler(orderSvc)
	r.POST("/api/orders", orderHandler.Create)
	r.GET("/api/orders/:id", orderHandler.Get)

	driverHandler := handlers.NewDriverHandler(orderSvc, driverSvc, dispatchSvc)
	r.POST("/api/drivers/availability", driverHandler.SetAvailability)
	r.PUT("/api/drivers/location", driverHandler.UpdateLocation)
	r.GET("/api/drivers/suggested-orders", driverHandler.ListSuggested)
	r.POST("/api/drivers/orders/:id/accept", driverHandler.Accept)
	r.POST("/api/drivers/orders/:id/reject", driverHandler.Reject)

	return &testApp{
		router:        r,
		dispatchStore: dispatchStore,
		dispatchSvc:   dispatchSvc,
		profiles:      profiles,
		locations:     locations,
	}
}

func (a *testApp) addDriver(id types.ID) {
	a.profiles.profiles[id] = &driver.Profile{
		ID:          id,
		Status:      driver.StatusApproved,
		VehicleType: order.VehicleMotor,
		AcceptsFood: true,
		Online:      true,
	}
	a.locations.locations[id] = driver.Location{
		DriverID:  id,
		Position:  types.Point{Lat: 33.3152, Lng: 44.3661},
		UpdatedAt: time.Now(),
	}
}

func (a *testApp) seedDispatchOrder(id, customer types.ID) {
	a.dispatchStore.PutOrder(&order.Order{
		ID:         id,
		Type:       order.TypeFood,
		CustomerID: customer,
		Status:     order.StatusSearching,
		Pickup:     types.Point{Lat: 33.3152, Lng: 44.3661},
		Dropoff:    types.Point{Lat: 33.2625, Lng: 44.4219},
		CreatedAt:  time.Now(),
	})
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateOrder(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app.router, http.MethodPost, "/api/orders", map[string]any{
		"order_type":  "food",
		"customer_id": "cust1",
		"pickup_lat":  33.3152, "pickup_lng": 44.3661,
		"dropoff_lat": 33.2625, "dropoff_lng": 44.4219,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OrderID == "" || resp.Status != string(order.StatusSearching) {
		t.Errorf("unexpected response: %+v", resp)
	}

	get := doRequest(app.router, http.MethodGet, "/api/orders/"+resp.OrderID, nil)
	if get.Code != http.StatusOK {
		t.Errorf("get status = %d", get.Code)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app.router, http.MethodPost, "/api/orders", map[string]any{
		"order_type": "food",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing customer: status = %d", w.Code)
	}

	w = doRequest(app.router, http.MethodPost, "/api/orders", map[string]any{
		"order_type":  "freight",
		"customer_id": "cust1",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad type: status = %d", w.Code)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	app := newTestApp(t)
	w := doRequest(app.router, http.MethodGet, "/api/orders/deadbeefdeadbeefdeadbeefdeadbeef", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDriverAvailabilityAndLocation(t *testing.T) {
	app := newTestApp(t)
	app.addDriver("d1")

	w := doRequest(app.router, http.MethodPost, "/api/drivers/availability", map[string]any{
		"driver_id": "d1", "online": false,
	})
	if w.Code != http.StatusOK {
		t.Errorf("availability: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(app.router, http.MethodPost, "/api/drivers/availability", map[string]any{
		"driver_id": "ghost", "online": true,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown driver: status = %d", w.Code)
	}

	w = doRequest(app.router, http.MethodPut, "/api/drivers/location", map[string]any{
		"driver_id": "d1", "lat": 33.3, "lng": 44.4,
	})
	if w.Code != http.StatusOK {
		t.Errorf("location: status = %d", w.Code)
	}

	w = doRequest(app.router, http.MethodPut, "/api/drivers/location", map[string]any{
		"driver_id": "d1", "lat": 123.0, "lng": 44.4,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("out of range: status = %d", w.Code)
	}
}

func TestOfferFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	app.addDriver("d1")
	app.addDriver("d2")
	app.seedDispatchOrder("order1", "cust1")

	if err := app.dispatchSvc.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	w := doRequest(app.router, http.MethodGet, "/api/drivers/suggested-orders?driver_id=d1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suggested: status = %d, body = %s", w.Code, w.Body.String())
	}
	var listResp struct {
		Orders []struct {
			OrderID string `json:"order_id"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listResp.Orders) != 1 || listResp.Orders[0].OrderID != "order1" {
		t.Fatalf("unexpected offers: %s", w.Body.String())
	}

	w = doRequest(app.router, http.MethodPost, "/api/drivers/orders/order1/accept?driver_id=d1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(app.router, http.MethodPost, "/api/drivers/orders/order1/accept?driver_id=d2", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second accept: status = %d, want 409", w.Code)
	}

	w = doRequest(app.router, http.MethodPost, "/api/drivers/orders/order1/reject?driver_id=d2", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("reject after close: status = %d, want 404", w.Code)
	}
}

func TestAcceptOwnOrderForbidden(t *testing.T) {
	app := newTestApp(t)
	app.addDriver("d1")
	app.seedDispatchOrder("order1", "d1")

	w := doRequest(app.router, http.MethodPost, "/api/drivers/orders/order1/accept?driver_id=d1", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("own order: status = %d, want 403", w.Code)
	}
}
