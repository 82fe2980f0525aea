package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/events"
	"taxi-dispatch/internal/fare"
	"taxi-dispatch/internal/logger"
)

type memStore struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	drivers map[string]*domain.Driver
	clients map[string]*domain.Client
	events  []events.Event

	// afterCommit runs once, after the next commit releases the lock.
	afterCommit func()
}

type memTx struct {
	store  *memStore
	closed bool
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[string]*domain.Order),
		drivers: make(map[string]*domain.Driver),
		clients: make(map[string]*domain.Client),
	}
}

func (m *memStore) BeginTx(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	return &memTx{store: m}, nil
}

func (m *memStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *order
	return &copy, nil
}

func (m *memStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []*domain.Order
	for _, order := range m.orders {
		if filter.ClientID != nil && order.ClientID != *filter.ClientID {
			continue
		}
		if filter.DriverID != nil && !order.AssignedTo(*filter.DriverID) {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, order.Status) {
			continue
		}
		copy := *order
		orders = append(orders, &copy)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if filter.NewestFirst {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(orders) {
			return nil, nil
		}
		orders = orders[filter.Offset:]
	}
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func hasStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (m *memStore) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *driver
	return &copy, nil
}

func (m *memStore) GetDriverByExternalID(ctx context.Context, externalID string) (*domain.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, driver := range m.drivers {
		if driver.ExternalID == externalID {
			copy := *driver
			return &copy, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) ListDrivers(ctx context.Context, filter DriverFilter) ([]*domain.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var drivers []*domain.Driver
	for _, driver := range m.drivers {
		if filter.Status != nil && driver.Status != *filter.Status {
			continue
		}
		copy := *driver
		drivers = append(drivers, &copy)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].ID < drivers[j].ID })
	return drivers, nil
}

func (m *memStore) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *client
	return &copy, nil
}

func (m *memStore) GetClientByExternalID(ctx context.Context, externalID string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, client := range m.clients {
		if client.ExternalID == externalID {
			copy := *client
			return &copy, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) driver(t *testing.T, id string) *domain.Driver {
	t.Helper()
	driver, err := m.GetDriver(context.Background(), id)
	require.NoError(t, err)
	return driver
}

func (m *memStore) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	order, err := m.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (m *memStore) eventsOfType(eventType string) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Event
	for _, evt := range m.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func (t *memTx) Commit(ctx context.Context) error {
	hook := t.store.afterCommit
	t.store.afterCommit = nil
	if err := t.close(); err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	return t.close()
}

func (t *memTx) close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	order, ok := t.store.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *order
	return &copy, nil
}

func (t *memTx) GetDriverForUpdate(ctx context.Context, id string) (*domain.Driver, error) {
	driver, ok := t.store.drivers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *driver
	return &copy, nil
}

func (t *memTx) GetClientForUpdate(ctx context.Context, id string) (*domain.Client, error) {
	client, ok := t.store.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *client
	return &copy, nil
}

func (t *memTx) HasActiveOrder(ctx context.Context, party Party, partyID string) (bool, error) {
	for _, order := range t.store.orders {
		if !domain.IsActive(order.Status) {
			continue
		}
		switch party {
		case PartyClient:
			if order.ClientID == partyID {
				return true, nil
			}
		case PartyDriver:
			if order.AssignedTo(partyID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	if _, ok := t.store.orders[order.ID]; ok {
		return domain.ErrAlreadyExists
	}
	copy := *order
	t.store.orders[order.ID] = &copy
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, order *domain.Order) error {
	copy := *order
	t.store.orders[order.ID] = &copy
	return nil
}

func (t *memTx) CreateDriver(ctx context.Context, driver *domain.Driver) error {
	if _, ok := t.store.drivers[driver.ID]; ok {
		return domain.ErrAlreadyExists
	}
	copy := *driver
	t.store.drivers[driver.ID] = &copy
	return nil
}

func (t *memTx) UpdateDriver(ctx context.Context, driver *domain.Driver) error {
	copy := *driver
	t.store.drivers[driver.ID] = &copy
	return nil
}

func (t *memTx) CreateClient(ctx context.Context, client *domain.Client) error {
	if _, ok := t.store.clients[client.ID]; ok {
		return domain.ErrAlreadyExists
	}
	copy := *client
	t.store.clients[client.ID] = &copy
	return nil
}

func (t *memTx) UpdateClient(ctx context.Context, client *domain.Client) error {
	copy := *client
	t.store.clients[client.ID] = &copy
	return nil
}

func (t *memTx) EnqueueEvent(ctx context.Context, event events.Event) error {
	t.store.events = append(t.store.events, event)
	return nil
}

type fakeRoutes struct {
	mu    sync.Mutex
	route domain.Route
	err   error
	calls int
}

func (f *fakeRoutes) Route(ctx context.Context, start, end domain.Location) (domain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.route, f.err
}

type sentMessage struct {
	address string
	text    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingNotifier) Notify(ctx context.Context, address, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{address: address, text: text})
}

func (r *recordingNotifier) messagesTo(address string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, msg := range r.sent {
		if msg.address == address {
			out = append(out, msg.text)
		}
	}
	return out
}

type testEnv struct {
	svc      *Service
	store    *memStore
	clock    *clock.Mock
	routes   *fakeRoutes
	notifier *recordingNotifier
}

var testRates = fare.Rates{
	Base:   decimal.RequireFromString("2.00"),
	PerKm:  decimal.RequireFromString("1.00"),
	PerMin: decimal.RequireFromString("0.20"),
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newMemStore(),
		clock:    clock.NewMock(),
		routes:   &fakeRoutes{route: domain.Route{DistanceMeters: 5000, DurationSeconds: 720}},
		notifier: &recordingNotifier{},
	}
	env.clock.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	base := []Option{
		WithClock(env.clock),
		WithHeartbeatWindow(time.Minute),
		WithLogger(logger.Discard()),
		WithCurrency("KZT"),
	}
	env.svc = New(env.store, env.routes, fare.DistanceAndTime{Rates: testRates}, env.notifier, append(base, opts...)...)
	t.Cleanup(env.svc.Close)
	return env
}

func (e *testEnv) addClient(id string) *domain.Client {
	now := e.clock.Now().UTC()
	client := &domain.Client{
		ID:          id,
		ExternalID:  "ext-" + id,
		ChatAddress: "chat-" + id,
		FullName:    "Client " + id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.store.mu.Lock()
	e.store.clients[id] = client
	e.store.mu.Unlock()
	return client
}

func (e *testEnv) addDriver(id string, status domain.DriverStatus) *domain.Driver {
	now := e.clock.Now().UTC()
	driver := &domain.Driver{
		ID:           id,
		ExternalID:   "ext-" + id,
		ChatAddress:  "chat-" + id,
		FullName:     "Driver " + id,
		CarModel:     "Camry",
		CarColor:     "white",
		LicensePlate: "777ABC02",
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	e.store.mu.Lock()
	e.store.drivers[id] = driver
	e.store.mu.Unlock()
	return driver
}

func placeRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		StartAddress: "Abai 10",
		EndAddress:   "Dostyk 5",
		Start:        domain.Location{Lat: 43.238, Lng: 76.889},
		End:          domain.Location{Lat: 43.256, Lng: 76.945},
		BasePrice:    decimal.RequireFromString("2.00"),
		BonusFare:    decimal.RequireFromString("1.50"),
	}
}
