package service

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taxi-dispatch/internal/availability"
	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/events"
	"taxi-dispatch/internal/fare"
)

type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	GetDriver(ctx context.Context, id string) (*domain.Driver, error)
	GetDriverByExternalID(ctx context.Context, externalID string) (*domain.Driver, error)
	ListDrivers(ctx context.Context, filter DriverFilter) ([]*domain.Driver, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	GetClientByExternalID(ctx context.Context, externalID string) (*domain.Client, error)
}

// Tx is a unit of work. The *ForUpdate reads take a row lock that is held
// until Commit or Rollback.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	GetDriverForUpdate(ctx context.Context, id string) (*domain.Driver, error)
	GetClientForUpdate(ctx context.Context, id string) (*domain.Client, error)
	HasActiveOrder(ctx context.Context, party Party, partyID string) (bool, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
	UpdateOrder(ctx context.Context, order *domain.Order) error
	CreateDriver(ctx context.Context, driver *domain.Driver) error
	UpdateDriver(ctx context.Context, driver *domain.Driver) error
	CreateClient(ctx context.Context, client *domain.Client) error
	UpdateClient(ctx context.Context, client *domain.Client) error
	EnqueueEvent(ctx context.Context, event events.Event) error
}

type Party string

const (
	PartyClient Party = "client"
	PartyDriver Party = "driver"
)

type OrderFilter struct {
	Statuses    []domain.OrderStatus
	ClientID    *string
	DriverID    *string
	NewestFirst bool
	Limit       int
	Offset      int
}

type DriverFilter struct {
	Status *domain.DriverStatus
	Limit  int
	Offset int
}

// RouteProvider returns approximate distance and duration between two
// points. Implementations bound their own call time.
type RouteProvider interface {
	Route(ctx context.Context, start, end domain.Location) (domain.Route, error)
}

// Notifier delivers a chat message to an opaque address. Delivery is
// fire-and-forget: failures are the notifier's to log.
type Notifier interface {
	Notify(ctx context.Context, address, text string)
}

type Service struct {
	store      Store
	routes     RouteProvider
	calculator fare.Calculator
	notifier   Notifier

	clock        clock.Clock
	window       time.Duration
	availability *availability.Scheduler
	log          logrus.FieldLogger
	newID        func() string
	currency     string
	fireTimeout  time.Duration
}

type Option func(*Service)

func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clock = clk }
}

func WithHeartbeatWindow(window time.Duration) Option {
	return func(s *Service) { s.window = window }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = currency }
}

func New(store Store, routes RouteProvider, calculator fare.Calculator, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:       store,
		routes:      routes,
		calculator:  calculator,
		notifier:    notifier,
		clock:       clock.New(),
		window:      time.Minute,
		log:         logrus.StandardLogger(),
		newID:       uuid.NewString,
		fireTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.availability = availability.New(s.clock, s.window, s.expireDriver)
	return s
}

// Close stops the availability timers. Pending deactivations are dropped;
// drivers re-enter the protocol on their next heartbeat.
func (s *Service) Close() {
	s.availability.Stop()
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Service) notifyClient(ctx context.Context, clientID, text string) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		s.log.WithError(err).WithField("client_id", clientID).Warn("notify client: lookup failed")
		return
	}
	s.notifier.Notify(ctx, client.ChatAddress, text)
}

func (s *Service) notifyDriver(ctx context.Context, driverID, text string) {
	driver, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		s.log.WithError(err).WithField("driver_id", driverID).Warn("notify driver: lookup failed")
		return
	}
	s.notifier.Notify(ctx, driver.ChatAddress, text)
}
