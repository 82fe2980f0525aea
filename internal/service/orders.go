package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/events"
)

type PlaceOrderRequest struct {
	StartAddress string
	EndAddress   string
	Start        domain.Location
	End          domain.Location
	BasePrice    decimal.Decimal
	BonusFare    decimal.Decimal
	Notes        string
}

func (r PlaceOrderRequest) validate() error {
	if err := domain.ValidateLocation(r.Start); err != nil {
		return fmt.Errorf("start: %v: %w", err, domain.ErrInvalid)
	}
	if err := domain.ValidateLocation(r.End); err != nil {
		return fmt.Errorf("end: %v: %w", err, domain.ErrInvalid)
	}
	if strings.TrimSpace(r.StartAddress) == "" || strings.TrimSpace(r.EndAddress) == "" {
		return fmt.Errorf("addresses are required: %w", domain.ErrInvalid)
	}
	if r.BasePrice.IsNegative() {
		return fmt.Errorf("base price must not be negative: %w", domain.ErrInvalid)
	}
	if r.BonusFare.IsNegative() {
		return fmt.Errorf("bonus fare must not be negative: %w", domain.ErrInvalid)
	}
	return nil
}

var (
	metersPerKm   = decimal.NewFromInt(1000)
	secondsPerMin = decimal.NewFromInt(60)
)

// PlaceOrder creates a PENDING order for clientID. The client row is locked
// while the active-order check and the insert run, so of two concurrent
// placements for one client exactly one commits.
func (s *Service) PlaceOrder(ctx context.Context, clientID string, req PlaceOrderRequest) (*domain.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	// Unlocked pre-check; the locked check below is authoritative.
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client %s: %w", clientID, err)
	}
	active, err := s.store.ListOrders(ctx, OrderFilter{
		ClientID: &clientID,
		Statuses: domain.ActiveOrderStatuses,
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("client %s: %w", clientID, domain.ErrActiveOrderConflict)
	}

	route, err := s.routes.Route(ctx, req.Start, req.End)
	if err != nil {
		s.log.WithError(err).WithField("client_id", clientID).Warn("route lookup failed")
		return nil, fmt.Errorf("%v: %w", err, domain.ErrRoutingUnavailable)
	}
	if route.DistanceMeters < 0 || route.DurationSeconds < 0 {
		return nil, fmt.Errorf("negative route metrics: %w", domain.ErrRoutingUnavailable)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.GetClientForUpdate(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client %s: %w", clientID, err)
	}
	busy, err := tx.HasActiveOrder(ctx, PartyClient, clientID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, fmt.Errorf("client %s: %w", clientID, domain.ErrActiveOrderConflict)
	}

	now := s.now()
	order := &domain.Order{
		ID:                s.newID(),
		ClientID:          clientID,
		Status:            domain.OrderStatusPending,
		StartAddress:      strings.TrimSpace(req.StartAddress),
		EndAddress:        strings.TrimSpace(req.EndAddress),
		Start:             req.Start,
		End:               req.End,
		ApproxDistanceKm:  decimal.NewFromFloat(route.DistanceMeters).Div(metersPerKm).Round(2),
		ApproxDurationMin: decimal.NewFromFloat(route.DurationSeconds).Div(secondsPerMin).Round(2),
		BasePrice:         req.BasePrice,
		BonusFare:         req.BonusFare,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := tx.EnqueueEvent(ctx, events.NewOrderEvent(events.EventOrderPlaced, order, now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": order.ID, "client_id": clientID}).Info("order placed")
	return order, nil
}

// AcceptOrder assigns a PENDING order to driverID. The order row is locked
// first, then the driver row, so racing accepts on one order and racing
// accepts by one driver both serialise.
func (s *Service) AcceptOrder(ctx context.Context, orderID, driverID string) (*domain.Order, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusAccepted) {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrOrderStatusConflict)
	}
	driver, err := tx.GetDriverForUpdate(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("driver %s: %w", driverID, err)
	}
	if driver.Status != domain.DriverStatusActive {
		return nil, fmt.Errorf("driver %s is %s: %w", driverID, driver.Status, domain.ErrDriverUnavailable)
	}
	busy, err := tx.HasActiveOrder(ctx, PartyDriver, driverID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, fmt.Errorf("driver %s: %w", driverID, domain.ErrActiveOrderConflict)
	}

	now := s.now()
	order.DriverID = &driver.ID
	order.Status = domain.OrderStatusAccepted
	order.AcceptedAt = &now
	order.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := tx.EnqueueEvent(ctx, events.NewOrderEvent(events.EventOrderAccepted, order, now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": order.ID, "driver_id": driverID}).Info("order accepted")

	s.notifyClient(ctx, order.ClientID, fmt.Sprintf(
		"Your order has been accepted.\nDriver: %s\nCar: %s %s, %s\nPhone: %s",
		driver.FullName, driver.CarColor, driver.CarModel, driver.LicensePlate, driver.PhoneNumber,
	))
	return order, nil
}

func (s *Service) StartTrip(ctx context.Context, orderID, driverID string) (*domain.Order, error) {
	order, err := s.updateOrderForDriver(ctx, orderID, driverID, domain.OrderStatusInProgress, events.EventOrderStarted, func(order *domain.Order) error {
		now := s.now()
		order.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyClient(ctx, order.ClientID, "Your trip has started.")
	return order, nil
}

// CompleteOrder records the actual trip duration and prices the ride with
// the configured fare strategy. TotalPrice is always Price + BonusFare.
func (s *Service) CompleteOrder(ctx context.Context, orderID, driverID string) (*domain.Order, error) {
	order, err := s.updateOrderForDriver(ctx, orderID, driverID, domain.OrderStatusCompleted, events.EventOrderCompleted, func(order *domain.Order) error {
		if order.StartedAt == nil {
			return fmt.Errorf("order %s has no start time: %w", order.ID, domain.ErrOrderStatusConflict)
		}
		now := s.now()
		elapsed := now.Sub(*order.StartedAt)
		if elapsed < 0 {
			// Clock stepped back; completion never precedes the start.
			elapsed = 0
			now = *order.StartedAt
		}
		actual := decimal.NewFromFloat(elapsed.Seconds()).Div(secondsPerMin).Round(2)
		order.ActualDurationMin = &actual

		price := s.calculator.Calculate(order)
		total := price.Add(order.BonusFare)
		order.Price = &price
		order.TotalPrice = &total
		order.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyClient(ctx, order.ClientID, completionSummary(order, s.currency))
	return order, nil
}

func (s *Service) CancelOrderByDriver(ctx context.Context, orderID, driverID string) (*domain.Order, error) {
	order, err := s.cancelOrder(ctx, orderID, domain.CancelledByDriver, func(order *domain.Order) error {
		if !order.AssignedTo(driverID) {
			return fmt.Errorf("order %s: %w", orderID, domain.ErrAccessDenied)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyClient(ctx, order.ClientID, "Your driver cancelled the order. Please place a new one.")
	return order, nil
}

func (s *Service) CancelOrderByClient(ctx context.Context, orderID, clientID string) (*domain.Order, error) {
	order, err := s.cancelOrder(ctx, orderID, domain.CancelledByClient, func(order *domain.Order) error {
		if order.ClientID != clientID {
			return fmt.Errorf("order %s: %w", orderID, domain.ErrAccessDenied)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if order.DriverID != nil {
		s.notifyDriver(ctx, *order.DriverID, fmt.Sprintf("The client cancelled the order from %s.", order.StartAddress))
	}
	return order, nil
}

// CancelOrderBySystem is the administrative cancel. Both parties are told.
func (s *Service) CancelOrderBySystem(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.cancelOrder(ctx, orderID, domain.CancelledBySystem, nil)
	if err != nil {
		return nil, err
	}
	s.notifyClient(ctx, order.ClientID, "Your order was cancelled by dispatch.")
	if order.DriverID != nil {
		s.notifyDriver(ctx, *order.DriverID, fmt.Sprintf("The order from %s was cancelled by dispatch.", order.StartAddress))
	}
	return order, nil
}

func (s *Service) cancelOrder(ctx context.Context, orderID string, source domain.CancellationSource, authorize func(order *domain.Order) error) (*domain.Order, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	if authorize != nil {
		if err := authorize(order); err != nil {
			return nil, err
		}
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusCanceled) {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrOrderStatusConflict)
	}
	now := s.now()
	order.Status = domain.OrderStatusCanceled
	order.CancellationSource = &source
	order.CancelledAt = &now
	order.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := tx.EnqueueEvent(ctx, events.NewOrderEvent(events.EventOrderCanceled, order, now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "source": source}).Info("order canceled")
	return order, nil
}

// updateOrderForDriver runs one driver-initiated transition under the order
// row lock: assignment check, then status check, then fn.
func (s *Service) updateOrderForDriver(ctx context.Context, orderID, driverID string, to domain.OrderStatus, eventType string, fn func(order *domain.Order) error) (*domain.Order, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	if !order.AssignedTo(driverID) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrAccessDenied)
	}
	if !domain.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrOrderStatusConflict)
	}
	if err := fn(order); err != nil {
		return nil, err
	}
	order.Status = to
	order.UpdatedAt = s.now()
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := tx.EnqueueEvent(ctx, events.NewOrderEvent(eventType, order, order.UpdatedAt)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "driver_id": driverID, "status": to}).Info("order updated")
	return order, nil
}

func completionSummary(order *domain.Order, currency string) string {
	var b strings.Builder
	b.WriteString("Trip completed.\n")
	fmt.Fprintf(&b, "From: %s\n", order.StartAddress)
	fmt.Fprintf(&b, "To: %s\n", order.EndAddress)
	fmt.Fprintf(&b, "Distance: %s km\n", order.ApproxDistanceKm.StringFixed(2))
	if order.ActualDurationMin != nil {
		fmt.Fprintf(&b, "Duration: %s min\n", order.ActualDurationMin.StringFixed(2))
	}
	if order.Price != nil {
		fmt.Fprintf(&b, "Fare: %s %s\n", order.Price.StringFixed(2), currency)
	}
	fmt.Fprintf(&b, "Bonus: %s %s\n", order.BonusFare.StringFixed(2), currency)
	if order.TotalPrice != nil {
		fmt.Fprintf(&b, "Total: %s %s", order.TotalPrice.StringFixed(2), currency)
	}
	return b.String()
}
