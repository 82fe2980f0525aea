package service

import (
	"context"
	"fmt"
	"time"

	"taxi-dispatch/internal/domain"
)

type Page struct {
	Limit  int
	Offset int
}

// GetOrder applies read access: admins see everything, clients their own
// orders, drivers the orders assigned to them plus the open PENDING pool.
func (s *Service) GetOrder(ctx context.Context, requesterID, role, orderID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	switch role {
	case domain.RoleAdmin:
		return order, nil
	case domain.RoleClient:
		if order.ClientID == requesterID {
			return order, nil
		}
	case domain.RoleDriver:
		if order.AssignedTo(requesterID) || order.Status == domain.OrderStatusPending {
			return order, nil
		}
	}
	return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrAccessDenied)
}

// FindActiveOrderByDriver returns the ACCEPTED or IN_PROGRESS order the
// driver holds.
func (s *Service) FindActiveOrderByDriver(ctx context.Context, driverID string) (*domain.Order, error) {
	orders, err := s.store.ListOrders(ctx, OrderFilter{
		DriverID: &driverID,
		Statuses: []domain.OrderStatus{domain.OrderStatusAccepted, domain.OrderStatusInProgress},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("active order for driver %s: %w", driverID, domain.ErrNotFound)
	}
	return orders[0], nil
}

func (s *Service) FindOrdersByClient(ctx context.Context, clientID string, page Page) ([]*domain.Order, error) {
	return s.store.ListOrders(ctx, OrderFilter{
		ClientID:    &clientID,
		NewestFirst: true,
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
}

func (s *Service) FindOrdersByDriver(ctx context.Context, driverID string, page Page) ([]*domain.Order, error) {
	return s.store.ListOrders(ctx, OrderFilter{
		DriverID:    &driverID,
		NewestFirst: true,
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
}

func (s *Service) FindMostRecentOrderByClient(ctx context.Context, clientID string) (*domain.Order, error) {
	orders, err := s.store.ListOrders(ctx, OrderFilter{
		ClientID:    &clientID,
		NewestFirst: true,
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("orders for client %s: %w", clientID, domain.ErrNotFound)
	}
	return orders[0], nil
}

// FindAvailableOrders lists PENDING orders, oldest first.
func (s *Service) FindAvailableOrders(ctx context.Context, page Page) ([]*domain.Order, error) {
	return s.store.ListOrders(ctx, OrderFilter{
		Statuses: []domain.OrderStatus{domain.OrderStatusPending},
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
}

func (s *Service) FindAvailableDrivers(ctx context.Context) ([]*domain.Driver, error) {
	active := domain.DriverStatusActive
	return s.store.ListDrivers(ctx, DriverFilter{Status: &active})
}

// FindSuitableDrivers returns candidates for a PENDING order. There is no
// ranking: every ACTIVE driver qualifies.
func (s *Service) FindSuitableDrivers(ctx context.Context, orderID string) ([]*domain.Driver, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrOrderStatusConflict)
	}
	return s.FindAvailableDrivers(ctx)
}

func (s *Service) AdminListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	return s.store.ListOrders(ctx, filter)
}

func (s *Service) AdminListDrivers(ctx context.Context, filter DriverFilter) ([]*domain.Driver, error) {
	return s.store.ListDrivers(ctx, filter)
}

// HeartbeatDeadline reports when the driver's pending deactivation fires,
// if one is armed.
func (s *Service) HeartbeatDeadline(driverID string) (time.Time, bool) {
	return s.availability.Deadline(driverID)
}
