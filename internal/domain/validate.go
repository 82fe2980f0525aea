package domain

import (
	"fmt"
	"strings"
	"time"
)

func ValidateLocation(loc Location) error {
	if loc.Lat < -90 || loc.Lat > 90 {
		return fmt.Errorf("lat out of range")
	}
	if loc.Lng < -180 || loc.Lng > 180 {
		return fmt.Errorf("lng out of range")
	}
	return nil
}

func ValidateRole(role string) bool {
	switch role {
	case RoleAdmin, RoleClient, RoleDriver:
		return true
	default:
		return false
	}
}

func ParseDriverStatus(s string) (DriverStatus, error) {
	status := DriverStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case DriverStatusPendingApproval, DriverStatusInactive, DriverStatusActive, DriverStatusBanned:
		return status, nil
	default:
		return "", fmt.Errorf("driver status %q: %w", s, ErrInvalid)
	}
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCanceled:
		return status, nil
	default:
		return "", fmt.Errorf("order status %q: %w", s, ErrInvalid)
	}
}

// CheckTimestamps verifies the lifecycle timestamp invariants: terminal
// orders carry exactly one of CompletedAt/CancelledAt, active orders carry
// neither, and present timestamps never go backwards.
func (o *Order) CheckTimestamps() error {
	switch {
	case o.Status == OrderStatusCompleted:
		if o.CompletedAt == nil || o.CancelledAt != nil {
			return fmt.Errorf("completed order %s must have only completed_at", o.ID)
		}
	case o.Status == OrderStatusCanceled:
		if o.CancelledAt == nil || o.CompletedAt != nil {
			return fmt.Errorf("canceled order %s must have only cancelled_at", o.ID)
		}
	default:
		if o.CompletedAt != nil || o.CancelledAt != nil {
			return fmt.Errorf("active order %s has a terminal timestamp", o.ID)
		}
	}
	last := o.CreatedAt
	for _, ts := range []*time.Time{o.AcceptedAt, o.StartedAt, o.CompletedAt, o.CancelledAt} {
		if ts == nil {
			continue
		}
		if ts.Before(last) {
			return fmt.Errorf("order %s timestamps out of order", o.ID)
		}
		last = *ts
	}
	return nil
}
