package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"taxi-dispatch/internal/domain"
)

const (
	AggregateOrder  = "order"
	AggregateDriver = "driver"
	AggregateClient = "client"
)

const (
	EventOrderPlaced         = "order.placed"
	EventOrderAccepted       = "order.accepted"
	EventOrderStarted        = "order.started"
	EventOrderCompleted      = "order.completed"
	EventOrderCanceled       = "order.canceled"
	EventDriverRegistered    = "driver.registered"
	EventDriverStatusChanged = "driver.status_changed"
	EventClientRegistered    = "client.registered"
)

type Event struct {
	ID            string
	Type          string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
	OccurredAt    time.Time
}

func NewEvent(eventType, aggregateType, aggregateID string, payload any, occurredAt time.Time) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
		OccurredAt:    occurredAt,
	}
}

func NewOrderEvent(eventType string, order *domain.Order, occurredAt time.Time) Event {
	payload := map[string]any{
		"order_id":    order.ID,
		"status":      order.Status,
		"client_id":   order.ClientID,
		"driver_id":   order.DriverID,
		"occurred_at": occurredAt,
	}
	if order.CancellationSource != nil {
		payload["cancellation_source"] = *order.CancellationSource
	}
	if order.TotalPrice != nil {
		payload["total_price"] = order.TotalPrice.StringFixed(2)
	}
	return NewEvent(eventType, AggregateOrder, order.ID, payload, occurredAt)
}

// NewDriverEvent records a driver status change. reason tells heartbeat,
// timeout, logoff and admin transitions apart.
func NewDriverEvent(eventType string, driver *domain.Driver, previous domain.DriverStatus, reason string, occurredAt time.Time) Event {
	payload := map[string]any{
		"driver_id":       driver.ID,
		"status":          driver.Status,
		"previous_status": previous,
		"reason":          reason,
		"occurred_at":     occurredAt,
	}
	return NewEvent(eventType, AggregateDriver, driver.ID, payload, occurredAt)
}

func NewClientEvent(eventType string, client *domain.Client, occurredAt time.Time) Event {
	payload := map[string]any{
		"client_id":   client.ID,
		"occurred_at": occurredAt,
	}
	return NewEvent(eventType, AggregateClient, client.ID, payload, occurredAt)
}
