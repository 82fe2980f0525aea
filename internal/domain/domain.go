package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
	RoleDriver = "driver"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusAccepted   OrderStatus = "ACCEPTED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCanceled   OrderStatus = "CANCELED"
)

// ActiveOrderStatuses are the non-terminal statuses. A client or driver may
// hold at most one order in any of them.
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusInProgress,
}

type CancellationSource string

const (
	CancelledByClient CancellationSource = "CLIENT"
	CancelledByDriver CancellationSource = "DRIVER"
	CancelledBySystem CancellationSource = "SYSTEM"
)

type DriverStatus string

const (
	DriverStatusPendingApproval DriverStatus = "PENDING_APPROVAL"
	DriverStatusInactive        DriverStatus = "INACTIVE"
	DriverStatusActive          DriverStatus = "ACTIVE"
	DriverStatusBanned          DriverStatus = "BANNED"
)

type Location struct {
	Lat float64
	Lng float64
}

// Route is what a route provider reports for a start/end pair.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
}

type Order struct {
	ID                 string
	ClientID           string
	DriverID           *string
	Status             OrderStatus
	StartAddress       string
	EndAddress         string
	Start              Location
	End                Location
	ApproxDistanceKm   decimal.Decimal
	ApproxDurationMin  decimal.Decimal
	ActualDurationMin  *decimal.Decimal
	BasePrice          decimal.Decimal
	BonusFare          decimal.Decimal
	Price              *decimal.Decimal
	TotalPrice         *decimal.Decimal
	Notes              string
	CancellationSource *CancellationSource
	CreatedAt          time.Time
	UpdatedAt          time.Time
	AcceptedAt         *time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
}

// AssignedTo reports whether driverID is the driver holding the order.
func (o *Order) AssignedTo(driverID string) bool {
	return o.DriverID != nil && *o.DriverID == driverID
}

type Driver struct {
	ID              string
	ExternalID      string
	ChatAddress     string
	FullName        string
	PhoneNumber     string
	CarModel        string
	CarColor        string
	LicensePlate    string
	Status          DriverStatus
	LastHeartbeatAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Client struct {
	ID          string
	ExternalID  string
	ChatAddress string
	FullName    string
	PhoneNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func IsTerminal(status OrderStatus) bool {
	switch status {
	case OrderStatusCompleted, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

func IsActive(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusInProgress:
		return true
	default:
		return false
	}
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusAccepted, OrderStatusCanceled},
	OrderStatusAccepted:   {OrderStatusInProgress, OrderStatusCanceled},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusCanceled},
}

// CanTransition reports whether from -> to is an edge of the order state
// machine. Terminal statuses have no outgoing edges.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HeartbeatEligible reports whether heartbeats from a driver in this status
// are honoured.
func HeartbeatEligible(status DriverStatus) bool {
	return status == DriverStatusActive || status == DriverStatusInactive
}
