package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	legal := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusAccepted}:     true,
		{OrderStatusPending, OrderStatusCanceled}:     true,
		{OrderStatusAccepted, OrderStatusInProgress}:  true,
		{OrderStatusAccepted, OrderStatusCanceled}:    true,
		{OrderStatusInProgress, OrderStatusCompleted}: true,
		{OrderStatusInProgress, OrderStatusCanceled}:  true,
	}
	all := []OrderStatus{
		OrderStatusPending,
		OrderStatusAccepted,
		OrderStatusInProgress,
		OrderStatusCompleted,
		OrderStatusCanceled,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestActiveAndTerminalPartition(t *testing.T) {
	for _, status := range ActiveOrderStatuses {
		assert.True(t, IsActive(status))
		assert.False(t, IsTerminal(status))
	}
	for _, status := range []OrderStatus{OrderStatusCompleted, OrderStatusCanceled} {
		assert.False(t, IsActive(status))
		assert.True(t, IsTerminal(status))
	}
}

func TestHeartbeatEligible(t *testing.T) {
	assert.True(t, HeartbeatEligible(DriverStatusActive))
	assert.True(t, HeartbeatEligible(DriverStatusInactive))
	assert.False(t, HeartbeatEligible(DriverStatusBanned))
	assert.False(t, HeartbeatEligible(DriverStatusPendingApproval))
}

func TestParseStatuses(t *testing.T) {
	status, err := ParseDriverStatus(" banned ")
	require.NoError(t, err)
	assert.Equal(t, DriverStatusBanned, status)

	_, err = ParseDriverStatus("ONLINE")
	assert.True(t, errors.Is(err, ErrInvalid))

	orderStatus, err := ParseOrderStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusInProgress, orderStatus)

	_, err = ParseOrderStatus("DONE")
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestCheckTimestamps(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := base.Add(d)
		return &ts
	}

	completed := &Order{
		ID:          "o1",
		Status:      OrderStatusCompleted,
		CreatedAt:   base,
		AcceptedAt:  at(time.Minute),
		StartedAt:   at(2 * time.Minute),
		CompletedAt: at(14 * time.Minute),
	}
	require.NoError(t, completed.CheckTimestamps())

	both := *completed
	both.CancelledAt = at(15 * time.Minute)
	assert.Error(t, both.CheckTimestamps())

	pending := &Order{ID: "o2", Status: OrderStatusPending, CreatedAt: base}
	require.NoError(t, pending.CheckTimestamps())
	pending.CancelledAt = at(time.Minute)
	assert.Error(t, pending.CheckTimestamps())

	backwards := &Order{
		ID:          "o3",
		Status:      OrderStatusCanceled,
		CreatedAt:   base,
		AcceptedAt:  at(5 * time.Minute),
		CancelledAt: at(time.Minute),
	}
	assert.Error(t, backwards.CheckTimestamps())
}

func TestAssignedTo(t *testing.T) {
	order := &Order{}
	assert.False(t, order.AssignedTo("d1"))
	driverID := "d1"
	order.DriverID = &driverID
	assert.True(t, order.AssignedTo("d1"))
	assert.False(t, order.AssignedTo("d2"))
}

func TestValidateLocation(t *testing.T) {
	assert.NoError(t, ValidateLocation(Location{Lat: 43.24, Lng: 76.91}))
	assert.Error(t, ValidateLocation(Location{Lat: 91}))
	assert.Error(t, ValidateLocation(Location{Lng: -181}))
}
