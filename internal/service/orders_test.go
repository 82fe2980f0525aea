package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/events"
)

func TestRideLifecycleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addDriver("d1", domain.DriverStatusActive)

	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "5.00", order.ApproxDistanceKm.StringFixed(2))
	assert.Equal(t, "12.00", order.ApproxDurationMin.StringFixed(2))

	order, err = env.svc.AcceptOrder(ctx, order.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusAccepted, order.Status)
	require.NotNil(t, order.DriverID)
	assert.Equal(t, "d1", *order.DriverID)

	order, err = env.svc.StartTrip(ctx, order.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInProgress, order.Status)

	env.clock.Add(12 * time.Minute)

	order, err = env.svc.CompleteOrder(ctx, order.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	require.NotNil(t, order.ActualDurationMin)
	assert.Equal(t, "12.00", order.ActualDurationMin.StringFixed(2))
	require.NotNil(t, order.Price)
	assert.Equal(t, "9.40", order.Price.StringFixed(2))
	require.NotNil(t, order.TotalPrice)
	assert.True(t, order.TotalPrice.Equal(order.Price.Add(order.BonusFare)))
	assert.Equal(t, "10.90", order.TotalPrice.StringFixed(2))

	stored := env.store.order(t, order.ID)
	require.NoError(t, stored.CheckTimestamps())
	assert.Equal(t, domain.OrderStatusCompleted, stored.Status)

	msgs := env.notifier.messagesTo("chat-c1")
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "accepted")
	assert.Contains(t, msgs[1], "started")
	assert.Contains(t, msgs[2], "Total: 10.90 KZT")

	for _, eventType := range []string{
		events.EventOrderPlaced,
		events.EventOrderAccepted,
		events.EventOrderStarted,
		events.EventOrderCompleted,
	} {
		assert.Len(t, env.store.eventsOfType(eventType), 1, eventType)
	}
}

func TestPlaceOrderRejectsSecondActiveOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")

	_, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)

	_, err = env.svc.PlaceOrder(ctx, "c1", placeRequest())
	assert.ErrorIs(t, err, domain.ErrActiveOrderConflict)
}

func TestPlaceOrderAfterTerminalOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")

	first, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)
	_, err = env.svc.CancelOrderByClient(ctx, first.ID, "c1")
	require.NoError(t, err)

	second, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestPlaceOrderConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.addClient("c1")

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.PlaceOrder(context.Background(), "c1", placeRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var success, conflict int
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrActiveOrderConflict):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, conflict)

	active, err := env.store.ListOrders(context.Background(), OrderFilter{
		ClientID: strPtr("c1"),
		Statuses: domain.ActiveOrderStatuses,
	})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestPlaceOrderRoutingFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addClient("c1")
	env.routes.err = errors.New("upstream timeout")

	_, err := env.svc.PlaceOrder(context.Background(), "c1", placeRequest())
	assert.ErrorIs(t, err, domain.ErrRoutingUnavailable)
	assert.Empty(t, env.store.orders)
	assert.Empty(t, env.store.eventsOfType(events.EventOrderPlaced))
}

func TestPlaceOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addClient("c1")

	req := placeRequest()
	req.BonusFare = decimal.NewFromInt(-1)
	_, err := env.svc.PlaceOrder(context.Background(), "c1", req)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	req = placeRequest()
	req.Start = domain.Location{Lat: 120}
	_, err = env.svc.PlaceOrder(context.Background(), "c1", req)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = env.svc.PlaceOrder(context.Background(), "missing", placeRequest())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, env.routes.calls)
}

func TestPlaceOrderRoundsRouteMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.addClient("c1")
	env.routes.route = domain.Route{DistanceMeters: 3456.7, DurationSeconds: 601}

	order, err := env.svc.PlaceOrder(context.Background(), "c1", placeRequest())
	require.NoError(t, err)
	assert.Equal(t, "3.46", order.ApproxDistanceKm.StringFixed(2))
	assert.Equal(t, "10.02", order.ApproxDurationMin.StringFixed(2))
}

func TestAcceptOrderConcurrentDriverSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addDriver("d1", domain.DriverStatusActive)

	const n = 8
	orderIDs := make([]string, n)
	for i := 0; i < n; i++ {
		clientID := fmt.Sprintf("c%d", i)
		env.addClient(clientID)
		order, err := env.svc.PlaceOrder(ctx, clientID, placeRequest())
		require.NoError(t, err)
		orderIDs[i] = order.ID
	}

	var wg sync.WaitGroup
	results := make(chan error, n)
	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, err := env.svc.AcceptOrder(context.Background(), orderID, "d1")
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var success, conflict int
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrActiveOrderConflict):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, conflict)

	held, err := env.store.ListOrders(ctx, OrderFilter{DriverID: strPtr("d1"), Statuses: domain.ActiveOrderStatuses})
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestAcceptOrderConcurrentOrderSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)

	const n = 8
	for i := 0; i < n; i++ {
		env.addDriver(fmt.Sprintf("d%d", i), domain.DriverStatusActive)
	}

	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			_, err := env.svc.AcceptOrder(context.Background(), order.ID, driverID)
			results <- err
		}(fmt.Sprintf("d%d", i))
	}
	wg.Wait()
	close(results)

	var success, conflict int
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrOrderStatusConflict):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, conflict)
}

func TestAcceptOrderRequiresActiveDriver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addDriver("d1", domain.DriverStatusInactive)
	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)

	_, err = env.svc.AcceptOrder(ctx, order.ID, "d1")
	assert.ErrorIs(t, err, domain.ErrDriverUnavailable)
	assert.Equal(t, domain.OrderStatusPending, env.store.order(t, order.ID).Status)

	_, err = env.svc.AcceptOrder(ctx, order.ID, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.AcceptOrder(ctx, "missing", "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addDriver("d1", domain.DriverStatusActive)
	env.addDriver("d2", domain.DriverStatusActive)

	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)

	_, err = env.svc.StartTrip(ctx, order.ID, "d1")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = env.svc.AcceptOrder(ctx, order.ID, "d1")
	require.NoError(t, err)

	_, err = env.svc.CompleteOrder(ctx, order.ID, "d1")
	assert.ErrorIs(t, err, domain.ErrOrderStatusConflict)
	assert.Equal(t, domain.OrderStatusAccepted, env.store.order(t, order.ID).Status)

	_, err = env.svc.AcceptOrder(ctx, order.ID, "d2")
	assert.ErrorIs(t, err, domain.ErrOrderStatusConflict)

	_, err = env.svc.StartTrip(ctx, order.ID, "d2")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = env.svc.StartTrip(ctx, order.ID, "d1")
	require.NoError(t, err)
	_, err = env.svc.StartTrip(ctx, order.ID, "d1")
	assert.ErrorIs(t, err, domain.ErrOrderStatusConflict)

	_, err = env.svc.CompleteOrder(ctx, order.ID, "d1")
	require.NoError(t, err)

	_, err = env.svc.CancelOrderByDriver(ctx, order.ID, "d1")
	assert.ErrorIs(t, err, domain.ErrOrderStatusConflict)
	_, err = env.svc.CancelOrderByClient(ctx, order.ID, "c1")
	assert.ErrorIs(t, err, domain.ErrOrderStatusConflict)

	stored := env.store.order(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, stored.Status)
	assert.Nil(t, stored.CancellationSource)
	require.NoError(t, stored.CheckTimestamps())
}

func TestCompleteOrderClampsNegativeDuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addDriver("d1", domain.DriverStatusActive)

	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)
	_, err = env.svc.AcceptOrder(ctx, order.ID, "d1")
	require.NoError(t, err)
	_, err = env.svc.StartTrip(ctx, order.ID, "d1")
	require.NoError(t, err)

	env.store.mu.Lock()
	future := env.clock.Now().UTC().Add(time.Hour)
	env.store.orders[order.ID].StartedAt = &future
	env.store.mu.Unlock()

	completed, err := env.svc.CompleteOrder(ctx, order.ID, "d1")
	require.NoError(t, err)
	assert.True(t, completed.ActualDurationMin.IsZero())
	assert.Equal(t, "7.00", completed.Price.StringFixed(2))
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, future, *completed.CompletedAt)
	require.NoError(t, env.store.order(t, order.ID).CheckTimestamps())
}

func TestCancelByClientNotifiesDriver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addClient("c2")
	env.addDriver("d1", domain.DriverStatusActive)

	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)
	_, err = env.svc.AcceptOrder(ctx, order.ID, "d1")
	require.NoError(t, err)

	_, err = env.svc.CancelOrderByClient(ctx, order.ID, "c2")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	canceled, err := env.svc.CancelOrderByClient(ctx, order.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CancellationSource)
	assert.Equal(t, domain.CancelledByClient, *canceled.CancellationSource)
	require.NotNil(t, canceled.CancelledAt)
	assert.Len(t, env.notifier.messagesTo("chat-d1"), 1)

	// the driver is free again
	env.addClient("c3")
	next, err := env.svc.PlaceOrder(ctx, "c3", placeRequest())
	require.NoError(t, err)
	_, err = env.svc.AcceptOrder(ctx, next.ID, "d1")
	require.NoError(t, err)
}

func TestCancelPendingByClientNotifiesNobody(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")

	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)
	_, err = env.svc.CancelOrderByClient(ctx, order.ID, "c1")
	require.NoError(t, err)
	assert.Empty(t, env.notifier.sent)
}

func TestCancelByDriverRequiresAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addDriver("d1", domain.DriverStatusActive)

	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)

	_, err = env.svc.CancelOrderByDriver(ctx, order.ID, "d1")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = env.svc.AcceptOrder(ctx, order.ID, "d1")
	require.NoError(t, err)
	canceled, err := env.svc.CancelOrderByDriver(ctx, order.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.CancelledByDriver, *canceled.CancellationSource)
	assert.Len(t, env.notifier.messagesTo("chat-c1"), 2)
}

func TestCancelBySystem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addDriver("d1", domain.DriverStatusActive)

	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)
	_, err = env.svc.AcceptOrder(ctx, order.ID, "d1")
	require.NoError(t, err)

	canceled, err := env.svc.CancelOrderBySystem(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelledBySystem, *canceled.CancellationSource)
	assert.Len(t, env.notifier.messagesTo("chat-d1"), 1)
	assert.Len(t, env.notifier.messagesTo("chat-c1"), 2)
}

func TestCancelRacesAccept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addClient("c1")
	env.addDriver("d1", domain.DriverStatusActive)
	order, err := env.svc.PlaceOrder(ctx, "c1", placeRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var acceptErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = env.svc.AcceptOrder(context.Background(), order.ID, "d1")
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = env.svc.CancelOrderByClient(context.Background(), order.ID, "c1")
	}()
	wg.Wait()

	// cancel is legal from ACCEPTED too, so it always lands; accept only
	// wins when it commits first.
	require.NoError(t, cancelErr)
	if acceptErr != nil {
		assert.ErrorIs(t, acceptErr, domain.ErrOrderStatusConflict)
	}
	assert.Equal(t, domain.OrderStatusCanceled, env.store.order(t, order.ID).Status)
}

func strPtr(s string) *string {
	return &s
}
