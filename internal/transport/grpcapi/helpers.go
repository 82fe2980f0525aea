package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"taxi-dispatch/internal/auth"
	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/service"
	"taxi-dispatch/internal/transport"
)

func getClaims(ctx context.Context) (*auth.Claims, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return claims, nil
}

func requireRole(ctx context.Context, role string) (*auth.Claims, error) {
	claims, err := getClaims(ctx)
	if err != nil {
		return nil, err
	}
	if claims.Role != role {
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}
	return claims, nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, domain.ErrAccessDenied):
		return status.Error(codes.PermissionDenied, "access denied")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrOrderStatusConflict):
		return status.Error(codes.FailedPrecondition, "order status conflict")
	case errors.Is(err, domain.ErrActiveOrderConflict):
		return status.Error(codes.AlreadyExists, "active order already exists")
	case errors.Is(err, domain.ErrDriverUnavailable):
		return status.Error(codes.FailedPrecondition, "driver is not active")
	case errors.Is(err, domain.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, domain.ErrInvalid):
		return status.Error(codes.InvalidArgument, "invalid request")
	case errors.Is(err, domain.ErrRoutingUnavailable):
		return status.Error(codes.Unavailable, "routing unavailable")
	case errors.Is(err, domain.ErrBusy):
		return status.Error(codes.Aborted, "resource busy")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func orderResult(order *domain.Order, err error) (*transport.OrderResponse, error) {
	if err != nil {
		return nil, mapServiceError(err)
	}
	resp := transport.FromOrder(order)
	return &resp, nil
}

func orderListResult(orders []*domain.Order, err error) (*OrderList, error) {
	if err != nil {
		return nil, mapServiceError(err)
	}
	return &OrderList{Orders: transport.FromOrders(orders)}, nil
}

func driverResult(driver *domain.Driver, err error) (*transport.DriverResponse, error) {
	if err != nil {
		return nil, mapServiceError(err)
	}
	resp := transport.FromDriver(driver)
	return &resp, nil
}

func clientResult(client *domain.Client, err error) (*transport.ClientResponse, error) {
	if err != nil {
		return nil, mapServiceError(err)
	}
	resp := transport.FromClient(client)
	return &resp, nil
}

func toPage(req *PageRequest) service.Page {
	return service.Page{Limit: req.Limit, Offset: req.Offset}
}
