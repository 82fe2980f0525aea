package grpcapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"taxi-dispatch/internal/auth"
	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/service"
	"taxi-dispatch/internal/transport"
)

type Server struct {
	svc  *service.Service
	auth *auth.Authenticator
	log  logrus.FieldLogger
}

func NewServer(svc *service.Service, authenticator *auth.Authenticator, log logrus.FieldLogger) *grpc.Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	server := &Server{svc: svc, auth: authenticator, log: log}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(server.logInterceptor(), server.authInterceptor()))

	grpcServer.RegisterService(&authServiceDesc, server)
	grpcServer.RegisterService(&clientServiceDesc, server)
	grpcServer.RegisterService(&driverServiceDesc, server)
	grpcServer.RegisterService(&adminServiceDesc, server)

	return grpcServer
}

func (s *Server) logInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		entry := s.log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     code.String(),
			"duration": time.Since(start).String(),
		})
		if code == codes.Internal || code == codes.Unknown {
			entry.WithError(err).Error("grpc call failed")
		} else {
			entry.Debug("grpc call")
		}
		return resp, err
	}
}

func (s *Server) authInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		authHeader := ""
		if values := md.Get("authorization"); len(values) > 0 {
			authHeader = values[0]
		}
		token := auth.ExtractBearerToken(authHeader)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}
		claims, err := s.auth.ParseToken(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		ctx = auth.ContextWithClaims(ctx, claims)
		return handler(ctx, req)
	}
}

func (s *Server) IssueToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.Name == "" || !domain.ValidateRole(req.Role) {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	subject := req.Name
	switch req.Role {
	case domain.RoleAdmin:
		if err := s.auth.AuthorizeAdmin(req.Secret); err != nil {
			return nil, mapServiceError(err)
		}
	case domain.RoleClient:
		client, err := s.svc.GetClientByExternalID(ctx, req.Name)
		if err != nil {
			return nil, mapServiceError(err)
		}
		subject = client.ID
	case domain.RoleDriver:
		driver, err := s.svc.GetDriverByExternalID(ctx, req.Name)
		if err != nil {
			return nil, mapServiceError(err)
		}
		subject = driver.ID
	}
	token, exp, err := s.auth.IssueToken(subject, req.Role)
	if err != nil {
		return nil, status.Error(codes.Internal, "token error")
	}
	return &TokenResponse{Token: token, Subject: subject, ExpiresAt: exp.Format(time.RFC3339)}, nil
}

// GetOrder is shared by all three role services; read access is decided by
// the caller's role.
func (s *Server) GetOrder(ctx context.Context, req *OrderIDRequest) (*transport.OrderResponse, error) {
	claims, err := getClaims(ctx)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.GetOrder(ctx, claims.Subject, claims.Role, req.OrderID))
}

func (s *Server) RegisterClient(ctx context.Context, req *RegisterClientRequest) (*transport.ClientResponse, error) {
	return clientResult(s.svc.GetOrCreateClient(ctx, service.RegisterClientRequest{
		ExternalID:  req.ExternalID,
		ChatAddress: req.ChatAddress,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	}))
}

func (s *Server) UpdateContact(ctx context.Context, req *UpdateContactRequest) (*transport.ClientResponse, error) {
	claims, err := requireRole(ctx, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	return clientResult(s.svc.UpdateClientContact(ctx, claims.Subject, req.FullName, req.PhoneNumber))
}

func (s *Server) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	basePrice, err := transport.ParseMoney(req.BasePrice)
	if err != nil {
		return nil, mapServiceError(err)
	}
	bonusFare, err := transport.ParseMoney(req.BonusFare)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return orderResult(s.svc.PlaceOrder(ctx, claims.Subject, service.PlaceOrderRequest{
		StartAddress: req.StartAddress,
		EndAddress:   req.EndAddress,
		Start:        req.Start.Domain(),
		End:          req.End.Domain(),
		BasePrice:    basePrice,
		BonusFare:    bonusFare,
		Notes:        req.Notes,
	}))
}

func (s *Server) ClientCancelOrder(ctx context.Context, req *OrderIDRequest) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.CancelOrderByClient(ctx, req.OrderID, claims.Subject))
}

func (s *Server) ClientListOrders(ctx context.Context, req *PageRequest) (*OrderList, error) {
	claims, err := requireRole(ctx, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	return orderListResult(s.svc.FindOrdersByClient(ctx, claims.Subject, toPage(req)))
}

func (s *Server) LatestOrder(ctx context.Context, _ *Empty) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.FindMostRecentOrderByClient(ctx, claims.Subject))
}

func (s *Server) RegisterDriver(ctx context.Context, req *RegisterDriverRequest) (*transport.DriverResponse, error) {
	return driverResult(s.svc.RegisterDriver(ctx, service.RegisterDriverRequest{
		ExternalID:   req.ExternalID,
		ChatAddress:  req.ChatAddress,
		FullName:     req.FullName,
		PhoneNumber:  req.PhoneNumber,
		CarModel:     req.CarModel,
		CarColor:     req.CarColor,
		LicensePlate: req.LicensePlate,
	}))
}

func (s *Server) Heartbeat(ctx context.Context, _ *Empty) (*HeartbeatResponse, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	driver, err := s.svc.DriverHeartbeat(ctx, claims.Subject)
	if err != nil {
		return nil, mapServiceError(err)
	}
	resp := &HeartbeatResponse{Driver: transport.FromDriver(driver)}
	if deadline, ok := s.svc.HeartbeatDeadline(driver.ID); ok {
		resp.ActiveUntil = &deadline
	}
	return resp, nil
}

func (s *Server) GoOffline(ctx context.Context, _ *Empty) (*transport.DriverResponse, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	return driverResult(s.svc.DriverDeactivate(ctx, claims.Subject))
}

func (s *Server) AvailableOrders(ctx context.Context, req *PageRequest) (*OrderList, error) {
	if _, err := requireRole(ctx, domain.RoleDriver); err != nil {
		return nil, err
	}
	return orderListResult(s.svc.FindAvailableOrders(ctx, toPage(req)))
}

func (s *Server) CurrentOrder(ctx context.Context, _ *Empty) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.FindActiveOrderByDriver(ctx, claims.Subject))
}

func (s *Server) DriverListOrders(ctx context.Context, req *PageRequest) (*OrderList, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	return orderListResult(s.svc.FindOrdersByDriver(ctx, claims.Subject, toPage(req)))
}

func (s *Server) AcceptOrder(ctx context.Context, req *OrderIDRequest) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.AcceptOrder(ctx, req.OrderID, claims.Subject))
}

func (s *Server) StartTrip(ctx context.Context, req *OrderIDRequest) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.StartTrip(ctx, req.OrderID, claims.Subject))
}

func (s *Server) CompleteOrder(ctx context.Context, req *OrderIDRequest) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.CompleteOrder(ctx, req.OrderID, claims.Subject))
}

func (s *Server) DriverCancelOrder(ctx context.Context, req *OrderIDRequest) (*transport.OrderResponse, error) {
	claims, err := requireRole(ctx, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	return orderResult(s.svc.CancelOrderByDriver(ctx, req.OrderID, claims.Subject))
}

func (s *Server) AdminListOrders(ctx context.Context, req *ListOrdersRequest) (*OrderList, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	filter := service.OrderFilter{NewestFirst: true, Limit: req.Limit, Offset: req.Offset}
	for _, raw := range req.Statuses {
		st, err := domain.ParseOrderStatus(raw)
		if err != nil {
			return nil, mapServiceError(err)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if req.ClientID != "" {
		filter.ClientID = &req.ClientID
	}
	if req.DriverID != "" {
		filter.DriverID = &req.DriverID
	}
	return orderListResult(s.svc.AdminListOrders(ctx, filter))
}

func (s *Server) AdminListDrivers(ctx context.Context, req *ListDriversRequest) (*DriverList, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	filter := service.DriverFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		st, err := domain.ParseDriverStatus(req.Status)
		if err != nil {
			return nil, mapServiceError(err)
		}
		filter.Status = &st
	}
	drivers, err := s.svc.AdminListDrivers(ctx, filter)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return &DriverList{Drivers: transport.FromDrivers(drivers)}, nil
}

func (s *Server) SetDriverStatus(ctx context.Context, req *SetDriverStatusRequest) (*transport.DriverResponse, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return driverResult(s.svc.AdminSetDriverStatus(ctx, req.DriverID, domain.DriverStatus(req.Status)))
}

func (s *Server) SuitableDrivers(ctx context.Context, req *OrderIDRequest) (*DriverList, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	drivers, err := s.svc.FindSuitableDrivers(ctx, req.OrderID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return &DriverList{Drivers: transport.FromDrivers(drivers)}, nil
}

func (s *Server) SystemCancelOrder(ctx context.Context, req *OrderIDRequest) (*transport.OrderResponse, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return orderResult(s.svc.CancelOrderBySystem(ctx, req.OrderID))
}
