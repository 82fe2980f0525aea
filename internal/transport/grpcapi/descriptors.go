package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"taxi-dispatch/internal/transport"
)

const (
	authServiceName   = "dispatch.AuthService"
	clientServiceName = "dispatch.ClientService"
	driverServiceName = "dispatch.DriverService"
	adminServiceName  = "dispatch.AdminService"
)

type AuthService interface {
	IssueToken(context.Context, *TokenRequest) (*TokenResponse, error)
}

type ClientService interface {
	RegisterClient(context.Context, *RegisterClientRequest) (*transport.ClientResponse, error)
	UpdateContact(context.Context, *UpdateContactRequest) (*transport.ClientResponse, error)
	PlaceOrder(context.Context, *PlaceOrderRequest) (*transport.OrderResponse, error)
	ClientCancelOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
	ClientListOrders(context.Context, *PageRequest) (*OrderList, error)
	LatestOrder(context.Context, *Empty) (*transport.OrderResponse, error)
	GetOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
}

type DriverService interface {
	RegisterDriver(context.Context, *RegisterDriverRequest) (*transport.DriverResponse, error)
	Heartbeat(context.Context, *Empty) (*HeartbeatResponse, error)
	GoOffline(context.Context, *Empty) (*transport.DriverResponse, error)
	AvailableOrders(context.Context, *PageRequest) (*OrderList, error)
	CurrentOrder(context.Context, *Empty) (*transport.OrderResponse, error)
	DriverListOrders(context.Context, *PageRequest) (*OrderList, error)
	GetOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
	AcceptOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
	StartTrip(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
	CompleteOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
	DriverCancelOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
}

type AdminService interface {
	AdminListOrders(context.Context, *ListOrdersRequest) (*OrderList, error)
	AdminListDrivers(context.Context, *ListDriversRequest) (*DriverList, error)
	SetDriverStatus(context.Context, *SetDriverStatusRequest) (*transport.DriverResponse, error)
	SuitableDrivers(context.Context, *OrderIDRequest) (*DriverList, error)
	SystemCancelOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
	GetOrder(context.Context, *OrderIDRequest) (*transport.OrderResponse, error)
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: authServiceName,
	HandlerType: (*AuthService)(nil),
	Methods: []grpc.MethodDesc{
		unary(authServiceName, "IssueToken", (*Server).IssueToken),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taxi_dispatch.proto",
}

var clientServiceDesc = grpc.ServiceDesc{
	ServiceName: clientServiceName,
	HandlerType: (*ClientService)(nil),
	Methods: []grpc.MethodDesc{
		unary(clientServiceName, "Register", (*Server).RegisterClient),
		unary(clientServiceName, "UpdateContact", (*Server).UpdateContact),
		unary(clientServiceName, "PlaceOrder", (*Server).PlaceOrder),
		unary(clientServiceName, "CancelOrder", (*Server).ClientCancelOrder),
		unary(clientServiceName, "ListOrders", (*Server).ClientListOrders),
		unary(clientServiceName, "LatestOrder", (*Server).LatestOrder),
		unary(clientServiceName, "GetOrder", (*Server).GetOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taxi_dispatch.proto",
}

var driverServiceDesc = grpc.ServiceDesc{
	ServiceName: driverServiceName,
	HandlerType: (*DriverService)(nil),
	Methods: []grpc.MethodDesc{
		unary(driverServiceName, "Register", (*Server).RegisterDriver),
		unary(driverServiceName, "Heartbeat", (*Server).Heartbeat),
		unary(driverServiceName, "GoOffline", (*Server).GoOffline),
		unary(driverServiceName, "AvailableOrders", (*Server).AvailableOrders),
		unary(driverServiceName, "CurrentOrder", (*Server).CurrentOrder),
		unary(driverServiceName, "ListOrders", (*Server).DriverListOrders),
		unary(driverServiceName, "GetOrder", (*Server).GetOrder),
		unary(driverServiceName, "AcceptOrder", (*Server).AcceptOrder),
		unary(driverServiceName, "StartTrip", (*Server).StartTrip),
		unary(driverServiceName, "CompleteOrder", (*Server).CompleteOrder),
		unary(driverServiceName, "CancelOrder", (*Server).DriverCancelOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taxi_dispatch.proto",
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminService)(nil),
	Methods: []grpc.MethodDesc{
		unary(adminServiceName, "ListOrders", (*Server).AdminListOrders),
		unary(adminServiceName, "ListDrivers", (*Server).AdminListDrivers),
		unary(adminServiceName, "SetDriverStatus", (*Server).SetDriverStatus),
		unary(adminServiceName, "SuitableDrivers", (*Server).SuitableDrivers),
		unary(adminServiceName, "CancelOrder", (*Server).SystemCancelOrder),
		unary(adminServiceName, "GetOrder", (*Server).GetOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taxi_dispatch.proto",
}

// publicMethods skip the token check.
var publicMethods = map[string]bool{
	"/" + authServiceName + "/IssueToken": true,
	"/" + clientServiceName + "/Register": true,
	"/" + driverServiceName + "/Register": true,
}

// unary builds the method handler protoc would otherwise generate for one
// request/response pair.
func unary[Req, Resp any](service, method string, call func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	invoke := func(srv any, ctx context.Context, in *Req) (any, error) {
		resp, err := call(srv.(*Server), ctx, in)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return invoke(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return invoke(srv, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
