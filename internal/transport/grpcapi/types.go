package grpcapi

import (
	"time"

	"taxi-dispatch/internal/transport"
)

type Empty struct{}

type TokenRequest struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Secret string `json:"secret,omitempty"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	Subject   string `json:"subject"`
	ExpiresAt string `json:"expires_at"`
}

type RegisterClientRequest struct {
	ExternalID  string `json:"external_id"`
	ChatAddress string `json:"chat_address"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

type UpdateContactRequest struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

type RegisterDriverRequest struct {
	ExternalID   string `json:"external_id"`
	ChatAddress  string `json:"chat_address"`
	FullName     string `json:"full_name"`
	PhoneNumber  string `json:"phone_number"`
	CarModel     string `json:"car_model"`
	CarColor     string `json:"car_color"`
	LicensePlate string `json:"license_plate"`
}

type PlaceOrderRequest struct {
	StartAddress string             `json:"start_address"`
	EndAddress   string             `json:"end_address"`
	Start        transport.Location `json:"start"`
	End          transport.Location `json:"end"`
	BasePrice    string             `json:"base_price"`
	BonusFare    string             `json:"bonus_fare"`
	Notes        string             `json:"notes"`
}

type OrderIDRequest struct {
	OrderID string `json:"order_id"`
}

type PageRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListOrdersRequest struct {
	Statuses []string `json:"statuses"`
	ClientID string   `json:"client_id"`
	DriverID string   `json:"driver_id"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

type ListDriversRequest struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type SetDriverStatusRequest struct {
	DriverID string `json:"driver_id"`
	Status   string `json:"status"`
}

type HeartbeatResponse struct {
	Driver      transport.DriverResponse `json:"driver"`
	ActiveUntil *time.Time               `json:"active_until,omitempty"`
}

type OrderList struct {
	Orders []transport.OrderResponse `json:"orders"`
}

type DriverList struct {
	Drivers []transport.DriverResponse `json:"drivers"`
}
