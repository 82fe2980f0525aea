package transport

import (
	"time"

	"github.com/shopspring/decimal"

	"taxi-dispatch/internal/domain"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OrderResponse carries money and metrics as decimal strings so clients never
// see float rounding.
type OrderResponse struct {
	ID                 string     `json:"id"`
	ClientID           string     `json:"client_id"`
	DriverID           *string    `json:"driver_id,omitempty"`
	Status             string     `json:"status"`
	StartAddress       string     `json:"start_address"`
	EndAddress         string     `json:"end_address"`
	Start              Location   `json:"start"`
	End                Location   `json:"end"`
	ApproxDistanceKm   string     `json:"approx_distance_km"`
	ApproxDurationMin  string     `json:"approx_duration_min"`
	ActualDurationMin  *string    `json:"actual_duration_min,omitempty"`
	BasePrice          string     `json:"base_price"`
	BonusFare          string     `json:"bonus_fare"`
	Price              *string    `json:"price,omitempty"`
	TotalPrice         *string    `json:"total_price,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CancellationSource *string    `json:"cancellation_source,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

type DriverResponse struct {
	ID              string     `json:"id"`
	ExternalID      string     `json:"external_id"`
	FullName        string     `json:"full_name"`
	PhoneNumber     string     `json:"phone_number"`
	CarModel        string     `json:"car_model"`
	CarColor        string     `json:"car_color"`
	LicensePlate    string     `json:"license_plate"`
	Status          string     `json:"status"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type ClientResponse struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func FromOrder(order *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:                order.ID,
		ClientID:          order.ClientID,
		DriverID:          order.DriverID,
		Status:            string(order.Status),
		StartAddress:      order.StartAddress,
		EndAddress:        order.EndAddress,
		Start:             FromLocation(order.Start),
		End:               FromLocation(order.End),
		ApproxDistanceKm:  order.ApproxDistanceKm.StringFixed(2),
		ApproxDurationMin: order.ApproxDurationMin.StringFixed(2),
		ActualDurationMin: decimalString(order.ActualDurationMin),
		BasePrice:         order.BasePrice.StringFixed(2),
		BonusFare:         order.BonusFare.StringFixed(2),
		Price:             decimalString(order.Price),
		TotalPrice:        decimalString(order.TotalPrice),
		Notes:             order.Notes,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
		AcceptedAt:        order.AcceptedAt,
		StartedAt:         order.StartedAt,
		CompletedAt:       order.CompletedAt,
		CancelledAt:       order.CancelledAt,
	}
	if order.CancellationSource != nil {
		source := string(*order.CancellationSource)
		resp.CancellationSource = &source
	}
	return resp
}

func FromOrders(orders []*domain.Order) []OrderResponse {
	resp := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, FromOrder(order))
	}
	return resp
}

func FromDriver(driver *domain.Driver) DriverResponse {
	return DriverResponse{
		ID:              driver.ID,
		ExternalID:      driver.ExternalID,
		FullName:        driver.FullName,
		PhoneNumber:     driver.PhoneNumber,
		CarModel:        driver.CarModel,
		CarColor:        driver.CarColor,
		LicensePlate:    driver.LicensePlate,
		Status:          string(driver.Status),
		LastHeartbeatAt: driver.LastHeartbeatAt,
		CreatedAt:       driver.CreatedAt,
		UpdatedAt:       driver.UpdatedAt,
	}
}

func FromDrivers(drivers []*domain.Driver) []DriverResponse {
	resp := make([]DriverResponse, 0, len(drivers))
	for _, driver := range drivers {
		resp = append(resp, FromDriver(driver))
	}
	return resp
}

func FromClient(client *domain.Client) ClientResponse {
	return ClientResponse{
		ID:          client.ID,
		ExternalID:  client.ExternalID,
		FullName:    client.FullName,
		PhoneNumber: client.PhoneNumber,
		CreatedAt:   client.CreatedAt,
		UpdatedAt:   client.UpdatedAt,
	}
}

func FromLocation(loc domain.Location) Location {
	return Location{Lat: loc.Lat, Lng: loc.Lng}
}

func (l Location) Domain() domain.Location {
	return domain.Location{Lat: l.Lat, Lng: l.Lng}
}

// ParseMoney reads an optional decimal string. Empty means zero.
func ParseMoney(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, domain.ErrInvalid
	}
	return d, nil
}

func decimalString(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.StringFixed(2)
	return &s
}
