package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

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

func NewServer(svc *service.Service, authenticator *auth.Authenticator, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{svc: svc, auth: authenticator, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Post("/auth/token", s.handleIssueToken)
	r.Post("/clients", s.handleRegisterClient)
	r.Post("/drivers", s.handleRegisterDriver)

	r.Route("/client", func(r chi.Router) {
		r.Use(s.requireRole(domain.RoleClient))
		r.Get("/me", s.handleClientMe)
		r.Patch("/me", s.handleClientUpdateContact)
		r.Post("/orders", s.handlePlaceOrder)
		r.Get("/orders", s.handleClientListOrders)
		r.Get("/orders/latest", s.handleClientLatestOrder)
		r.Get("/orders/{id}", s.handleGetOrder)
		r.Post("/orders/{id}/cancel", s.handleClientCancel)
	})

	r.Route("/driver", func(r chi.Router) {
		r.Use(s.requireRole(domain.RoleDriver))
		r.Get("/me", s.handleDriverMe)
		r.Post("/heartbeat", s.handleDriverHeartbeat)
		r.Post("/offline", s.handleDriverOffline)
		r.Get("/orders/available", s.handleAvailableOrders)
		r.Get("/orders/current", s.handleDriverCurrentOrder)
		r.Get("/orders", s.handleDriverListOrders)
		r.Get("/orders/{id}", s.handleGetOrder)
		r.Post("/orders/{id}/accept", s.handleDriverAccept)
		r.Post("/orders/{id}/start", s.handleDriverStart)
		r.Post("/orders/{id}/complete", s.handleDriverComplete)
		r.Post("/orders/{id}/cancel", s.handleDriverCancel)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireRole(domain.RoleAdmin))
		r.Get("/orders", s.handleAdminListOrders)
		r.Get("/orders/{id}", s.handleGetOrder)
		r.Get("/orders/{id}/suitable-drivers", s.handleAdminSuitableDrivers)
		r.Post("/orders/{id}/cancel", s.handleAdminCancel)
		r.Get("/drivers", s.handleAdminListDrivers)
		r.Put("/drivers/{id}/status", s.handleAdminDriverStatus)
	})

	return r
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, domain.ErrUnauthorized)
				return
			}
			claims, err := s.auth.ParseToken(token)
			if err != nil {
				writeError(w, domain.ErrUnauthorized)
				return
			}
			if claims.Role != role {
				writeError(w, domain.ErrForbidden)
				return
			}
			ctx := auth.ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// fail writes err and logs the ones that are not the caller's fault.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _, _ := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
	}
	writeError(w, err)
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleIssueToken resolves a client or driver by external id and signs a
// token whose subject is the internal id. Admin tokens carry the name as is
// and need the operator secret.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Role   string `json:"role"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalid)
		return
	}
	if req.Name == "" || !domain.ValidateRole(req.Role) {
		writeError(w, domain.ErrInvalid)
		return
	}
	subject := req.Name
	switch req.Role {
	case domain.RoleAdmin:
		if err := s.auth.AuthorizeAdmin(req.Secret); err != nil {
			s.log.WithField("name", req.Name).Warn("admin token refused")
			writeError(w, err)
			return
		}
	case domain.RoleClient:
		client, err := s.svc.GetClientByExternalID(r.Context(), req.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		subject = client.ID
	case domain.RoleDriver:
		driver, err := s.svc.GetDriverByExternalID(r.Context(), req.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		subject = driver.ID
	}
	token, exp, err := s.auth.IssueToken(subject, req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, Subject: subject, ExpiresAt: exp})
}

func (s *Server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID  string `json:"external_id"`
		ChatAddress string `json:"chat_address"`
		FullName    string `json:"full_name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalid)
		return
	}
	client, err := s.svc.GetOrCreateClient(r.Context(), service.RegisterClientRequest{
		ExternalID:  req.ExternalID,
		ChatAddress: req.ChatAddress,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromClient(client))
}

func (s *Server) handleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID   string `json:"external_id"`
		ChatAddress  string `json:"chat_address"`
		FullName     string `json:"full_name"`
		PhoneNumber  string `json:"phone_number"`
		CarModel     string `json:"car_model"`
		CarColor     string `json:"car_color"`
		LicensePlate string `json:"license_plate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalid)
		return
	}
	driver, err := s.svc.RegisterDriver(r.Context(), service.RegisterDriverRequest{
		ExternalID:   req.ExternalID,
		ChatAddress:  req.ChatAddress,
		FullName:     req.FullName,
		PhoneNumber:  req.PhoneNumber,
		CarModel:     req.CarModel,
		CarColor:     req.CarColor,
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, transport.FromDriver(driver))
}

func (s *Server) handleClientMe(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	client, err := s.svc.GetClient(r.Context(), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromClient(client))
}

func (s *Server) handleClientUpdateContact(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	var req struct {
		FullName    string `json:"full_name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalid)
		return
	}
	client, err := s.svc.UpdateClientContact(r.Context(), claims.Subject, req.FullName, req.PhoneNumber)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromClient(client))
}

type placeOrderRequest struct {
	StartAddress string             `json:"start_address"`
	EndAddress   string             `json:"end_address"`
	Start        transport.Location `json:"start"`
	End          transport.Location `json:"end"`
	BasePrice    string             `json:"base_price"`
	BonusFare    string             `json:"bonus_fare"`
	Notes        string             `json:"notes"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalid)
		return
	}
	basePrice, err := transport.ParseMoney(req.BasePrice)
	if err != nil {
		writeError(w, err)
		return
	}
	bonusFare, err := transport.ParseMoney(req.BonusFare)
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := s.svc.PlaceOrder(r.Context(), claims.Subject, service.PlaceOrderRequest{
		StartAddress: req.StartAddress,
		EndAddress:   req.EndAddress,
		Start:        req.Start.Domain(),
		End:          req.End.Domain(),
		BasePrice:    basePrice,
		BonusFare:    bonusFare,
		Notes:        req.Notes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, transport.FromOrder(order))
}

func (s *Server) handleClientListOrders(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	orders, err := s.svc.FindOrdersByClient(r.Context(), claims.Subject, pageFromQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrders(orders))
}

func (s *Server) handleClientLatestOrder(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.FindMostRecentOrderByClient(r.Context(), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.GetOrder(r.Context(), claims.Subject, claims.Role, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleClientCancel(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.CancelOrderByClient(r.Context(), chi.URLParam(r, "id"), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleDriverMe(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	driver, err := s.svc.GetDriver(r.Context(), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromDriver(driver))
}

type heartbeatResponse struct {
	Driver      transport.DriverResponse `json:"driver"`
	ActiveUntil *time.Time               `json:"active_until,omitempty"`
}

func (s *Server) handleDriverHeartbeat(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	driver, err := s.svc.DriverHeartbeat(r.Context(), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := heartbeatResponse{Driver: transport.FromDriver(driver)}
	if deadline, ok := s.svc.HeartbeatDeadline(driver.ID); ok {
		resp.ActiveUntil = &deadline
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDriverOffline(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	driver, err := s.svc.DriverDeactivate(r.Context(), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromDriver(driver))
}

func (s *Server) handleAvailableOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.svc.FindAvailableOrders(r.Context(), pageFromQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrders(orders))
}

func (s *Server) handleDriverCurrentOrder(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.FindActiveOrderByDriver(r.Context(), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleDriverListOrders(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	orders, err := s.svc.FindOrdersByDriver(r.Context(), claims.Subject, pageFromQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrders(orders))
}

func (s *Server) handleDriverAccept(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.AcceptOrder(r.Context(), chi.URLParam(r, "id"), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleDriverStart(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.StartTrip(r.Context(), chi.URLParam(r, "id"), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleDriverComplete(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.CompleteOrder(r.Context(), chi.URLParam(r, "id"), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleDriverCancel(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	order, err := s.svc.CancelOrderByDriver(r.Context(), chi.URLParam(r, "id"), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := pageFromQuery(r)
	filter := service.OrderFilter{
		NewestFirst: true,
		Limit:       page.Limit,
		Offset:      page.Offset,
	}
	for _, raw := range query["status"] {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if v := query.Get("client_id"); v != "" {
		filter.ClientID = &v
	}
	if v := query.Get("driver_id"); v != "" {
		filter.DriverID = &v
	}
	orders, err := s.svc.AdminListOrders(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrders(orders))
}

func (s *Server) handleAdminSuitableDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.svc.FindSuitableDrivers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromDrivers(drivers))
}

func (s *Server) handleAdminCancel(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.CancelOrderBySystem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromOrder(order))
}

func (s *Server) handleAdminListDrivers(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	filter := service.DriverFilter{Limit: page.Limit, Offset: page.Offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseDriverStatus(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Status = &status
	}
	drivers, err := s.svc.AdminListDrivers(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromDrivers(drivers))
}

func (s *Server) handleAdminDriverStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalid)
		return
	}
	driver, err := s.svc.AdminSetDriverStatus(r.Context(), chi.URLParam(r, "id"), domain.DriverStatus(req.Status))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transport.FromDriver(driver))
}

func mustClaims(r *http.Request) *auth.Claims {
	claims, _ := auth.ClaimsFromContext(r.Context())
	return claims
}

func pageFromQuery(r *http.Request) service.Page {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return service.Page{Limit: limit, Offset: offset}
}
