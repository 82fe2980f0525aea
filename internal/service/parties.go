package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/events"
)

type RegisterClientRequest struct {
	ExternalID  string
	ChatAddress string
	FullName    string
	PhoneNumber string
}

type RegisterDriverRequest struct {
	ExternalID   string
	ChatAddress  string
	FullName     string
	PhoneNumber  string
	CarModel     string
	CarColor     string
	LicensePlate string
}

func (s *Service) RegisterClient(ctx context.Context, req RegisterClientRequest) (*domain.Client, error) {
	if strings.TrimSpace(req.ExternalID) == "" {
		return nil, fmt.Errorf("external id is required: %w", domain.ErrInvalid)
	}
	if _, err := s.store.GetClientByExternalID(ctx, req.ExternalID); err == nil {
		return nil, fmt.Errorf("client %s: %w", req.ExternalID, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := s.now()
	client := &domain.Client{
		ID:          s.newID(),
		ExternalID:  req.ExternalID,
		ChatAddress: req.ChatAddress,
		FullName:    strings.TrimSpace(req.FullName),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	if err := tx.EnqueueEvent(ctx, events.NewClientEvent(events.EventClientRegistered, client, now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.WithField("client_id", client.ID).Info("client registered")
	return client, nil
}

// GetOrCreateClient returns the client with req.ExternalID, registering it
// on first contact.
func (s *Service) GetOrCreateClient(ctx context.Context, req RegisterClientRequest) (*domain.Client, error) {
	client, err := s.store.GetClientByExternalID(ctx, req.ExternalID)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	client, err = s.RegisterClient(ctx, req)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return s.store.GetClientByExternalID(ctx, req.ExternalID)
	}
	return client, err
}

// UpdateClientContact changes the only mutable client fields. Empty values
// leave the current value in place.
func (s *Service) UpdateClientContact(ctx context.Context, clientID, fullName, phoneNumber string) (*domain.Client, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	client, err := tx.GetClientForUpdate(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", clientID, err)
	}
	if v := strings.TrimSpace(fullName); v != "" {
		client.FullName = v
	}
	if v := strings.TrimSpace(phoneNumber); v != "" {
		client.PhoneNumber = v
	}
	client.UpdatedAt = s.now()
	if err := tx.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// RegisterDriver creates a driver awaiting approval. Drivers in
// PENDING_APPROVAL cannot go ACTIVE until an admin moves them.
func (s *Service) RegisterDriver(ctx context.Context, req RegisterDriverRequest) (*domain.Driver, error) {
	if strings.TrimSpace(req.ExternalID) == "" {
		return nil, fmt.Errorf("external id is required: %w", domain.ErrInvalid)
	}
	if strings.TrimSpace(req.LicensePlate) == "" {
		return nil, fmt.Errorf("license plate is required: %w", domain.ErrInvalid)
	}
	if _, err := s.store.GetDriverByExternalID(ctx, req.ExternalID); err == nil {
		return nil, fmt.Errorf("driver %s: %w", req.ExternalID, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := s.now()
	driver := &domain.Driver{
		ID:           s.newID(),
		ExternalID:   req.ExternalID,
		ChatAddress:  req.ChatAddress,
		FullName:     strings.TrimSpace(req.FullName),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		CarModel:     strings.TrimSpace(req.CarModel),
		CarColor:     strings.TrimSpace(req.CarColor),
		LicensePlate: strings.ToUpper(strings.TrimSpace(req.LicensePlate)),
		Status:       domain.DriverStatusPendingApproval,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.CreateDriver(ctx, driver); err != nil {
		return nil, err
	}
	if err := tx.EnqueueEvent(ctx, events.NewDriverEvent(events.EventDriverRegistered, driver, "", "registration", now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"driver_id": driver.ID, "plate": driver.LicensePlate}).Info("driver registered")
	return driver, nil
}

func (s *Service) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.store.GetClient(ctx, clientID)
}

func (s *Service) GetClientByExternalID(ctx context.Context, externalID string) (*domain.Client, error) {
	return s.store.GetClientByExternalID(ctx, externalID)
}

func (s *Service) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	return s.store.GetDriver(ctx, driverID)
}

func (s *Service) GetDriverByExternalID(ctx context.Context, externalID string) (*domain.Driver, error) {
	return s.store.GetDriverByExternalID(ctx, externalID)
}
