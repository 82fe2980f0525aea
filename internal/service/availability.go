package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/events"
)

const (
	reasonHeartbeat = "heartbeat"
	reasonTimeout   = "heartbeat_timeout"
	reasonLogoff    = "logoff"
	reasonAdmin     = "admin"
)

// DriverHeartbeat marks the driver ACTIVE and re-arms their deactivation
// timer. Heartbeats from BANNED or PENDING_APPROVAL drivers are ignored and
// return the driver unchanged. The status is committed before the timer is
// armed, so an arm failure leaves persisted state correct.
func (s *Service) DriverHeartbeat(ctx context.Context, driverID string) (*domain.Driver, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	driver, err := tx.GetDriverForUpdate(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("driver %s: %w", driverID, err)
	}
	if !domain.HeartbeatEligible(driver.Status) {
		s.log.WithFields(logrus.Fields{"driver_id": driverID, "status": driver.Status}).Debug("heartbeat ignored")
		return driver, nil
	}

	now := s.now()
	previous := driver.Status
	driver.Status = domain.DriverStatusActive
	driver.LastHeartbeatAt = &now
	driver.UpdatedAt = now
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return nil, err
	}
	if previous != domain.DriverStatusActive {
		evt := events.NewDriverEvent(events.EventDriverStatusChanged, driver, previous, reasonHeartbeat, now)
		if err := tx.EnqueueEvent(ctx, evt); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if previous != domain.DriverStatusActive {
		s.log.WithField("driver_id", driverID).Info("driver active")
	}

	if _, err := s.availability.Arm(driver.ID); err != nil {
		return nil, fmt.Errorf("arm availability timer for driver %s: %w", driverID, err)
	}
	// Status changes disarm after they commit. One that committed between
	// our commit and Arm is visible now.
	current, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		s.log.WithError(err).WithField("driver_id", driverID).Warn("heartbeat recheck failed")
		return driver, nil
	}
	if current.Status != domain.DriverStatusActive {
		s.availability.Disarm(driverID)
		return current, nil
	}
	return driver, nil
}

// DriverDeactivate is the driver going offline by choice. The pending timer
// is dropped whatever the driver's status is.
func (s *Service) DriverDeactivate(ctx context.Context, driverID string) (*domain.Driver, error) {
	defer s.availability.Disarm(driverID)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	driver, err := tx.GetDriverForUpdate(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("driver %s: %w", driverID, err)
	}
	if driver.Status != domain.DriverStatusActive {
		return driver, nil
	}

	now := s.now()
	driver.Status = domain.DriverStatusInactive
	driver.UpdatedAt = now
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return nil, err
	}
	evt := events.NewDriverEvent(events.EventDriverStatusChanged, driver, domain.DriverStatusActive, reasonLogoff, now)
	if err := tx.EnqueueEvent(ctx, evt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.WithField("driver_id", driverID).Info("driver went offline")
	return driver, nil
}

// AdminSetDriverStatus moves a driver to any status and tells them about
// it. Any pending timer is dropped. An override to ACTIVE clears the
// heartbeat timestamp: the driver stays ACTIVE, unmonitored, until their
// next heartbeat arms a timer.
func (s *Service) AdminSetDriverStatus(ctx context.Context, driverID string, status domain.DriverStatus) (*domain.Driver, error) {
	status, err := domain.ParseDriverStatus(string(status))
	if err != nil {
		return nil, err
	}
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	driver, err := tx.GetDriverForUpdate(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("driver %s: %w", driverID, err)
	}

	now := s.now()
	previous := driver.Status
	driver.Status = status
	if status == domain.DriverStatusActive {
		driver.LastHeartbeatAt = nil
	}
	driver.UpdatedAt = now
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return nil, err
	}
	evt := events.NewDriverEvent(events.EventDriverStatusChanged, driver, previous, reasonAdmin, now)
	if err := tx.EnqueueEvent(ctx, evt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.availability.Disarm(driverID)
	s.log.WithFields(logrus.Fields{
		"driver_id": driverID,
		"from":      previous,
		"to":        status,
	}).Info("driver status overridden")

	s.notifier.Notify(ctx, driver.ChatAddress, driverStatusMessage(status))
	return driver, nil
}

// expireDriver is the timer callback. It re-reads the driver under a row
// lock and demotes only a driver that is still ACTIVE and whose last
// heartbeat is at least a full window old. Anything else is a stale fire.
func (s *Service) expireDriver(driverID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fireTimeout)
	defer cancel()

	log := s.log.WithField("driver_id", driverID)
	if err := s.deactivateExpired(ctx, driverID); err != nil {
		if errors.Is(err, errStaleExpiry) {
			log.Debug("stale availability timer ignored")
			return
		}
		log.WithError(err).Error("auto-deactivation failed")
		return
	}
	log.Info("driver deactivated after missed heartbeats")
}

var errStaleExpiry = errors.New("stale expiry")

func (s *Service) deactivateExpired(ctx context.Context, driverID string) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	driver, err := tx.GetDriverForUpdate(ctx, driverID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errStaleExpiry
		}
		return err
	}
	now := s.now()
	if driver.Status != domain.DriverStatusActive || driver.LastHeartbeatAt == nil {
		return errStaleExpiry
	}
	if now.Before(driver.LastHeartbeatAt.Add(s.window)) {
		return errStaleExpiry
	}

	driver.Status = domain.DriverStatusInactive
	driver.UpdatedAt = now
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return err
	}
	evt := events.NewDriverEvent(events.EventDriverStatusChanged, driver, domain.DriverStatusActive, reasonTimeout, now)
	if err := tx.EnqueueEvent(ctx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func driverStatusMessage(status domain.DriverStatus) string {
	switch status {
	case domain.DriverStatusActive:
		return "Your account is active. Send a heartbeat to start receiving orders."
	case domain.DriverStatusInactive:
		return "Your status was set to inactive."
	case domain.DriverStatusBanned:
		return "Your account has been banned. Contact support for details."
	case domain.DriverStatusPendingApproval:
		return "Your account is pending approval."
	default:
		return fmt.Sprintf("Your status was changed to %s.", status)
	}
}
