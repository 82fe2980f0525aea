package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"taxi-dispatch/internal/domain"
	"taxi-dispatch/internal/events"
	"taxi-dispatch/internal/service"
)

const (
	pgUniqueViolation      = "23505"
	pgInvalidText          = "22P02"
	pgLockNotAvailable     = "55P03"
	activeOrderIndexPrefix = "orders_one_active_per_"
	defaultListLimit       = 100
	maxListLimit           = 500
)

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewStore returns a store whose transactions give up waiting on a row lock
// after lockTimeout. Zero waits forever.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

func (s *Store) BeginTx(ctx context.Context) (service.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, orderSelectByIDSQL, id))
}

func (s *Store) ListOrders(ctx context.Context, filter service.OrderFilter) ([]*domain.Order, error) {
	var statuses []string
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	query := orderListOldestFirstSQL
	if filter.NewestFirst {
		query = orderListNewestFirstSQL
	}
	rows, err := s.pool.Query(ctx, query, statuses, filter.ClientID, filter.DriverID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if rows.Err() != nil {
		return nil, mapError(rows.Err())
	}
	return orders, nil
}

func (s *Store) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	return scanDriver(s.pool.QueryRow(ctx, driverSelectByIDSQL, id))
}

func (s *Store) GetDriverByExternalID(ctx context.Context, externalID string) (*domain.Driver, error) {
	return scanDriver(s.pool.QueryRow(ctx, driverSelectByExternalIDSQL, externalID))
}

func (s *Store) ListDrivers(ctx context.Context, filter service.DriverFilter) ([]*domain.Driver, error) {
	status := sql.NullString{}
	if filter.Status != nil {
		status = sql.NullString{String: string(*filter.Status), Valid: true}
	}
	rows, err := s.pool.Query(ctx, driverListSQL, status, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	if rows.Err() != nil {
		return nil, mapError(rows.Err())
	}
	return drivers, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	return scanClient(s.pool.QueryRow(ctx, clientSelectByIDSQL, id))
}

func (s *Store) GetClientByExternalID(ctx context.Context, externalID string) (*domain.Client, error) {
	return scanClient(s.pool.QueryRow(ctx, clientSelectByExternalIDSQL, externalID))
}

type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (t *Tx) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, orderSelectByIDForUpdateSQL, id))
}

func (t *Tx) GetDriverForUpdate(ctx context.Context, id string) (*domain.Driver, error) {
	return scanDriver(t.tx.QueryRow(ctx, driverSelectByIDForUpdateSQL, id))
}

func (t *Tx) GetClientForUpdate(ctx context.Context, id string) (*domain.Client, error) {
	return scanClient(t.tx.QueryRow(ctx, clientSelectByIDForUpdateSQL, id))
}

func (t *Tx) HasActiveOrder(ctx context.Context, party service.Party, partyID string) (bool, error) {
	query := clientHasActiveOrderSQL
	if party == service.PartyDriver {
		query = driverHasActiveOrderSQL
	}
	var exists bool
	if err := t.tx.QueryRow(ctx, query, partyID).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (t *Tx) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.Exec(ctx, orderInsertSQL,
		order.ID,
		order.ClientID,
		nullString(order.DriverID),
		order.Status,
		order.StartAddress,
		order.EndAddress,
		order.Start.Lat,
		order.Start.Lng,
		order.End.Lat,
		order.End.Lng,
		order.ApproxDistanceKm,
		order.ApproxDurationMin,
		nullDecimal(order.ActualDurationMin),
		order.BasePrice,
		order.BonusFare,
		nullDecimal(order.Price),
		nullDecimal(order.TotalPrice),
		order.Notes,
		nullSource(order.CancellationSource),
		order.CreatedAt,
		order.UpdatedAt,
		nullTime(order.AcceptedAt),
		nullTime(order.StartedAt),
		nullTime(order.CompletedAt),
		nullTime(order.CancelledAt),
	)
	return mapError(err)
}

func (t *Tx) UpdateOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.Exec(ctx, orderUpdateSQL,
		nullString(order.DriverID),
		order.Status,
		nullDecimal(order.ActualDurationMin),
		nullDecimal(order.Price),
		nullDecimal(order.TotalPrice),
		nullSource(order.CancellationSource),
		order.UpdatedAt,
		nullTime(order.AcceptedAt),
		nullTime(order.StartedAt),
		nullTime(order.CompletedAt),
		nullTime(order.CancelledAt),
		order.ID,
	)
	return mapError(err)
}

func (t *Tx) CreateDriver(ctx context.Context, driver *domain.Driver) error {
	_, err := t.tx.Exec(ctx, driverInsertSQL,
		driver.ID,
		driver.ExternalID,
		driver.ChatAddress,
		driver.FullName,
		driver.PhoneNumber,
		driver.CarModel,
		driver.CarColor,
		driver.LicensePlate,
		driver.Status,
		nullTime(driver.LastHeartbeatAt),
		driver.CreatedAt,
		driver.UpdatedAt,
	)
	return mapError(err)
}

func (t *Tx) UpdateDriver(ctx context.Context, driver *domain.Driver) error {
	_, err := t.tx.Exec(ctx, driverUpdateSQL,
		driver.FullName,
		driver.PhoneNumber,
		driver.CarModel,
		driver.CarColor,
		driver.LicensePlate,
		driver.Status,
		nullTime(driver.LastHeartbeatAt),
		driver.UpdatedAt,
		driver.ID,
	)
	return mapError(err)
}

func (t *Tx) CreateClient(ctx context.Context, client *domain.Client) error {
	_, err := t.tx.Exec(ctx, clientInsertSQL,
		client.ID,
		client.ExternalID,
		client.ChatAddress,
		client.FullName,
		client.PhoneNumber,
		client.CreatedAt,
		client.UpdatedAt,
	)
	return mapError(err)
}

func (t *Tx) UpdateClient(ctx context.Context, client *domain.Client) error {
	_, err := t.tx.Exec(ctx, clientUpdateSQL,
		client.FullName,
		client.PhoneNumber,
		client.UpdatedAt,
		client.ID,
	)
	return mapError(err)
}

func (t *Tx) EnqueueEvent(ctx context.Context, event events.Event) error {
	_, err := t.tx.Exec(ctx, outboxInsertSQL,
		event.ID,
		event.Type,
		event.AggregateType,
		event.AggregateID,
		event.Payload,
		event.OccurredAt,
	)
	return err
}

// mapError translates the postgres errors the service reacts to into
// domain errors. Anything else passes through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if strings.HasPrefix(pgErr.ConstraintName, activeOrderIndexPrefix) {
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrActiveOrderConflict)
		}
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrAlreadyExists)
	case pgLockNotAvailable:
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrBusy)
	case pgInvalidText:
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrNotFound)
	}
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		driverID           sql.NullString
		actualDurationMin  decimal.NullDecimal
		price              decimal.NullDecimal
		totalPrice         decimal.NullDecimal
		cancellationSource sql.NullString
		acceptedAt         sql.NullTime
		startedAt          sql.NullTime
		completedAt        sql.NullTime
		cancelledAt        sql.NullTime
	)
	order := &domain.Order{}
	err := row.Scan(
		&order.ID,
		&order.ClientID,
		&driverID,
		&order.Status,
		&order.StartAddress,
		&order.EndAddress,
		&order.Start.Lat,
		&order.Start.Lng,
		&order.End.Lat,
		&order.End.Lng,
		&order.ApproxDistanceKm,
		&order.ApproxDurationMin,
		&actualDurationMin,
		&order.BasePrice,
		&order.BonusFare,
		&price,
		&totalPrice,
		&order.Notes,
		&cancellationSource,
		&order.CreatedAt,
		&order.UpdatedAt,
		&acceptedAt,
		&startedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if driverID.Valid {
		order.DriverID = &driverID.String
	}
	order.ActualDurationMin = decimalPtr(actualDurationMin)
	order.Price = decimalPtr(price)
	order.TotalPrice = decimalPtr(totalPrice)
	if cancellationSource.Valid {
		source := domain.CancellationSource(cancellationSource.String)
		order.CancellationSource = &source
	}
	order.AcceptedAt = timePtr(acceptedAt)
	order.StartedAt = timePtr(startedAt)
	order.CompletedAt = timePtr(completedAt)
	order.CancelledAt = timePtr(cancelledAt)
	return order, nil
}

func scanDriver(row pgx.Row) (*domain.Driver, error) {
	var lastHeartbeatAt sql.NullTime
	driver := &domain.Driver{}
	err := row.Scan(
		&driver.ID,
		&driver.ExternalID,
		&driver.ChatAddress,
		&driver.FullName,
		&driver.PhoneNumber,
		&driver.CarModel,
		&driver.CarColor,
		&driver.LicensePlate,
		&driver.Status,
		&lastHeartbeatAt,
		&driver.CreatedAt,
		&driver.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	driver.LastHeartbeatAt = timePtr(lastHeartbeatAt)
	return driver, nil
}

func scanClient(row pgx.Row) (*domain.Client, error) {
	client := &domain.Client{}
	err := row.Scan(
		&client.ID,
		&client.ExternalID,
		&client.ChatAddress,
		&client.FullName,
		&client.PhoneNumber,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return client, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func nullSource(v *domain.CancellationSource) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
