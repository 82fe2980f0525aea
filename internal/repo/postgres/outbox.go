package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"taxi-dispatch/internal/events"
)

func (s *Store) FetchPending(ctx context.Context, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, outboxFetchPendingSQL, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanOutboxEvent)
}

func (s *Store) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, outboxMarkPublishedSQL, ids)
	return err
}

// PurgePublished deletes relayed events older than before and reports how
// many went.
func (s *Store) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, outboxPurgeSQL, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOutboxEvent(row pgx.CollectableRow) (events.Event, error) {
	var evt events.Event
	var payload []byte
	if err := row.Scan(&evt.ID, &evt.Type, &evt.AggregateType, &evt.AggregateID, &payload, &evt.OccurredAt); err != nil {
		return events.Event{}, err
	}
	evt.Payload = payload
	evt.OccurredAt = evt.OccurredAt.UTC()
	return evt, nil
}
