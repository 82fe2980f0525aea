package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// Purger is implemented by outbox repositories that can drop relayed
// events.
type Purger interface {
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}

type OutboxWorker struct {
	Repo         OutboxRepository
	Publisher    Publisher
	PollInterval time.Duration
	BatchSize    int
	// Retention > 0 purges published events older than that once an hour,
	// if Repo is a Purger.
	Retention time.Duration
	Logger    logrus.FieldLogger
}

func (w *OutboxWorker) Start(ctx context.Context) error {
	if w.Logger == nil {
		w.Logger = logrus.StandardLogger()
	}
	if w.PollInterval <= 0 {
		w.PollInterval = time.Second
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 50
	}

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	var purge <-chan time.Time
	purger, canPurge := w.Repo.(Purger)
	if canPurge && w.Retention > 0 {
		purgeTicker := time.NewTicker(time.Hour)
		defer purgeTicker.Stop()
		purge = purgeTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.RelayOnce(ctx)
		case now := <-purge:
			n, err := purger.PurgePublished(ctx, now.Add(-w.Retention))
			if err != nil {
				w.Logger.WithError(err).Warn("outbox purge failed")
				continue
			}
			w.Logger.WithField("deleted", n).Debug("outbox purged")
		}
	}
}

// RelayOnce publishes one batch of pending events and marks the ones that
// went out. Events that failed to publish stay pending for the next poll.
func (w *OutboxWorker) RelayOnce(ctx context.Context) int {
	if w.Logger == nil {
		w.Logger = logrus.StandardLogger()
	}
	evts, err := w.Repo.FetchPending(ctx, w.BatchSize)
	if err != nil {
		w.Logger.WithError(err).Error("outbox fetch failed")
		return 0
	}
	if len(evts) == 0 {
		return 0
	}
	published := make([]string, 0, len(evts))
	for _, evt := range evts {
		if err := w.Publisher.Publish(ctx, evt); err != nil {
			w.Logger.WithError(err).WithFields(logrus.Fields{
				"event_id":   evt.ID,
				"event_type": evt.Type,
			}).Warn("outbox publish failed")
			continue
		}
		published = append(published, evt.ID)
	}
	if err := w.Repo.MarkPublished(ctx, published); err != nil {
		w.Logger.WithError(err).Error("outbox mark published failed")
	}
	return len(published)
}
