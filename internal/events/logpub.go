package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log. It stands in for a broker in local
// runs where NATS_URL is unset.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(ctx context.Context, event Event) error {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"event_id":     event.ID,
		"event_type":   event.Type,
		"aggregate_id": event.AggregateID,
	}).Info("event")
	return nil
}

func (LogPublisher) Close() error {
	return nil
}
