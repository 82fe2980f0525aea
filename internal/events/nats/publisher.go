package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"taxi-dispatch/internal/events"
)

type Publisher struct {
	nc      *nats.Conn
	subject string
}

func New(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("taxi-dispatch"))
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = "dispatch.events"
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish sends the event on "<subject>.<event type>" so consumers can
// subscribe to e.g. "dispatch.events.order.>".
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject + "." + event.Type)
	msg.Header.Set("Nats-Msg-Id", event.ID)
	msg.Data = data
	return p.nc.PublishMsg(msg)
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
