package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/example/reservationd/internal/reservation"
	"github.com/google/uuid"
)

// Sink delivers one serialized lifecycle event to a broker.
type Sink interface {
	Publish(ctx context.Context, topic string, ev reservation.Event) error
}

// Notifier stamps events and forwards them to a Sink. Failures are logged and
// dropped; a reservation is never rolled back because its event was lost.
type Notifier struct {
	Sink  Sink
	Topic string
	// Timeout bounds a single publish. Zero means no extra bound.
	Timeout time.Duration
	Now     func() time.Time
}

func NewNotifier(sink Sink, topic string) *Notifier {
	return &Notifier{Sink: sink, Topic: topic, Timeout: 5 * time.Second, Now: time.Now}
}

func (n *Notifier) Publish(ctx context.Context, ev reservation.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		if n.Now != nil {
			ev.Timestamp = n.Now()
		} else {
			ev.Timestamp = time.Now()
		}
	}

	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	if err := n.Sink.Publish(ctx, n.Topic, ev); err != nil {
		log.Printf("events: publish %s for reservation %d failed: %v", ev.Type, ev.ReservationID, err)
	}
}

// LogSink writes each event as a JSON line to the standard logger.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, topic string, ev reservation.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	log.Printf("events: %s %s", topic, b)
	return nil
}

var _ reservation.Notifier = (*Notifier)(nil)
