package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/example/reservationd/internal/reservation"
	"github.com/streadway/amqp"
)

type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RetryCount int
	RetryDelay time.Duration
}

// RabbitMQ owns one connection and channel and redials when the broker drops
// the connection.
type RabbitMQ struct {
	cfg RabbitMQConfig

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	isClosing bool
}

func NewRabbitMQ(cfg RabbitMQConfig) *RabbitMQ {
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &RabbitMQ{cfg: cfg}
}

func (r *RabbitMQ) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for i := 0; i < r.cfg.RetryCount; i++ {
		r.conn, err = amqp.Dial(r.cfg.URL)
		if err != nil {
			log.Printf("events: rabbitmq dial (attempt %d/%d): %v", i+1, r.cfg.RetryCount, err)
			if i < r.cfg.RetryCount-1 {
				time.Sleep(r.cfg.RetryDelay)
			}
			continue
		}

		r.channel, err = r.conn.Channel()
		if err != nil {
			r.conn.Close()
			return fmt.Errorf("rabbitmq channel: %w", err)
		}

		err = r.channel.ExchangeDeclare(r.cfg.Exchange, "topic", true, false, false, false, nil)
		if err != nil {
			r.channel.Close()
			r.conn.Close()
			return fmt.Errorf("declare exchange %s: %w", r.cfg.Exchange, err)
		}

		log.Printf("events: connected to rabbitmq, exchange %s", r.cfg.Exchange)
		go r.watch(r.conn)
		return nil
	}
	return fmt.Errorf("connect rabbitmq: %w", err)
}

func (r *RabbitMQ) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	err, ok := <-closed
	if !ok {
		return
	}

	r.mu.RLock()
	closing := r.isClosing
	r.mu.RUnlock()
	if closing {
		return
	}

	log.Printf("events: rabbitmq connection lost: %v; reconnecting", err)
	time.Sleep(2 * time.Second)
	if err := r.Connect(); err != nil {
		log.Printf("events: rabbitmq reconnect: %v", err)
	}
}

func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

func (r *RabbitMQ) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil && !r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosing {
		return nil
	}
	r.isClosing = true

	var errs []error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("channel close: %w", err))
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// AMQPSink publishes events to a topic exchange. The topic passed by the
// Notifier is used as the exchange name when set.
type AMQPSink struct {
	Client *RabbitMQ
}

func RoutingKey(t reservation.EventType) string {
	return "reservation." + strings.ToLower(string(t))
}

func publishing(ev reservation.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Headers: amqp.Table{
			"reservation_id": ev.ReservationID,
			"restaurant_id":  ev.RestaurantID,
			"event_type":     string(ev.Type),
		},
	}, nil
}

func (s *AMQPSink) Publish(_ context.Context, topic string, ev reservation.Event) error {
	if !s.Client.IsConnected() {
		return errors.New("rabbitmq not connected")
	}
	msg, err := publishing(ev)
	if err != nil {
		return err
	}
	exchange := topic
	if exchange == "" {
		exchange = s.Client.cfg.Exchange
	}
	return s.Client.Channel().Publish(exchange, RoutingKey(ev.Type), false, false, msg)
}
