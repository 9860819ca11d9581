package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/example/reservationd/internal/catalog"
	"github.com/example/reservationd/internal/config"
	"github.com/example/reservationd/internal/db"
	"github.com/example/reservationd/internal/events"
	"github.com/example/reservationd/internal/migrate"
	"github.com/example/reservationd/internal/reservation"
	"github.com/example/reservationd/internal/scheduler"
	"github.com/example/reservationd/internal/store"
	"github.com/redis/go-redis/v9"
)

// app holds the wired service graph. close releases whatever was opened.
type app struct {
	cfg     config.Config
	db      *db.DB
	store   reservation.Store
	manager *reservation.Manager
	lock    scheduler.Locker
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openDB(ctx context.Context, cfg config.Config, migrateUp bool) (*db.DB, error) {
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if migrateUp {
		if err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// buildApp wires store, catalog gateway, notifier and manager. storeKind is
// "postgres" or "memory".
func buildApp(ctx context.Context, cfg config.Config, storeKind string, migrateUp bool) (*app, error) {
	a := &app{cfg: cfg}

	switch storeKind {
	case "postgres", "":
		d, err := openDB(ctx, cfg, migrateUp)
		if err != nil {
			return nil, err
		}
		a.db = d
		a.store = store.NewPostgres(d)
		a.closers = append(a.closers, d.Close)
	case "memory":
		log.Printf("store: using in-memory reservations; data is lost on exit")
		a.store = store.NewMemory()
	default:
		return nil, fmt.Errorf("unknown --store %q (want postgres or memory)", storeKind)
	}

	gw := catalog.NewGateway(catalog.New(cfg.CatalogURL, cfg.CatalogTimeout), cfg.Breaker, cfg.Retry)
	gw.Timeout = cfg.CatalogTimeout
	gw.Strict = cfg.CatalogStrict

	notifier, err := buildNotifier(ctx, cfg, a)
	if err != nil {
		a.close()
		return nil, err
	}

	engine := reservation.NewEngine(cfg.Policy(), gw, a.store)
	a.manager = reservation.NewManager(engine, a.store, notifier)

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		// expire well before the next interval so a crashed holder does not skip a run
		a.lock = scheduler.NewRedisLock(rdb, "reservationd:sweep", cfg.SweepInterval/2)
	}

	return a, nil
}

func buildNotifier(ctx context.Context, cfg config.Config, a *app) (reservation.Notifier, error) {
	switch cfg.EventSink {
	case "amqp":
		mq := events.NewRabbitMQ(events.RabbitMQConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
		if err := mq.Connect(); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := mq.Close(); err != nil {
				log.Printf("events: close rabbitmq: %v", err)
			}
		})
		return events.NewNotifier(&events.AMQPSink{Client: mq}, cfg.AMQPExchange), nil
	case "sns":
		sink, err := events.NewSNSSink(ctx)
		if err != nil {
			return nil, err
		}
		return events.NewNotifier(sink, cfg.SNSTopicARN), nil
	default:
		return events.NewNotifier(events.LogSink{}, "reservation.events"), nil
	}
}

func (a *app) sweeper() *scheduler.Sweeper {
	return &scheduler.Sweeper{
		Manager:        a.manager,
		Store:          a.store,
		Interval:       a.cfg.SweepInterval,
		PendingTimeout: a.cfg.PendingTimeout,
		Lock:           a.lock,
	}
}
