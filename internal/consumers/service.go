package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/config"
	"github.com/Peterdir/travel-booking-website/internal/database"
	"github.com/Peterdir/travel-booking-website/internal/messaging"
	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/repository"
	"github.com/Peterdir/travel-booking-website/internal/search"

	"github.com/go-co-op/gocron/v2"
	"github.com/nats-io/stan.go"
)

const queueGroup = "search-indexer"

type ConsumerService struct {
	db        *database.DB
	nats      *messaging.NATSClient
	handlers  *Handlers
	scheduler gocron.Scheduler
	subs      []stan.Subscription
	reindex   time.Duration
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	if !cfg.Elasticsearch.Enabled() {
		return nil, fmt.Errorf("ELASTICSEARCH_URL is required for the consumer service")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, err
	}

	index, err := search.NewTourIndex(cfg.Elasticsearch)
	if err != nil {
		natsClient.Close()
		db.Close()
		return nil, err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		natsClient.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	repos := repository.NewRepositories(db)

	return &ConsumerService{
		db:        db,
		nats:      natsClient,
		handlers:  NewHandlers(repos.Tours, index),
		scheduler: scheduler,
		reindex:   cfg.ReindexInterval,
	}, nil
}

func (cs *ConsumerService) Start(ctx context.Context) error {
	if cs.nats.Enabled() {
		slog.Info("Starting NATS consumers...")
		if err := cs.subscribe(); err != nil {
			return err
		}
	} else {
		slog.Warn("NATS is disabled, index is kept fresh by the periodic reindex only")
	}

	if err := cs.scheduleJobs(ctx); err != nil {
		return err
	}
	cs.scheduler.Start()

	slog.Info("All consumers started successfully", "subscriptions", len(cs.subs), "jobs", len(cs.scheduler.Jobs()))
	return nil
}

func (cs *ConsumerService) subscribe() error {
	routes := []struct {
		subject string
		handler func(ctx context.Context, data []byte) error
	}{
		{models.EventTourCreated, cs.handlers.HandleTourChanged},
		{models.EventTourUpdated, cs.handlers.HandleTourChanged},
		{models.EventTourDeleted, cs.handlers.HandleTourDeleted},
		{models.EventBookingCreated, cs.handlers.HandleBookingEvent},
		{models.EventBookingUpdated, cs.handlers.HandleBookingEvent},
		{models.EventBookingDeleted, cs.handlers.HandleBookingEvent},
	}

	for _, route := range routes {
		sub, err := cs.nats.SubscribeQueue(route.subject, queueGroup, ackWith(route.subject, route.handler))
		if err != nil {
			return err
		}
		cs.subs = append(cs.subs, sub)
	}
	return nil
}

// scheduleJobs регистрирует периодическую переиндексацию и контроль пула соединений
func (cs *ConsumerService) scheduleJobs(ctx context.Context) error {
	interval := cs.reindex
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	_, err := cs.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			count, err := cs.handlers.ReindexAll(ctx)
			if err != nil {
				slog.Error("Full reindex failed", "error", err, "indexed", count)
				return
			}
			slog.Info("Full reindex completed", "indexed", count, "duration", time.Since(start))
		}),
		gocron.WithName("reindex-tours"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule reindex job: %w", err)
	}

	_, err = cs.scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			stats := cs.db.ValidateConnectionPool()
			slog.Debug("Connection pool stats", "open", stats.OpenConns, "in_use", stats.InUse, "idle", stats.Idle)
		}),
		gocron.WithName("validate-db-pool"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule pool validation job: %w", err)
	}

	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	if cs.scheduler != nil {
		if err := cs.scheduler.Shutdown(); err != nil {
			slog.Error("Error stopping scheduler", "error", err)
		}
	}

	// Close, а не Unsubscribe: durable подписка должна пережить рестарт
	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
