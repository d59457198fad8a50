package service

import (
	"context"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	"github.com/Peterdir/travel-booking-website/internal/cache"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/messaging"
	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/repository"
	"github.com/Peterdir/travel-booking-website/internal/search"
)

// TourStore - хранилище каталога туров
type TourStore interface {
	Create(ctx context.Context, tour *models.Tour) error
	GetByID(ctx context.Context, id string) (*models.Tour, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tour, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, filter models.TourFilter) ([]models.Tour, error)
	Update(ctx context.Context, id string, mutate func(tour *models.Tour) error) (*models.Tour, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// BookingStore - хранилище бронирований с транзакциями аллокатора
type BookingStore interface {
	InTx(ctx context.Context, fn func(tx repository.AllocationTx) error) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// TourCache - опциональный кеш чтений каталога
type TourCache interface {
	TourVersion(ctx context.Context, id string) (int64, error)
	GetTour(ctx context.Context, version int64, id string) (*models.Tour, error)
	SetTour(ctx context.Context, version int64, tour *models.Tour) error
	ListVersion(ctx context.Context) (int64, error)
	GetList(ctx context.Context, version int64, filterKey string) ([]models.Tour, bool, error)
	SetList(ctx context.Context, version int64, filterKey string, tours []models.Tour) error
	InvalidateTour(ctx context.Context, id string) error
}

// TourSearcher - полнотекстовый поиск, возвращает идентификаторы туров
type TourSearcher interface {
	SearchTourIDs(ctx context.Context, query string) ([]string, error)
}

type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

type Services struct {
	Tours    *TourService
	Bookings *BookingService
	Auth     *AuthService
}

// Options - необязательные зависимости сервисов
type Options struct {
	Cache          *cache.TourCache
	Search         *search.TourIndex
	NATS           *messaging.NATSClient
	UntrackedDates models.UntrackedDatePolicy
}

func NewServices(repos *repository.Repositories, tokens *auth.TokenManager, opts Options) *Services {
	// nil-указатели не должны превращаться в ненулевые интерфейсы
	var tourCache TourCache
	if opts.Cache != nil {
		tourCache = opts.Cache
	}
	var searcher TourSearcher
	if opts.Search != nil {
		searcher = opts.Search
	}
	var publisher EventPublisher
	if opts.NATS != nil {
		publisher = opts.NATS
	}

	return &Services{
		Tours:    NewTourService(repos.Tours, tourCache, searcher, publisher),
		Bookings: NewBookingService(repos.Bookings, tourCache, publisher, opts.UntrackedDates),
		Auth:     NewAuthService(repos.Users, tokens),
	}
}

func publish(ctx context.Context, publisher EventPublisher, subject string, data interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(subject, data); err != nil {
		// Событие не критично для операции
		logger.WithContext(ctx).Error("Failed to publish event", "error", err, "event_type", subject)
	}
}

func invalidateTour(ctx context.Context, tourCache TourCache, tourID string) {
	if tourCache == nil {
		return
	}
	if err := tourCache.InvalidateTour(ctx, tourID); err != nil {
		logger.WithContext(ctx).Warn("Failed to invalidate tour cache", "error", err, "tour_id", tourID)
	}
}
