package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

const (
	tourKeyPrefix     = "tours:id:"
	tourVersionPrefix = "tours:version:"
	tourListPrefix    = "tours:list:"
	tourListVersion   = "tours:list:version"
)

// TourCache кеширует чтения каталога туров в Valkey/Redis.
// Ключи содержат версию, инвалидация - INCR версии. Версию читают до запроса
// в базу и передают в Set: запись, опоздавшая после инвалидации, ляжет под
// устаревший ключ и никогда не будет прочитана.
type TourCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTourCacheWithClient(client *redis.Client, ttl time.Duration) *TourCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TourCache{client: client, ttl: ttl}
}

// NewTourCache подключается к Redis. Пустой адрес отключает кеш (возвращает nil, nil).
func NewTourCache(cfg Config) (*TourCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewTourCacheWithClient(rdb, cfg.TTL)
	slog.Info("Connected to Redis", "addr", cfg.Addr, "ttl", c.ttl)
	return c, nil
}

// TourVersion возвращает текущую версию карточки тура
func (c *TourCache) TourVersion(ctx context.Context, id string) (int64, error) {
	return c.version(ctx, tourVersionPrefix+id)
}

// ListVersion возвращает текущую версию списков
func (c *TourCache) ListVersion(ctx context.Context) (int64, error) {
	return c.version(ctx, tourListVersion)
}

// GetTour возвращает тур из кеша, (nil, nil) при промахе
func (c *TourCache) GetTour(ctx context.Context, version int64, id string) (*models.Tour, error) {
	data, err := c.client.Get(ctx, tourKey(version, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}

	var tour models.Tour
	if err := json.Unmarshal(data, &tour); err != nil {
		return nil, fmt.Errorf("invalid tour in cache: %w", err)
	}
	return &tour, nil
}

func (c *TourCache) SetTour(ctx context.Context, version int64, tour *models.Tour) error {
	data, err := json.Marshal(tour)
	if err != nil {
		return fmt.Errorf("failed to marshal tour: %w", err)
	}
	return c.client.Set(ctx, tourKey(version, tour.ID), data, c.ttl).Err()
}

// GetList ищет список по ключу фильтра в заданной версии
func (c *TourCache) GetList(ctx context.Context, version int64, filterKey string) ([]models.Tour, bool, error) {
	data, err := c.client.Get(ctx, listKey(version, filterKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache lookup error: %w", err)
	}

	var tours []models.Tour
	if err := json.Unmarshal(data, &tours); err != nil {
		return nil, false, fmt.Errorf("invalid tour list in cache: %w", err)
	}
	return tours, true, nil
}

func (c *TourCache) SetList(ctx context.Context, version int64, filterKey string, tours []models.Tour) error {
	data, err := json.Marshal(tours)
	if err != nil {
		return fmt.Errorf("failed to marshal tour list: %w", err)
	}
	return c.client.Set(ctx, listKey(version, filterKey), data, c.ttl).Err()
}

// InvalidateTour сбрасывает карточку тура и все закешированные списки
func (c *TourCache) InvalidateTour(ctx context.Context, id string) error {
	pipe := c.client.TxPipeline()
	if id != "" {
		pipe.Incr(ctx, tourVersionPrefix+id)
	}
	pipe.Incr(ctx, tourListVersion)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate tour cache: %w", err)
	}
	return nil
}

func (c *TourCache) version(ctx context.Context, key string) (int64, error) {
	version, err := c.client.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("cache lookup error: %w", err)
	}
	return version, nil
}

func tourKey(version int64, id string) string {
	return fmt.Sprintf("%s%s:%d", tourKeyPrefix, id, version)
}

func listKey(version int64, filterKey string) string {
	return fmt.Sprintf("%s%d:%s", tourListPrefix, version, filterKey)
}

func (c *TourCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *TourCache) Close() error {
	return c.client.Close()
}
