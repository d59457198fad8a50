package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	"github.com/Peterdir/travel-booking-website/internal/cache"
	"github.com/Peterdir/travel-booking-website/internal/database"
	"github.com/Peterdir/travel-booking-website/internal/messaging"
	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret - секрет для локальной разработки, в release запрещен
const DefaultJWTSecret = "change-me"

const minJWTSecretLen = 32

var ErrInsecureJWTSecret = errors.New("insecure JWT_SECRET")

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Разрешенные origins для CORS, "*" - любые
	CORSAllowedOrigins []string

	// Периодическая переиндексация туров в consumers
	ReindexInterval time.Duration

	Database      database.Config
	NATS          messaging.Config
	Redis         cache.Config
	Elasticsearch ElasticsearchConfig
	Auth          auth.Config
	Booking       BookingConfig
}

// BookingConfig - настройки аллокатора бронирований
type BookingConfig struct {
	UntrackedDates models.UntrackedDatePolicy
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	// .env опционален, переменные окружения имеют приоритет
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	policy := models.UntrackedDatePolicy(strings.ToLower(getEnv("BOOKING_UNTRACKED_DATES", string(models.UntrackedDatesAllow))))
	if !policy.Valid() {
		slog.Warn("Unknown BOOKING_UNTRACKED_DATES value, falling back to allow", "value", policy)
		policy = models.UntrackedDatesAllow
	}

	return &Config{
		Port:               getEnv("PORT", "5000"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ReindexInterval:    time.Duration(getEnvInt("REINDEX_INTERVAL_MIN", 30)) * time.Minute,

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "tours"),
			Password:           getEnv("DB_PASSWORD", "tours123"),
			DBName:             getEnv("DB_NAME", "quanlytour"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		// Пустой NATS_URL отключает публикацию событий
		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", ""),
			ClusterID: getEnv("NATS_CLUSTER_ID", "quanlytour"),
			ClientID:  getEnv("NATS_CLIENT_ID", "tours-api"),
		},

		// Пустой REDIS_ADDR отключает кеш
		Redis: cache.Config{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("CACHE_TTL_SEC", 60)) * time.Second,
		},

		Elasticsearch: LoadElasticsearchConfig(),

		Auth: auth.Config{
			Secret:        getEnv("JWT_SECRET", DefaultJWTSecret),
			TTL:           time.Duration(getEnvInt("JWT_TTL_MIN", 120)) * time.Minute,
			Issuer:        getEnv("JWT_ISSUER", "quanlytour"),
			AdminEmail:    getEnv("ADMIN_EMAIL", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},

		Booking: BookingConfig{
			UntrackedDates: policy,
		},
	}
}

// Validate проверяет настройки, без которых сервис нельзя выпускать наружу.
// В release секрет JWT обязан быть задан и не короче 32 байт.
func (c *Config) Validate() error {
	secret := c.Auth.Secret
	weak := secret == "" || secret == DefaultJWTSecret || len(secret) < minJWTSecretLen
	if !weak {
		return nil
	}
	if c.GinMode == "release" {
		return fmt.Errorf("%w: set a random secret of at least %d bytes", ErrInsecureJWTSecret, minJWTSecretLen)
	}
	slog.Warn("JWT_SECRET is weak or left at the default, tokens can be forged",
		"gin_mode", c.GinMode)
	return nil
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList разбирает список через запятую
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
