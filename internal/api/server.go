package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	"github.com/Peterdir/travel-booking-website/internal/cache"
	"github.com/Peterdir/travel-booking-website/internal/config"
	"github.com/Peterdir/travel-booking-website/internal/database"
	"github.com/Peterdir/travel-booking-website/internal/handlers"
	"github.com/Peterdir/travel-booking-website/internal/messaging"
	"github.com/Peterdir/travel-booking-website/internal/metrics"
	"github.com/Peterdir/travel-booking-website/internal/middleware"
	"github.com/Peterdir/travel-booking-website/internal/repository"
	"github.com/Peterdir/travel-booking-website/internal/search"
	"github.com/Peterdir/travel-booking-website/internal/service"

	"github.com/gin-gonic/gin"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	cache    *cache.TourCache
	search   *search.TourIndex
	tokens   *auth.TokenManager
	services *service.Services
	repos    *repository.Repositories
}

// NewServer подключает хранилища и собирает сервер.
// Недоступные Redis и Elasticsearch не мешают старту, они просто отключаются.
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	tourCache, err := cache.NewTourCache(cfg.Redis)
	if err != nil {
		slog.Warn("Tour cache disabled", "error", err)
		tourCache = nil
	}

	var tourIndex *search.TourIndex
	if cfg.Elasticsearch.Enabled() {
		tourIndex, err = search.NewTourIndex(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Search index disabled, falling back to database search", "error", err)
			tourIndex = nil
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth)
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, tokens, service.Options{
		Cache:          tourCache,
		Search:         tourIndex,
		NATS:           natsClient,
		UntrackedDates: cfg.Booking.UntrackedDates,
	})

	if cfg.Auth.AdminEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := services.Auth.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		cancel()
		if err != nil {
			slog.Error("Failed to bootstrap admin account", "error", err, "email", cfg.Auth.AdminEmail)
		}
	}

	server := &Server{
		config:   cfg,
		db:       db,
		nats:     natsClient,
		cache:    tourCache,
		search:   tourIndex,
		tokens:   tokens,
		services: services,
		repos:    repos,
	}
	server.router = NewRouter(cfg, services, tokens, server.healthCheck)

	slog.Info("API server initialized",
		"cache", tourCache != nil,
		"search", tourIndex != nil,
		"events", natsClient.Enabled(),
		"untracked_dates", cfg.Booking.UntrackedDates)

	return server, nil
}

// NewRouter собирает gin роутер со всеми middleware и роутами
func NewRouter(cfg *config.Config, services *service.Services, tokens *auth.TokenManager, health gin.HandlerFunc) *gin.Engine {
	handlers.RegisterValidators()

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(metrics.Middleware())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	h := handlers.NewHandlers(services)
	handlers.RegisterRoutes(router, h, tokens)

	if health != nil {
		router.GET("/health", health)
	}
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	check := s.db.HealthCheck(ctx)

	// Redis и Elasticsearch опциональны: их сбой не делает сервис unhealthy
	status := http.StatusOK
	if check.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   check.Status,
		"service":  "tours-api",
		"version":  "1.0.0",
		"database": check,
		"cache":    backendStatus(s.cache != nil, func() error { return s.cache.Ping(ctx) }),
		"search":   backendStatus(s.search != nil, func() error { return s.search.HealthCheck(ctx) }),
		"events":   s.nats.Enabled(),
	})
}

func backendStatus(enabled bool, ping func() error) string {
	if !enabled {
		return "disabled"
	}
	if err := ping(); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// Run запускает HTTP сервер
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup закрывает соединения
func (s *Server) Cleanup() error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Error("Error closing Redis connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
