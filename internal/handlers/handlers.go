package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	apperrors "github.com/Peterdir/travel-booking-website/internal/errors"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/middleware"
	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		services: services,
	}
}

var registerOnce sync.Once

// RegisterValidators регистрирует собственные теги валидации в движке gin.
// Должен быть вызван до первой привязки запроса.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			slog.Warn("Unexpected validator engine, custom tags are not registered")
			return
		}
		if err := v.RegisterValidation("bookingstatus", bookingStatusValidator); err != nil {
			slog.Error("Failed to register bookingstatus validator", "error", err)
		}
	})
}

func bookingStatusValidator(fl validator.FieldLevel) bool {
	status, ok := fl.Field().Interface().(models.BookingStatus)
	if !ok {
		return false
	}
	return status.Valid()
}

// handleServiceError переводит ошибки сервисов в HTTP статусы
func handleServiceError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrCapacityExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.WithContext(c.Request.Context()).Error(msg, "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func bindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// identity достает вызывающего, middleware Authenticate гарантирует его наличие
func identity(c *gin.Context) auth.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}
