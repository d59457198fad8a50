package handlers

import (
	"net/http"

	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/gin-gonic/gin"
)

// Auth handlers

// Register - POST /api/auth/register
// Зарегистрировать клиента
func (h *Handlers) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	user, err := h.services.Auth.Register(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to register user")
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login - POST /api/auth/login
// Войти и получить токен
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	resp, err := h.services.Auth.Login(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to login")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me - GET /api/auth/me
// Текущий пользователь
func (h *Handlers) Me(c *gin.Context) {
	user, err := h.services.Auth.Me(c.Request.Context(), identity(c))
	if err != nil {
		handleServiceError(c, err, "Failed to get current user")
		return
	}

	c.JSON(http.StatusOK, user)
}
