package handlers

import (
	"github.com/Peterdir/travel-booking-website/internal/auth"
	"github.com/Peterdir/travel-booking-website/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes подключает REST API под /api.
// Чтение каталога публичное, изменения каталога и бронирований - только для администратора.
func RegisterRoutes(router gin.IRouter, h *Handlers, tokens *auth.TokenManager) {
	authenticated := middleware.Authenticate(tokens)
	optional := middleware.OptionalAuth(tokens)
	adminOnly := middleware.RequireAdmin()

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/me", authenticated, h.Me)
	}

	tours := api.Group("/tours")
	{
		tours.GET("", optional, h.ListTours)
		tours.GET("/:id", optional, h.GetTour)
		tours.POST("", authenticated, adminOnly, h.CreateTour)
		tours.PATCH("/:id", authenticated, adminOnly, h.UpdateTour)
		tours.PUT("/:id", authenticated, adminOnly, h.UpdateTour)
		tours.DELETE("/:id", authenticated, adminOnly, h.DeleteTour)
	}

	bookings := api.Group("/bookings", authenticated)
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.PATCH("/:id", adminOnly, h.UpdateBooking)
		bookings.PUT("/:id", adminOnly, h.UpdateBooking)
		bookings.DELETE("/:id", adminOnly, h.DeleteBooking)
	}
}
