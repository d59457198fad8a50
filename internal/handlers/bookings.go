package handlers

import (
	"net/http"
	"strings"

	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/gin-gonic/gin"
)

// Bookings handlers

// CreateBooking - POST /api/bookings
// Создать бронирование
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	booking, err := h.services.Bookings.Create(c.Request.Context(), identity(c), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to create booking")
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ListBookings - GET /api/bookings
// Получить список бронирований, клиент видит только свои
func (h *Handlers) ListBookings(c *gin.Context) {
	filter := models.BookingFilter{
		Status: models.BookingStatus(strings.TrimSpace(c.Query("status"))),
		TourID: strings.TrimSpace(c.Query("tourId")),
		UserID: strings.TrimSpace(c.Query("userId")),
	}
	if v := c.Query("startDate"); v != "" {
		date, err := models.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.StartDate = date
	}

	bookings, err := h.services.Bookings.List(c.Request.Context(), identity(c), filter)
	if err != nil {
		handleServiceError(c, err, "Failed to list bookings")
		return
	}

	c.JSON(http.StatusOK, models.ListBookingsResponse(bookings))
}

// GetBooking - GET /api/bookings/:id
// Получить бронирование
func (h *Handlers) GetBooking(c *gin.Context) {
	booking, err := h.services.Bookings.Get(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		handleServiceError(c, err, "Failed to get booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// UpdateBooking - PATCH /api/bookings/:id
// Изменить статус или контакты бронирования
func (h *Handlers) UpdateBooking(c *gin.Context) {
	var req models.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	booking, err := h.services.Bookings.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to update booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// DeleteBooking - DELETE /api/bookings/:id
// Удалить бронирование
func (h *Handlers) DeleteBooking(c *gin.Context) {
	if err := h.services.Bookings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleServiceError(c, err, "Failed to delete booking")
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: "Booking deleted"})
}
