package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/gin-gonic/gin"
)

// Tours handlers

// ListTours - GET /api/tours
// Получить список туров с фильтрами
func (h *Handlers) ListTours(c *gin.Context) {
	filter, err := parseTourFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tours, err := h.services.Tours.List(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err, "Failed to list tours")
		return
	}

	c.JSON(http.StatusOK, models.ListToursResponse(tours))
}

func parseTourFilter(c *gin.Context) (models.TourFilter, error) {
	filter := models.TourFilter{
		Location: strings.TrimSpace(c.Query("location")),
		Query:    strings.TrimSpace(c.Query("q")),
	}

	if v := c.Query("minPrice"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("minPrice must be an integer")
		}
		filter.MinPrice = &n
	}
	if v := c.Query("maxPrice"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("maxPrice must be an integer")
		}
		filter.MaxPrice = &n
	}
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("days must be an integer")
		}
		filter.Days = &n
	}
	if v := c.Query("isActive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("isActive must be true or false")
		}
		filter.IsActive = &b
	}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("page must be >= 1")
		}
		filter.Page = n
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("pageSize must be between 1 and 100")
		}
		filter.PageSize = n
	}
	return filter, nil
}

// GetTour - GET /api/tours/:id
// Получить тур по идентификатору или slug
func (h *Handlers) GetTour(c *gin.Context) {
	tour, err := h.services.Tours.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err, "Failed to get tour")
		return
	}

	c.JSON(http.StatusOK, tour)
}

// CreateTour - POST /api/tours
// Создать тур
func (h *Handlers) CreateTour(c *gin.Context) {
	var req models.CreateTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	tour, err := h.services.Tours.Create(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to create tour")
		return
	}

	c.JSON(http.StatusCreated, tour)
}

// UpdateTour - PATCH /api/tours/:id
// Частично обновить тур
func (h *Handlers) UpdateTour(c *gin.Context) {
	var req models.UpdateTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	tour, err := h.services.Tours.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to update tour")
		return
	}

	c.JSON(http.StatusOK, tour)
}

// DeleteTour - DELETE /api/tours/:id
// Удалить тур
func (h *Handlers) DeleteTour(c *gin.Context) {
	if err := h.services.Tours.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleServiceError(c, err, "Failed to delete tour")
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: "Tour deleted"})
}
