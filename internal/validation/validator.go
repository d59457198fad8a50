package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/config"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/google/uuid"
)

// APIValidator прогоняет сценарий каталог -> регистрация -> бронирование -> отмена
// против запущенного API и проверяет коды ответов и счетчики мест.
type APIValidator struct {
	baseURL       string
	adminEmail    string
	adminPassword string
	client        *http.Client
}

// NewAPIValidator создает новый валидатор
func NewAPIValidator(baseURL, adminEmail, adminPassword string) *APIValidator {
	return &APIValidator{
		baseURL:       baseURL,
		adminEmail:    adminEmail,
		adminPassword: adminPassword,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// ValidateAll проверяет основные сценарии API
func (v *APIValidator) ValidateAll() error {
	slog.Info("Starting API validation", "url", v.baseURL)

	adminToken, err := v.login(v.adminEmail, v.adminPassword)
	if err != nil {
		return fmt.Errorf("admin login failed: %w", err)
	}

	tour, err := v.validateTours(adminToken)
	if err != nil {
		return fmt.Errorf("tours validation failed: %w", err)
	}

	if err := v.validateBookings(adminToken, tour); err != nil {
		return fmt.Errorf("bookings validation failed: %w", err)
	}

	// DELETE /api/tours/:id
	if err := v.expect(http.MethodDelete, "/api/tours/"+tour.ID, adminToken, nil, http.StatusOK, nil); err != nil {
		return err
	}
	if err := v.expect(http.MethodGet, "/api/tours/"+tour.ID, "", nil, http.StatusNotFound, nil); err != nil {
		return err
	}

	slog.Info("All endpoints passed validation")
	return nil
}

func (v *APIValidator) validateTours(adminToken string) (*models.Tour, error) {
	slog.Info("Validating tours endpoints")

	departure := models.DateOf(time.Now().AddDate(0, 1, 0))
	price := models.FlexibleInt(1500000)
	req := models.CreateTourRequest{
		Name:       "Validation tour " + uuid.New().String()[:8],
		CoverImage: "https://example.com/cover.jpg",
		Price:      &price,
		Location:   "Đà Lạt",
		Days:       3,
		MaxGuests:  2,
		StartDates: []models.Date{departure},
	}

	// POST /api/tours без токена
	if err := v.expect(http.MethodPost, "/api/tours", "", req, http.StatusUnauthorized, nil); err != nil {
		return nil, err
	}

	var tour models.Tour
	if err := v.expect(http.MethodPost, "/api/tours", adminToken, req, http.StatusCreated, &tour); err != nil {
		return nil, err
	}
	if tour.ID == "" || tour.Slug == "" {
		return nil, fmt.Errorf("POST /api/tours: expected id and slug, got %q / %q", tour.ID, tour.Slug)
	}
	if entry, ok := tour.AvailabilityFor(departure); !ok || entry.Remaining != 2 {
		return nil, fmt.Errorf("POST /api/tours: expected 2 seats on %s, got %+v", departure, tour.Availability)
	}

	// GET /api/tours/:slug
	var bySlug models.Tour
	if err := v.expect(http.MethodGet, "/api/tours/"+tour.Slug, "", nil, http.StatusOK, &bySlug); err != nil {
		return nil, err
	}
	if bySlug.ID != tour.ID {
		return nil, fmt.Errorf("GET /api/tours/%s: expected tour %s, got %s", tour.Slug, tour.ID, bySlug.ID)
	}

	// GET /api/tours?location=
	var list models.ListToursResponse
	if err := v.expect(http.MethodGet, "/api/tours?location=da%20lat&pageSize=100", "", nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	if !containsTour(list, tour.ID) {
		return nil, fmt.Errorf("GET /api/tours?location=da lat: created tour is missing")
	}

	slog.Info("Tours endpoints are valid")
	return &tour, nil
}

func (v *APIValidator) validateBookings(adminToken string, tour *models.Tour) error {
	slog.Info("Validating bookings endpoints")

	email := fmt.Sprintf("validate-%s@example.com", uuid.New().String()[:8])
	password := "validate-123"

	if err := v.expect(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		FullName: "Validation Customer",
		Email:    email,
		Password: password,
	}, http.StatusCreated, nil); err != nil {
		return err
	}

	token, err := v.login(email, password)
	if err != nil {
		return fmt.Errorf("customer login failed: %w", err)
	}

	departure := tour.StartDates[0]
	req := models.CreateBookingRequest{
		TourID:    tour.ID,
		StartDate: departure,
		PartySize: 2,
		Customer: models.Customer{
			FullName: "Validation Customer",
			Email:    email,
			Phone:    "0900000000",
		},
	}

	var booking models.Booking
	if err := v.expect(http.MethodPost, "/api/bookings", token, req, http.StatusCreated, &booking); err != nil {
		return err
	}
	if booking.TotalPrice != 2*tour.Price || booking.SeatsHeld != 2 {
		return fmt.Errorf("POST /api/bookings: unexpected booking %+v", booking)
	}

	// Мест на дату больше нет
	req.PartySize = 1
	if err := v.expect(http.MethodPost, "/api/bookings", token, req, http.StatusBadRequest, nil); err != nil {
		return err
	}

	var own models.ListBookingsResponse
	if err := v.expect(http.MethodGet, "/api/bookings", token, nil, http.StatusOK, &own); err != nil {
		return err
	}
	if len(own) != 1 || own[0].ID != booking.ID {
		return fmt.Errorf("GET /api/bookings: expected only the customer's booking, got %d", len(own))
	}

	// Отмену делает только администратор
	cancelled := models.BookingStatusCancelled
	patch := models.UpdateBookingRequest{Status: &cancelled}
	if err := v.expect(http.MethodPatch, "/api/bookings/"+booking.ID, token, patch, http.StatusForbidden, nil); err != nil {
		return err
	}
	if err := v.expect(http.MethodPatch, "/api/bookings/"+booking.ID, adminToken, patch, http.StatusOK, nil); err != nil {
		return err
	}

	var after models.Tour
	if err := v.expect(http.MethodGet, "/api/tours/"+tour.ID, "", nil, http.StatusOK, &after); err != nil {
		return err
	}
	if entry, ok := after.AvailabilityFor(departure); !ok || entry.Remaining != 2 {
		return fmt.Errorf("cancellation did not release seats: %+v", after.Availability)
	}

	if err := v.expect(http.MethodDelete, "/api/bookings/"+booking.ID, adminToken, nil, http.StatusOK, nil); err != nil {
		return err
	}

	slog.Info("Bookings endpoints are valid")
	return nil
}

func (v *APIValidator) login(email, password string) (string, error) {
	var resp models.AuthResponse
	if err := v.expect(http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Email:    email,
		Password: password,
	}, http.StatusOK, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("POST /api/auth/login: empty token")
	}
	return resp.Token, nil
}

// expect выполняет запрос, проверяет статус и, если out не nil, декодирует тело
func (v *APIValidator) expect(method, path, token string, body interface{}, status int, out interface{}) error {
	resp, err := v.makeRequest(method, path, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != status {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: expected %d, got %d: %s", method, path, status, resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

func (v *APIValidator) makeRequest(method, path, token string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	return resp, nil
}

func containsTour(tours []models.Tour, id string) bool {
	for _, t := range tours {
		if t.ID == id {
			return true
		}
	}
	return false
}

// RunValidation запускает валидацию API, адрес берется из VALIDATE_URL
func RunValidation() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")

	baseURL := os.Getenv("VALIDATE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}

	validator := NewAPIValidator(baseURL, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	if err := validator.ValidateAll(); err != nil {
		logger.Fatal("API validation failed", "error", err)
	}
}
