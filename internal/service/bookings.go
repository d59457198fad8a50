package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	apperrors "github.com/Peterdir/travel-booking-website/internal/errors"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/metrics"
	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/repository"

	"github.com/google/uuid"
)

type BookingService struct {
	store     BookingStore
	cache     TourCache
	publisher EventPublisher
	untracked models.UntrackedDatePolicy
}

func NewBookingService(store BookingStore, cache TourCache, publisher EventPublisher, untracked models.UntrackedDatePolicy) *BookingService {
	if !untracked.Valid() {
		untracked = models.UntrackedDatesAllow
	}
	return &BookingService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		untracked: untracked,
	}
}

// allocationError помечает отказ аллокатора причиной для метрик
type allocationError struct {
	reason string
	err    error
}

func (e *allocationError) Error() string { return e.err.Error() }
func (e *allocationError) Unwrap() error { return e.err }

func reject(reason string, err error) error {
	return &allocationError{reason: reason, err: err}
}

// Create бронирует места на дату отправления тура.
// Проверка остатка и списание выполняются одним условным UPDATE внутри транзакции,
// поэтому параллельные запросы не могут продать больше мест, чем есть.
func (s *BookingService) Create(ctx context.Context, identity auth.Identity, req *models.CreateBookingRequest) (*models.Booking, error) {
	booking, err := s.newBooking(identity, req)
	if err != nil {
		metrics.AllocationFailed(metrics.ReasonInvalid)
		return nil, err
	}

	var (
		tour   *models.Tour
		result repository.ConsumeResult
	)
	exclusive := false
	for {
		err = s.store.InTx(ctx, func(tx repository.AllocationTx) error {
			var err error
			tour, result, err = s.allocate(ctx, tx, booking, exclusive)
			return err
		})
		if errors.Is(err, errNeedsTourLock) && !exclusive {
			exclusive = true
			continue
		}
		break
	}
	if err != nil {
		var allocErr *allocationError
		if errors.As(err, &allocErr) {
			metrics.AllocationFailed(allocErr.reason)
			logger.WithContext(ctx).Info("Booking rejected",
				"tour_id", booking.TourID,
				"start_date", booking.StartDate.String(),
				"party_size", booking.PartySize,
				"reason", allocErr.reason)
			return nil, allocErr.err
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	booking.Tour = tour
	metrics.BookingCreated(result.Tracked, booking.SeatsHeld)

	if !result.Tracked {
		logger.WithContext(ctx).Warn("Booked a departure without seat tracking",
			"tour_id", booking.TourID, "start_date", booking.StartDate.String())
	}
	logger.WithContext(ctx).Info("Booking created",
		"booking_id", booking.ID,
		"tour_id", booking.TourID,
		"party_size", booking.PartySize,
		"remaining", result.Remaining)

	if result.Consumed {
		invalidateTour(ctx, s.cache, booking.TourID)
	}
	publish(ctx, s.publisher, models.EventBookingCreated, models.BookingCreatedEvent{
		BookingID:  booking.ID,
		TourID:     booking.TourID,
		UserID:     booking.UserID,
		StartDate:  booking.StartDate.String(),
		PartySize:  booking.PartySize,
		TotalPrice: booking.TotalPrice,
		Tracked:    result.Tracked,
		Timestamp:  time.Now(),
	})

	return booking, nil
}

// errNeedsTourLock - новая дата при политике track открывается только под
// FOR NO KEY UPDATE на туре; под FOR SHARE две первые брони на одну дату
// взаимно блокируются на UPDATE tours
var errNeedsTourLock = errors.New("opening a departure requires an exclusive tour lock")

// allocate проверяет тур и списывает места внутри транзакции
func (s *BookingService) allocate(ctx context.Context, tx repository.AllocationTx, booking *models.Booking, exclusive bool) (*models.Tour, repository.ConsumeResult, error) {
	lockTour := tx.LockTour
	if exclusive {
		lockTour = tx.LockTourForUpdate
	}

	var result repository.ConsumeResult
	tour, err := lockTour(ctx, booking.TourID)
	if err != nil {
		return nil, result, fmt.Errorf("failed to get tour: %w", err)
	}
	if tour == nil {
		return nil, result, reject(metrics.ReasonTourNotFound, fmt.Errorf("%w: tour not found", apperrors.ErrNotFound))
	}
	if !tour.IsActive {
		return tour, result, reject(metrics.ReasonInactive, fmt.Errorf("%w: tour is not open for booking", apperrors.ErrValidation))
	}
	if booking.PartySize > tour.MaxGuests {
		return tour, result, reject(metrics.ReasonInvalid, fmt.Errorf("%w: partySize exceeds the tour limit of %d guests", apperrors.ErrValidation, tour.MaxGuests))
	}
	if tour.Price > math.MaxInt64/int64(booking.PartySize) {
		return tour, result, reject(metrics.ReasonInvalid, fmt.Errorf("%w: total price is out of range", apperrors.ErrValidation))
	}

	// Цена фиксируется в момент бронирования
	booking.UnitPrice = tour.Price
	booking.TotalPrice = tour.Price * int64(booking.PartySize)

	result, err = tx.ConsumeSeats(ctx, tour.ID, booking.StartDate, booking.PartySize)
	if err != nil {
		return tour, result, err
	}

	if !result.Tracked {
		switch s.untracked {
		case models.UntrackedDatesReject:
			return tour, result, reject(metrics.ReasonUntracked, fmt.Errorf("%w: %s is not a scheduled departure", apperrors.ErrValidation, booking.StartDate))
		case models.UntrackedDatesTrack:
			if !exclusive {
				return tour, result, errNeedsTourLock
			}
			if err := tx.OpenDeparture(ctx, tour.ID, booking.StartDate, tour.MaxGuests); err != nil {
				return tour, result, err
			}
			result, err = tx.ConsumeSeats(ctx, tour.ID, booking.StartDate, booking.PartySize)
			if err != nil {
				return tour, result, err
			}
		}
	}

	if result.Tracked && !result.Consumed {
		return tour, result, reject(metrics.ReasonCapacity, apperrors.ErrCapacityExceeded)
	}
	if result.Consumed {
		booking.SeatsHeld = booking.PartySize
	}

	return tour, result, tx.InsertBooking(ctx, booking)
}

func (s *BookingService) newBooking(identity auth.Identity, req *models.CreateBookingRequest) (*models.Booking, error) {
	tourID := req.TargetTourID()
	if tourID == "" {
		return nil, fmt.Errorf("%w: tourId is required", apperrors.ErrValidation)
	}
	if _, err := uuid.Parse(tourID); err != nil {
		return nil, fmt.Errorf("%w: tour not found", apperrors.ErrNotFound)
	}
	if req.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: startDate is required", apperrors.ErrValidation)
	}
	if req.PartySize < 1 {
		return nil, fmt.Errorf("%w: partySize must be at least 1", apperrors.ErrValidation)
	}

	customer := models.Customer{
		FullName: strings.TrimSpace(req.Customer.FullName),
		Email:    strings.TrimSpace(req.Customer.Email),
		Phone:    strings.TrimSpace(req.Customer.Phone),
	}
	if customer.FullName == "" || customer.Email == "" || customer.Phone == "" {
		return nil, fmt.Errorf("%w: customer fullName, email and phone are required", apperrors.ErrValidation)
	}
	if err := validateCustomerLengths(customer); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		TourID:    tourID,
		StartDate: req.StartDate,
		Customer:  customer,
		PartySize: req.PartySize,
		Status:    models.BookingStatusUnpaid,
	}
	if identity.UserID != "" {
		userID := identity.UserID
		booking.UserID = &userID
	}
	return booking, nil
}

// List возвращает бронирования. Клиент видит только свои.
func (s *BookingService) List(ctx context.Context, identity auth.Identity, filter models.BookingFilter) ([]models.Booking, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, filter.Status)
	}
	if filter.TourID != "" {
		if _, err := uuid.Parse(filter.TourID); err != nil {
			return []models.Booking{}, nil
		}
	}
	if !identity.IsAdmin() {
		filter.UserID = identity.UserID
	} else if filter.UserID != "" {
		if _, err := uuid.Parse(filter.UserID); err != nil {
			return []models.Booking{}, nil
		}
	}

	bookings, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (s *BookingService) Get(ctx context.Context, identity auth.Identity, id string) (*models.Booking, error) {
	booking, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !identity.IsAdmin() && (booking.UserID == nil || *booking.UserID != identity.UserID) {
		return nil, apperrors.ErrForbidden
	}
	return booking, nil
}

func (s *BookingService) get(ctx context.Context, id string) (*models.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: booking not found", apperrors.ErrNotFound)
	}
	booking, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking not found", apperrors.ErrNotFound)
	}
	return booking, nil
}

// Update меняет статус и контакты. Отмена возвращает удерживаемые места в счетчик.
func (s *BookingService) Update(ctx context.Context, id string, req *models.UpdateBookingRequest) (*models.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: booking not found", apperrors.ErrNotFound)
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, fmt.Errorf("%w: status must be one of unpaid, paid, cancelled", apperrors.ErrValidation)
	}

	var (
		prevStatus models.BookingStatus
		released   int
		tourID     string
	)
	err := s.store.InTx(ctx, func(tx repository.AllocationTx) error {
		booking, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get booking: %w", err)
		}
		if booking == nil {
			return fmt.Errorf("%w: booking not found", apperrors.ErrNotFound)
		}
		prevStatus = booking.Status
		tourID = booking.TourID

		if req.Status != nil && *req.Status != booking.Status {
			if booking.Status == models.BookingStatusCancelled {
				return fmt.Errorf("%w: a cancelled booking cannot be reopened", apperrors.ErrValidation)
			}
			if *req.Status == models.BookingStatusCancelled && booking.SeatsHeld > 0 {
				if err := tx.ReleaseSeats(ctx, booking.TourID, booking.StartDate, booking.SeatsHeld); err != nil {
					return err
				}
				released = booking.SeatsHeld
				booking.SeatsHeld = 0
			}
			booking.Status = *req.Status
		}

		if err := applyCustomerPatch(&booking.Customer, req.Customer); err != nil {
			return err
		}

		return tx.UpdateBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	booking, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Booking updated",
		"booking_id", id, "status", booking.Status, "prev_status", prevStatus, "seats_released", released)

	if released > 0 {
		metrics.SeatsReturned(released)
		invalidateTour(ctx, s.cache, tourID)
	}
	publish(ctx, s.publisher, models.EventBookingUpdated, models.BookingUpdatedEvent{
		BookingID:     id,
		TourID:        tourID,
		Status:        booking.Status,
		PrevStatus:    prevStatus,
		SeatsReleased: released,
		Timestamp:     time.Now(),
	})

	return booking, nil
}

func applyCustomerPatch(customer *models.Customer, patch *models.CustomerPatch) error {
	if patch == nil {
		return nil
	}
	fields := []struct {
		name  string
		value *string
		dest  *string
	}{
		{"fullName", patch.FullName, &customer.FullName},
		{"email", patch.Email, &customer.Email},
		{"phone", patch.Phone, &customer.Phone},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		v := strings.TrimSpace(*f.value)
		if v == "" {
			return fmt.Errorf("%w: customer %s must not be empty", apperrors.ErrValidation, f.name)
		}
		*f.dest = v
	}
	return validateCustomerLengths(*customer)
}

func validateCustomerLengths(customer models.Customer) error {
	limits := []struct {
		name  string
		value string
		max   int
	}{
		{"fullName", customer.FullName, models.MaxCustomerNameLen},
		{"email", customer.Email, models.MaxEmailLen},
		{"phone", customer.Phone, models.MaxPhoneLen},
	}
	for _, l := range limits {
		if utf8.RuneCountInString(l.value) > l.max {
			return fmt.Errorf("%w: customer %s must be at most %d characters", apperrors.ErrValidation, l.name, l.max)
		}
	}
	return nil
}

// Delete удаляет бронирование и возвращает удерживаемые места
func (s *BookingService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: booking not found", apperrors.ErrNotFound)
	}

	var deleted *models.Booking
	err := s.store.InTx(ctx, func(tx repository.AllocationTx) error {
		booking, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get booking: %w", err)
		}
		if booking == nil {
			return fmt.Errorf("%w: booking not found", apperrors.ErrNotFound)
		}
		if booking.SeatsHeld > 0 {
			if err := tx.ReleaseSeats(ctx, booking.TourID, booking.StartDate, booking.SeatsHeld); err != nil {
				return err
			}
		}
		deleted = booking
		return tx.DeleteBooking(ctx, id)
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx).Info("Booking deleted", "booking_id", id, "seats_released", deleted.SeatsHeld)

	if deleted.SeatsHeld > 0 {
		metrics.SeatsReturned(deleted.SeatsHeld)
		invalidateTour(ctx, s.cache, deleted.TourID)
	}
	publish(ctx, s.publisher, models.EventBookingDeleted, models.BookingDeletedEvent{
		BookingID:     id,
		TourID:        deleted.TourID,
		SeatsReleased: deleted.SeatsHeld,
		Timestamp:     time.Now(),
	})
	return nil
}
