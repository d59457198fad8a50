package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	apperrors "github.com/Peterdir/travel-booking-website/internal/errors"
	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	departure = models.NewDate(2026, 3, 15)
	admin     = auth.Identity{UserID: "admin-1", Role: models.RoleAdmin}
	alice     = auth.Identity{UserID: "alice", Role: models.RoleCustomer}
	bob       = auth.Identity{UserID: "bob", Role: models.RoleCustomer}
)

type bookingFixture struct {
	store     *memStore
	cache     *memCache
	publisher *recordingPublisher
	tours     *TourService
	bookings  *BookingService
}

func newBookingFixture(t *testing.T, policy models.UntrackedDatePolicy) *bookingFixture {
	t.Helper()
	store := newMemStore()
	cache := newMemCache()
	publisher := &recordingPublisher{}
	return &bookingFixture{
		store:     store,
		cache:     cache,
		publisher: publisher,
		tours:     NewTourService(store, cache, nil, publisher),
		bookings:  NewBookingService(store.bookingStore(), cache, publisher, policy),
	}
}

func (f *bookingFixture) createTour(t *testing.T, maxGuests int, dates ...models.Date) *models.Tour {
	t.Helper()
	price := models.FlexibleInt(1500000)
	tour, err := f.tours.Create(context.Background(), &models.CreateTourRequest{
		Name:       "Đà Lạt mộng mơ",
		CoverImage: "dalat.jpg",
		Price:      &price,
		Location:   "Đà Lạt",
		Days:       3,
		MaxGuests:  models.FlexibleInt(maxGuests),
		StartDates: dates,
	})
	require.NoError(t, err)
	return tour
}

func bookingRequest(tourID string, date models.Date, partySize int) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		TourID:    tourID,
		StartDate: date,
		PartySize: partySize,
		Customer: models.Customer{
			FullName: "Nguyen Van A",
			Email:    "a@example.com",
			Phone:    "0901234567",
		},
	}
}

func TestCreateBookingHoldsSeats(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 3))
	require.NoError(t, err)

	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, models.BookingStatusUnpaid, booking.Status)
	assert.Equal(t, 3, booking.SeatsHeld)
	assert.Equal(t, int64(1500000), booking.UnitPrice)
	assert.Equal(t, int64(4500000), booking.TotalPrice)
	require.NotNil(t, booking.UserID)
	assert.Equal(t, "alice", *booking.UserID)
	require.NotNil(t, booking.Tour)
	assert.Equal(t, tour.ID, booking.Tour.ID)

	entry, ok := f.store.entry(tour.ID, departure)
	require.True(t, ok)
	assert.Equal(t, 7, entry.Remaining)
	assert.Equal(t, 10, entry.Capacity)

	assert.Contains(t, f.cache.invalidated, tour.ID)
	assert.Equal(t, 1, f.publisher.count(models.EventBookingCreated))
}

func TestCreateBookingAcceptsLegacyTourField(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	req := bookingRequest("", departure, 1)
	req.LegacyTour = tour.ID

	booking, err := f.bookings.Create(context.Background(), alice, req)
	require.NoError(t, err)
	assert.Equal(t, tour.ID, booking.TourID)
}

func TestCreateBookingCapacityExceeded(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	_, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 8))
	require.NoError(t, err)

	_, err = f.bookings.Create(context.Background(), bob, bookingRequest(tour.ID, departure, 3))
	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)

	entry, _ := f.store.entry(tour.ID, departure)
	assert.Equal(t, 2, entry.Remaining)

	bookings, err := f.bookings.List(context.Background(), admin, models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestCreateBookingConcurrentRequestsNeverOversell(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 20, departure)

	const remaining = 5
	_, err := f.tours.Update(context.Background(), tour.ID, &models.UpdateTourRequest{
		Availability: &[]models.AvailabilityInput{{StartDate: departure, Remaining: remaining}},
	})
	require.NoError(t, err)

	const workers = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
		unknown   []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperrors.ErrCapacityExceeded):
				rejected++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, remaining, succeeded)
	assert.Equal(t, workers-remaining, rejected)

	entry, _ := f.store.entry(tour.ID, departure)
	assert.Equal(t, 0, entry.Remaining)
}

func TestCreateBookingUntrackedDateAllow(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)
	other := models.NewDate(2026, 4, 1)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, other, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, booking.SeatsHeld)

	_, ok := f.store.entry(tour.ID, other)
	assert.False(t, ok)

	entry, _ := f.store.entry(tour.ID, departure)
	assert.Equal(t, 10, entry.Remaining)

	reloaded, err := f.tours.Get(context.Background(), tour.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Date{departure}, reloaded.StartDates)
}

func TestCreateBookingUntrackedDateReject(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesReject)
	tour := f.createTour(t, 10, departure)

	_, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, models.NewDate(2026, 4, 1), 1))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateBookingUntrackedDateTrack(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesTrack)
	tour := f.createTour(t, 6, departure)
	other := models.NewDate(2026, 4, 1)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, other, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, booking.SeatsHeld)
	assert.Equal(t, 1, f.store.exclusiveLocks)

	entry, ok := f.store.entry(tour.ID, other)
	require.True(t, ok)
	assert.Equal(t, 6, entry.Capacity)
	assert.Equal(t, 2, entry.Remaining)

	_, err = f.bookings.Create(context.Background(), bob, bookingRequest(tour.ID, other, 3))
	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
	assert.Equal(t, 1, f.store.exclusiveLocks, "tracked dates keep the shared lock")

	reloaded, err := f.tours.Get(context.Background(), tour.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Date{departure, other}, reloaded.StartDates)
}

func TestCreateBookingTrackConcurrentFirstBookings(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesTrack)
	tour := f.createTour(t, 10, departure)
	other := models.NewDate(2026, 5, 2)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, other, 2))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	entry, ok := f.store.entry(tour.ID, other)
	require.True(t, ok)
	assert.Equal(t, 10, entry.Capacity)
	assert.Equal(t, 10-workers*2, entry.Remaining)

	reloaded, err := f.tours.Get(context.Background(), tour.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Date{departure, other}, reloaded.StartDates)
}

func TestCreateBookingTotalPriceOutOfRange(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	price := models.FlexibleInt(5000000000000000000)
	tour, err := f.tours.Create(context.Background(), &models.CreateTourRequest{
		Name:       "Phú Quốc VIP",
		CoverImage: "pq.jpg",
		Price:      &price,
		Location:   "Phú Quốc",
		Days:       2,
		MaxGuests:  4,
		StartDates: []models.Date{departure},
	})
	require.NoError(t, err)

	_, err = f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 2))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	entry, _ := f.store.entry(tour.ID, departure)
	assert.Equal(t, 4, entry.Remaining)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(5000000000000000000), booking.TotalPrice)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 4, departure)

	cases := map[string]func(r *models.CreateBookingRequest){
		"zero party":       func(r *models.CreateBookingRequest) { r.PartySize = 0 },
		"missing date":     func(r *models.CreateBookingRequest) { r.StartDate = models.Date{} },
		"blank name":       func(r *models.CreateBookingRequest) { r.Customer.FullName = "  " },
		"missing phone":    func(r *models.CreateBookingRequest) { r.Customer.Phone = "" },
		"missing tour":     func(r *models.CreateBookingRequest) { r.TourID = "" },
		"above max guests": func(r *models.CreateBookingRequest) { r.PartySize = 5 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := bookingRequest(tour.ID, departure, 2)
			mutate(req)
			_, err := f.bookings.Create(context.Background(), alice, req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}

	entry, _ := f.store.entry(tour.ID, departure)
	assert.Equal(t, 4, entry.Remaining)
}

func TestCreateBookingUnknownTour(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)

	_, err := f.bookings.Create(context.Background(), alice, bookingRequest(uuid.New().String(), departure, 1))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.bookings.Create(context.Background(), alice, bookingRequest("not-a-uuid", departure, 1))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateBookingInactiveTour(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 4, departure)

	inactive := models.FlexibleBool(false)
	_, err := f.tours.Update(context.Background(), tour.ID, &models.UpdateTourRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 1))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestBookingPriceIsSnapshot(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 2))
	require.NoError(t, err)

	newPrice := models.FlexibleInt(2000000)
	_, err = f.tours.Update(context.Background(), tour.ID, &models.UpdateTourRequest{Price: &newPrice})
	require.NoError(t, err)

	reloaded, err := f.bookings.Get(context.Background(), admin, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500000), reloaded.UnitPrice)
	assert.Equal(t, int64(3000000), reloaded.TotalPrice)
	assert.Equal(t, int64(2000000), reloaded.Tour.Price)
}

func TestCancelBookingReleasesSeats(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 4))
	require.NoError(t, err)

	paid := models.BookingStatusPaid
	updated, err := f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{Status: &paid})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPaid, updated.Status)

	entry, _ := f.store.entry(tour.ID, departure)
	assert.Equal(t, 6, entry.Remaining)

	cancelled := models.BookingStatusCancelled
	updated, err = f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, updated.Status)
	assert.Equal(t, 0, updated.SeatsHeld)

	entry, _ = f.store.entry(tour.ID, departure)
	assert.Equal(t, 10, entry.Remaining)

	// Повторная отмена ничего не возвращает
	_, err = f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{Status: &cancelled})
	require.NoError(t, err)
	entry, _ = f.store.entry(tour.ID, departure)
	assert.Equal(t, 10, entry.Remaining)

	unpaid := models.BookingStatusUnpaid
	_, err = f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{Status: &unpaid})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assert.Equal(t, 3, f.publisher.count(models.EventBookingUpdated))
}

func TestUpdateBookingCustomerAndValidation(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 1))
	require.NoError(t, err)

	phone := " 0988888888 "
	updated, err := f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{
		Customer: &models.CustomerPatch{Phone: &phone},
	})
	require.NoError(t, err)
	assert.Equal(t, "0988888888", updated.Customer.Phone)
	assert.Equal(t, "Nguyen Van A", updated.Customer.FullName)

	empty := ""
	_, err = f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{
		Customer: &models.CustomerPatch{Email: &empty},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	bogus := models.BookingStatus("refunded")
	_, err = f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{Status: &bogus})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.bookings.Update(context.Background(), uuid.New().String(), &models.UpdateBookingRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteBookingReleasesSeats(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 5))
	require.NoError(t, err)

	require.NoError(t, f.bookings.Delete(context.Background(), booking.ID))

	entry, _ := f.store.entry(tour.ID, departure)
	assert.Equal(t, 10, entry.Remaining)

	err = f.bookings.Delete(context.Background(), booking.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.bookings.Get(context.Background(), admin, booking.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCustomersSeeOnlyTheirBookings(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	mine, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 1))
	require.NoError(t, err)
	theirs, err := f.bookings.Create(context.Background(), bob, bookingRequest(tour.ID, departure, 1))
	require.NoError(t, err)

	list, err := f.bookings.List(context.Background(), alice, models.BookingFilter{UserID: "bob"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, err = f.bookings.Get(context.Background(), alice, theirs.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	got, err := f.bookings.Get(context.Background(), alice, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	all, err := f.bookings.List(context.Background(), admin, models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, theirs.ID, all[0].ID, "newest first")
}

func TestListBookingsFilters(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	later := models.NewDate(2026, 5, 1)
	tour := f.createTour(t, 10, departure, later)
	other := f.createTour(t, 10, departure)

	first, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 1))
	require.NoError(t, err)
	_, err = f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, later, 1))
	require.NoError(t, err)
	_, err = f.bookings.Create(context.Background(), alice, bookingRequest(other.ID, departure, 1))
	require.NoError(t, err)

	paid := models.BookingStatusPaid
	_, err = f.bookings.Update(context.Background(), first.ID, &models.UpdateBookingRequest{Status: &paid})
	require.NoError(t, err)

	byTour, err := f.bookings.List(context.Background(), admin, models.BookingFilter{TourID: tour.ID})
	require.NoError(t, err)
	assert.Len(t, byTour, 2)

	byDate, err := f.bookings.List(context.Background(), admin, models.BookingFilter{TourID: tour.ID, StartDate: departure})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, first.ID, byDate[0].ID)

	byStatus, err := f.bookings.List(context.Background(), admin, models.BookingFilter{Status: models.BookingStatusPaid})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	_, err = f.bookings.List(context.Background(), admin, models.BookingFilter{Status: "refunded"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDeletedTourLeavesBookingsWithNullTour(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 2))
	require.NoError(t, err)

	require.NoError(t, f.tours.Delete(context.Background(), tour.ID))

	reloaded, err := f.bookings.Get(context.Background(), admin, booking.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.Tour)
	assert.Equal(t, tour.ID, reloaded.TourID)
}

// unqueriedBookingStore падает, если до базы дошел запрос списка
type unqueriedBookingStore struct {
	BookingStore
	t *testing.T
}

func (s unqueriedBookingStore) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s.t.Errorf("unexpected store query with filter %+v", filter)
	return nil, errors.New("unexpected query")
}

func TestListBookingsMalformedUserFilter(t *testing.T) {
	store := newMemStore()
	svc := NewBookingService(unqueriedBookingStore{BookingStore: store.bookingStore(), t: t}, nil, nil, models.UntrackedDatesAllow)

	list, err := svc.List(context.Background(), admin, models.BookingFilter{UserID: "foo"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(context.Background(), admin, models.BookingFilter{TourID: "not-a-uuid"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCustomerFieldLengthLimits(t *testing.T) {
	f := newBookingFixture(t, models.UntrackedDatesAllow)
	tour := f.createTour(t, 10, departure)

	req := bookingRequest(tour.ID, departure, 1)
	req.Customer.Phone = strings.Repeat("9", models.MaxPhoneLen+1)
	_, err := f.bookings.Create(context.Background(), alice, req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	booking, err := f.bookings.Create(context.Background(), alice, bookingRequest(tour.ID, departure, 1))
	require.NoError(t, err)

	longName := strings.Repeat("Nguyễn ", 40)
	_, err = f.bookings.Update(context.Background(), booking.ID, &models.UpdateBookingRequest{
		Customer: &models.CustomerPatch{FullName: &longName},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
