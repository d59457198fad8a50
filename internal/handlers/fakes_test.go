package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/repository"

	"github.com/google/uuid"
)

// fakeDB - простое хранилище в памяти для тестов HTTP слоя.
// Транзакции не откатываются: сервисы проверяют условия до записи.
type fakeDB struct {
	mu       sync.Mutex
	tours    map[string]*models.Tour
	bookings map[string]*models.Booking
	users    map[string]*models.User
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		tours:    map[string]*models.Tour{},
		bookings: map[string]*models.Booking{},
		users:    map[string]*models.User{},
	}
}

func cloneTour(t *models.Tour) *models.Tour {
	if t == nil {
		return nil
	}
	c := *t
	c.StartDates = append([]models.Date(nil), t.StartDates...)
	c.Availability = append([]models.AvailabilityEntry(nil), t.Availability...)
	return &c
}

type fakeTours struct{ db *fakeDB }

func (f fakeTours) Create(_ context.Context, tour *models.Tour) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	tour.ID = uuid.New().String()
	tour.CreatedAt = time.Now()
	tour.UpdatedAt = tour.CreatedAt
	f.db.tours[tour.ID] = cloneTour(tour)
	return nil
}

func (f fakeTours) GetByID(_ context.Context, id string) (*models.Tour, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return cloneTour(f.db.tours[id]), nil
}

func (f fakeTours) GetBySlug(_ context.Context, slug string) (*models.Tour, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, t := range f.db.tours {
		if t.Slug == slug {
			return cloneTour(t), nil
		}
	}
	return nil, nil
}

func (f fakeTours) SlugExists(ctx context.Context, slug string) (bool, error) {
	t, err := f.GetBySlug(ctx, slug)
	return t != nil, err
}

func (f fakeTours) List(_ context.Context, filter models.TourFilter) ([]models.Tour, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	tours := []models.Tour{}
	for _, t := range f.db.tours {
		if filter.Days != nil && t.Days != *filter.Days {
			continue
		}
		tours = append(tours, *cloneTour(t))
	}
	return tours, nil
}

func (f fakeTours) Update(_ context.Context, id string, mutate func(tour *models.Tour) error) (*models.Tour, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	current, ok := f.db.tours[id]
	if !ok {
		return nil, nil
	}
	next := cloneTour(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	f.db.tours[id] = next
	return cloneTour(next), nil
}

func (f fakeTours) Delete(_ context.Context, id string) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	_, ok := f.db.tours[id]
	delete(f.db.tours, id)
	return ok, nil
}

type fakeBookings struct{ db *fakeDB }

func (f fakeBookings) InTx(ctx context.Context, fn func(tx repository.AllocationTx) error) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return fn(fakeTx{db: f.db})
}

func (f fakeBookings) GetByID(_ context.Context, id string) (*models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.bookings[id]
	if !ok {
		return nil, nil
	}
	c := *b
	c.Tour = cloneTour(f.db.tours[b.TourID])
	return &c, nil
}

func (f fakeBookings) List(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []models.Booking{}
	for _, b := range f.db.bookings {
		if filter.UserID != "" && (b.UserID == nil || *b.UserID != filter.UserID) {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		c := *b
		c.Tour = cloneTour(f.db.tours[b.TourID])
		out = append(out, c)
	}
	return out, nil
}

// fakeTx работает под мьютексом, взятым в InTx
type fakeTx struct{ db *fakeDB }

func (t fakeTx) entry(tourID string, date models.Date) *models.AvailabilityEntry {
	tour, ok := t.db.tours[tourID]
	if !ok {
		return nil
	}
	for i := range tour.Availability {
		if tour.Availability[i].StartDate.Equal(date) {
			return &tour.Availability[i]
		}
	}
	return nil
}

func (t fakeTx) LockTour(_ context.Context, id string) (*models.Tour, error) {
	return cloneTour(t.db.tours[id]), nil
}

func (t fakeTx) LockTourForUpdate(ctx context.Context, id string) (*models.Tour, error) {
	return t.LockTour(ctx, id)
}

func (t fakeTx) ConsumeSeats(_ context.Context, tourID string, date models.Date, n int) (repository.ConsumeResult, error) {
	e := t.entry(tourID, date)
	if e == nil {
		return repository.ConsumeResult{}, nil
	}
	if e.Remaining < n {
		return repository.ConsumeResult{Tracked: true, Remaining: e.Remaining}, nil
	}
	e.Remaining -= n
	return repository.ConsumeResult{Tracked: true, Consumed: true, Remaining: e.Remaining}, nil
}

func (t fakeTx) OpenDeparture(_ context.Context, tourID string, date models.Date, capacity int) error {
	tour := t.db.tours[tourID]
	tour.StartDates = append(tour.StartDates, date)
	tour.Availability = append(tour.Availability, models.AvailabilityEntry{StartDate: date, Remaining: capacity, Capacity: capacity})
	return nil
}

func (t fakeTx) ReleaseSeats(_ context.Context, tourID string, date models.Date, n int) error {
	if e := t.entry(tourID, date); e != nil {
		e.Remaining = min(e.Capacity, e.Remaining+n)
	}
	return nil
}

func (t fakeTx) InsertBooking(_ context.Context, booking *models.Booking) error {
	booking.ID = uuid.New().String()
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	c := *booking
	c.Tour = nil
	t.db.bookings[booking.ID] = &c
	return nil
}

func (t fakeTx) GetBookingForUpdate(_ context.Context, id string) (*models.Booking, error) {
	b, ok := t.db.bookings[id]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (t fakeTx) UpdateBooking(_ context.Context, booking *models.Booking) error {
	c := *booking
	c.UpdatedAt = time.Now()
	t.db.bookings[booking.ID] = &c
	return nil
}

func (t fakeTx) DeleteBooking(_ context.Context, id string) error {
	delete(t.db.bookings, id)
	return nil
}

type fakeUsers struct{ db *fakeDB }

func (f fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[email]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (f fakeUsers) Create(_ context.Context, user *models.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.users[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	c := *user
	f.db.users[user.Email] = &c
	return nil
}
