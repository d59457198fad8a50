package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/repository"

	"github.com/google/uuid"
)

// memStore - хранилище в памяти для тестов сервисов. Транзакции сериализуются
// мьютексом и откатываются восстановлением снимка.
type memStore struct {
	mu           sync.Mutex
	tours        map[string]*models.Tour
	availability map[string]map[string]models.AvailabilityEntry
	bookings     map[string]*models.Booking
	users        map[string]*models.User
	clock        time.Time

	exclusiveLocks int
}

func newMemStore() *memStore {
	return &memStore{
		tours:        map[string]*models.Tour{},
		availability: map[string]map[string]models.AvailabilityEntry{},
		bookings:     map[string]*models.Booking{},
		users:        map[string]*models.User{},
		clock:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) tourWithAvailability(t *models.Tour) *models.Tour {
	out := *t
	out.StartDates = append([]models.Date(nil), t.StartDates...)
	out.Availability = []models.AvailabilityEntry{}
	for _, entry := range s.availability[t.ID] {
		out.Availability = append(out.Availability, entry)
	}
	sort.Slice(out.Availability, func(i, j int) bool {
		return out.Availability[i].StartDate.Before(out.Availability[j].StartDate)
	})
	return &out
}

func (s *memStore) entry(tourID string, date models.Date) (models.AvailabilityEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.availability[tourID][date.String()]
	return entry, ok
}

// TourStore

func (s *memStore) Create(ctx context.Context, tour *models.Tour) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tour.ID = uuid.New().String()
	tour.CreatedAt = s.tick()
	tour.UpdatedAt = tour.CreatedAt
	stored := *tour
	stored.Availability = nil
	stored.StartDates = models.SortDates(tour.StartDates)
	s.tours[tour.ID] = &stored

	s.availability[tour.ID] = map[string]models.AvailabilityEntry{}
	for _, entry := range tour.Availability {
		s.availability[tour.ID][entry.StartDate.String()] = entry
	}
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*models.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[id]
	if !ok {
		return nil, nil
	}
	return s.tourWithAvailability(t), nil
}

func (s *memStore) GetBySlug(ctx context.Context, slug string) (*models.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tours {
		if t.Slug == slug {
			return s.tourWithAvailability(t), nil
		}
	}
	return nil, nil
}

func (s *memStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	t, err := s.GetBySlug(ctx, slug)
	return t != nil, err
}

func (s *memStore) List(ctx context.Context, filter models.TourFilter) ([]models.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids map[string]bool
	if filter.IDs != nil {
		ids = map[string]bool{}
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	tours := []models.Tour{}
	for _, t := range s.tours {
		if filter.Location != "" && !strings.Contains(models.FoldKey(t.Location), models.FoldKey(filter.Location)) {
			continue
		}
		if filter.MinPrice != nil && t.Price < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && t.Price > *filter.MaxPrice {
			continue
		}
		if filter.Days != nil && t.Days != *filter.Days {
			continue
		}
		if filter.IsActive != nil && t.IsActive != *filter.IsActive {
			continue
		}
		if ids != nil && !ids[t.ID] {
			continue
		}
		if ids == nil && filter.Query != "" {
			q := models.FoldKey(filter.Query)
			if !strings.Contains(models.FoldKey(t.Name), q) && !strings.Contains(models.FoldKey(t.Location), q) {
				continue
			}
		}
		tours = append(tours, *s.tourWithAvailability(t))
	}

	sort.Slice(tours, func(i, j int) bool { return tours[i].CreatedAt.After(tours[j].CreatedAt) })

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * filter.PageSize
		if start >= len(tours) {
			return []models.Tour{}, nil
		}
		end := start + filter.PageSize
		if end > len(tours) {
			end = len(tours)
		}
		tours = tours[start:end]
	}
	return tours, nil
}

func (s *memStore) Update(ctx context.Context, id string, mutate func(tour *models.Tour) error) (*models.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tours[id]
	if !ok {
		return nil, nil
	}
	tour := s.tourWithAvailability(t)
	if err := mutate(tour); err != nil {
		return nil, err
	}

	tour.UpdatedAt = s.tick()
	stored := *tour
	stored.Availability = nil
	stored.StartDates = models.SortDates(tour.StartDates)
	s.tours[id] = &stored

	s.availability[id] = map[string]models.AvailabilityEntry{}
	for _, entry := range tour.Availability {
		s.availability[id][entry.StartDate.String()] = entry
	}
	return tour, nil
}

func (s *memStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tours[id]; !ok {
		return false, nil
	}
	delete(s.tours, id)
	delete(s.availability, id)
	return true, nil
}

// BookingStore

type bookingStoreView struct{ *memStore }

func (s *memStore) bookingStore() BookingStore { return bookingStoreView{s} }

func (v bookingStoreView) InTx(ctx context.Context, fn func(tx repository.AllocationTx) error) error {
	s := v.memStore
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(memTx{s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (v bookingStoreView) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	s := v.memStore
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, nil
	}
	return s.joined(b), nil
}

func (v bookingStoreView) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s := v.memStore
	s.mu.Lock()
	defer s.mu.Unlock()

	bookings := []models.Booking{}
	for _, b := range s.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.TourID != "" && b.TourID != filter.TourID {
			continue
		}
		if !filter.StartDate.IsZero() && !b.StartDate.Equal(filter.StartDate) {
			continue
		}
		if filter.UserID != "" && (b.UserID == nil || *b.UserID != filter.UserID) {
			continue
		}
		bookings = append(bookings, *s.joined(b))
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (s *memStore) joined(b *models.Booking) *models.Booking {
	out := *b
	out.Tour = nil
	if t, ok := s.tours[b.TourID]; ok {
		tour := *t
		out.Tour = &tour
	}
	return &out
}

type memSnapshot struct {
	tours        map[string]models.Tour
	availability map[string]map[string]models.AvailabilityEntry
	bookings     map[string]models.Booking
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		tours:        map[string]models.Tour{},
		availability: map[string]map[string]models.AvailabilityEntry{},
		bookings:     map[string]models.Booking{},
	}
	for id, t := range s.tours {
		tour := *t
		tour.StartDates = append([]models.Date(nil), t.StartDates...)
		snap.tours[id] = tour
	}
	for id, entries := range s.availability {
		snap.availability[id] = map[string]models.AvailabilityEntry{}
		for k, e := range entries {
			snap.availability[id][k] = e
		}
	}
	for id, b := range s.bookings {
		snap.bookings[id] = *b
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.tours = map[string]*models.Tour{}
	for id, t := range snap.tours {
		tour := t
		s.tours[id] = &tour
	}
	s.availability = snap.availability
	s.bookings = map[string]*models.Booking{}
	for id, b := range snap.bookings {
		booking := b
		s.bookings[id] = &booking
	}
}

type memTx struct{ s *memStore }

func (tx memTx) LockTourForUpdate(ctx context.Context, id string) (*models.Tour, error) {
	tx.s.exclusiveLocks++
	return tx.LockTour(ctx, id)
}

func (tx memTx) LockTour(ctx context.Context, id string) (*models.Tour, error) {
	t, ok := tx.s.tours[id]
	if !ok {
		return nil, nil
	}
	tour := *t
	return &tour, nil
}

func (tx memTx) ConsumeSeats(ctx context.Context, tourID string, date models.Date, n int) (repository.ConsumeResult, error) {
	entry, ok := tx.s.availability[tourID][date.String()]
	if !ok {
		return repository.ConsumeResult{}, nil
	}
	if entry.Remaining < n {
		return repository.ConsumeResult{Tracked: true, Remaining: entry.Remaining}, nil
	}
	entry.Remaining -= n
	tx.s.availability[tourID][date.String()] = entry
	return repository.ConsumeResult{Tracked: true, Consumed: true, Remaining: entry.Remaining}, nil
}

func (tx memTx) OpenDeparture(ctx context.Context, tourID string, date models.Date, capacity int) error {
	if _, ok := tx.s.availability[tourID][date.String()]; ok {
		return nil
	}
	if tx.s.availability[tourID] == nil {
		tx.s.availability[tourID] = map[string]models.AvailabilityEntry{}
	}
	tx.s.availability[tourID][date.String()] = models.AvailabilityEntry{StartDate: date, Remaining: capacity, Capacity: capacity}
	if t, ok := tx.s.tours[tourID]; ok {
		t.StartDates = models.SortDates(append(append([]models.Date(nil), t.StartDates...), date))
	}
	return nil
}

func (tx memTx) ReleaseSeats(ctx context.Context, tourID string, date models.Date, n int) error {
	entry, ok := tx.s.availability[tourID][date.String()]
	if !ok {
		return nil
	}
	entry.Remaining += n
	if entry.Remaining > entry.Capacity {
		entry.Remaining = entry.Capacity
	}
	tx.s.availability[tourID][date.String()] = entry
	return nil
}

func (tx memTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	booking.ID = uuid.New().String()
	booking.CreatedAt = tx.s.tick()
	booking.UpdatedAt = booking.CreatedAt
	stored := *booking
	stored.Tour = nil
	tx.s.bookings[booking.ID] = &stored
	return nil
}

func (tx memTx) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := tx.s.bookings[id]
	if !ok {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (tx memTx) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = tx.s.tick()
	stored := *booking
	stored.Tour = nil
	tx.s.bookings[booking.ID] = &stored
	return nil
}

func (tx memTx) DeleteBooking(ctx context.Context, id string) error {
	delete(tx.s.bookings, id)
	return nil
}

// UserStore

type userStoreView struct{ *memStore }

func (s *memStore) userStore() UserStore { return userStoreView{s} }

func (v userStoreView) GetByID(ctx context.Context, id string) (*models.User, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	u, ok := v.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (v userStoreView) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, u := range v.users {
		if u.Email == strings.ToLower(email) {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (v userStoreView) Create(ctx context.Context, user *models.User) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, u := range v.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.ID = uuid.New().String()
	user.CreatedAt = v.tick()
	stored := *user
	v.users[user.ID] = &stored
	return nil
}

// Прочие зависимости

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// memCache повторяет версионные ключи Redis-кеша
type memCache struct {
	mu           sync.Mutex
	tours        map[string]models.Tour
	lists        map[string][]models.Tour
	tourVersions map[string]int64
	listVersion  int64
	invalidated  []string
}

func newMemCache() *memCache {
	return &memCache{
		tours:        map[string]models.Tour{},
		lists:        map[string][]models.Tour{},
		tourVersions: map[string]int64{},
	}
}

func versioned(version int64, key string) string {
	return fmt.Sprintf("%d:%s", version, key)
}

func (c *memCache) TourVersion(ctx context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tourVersions[id], nil
}

func (c *memCache) GetTour(ctx context.Context, version int64, id string) (*models.Tour, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tours[versioned(version, id)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (c *memCache) SetTour(ctx context.Context, version int64, tour *models.Tour) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tours[versioned(version, tour.ID)] = *tour
	return nil
}

func (c *memCache) ListVersion(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listVersion, nil
}

func (c *memCache) GetList(ctx context.Context, version int64, key string) ([]models.Tour, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tours, ok := c.lists[versioned(version, key)]
	return tours, ok, nil
}

func (c *memCache) SetList(ctx context.Context, version int64, key string, tours []models.Tour) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[versioned(version, key)] = tours
	return nil
}

func (c *memCache) InvalidateTour(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" {
		c.tourVersions[id]++
	}
	c.listVersion++
	c.lists = map[string][]models.Tour{}
	c.invalidated = append(c.invalidated, id)
	return nil
}

type staticSearcher struct {
	ids []string
	err error
}

func (s staticSearcher) SearchTourIDs(ctx context.Context, query string) ([]string, error) {
	return s.ids, s.err
}
