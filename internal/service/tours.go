package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/Peterdir/travel-booking-website/internal/errors"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/metrics"
	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const MaxPageSize = 100

// slug хранится в VARCHAR(255), остаток под суффикс уникальности
const maxSlugLen = 240

type TourService struct {
	store     TourStore
	cache     TourCache
	searcher  TourSearcher
	publisher EventPublisher
}

func NewTourService(store TourStore, cache TourCache, searcher TourSearcher, publisher EventPublisher) *TourService {
	return &TourService{
		store:     store,
		cache:     cache,
		searcher:  searcher,
		publisher: publisher,
	}
}

// List возвращает туры по фильтру
func (s *TourService) List(ctx context.Context, filter models.TourFilter) ([]models.Tour, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return []models.Tour{}, nil
	}
	if filter.PageSize < 0 || filter.PageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: pageSize must be between 1 and %d", apperrors.ErrValidation, MaxPageSize)
	}
	if filter.Page < 0 {
		return nil, fmt.Errorf("%w: page must be positive", apperrors.ErrValidation)
	}
	if filter.Page > 0 && filter.PageSize == 0 {
		filter.PageSize = 20
	}

	filter.Query = strings.TrimSpace(filter.Query)
	if filter.Query != "" && s.searcher != nil {
		ids, err := s.searcher.SearchTourIDs(ctx, filter.Query)
		if err != nil {
			// Без индекса откатываемся на поиск по названию в базе
			logger.WithContext(ctx).Warn("Tour search failed, falling back to database", "error", err)
		} else {
			if len(ids) == 0 {
				return []models.Tour{}, nil
			}
			filter.IDs = ids
		}
	}

	// Версию фиксируем до чтения из базы, иначе инвалидация между чтением
	// и записью в кеш потеряется
	var (
		cacheKey string
		version  int64
		cached   = s.cache != nil
	)
	if cached {
		cacheKey = listCacheKey(filter)
		var err error
		if version, err = s.cache.ListVersion(ctx); err != nil {
			logger.WithContext(ctx).Warn("Tour cache lookup failed", "error", err)
			cached = false
		} else if tours, ok, err := s.cache.GetList(ctx, version, cacheKey); err != nil {
			logger.WithContext(ctx).Warn("Tour cache lookup failed", "error", err)
		} else {
			metrics.CacheLookup(ok)
			if ok {
				return tours, nil
			}
		}
	}

	tours, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tours: %w", err)
	}

	if cached {
		if err := s.cache.SetList(ctx, version, cacheKey, tours); err != nil {
			logger.WithContext(ctx).Warn("Failed to cache tour list", "error", err)
		}
	}
	return tours, nil
}

func listCacheKey(filter models.TourFilter) string {
	data, _ := json.Marshal(filter)
	return string(data)
}

// Get возвращает тур по идентификатору или slug
func (s *TourService) Get(ctx context.Context, idOrSlug string) (*models.Tour, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return nil, fmt.Errorf("%w: tour not found", apperrors.ErrNotFound)
	}

	if _, err := uuid.Parse(idOrSlug); err != nil {
		tour, err := s.store.GetBySlug(ctx, idOrSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to get tour: %w", err)
		}
		if tour == nil {
			return nil, fmt.Errorf("%w: tour not found", apperrors.ErrNotFound)
		}
		return tour, nil
	}

	var (
		version int64
		cached  = s.cache != nil
	)
	if cached {
		var err error
		if version, err = s.cache.TourVersion(ctx, idOrSlug); err != nil {
			logger.WithContext(ctx).Warn("Tour cache lookup failed", "error", err, "tour_id", idOrSlug)
			cached = false
		} else if tour, err := s.cache.GetTour(ctx, version, idOrSlug); err != nil {
			logger.WithContext(ctx).Warn("Tour cache lookup failed", "error", err, "tour_id", idOrSlug)
		} else {
			metrics.CacheLookup(tour != nil)
			if tour != nil {
				return tour, nil
			}
		}
	}

	tour, err := s.store.GetByID(ctx, idOrSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}
	if tour == nil {
		return nil, fmt.Errorf("%w: tour not found", apperrors.ErrNotFound)
	}

	if cached {
		if err := s.cache.SetTour(ctx, version, tour); err != nil {
			logger.WithContext(ctx).Warn("Failed to cache tour", "error", err, "tour_id", tour.ID)
		}
	}
	return tour, nil
}

// Create создает тур и заводит счетчики мест на каждую дату отправления
func (s *TourService) Create(ctx context.Context, req *models.CreateTourRequest) (*models.Tour, error) {
	tour := &models.Tour{
		Name:        strings.TrimSpace(req.Name),
		CoverImage:  strings.TrimSpace(req.CoverImage),
		Description: req.Description,
		Location:    strings.TrimSpace(req.Location),
		Days:        int(req.Days.Int64()),
		MaxGuests:   int(req.MaxGuests.Int64()),
		IsActive:    true,
	}
	if req.Price != nil {
		tour.Price = req.Price.Int64()
	} else {
		tour.Price = -1
	}
	if req.IsActive != nil {
		tour.IsActive = req.IsActive.Bool()
	}
	if err := validateTour(tour); err != nil {
		return nil, err
	}

	tour.StartDates = models.SortDates(req.StartDates)
	tour.Availability = seedAvailability(tour.StartDates, tour.MaxGuests)
	if err := applyAvailabilityPatch(tour, req.Availability); err != nil {
		return nil, err
	}

	tourSlug, err := s.uniqueSlug(ctx, tour.Name)
	if err != nil {
		return nil, err
	}
	tour.Slug = tourSlug

	if err := s.store.Create(ctx, tour); err != nil {
		return nil, fmt.Errorf("failed to create tour: %w", err)
	}

	logger.WithContext(ctx).Info("Tour created", "tour_id", tour.ID, "slug", tour.Slug, "departures", len(tour.Availability))

	invalidateTour(ctx, s.cache, "")
	publish(ctx, s.publisher, models.EventTourCreated, models.TourChangedEvent{TourID: tour.ID, Timestamp: time.Now()})
	return tour, nil
}

// Update частично обновляет тур. Остатки мест существующих дат не перезаписываются,
// кроме дат, явно перечисленных в availability.
func (s *TourService) Update(ctx context.Context, idOrSlug string, req *models.UpdateTourRequest) (*models.Tour, error) {
	current, err := s.Get(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	tour, err := s.store.Update(ctx, current.ID, func(tour *models.Tour) error {
		if req.Name != nil {
			tour.Name = strings.TrimSpace(*req.Name)
		}
		if req.CoverImage != nil {
			tour.CoverImage = strings.TrimSpace(*req.CoverImage)
		}
		if req.Description != nil {
			tour.Description = *req.Description
		}
		if req.Price != nil {
			tour.Price = req.Price.Int64()
		}
		if req.Location != nil {
			tour.Location = strings.TrimSpace(*req.Location)
		}
		if req.Days != nil {
			tour.Days = int(req.Days.Int64())
		}
		if req.MaxGuests != nil {
			tour.MaxGuests = int(req.MaxGuests.Int64())
		}
		if req.IsActive != nil {
			tour.IsActive = req.IsActive.Bool()
		}
		if err := validateTour(tour); err != nil {
			return err
		}

		if req.StartDates != nil {
			tour.StartDates = models.SortDates(*req.StartDates)
			tour.Availability = syncAvailability(tour.Availability, tour.StartDates, tour.MaxGuests)
		}
		if req.Availability != nil {
			return applyAvailabilityPatch(tour, *req.Availability)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tour == nil {
		return nil, fmt.Errorf("%w: tour not found", apperrors.ErrNotFound)
	}

	logger.WithContext(ctx).Info("Tour updated", "tour_id", tour.ID)

	invalidateTour(ctx, s.cache, tour.ID)
	publish(ctx, s.publisher, models.EventTourUpdated, models.TourChangedEvent{TourID: tour.ID, Timestamp: time.Now()})
	return tour, nil
}

// Delete удаляет тур. Бронирования остаются, их tour становится null.
func (s *TourService) Delete(ctx context.Context, idOrSlug string) error {
	current, err := s.Get(ctx, idOrSlug)
	if err != nil {
		return err
	}

	deleted, err := s.store.Delete(ctx, current.ID)
	if err != nil {
		return fmt.Errorf("failed to delete tour: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: tour not found", apperrors.ErrNotFound)
	}

	logger.WithContext(ctx).Info("Tour deleted", "tour_id", current.ID)

	invalidateTour(ctx, s.cache, current.ID)
	publish(ctx, s.publisher, models.EventTourDeleted, models.TourChangedEvent{TourID: current.ID, Timestamp: time.Now()})
	return nil
}

func validateTour(tour *models.Tour) error {
	switch {
	case tour.Name == "":
		return fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	case tour.CoverImage == "":
		return fmt.Errorf("%w: coverImage is required", apperrors.ErrValidation)
	case tour.Location == "":
		return fmt.Errorf("%w: location is required", apperrors.ErrValidation)
	case utf8.RuneCountInString(tour.Name) > models.MaxTourNameLen:
		return fmt.Errorf("%w: name must be at most %d characters", apperrors.ErrValidation, models.MaxTourNameLen)
	case utf8.RuneCountInString(tour.Location) > models.MaxTourLocationLen:
		return fmt.Errorf("%w: location must be at most %d characters", apperrors.ErrValidation, models.MaxTourLocationLen)
	case tour.Price < 0:
		return fmt.Errorf("%w: price must be a non-negative number", apperrors.ErrValidation)
	case tour.Days < 1:
		return fmt.Errorf("%w: days must be at least 1", apperrors.ErrValidation)
	case tour.MaxGuests < 1:
		return fmt.Errorf("%w: maxGuests must be at least 1", apperrors.ErrValidation)
	}
	return nil
}

func seedAvailability(dates []models.Date, capacity int) []models.AvailabilityEntry {
	entries := make([]models.AvailabilityEntry, 0, len(dates))
	for _, d := range dates {
		entries = append(entries, models.AvailabilityEntry{StartDate: d, Remaining: capacity, Capacity: capacity})
	}
	return entries
}

// syncAvailability приводит счетчики к новому расписанию: существующие даты
// сохраняют остатки, новые получают capacity, убранные даты удаляются
func syncAvailability(current []models.AvailabilityEntry, dates []models.Date, capacity int) []models.AvailabilityEntry {
	existing := make(map[string]models.AvailabilityEntry, len(current))
	for _, entry := range current {
		existing[entry.StartDate.String()] = entry
	}

	entries := make([]models.AvailabilityEntry, 0, len(dates))
	for _, d := range dates {
		if entry, ok := existing[d.String()]; ok {
			entries = append(entries, entry)
			continue
		}
		entries = append(entries, models.AvailabilityEntry{StartDate: d, Remaining: capacity, Capacity: capacity})
	}
	return entries
}

// applyAvailabilityPatch задает остаток для перечисленных дат.
// Вместимость растет до остатка, незапланированная дата добавляется в расписание.
func applyAvailabilityPatch(tour *models.Tour, patch []models.AvailabilityInput) error {
	for _, input := range patch {
		if input.StartDate.IsZero() {
			return fmt.Errorf("%w: availability startDate is required", apperrors.ErrValidation)
		}
		if input.Remaining < 0 {
			return fmt.Errorf("%w: availability remaining must be non-negative", apperrors.ErrValidation)
		}

		found := false
		for i := range tour.Availability {
			entry := &tour.Availability[i]
			if !entry.StartDate.Equal(input.StartDate) {
				continue
			}
			entry.Remaining = input.Remaining
			if entry.Capacity < input.Remaining {
				entry.Capacity = input.Remaining
			}
			found = true
			break
		}
		if !found {
			tour.Availability = append(tour.Availability, models.AvailabilityEntry{
				StartDate: input.StartDate,
				Remaining: input.Remaining,
				Capacity:  input.Remaining,
			})
			tour.StartDates = models.SortDates(append(tour.StartDates, input.StartDate))
		}
	}
	sort.Slice(tour.Availability, func(i, j int) bool {
		return tour.Availability[i].StartDate.Before(tour.Availability[j].StartDate)
	})
	return nil
}

func (s *TourService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if len(base) > maxSlugLen {
		base = strings.Trim(base[:maxSlugLen], "-")
	}
	if base == "" {
		base = "tour"
	}

	candidate := base
	for i := 2; i <= 50; i++ {
		exists, err := s.store.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, uuid.New().String()[:8]), nil
}
