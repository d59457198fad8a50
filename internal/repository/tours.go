package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Peterdir/travel-booking-website/internal/database"
	"github.com/Peterdir/travel-booking-website/internal/models"

	"github.com/lib/pq"
)

type TourRepository struct {
	db *database.DB
}

func NewTourRepository(db *database.DB) *TourRepository {
	return &TourRepository{db: db}
}

const tourColumns = `id, slug, name, cover_image, description, price, location, days, max_guests,
		       is_active, start_dates, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTour(row rowScanner) (*models.Tour, error) {
	tour := &models.Tour{}
	var startDates pq.StringArray

	err := row.Scan(
		&tour.ID,
		&tour.Slug,
		&tour.Name,
		&tour.CoverImage,
		&tour.Description,
		&tour.Price,
		&tour.Location,
		&tour.Days,
		&tour.MaxGuests,
		&tour.IsActive,
		&startDates,
		&tour.CreatedAt,
		&tour.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tour.StartDates, err = parseDates(startDates)
	if err != nil {
		return nil, err
	}
	tour.Availability = []models.AvailabilityEntry{}
	return tour, nil
}

func parseDates(raw []string) ([]models.Date, error) {
	dates := make([]models.Date, 0, len(raw))
	for _, s := range raw {
		d, err := models.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("invalid start date in store: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func formatDates(dates []models.Date) pq.StringArray {
	out := make(pq.StringArray, 0, len(dates))
	for _, d := range models.SortDates(dates) {
		out = append(out, d.String())
	}
	return out
}

// Create сохраняет тур вместе со счетчиками мест в одной транзакции
func (r *TourRepository) Create(ctx context.Context, tour *models.Tour) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tours (slug, name, cover_image, description, price, location, location_key,
		                   name_key, days, max_guests, is_active, start_dates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::date[])
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowContext(ctx, query,
		tour.Slug,
		tour.Name,
		tour.CoverImage,
		tour.Description,
		tour.Price,
		tour.Location,
		models.FoldKey(tour.Location),
		models.FoldKey(tour.Name),
		tour.Days,
		tour.MaxGuests,
		tour.IsActive,
		formatDates(tour.StartDates),
	).Scan(&tour.ID, &tour.CreatedAt, &tour.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tour: %w", err)
	}

	if err := upsertAvailability(ctx, tx, tour.ID, tour.Availability); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *TourRepository) GetByID(ctx context.Context, id string) (*models.Tour, error) {
	query := `SELECT ` + tourColumns + ` FROM tours WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *TourRepository) GetBySlug(ctx context.Context, slug string) (*models.Tour, error) {
	query := `SELECT ` + tourColumns + ` FROM tours WHERE slug = $1`
	return r.getOne(ctx, query, slug)
}

func (r *TourRepository) getOne(ctx context.Context, query string, arg string) (*models.Tour, error) {
	tour, err := scanTour(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	availability, err := r.loadAvailability(ctx, []string{tour.ID})
	if err != nil {
		return nil, err
	}
	tour.Availability = availability[tour.ID]
	if tour.Availability == nil {
		tour.Availability = []models.AvailabilityEntry{}
	}
	return tour, nil
}

func (r *TourRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tours WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// List возвращает туры по фильтру, новые первыми
func (r *TourRepository) List(ctx context.Context, filter models.TourFilter) ([]models.Tour, error) {
	query, args := buildTourListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tours := []models.Tour{}
	ids := []string{}
	for rows.Next() {
		tour, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		tours = append(tours, *tour)
		ids = append(ids, tour.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tours) == 0 {
		return tours, nil
	}

	availability, err := r.loadAvailability(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tours {
		if entries, ok := availability[tours[i].ID]; ok {
			tours[i].Availability = entries
		}
	}
	return tours, nil
}

func buildTourListQuery(filter models.TourFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Location != "" {
		if key := models.FoldKey(filter.Location); key != "" {
			conditions = append(conditions, fmt.Sprintf("location_key LIKE '%%' || %s || '%%'", arg(key)))
		} else {
			conditions = append(conditions, fmt.Sprintf("location ILIKE '%%' || %s || '%%'", arg(filter.Location)))
		}
	}
	if filter.MinPrice != nil {
		conditions = append(conditions, "price >= "+arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, "price <= "+arg(*filter.MaxPrice))
	}
	if filter.Days != nil {
		conditions = append(conditions, "days = "+arg(*filter.Days))
	}
	if filter.IsActive != nil {
		conditions = append(conditions, "is_active = "+arg(*filter.IsActive))
	}
	if filter.IDs != nil {
		conditions = append(conditions, fmt.Sprintf("id = ANY(%s::uuid[])", arg(pq.Array(filter.IDs))))
	} else if filter.Query != "" {
		if key := models.FoldKey(filter.Query); key != "" {
			p := arg(key)
			conditions = append(conditions, fmt.Sprintf("(name_key LIKE '%%' || %s || '%%' OR location_key LIKE '%%' || %s || '%%')", p, p))
		}
	}

	query := `SELECT ` + tourColumns + ` FROM tours`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", arg(filter.PageSize), arg((page-1)*filter.PageSize))
	}

	return query, args
}

func (r *TourRepository) loadAvailability(ctx context.Context, ids []string) (map[string][]models.AvailabilityEntry, error) {
	query := `
		SELECT tour_id, start_date, remaining, capacity
		FROM tour_availability
		WHERE tour_id = ANY($1::uuid[])
		ORDER BY tour_id, start_date`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]models.AvailabilityEntry, len(ids))
	for rows.Next() {
		var tourID string
		var entry models.AvailabilityEntry
		if err := rows.Scan(&tourID, &entry.StartDate, &entry.Remaining, &entry.Capacity); err != nil {
			return nil, err
		}
		result[tourID] = append(result[tourID], entry)
	}
	return result, rows.Err()
}

// Update блокирует тур и его счетчики, применяет mutate и сохраняет результат.
// Пока строка тура под FOR UPDATE, аллокатор (FOR SHARE) ждет, поэтому
// mutate видит актуальные остатки мест.
func (r *TourRepository) Update(ctx context.Context, id string, mutate func(tour *models.Tour) error) (*models.Tour, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tour, err := scanTour(tx.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT start_date, remaining, capacity
		FROM tour_availability
		WHERE tour_id = $1
		ORDER BY start_date
		FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock availability: %w", err)
	}
	for rows.Next() {
		var entry models.AvailabilityEntry
		if err := rows.Scan(&entry.StartDate, &entry.Remaining, &entry.Capacity); err != nil {
			rows.Close()
			return nil, err
		}
		tour.Availability = append(tour.Availability, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := mutate(tour); err != nil {
		return nil, err
	}

	query := `
		UPDATE tours
		SET slug = $1, name = $2, cover_image = $3, description = $4, price = $5, location = $6,
		    location_key = $7, name_key = $8, days = $9, max_guests = $10, is_active = $11,
		    start_dates = $12::date[], updated_at = NOW()
		WHERE id = $13
		RETURNING updated_at`

	err = tx.QueryRowContext(ctx, query,
		tour.Slug,
		tour.Name,
		tour.CoverImage,
		tour.Description,
		tour.Price,
		tour.Location,
		models.FoldKey(tour.Location),
		models.FoldKey(tour.Name),
		tour.Days,
		tour.MaxGuests,
		tour.IsActive,
		formatDates(tour.StartDates),
		tour.ID,
	).Scan(&tour.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update tour: %w", err)
	}

	keep := make(pq.StringArray, 0, len(tour.Availability))
	for _, entry := range tour.Availability {
		keep = append(keep, entry.StartDate.String())
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM tour_availability WHERE tour_id = $1 AND NOT (start_date = ANY($2::date[]))`,
		tour.ID, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to drop availability: %w", err)
	}

	if err := upsertAvailability(ctx, tx, tour.ID, tour.Availability); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tour, nil
}

func upsertAvailability(ctx context.Context, tx *sql.Tx, tourID string, entries []models.AvailabilityEntry) error {
	query := `
		INSERT INTO tour_availability (tour_id, start_date, capacity, remaining)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tour_id, start_date)
		DO UPDATE SET capacity = EXCLUDED.capacity, remaining = EXCLUDED.remaining`

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, tourID, entry.StartDate, entry.Capacity, entry.Remaining); err != nil {
			return fmt.Errorf("failed to save availability for %s: %w", entry.StartDate, err)
		}
	}
	return nil
}

// Delete удаляет тур, возвращает false если его не было
func (r *TourRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tours WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListIDs отдает идентификаторы всех туров для переиндексации
func (r *TourRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryWithRetry(ctx, `SELECT id FROM tours ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
