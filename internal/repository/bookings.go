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

type BookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `b.id, b.tour_id, b.user_id, b.start_date, b.customer_full_name, b.customer_email,
		       b.customer_phone, b.party_size, b.unit_price, b.total_price, b.status, b.seats_held,
		       b.created_at, b.updated_at`

// Тур подтягивается LEFT JOIN: у бронирования удаленного тура tour = null
const bookingSelect = `
		SELECT ` + bookingColumns + `,
		       t.id, t.slug, t.name, t.cover_image, t.description, t.price, t.location,
		       t.days, t.max_guests, t.is_active, t.start_dates, t.created_at, t.updated_at
		FROM bookings b
		LEFT JOIN tours t ON t.id = b.tour_id`

func scanBookingRow(row rowScanner, booking *models.Booking, extra ...interface{}) error {
	dest := []interface{}{
		&booking.ID,
		&booking.TourID,
		&booking.UserID,
		&booking.StartDate,
		&booking.Customer.FullName,
		&booking.Customer.Email,
		&booking.Customer.Phone,
		&booking.PartySize,
		&booking.UnitPrice,
		&booking.TotalPrice,
		&booking.Status,
		&booking.SeatsHeld,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

type joinedTour struct {
	ID          sql.NullString
	Slug        sql.NullString
	Name        sql.NullString
	CoverImage  sql.NullString
	Description sql.NullString
	Price       sql.NullInt64
	Location    sql.NullString
	Days        sql.NullInt64
	MaxGuests   sql.NullInt64
	IsActive    sql.NullBool
	StartDates  pq.StringArray
	CreatedAt   sql.NullTime
	UpdatedAt   sql.NullTime
}

func (j *joinedTour) dest() []interface{} {
	return []interface{}{
		&j.ID, &j.Slug, &j.Name, &j.CoverImage, &j.Description, &j.Price, &j.Location,
		&j.Days, &j.MaxGuests, &j.IsActive, &j.StartDates, &j.CreatedAt, &j.UpdatedAt,
	}
}

func (j *joinedTour) tour() (*models.Tour, error) {
	if !j.ID.Valid {
		return nil, nil
	}
	dates, err := parseDates(j.StartDates)
	if err != nil {
		return nil, err
	}
	return &models.Tour{
		ID:          j.ID.String,
		Slug:        j.Slug.String,
		Name:        j.Name.String,
		CoverImage:  j.CoverImage.String,
		Description: j.Description.String,
		Price:       j.Price.Int64,
		Location:    j.Location.String,
		Days:        int(j.Days.Int64),
		MaxGuests:   int(j.MaxGuests.Int64),
		IsActive:    j.IsActive.Bool,
		StartDates:  dates,
		CreatedAt:   j.CreatedAt.Time,
		UpdatedAt:   j.UpdatedAt.Time,
	}, nil
}

func scanBookingWithTour(row rowScanner) (*models.Booking, error) {
	booking := &models.Booking{}
	var joined joinedTour
	if err := scanBookingRow(row, booking, joined.dest()...); err != nil {
		return nil, err
	}
	tour, err := joined.tour()
	if err != nil {
		return nil, err
	}
	booking.Tour = tour
	return booking, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := scanBookingWithTour(r.db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return booking, err
}

// List возвращает бронирования по фильтру, новые первыми
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var conditions []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "b.status = "+arg(filter.Status))
	}
	if filter.TourID != "" {
		conditions = append(conditions, "b.tour_id = "+arg(filter.TourID))
	}
	if !filter.StartDate.IsZero() {
		conditions = append(conditions, "b.start_date = "+arg(filter.StartDate))
	}
	if filter.UserID != "" {
		conditions = append(conditions, "b.user_id = "+arg(filter.UserID))
	}

	query := bookingSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY b.created_at DESC, b.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		booking, err := scanBookingWithTour(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}

// AllocationTx - операции над местами и бронированиями внутри одной транзакции
type AllocationTx interface {
	LockTour(ctx context.Context, id string) (*models.Tour, error)
	LockTourForUpdate(ctx context.Context, id string) (*models.Tour, error)
	ConsumeSeats(ctx context.Context, tourID string, date models.Date, n int) (ConsumeResult, error)
	OpenDeparture(ctx context.Context, tourID string, date models.Date, capacity int) error
	ReleaseSeats(ctx context.Context, tourID string, date models.Date, n int) error
	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	DeleteBooking(ctx context.Context, id string) error
}

// InTx выполняет fn в одной транзакции: либо все записи fn попадают в базу, либо ни одной
func (r *BookingRepository) InTx(ctx context.Context, fn func(tx AllocationTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&BookingTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// BookingTx - AllocationTx поверх *sql.Tx
type BookingTx struct {
	tx *sql.Tx
}

// ConsumeResult - итог попытки списать места
type ConsumeResult struct {
	Tracked   bool // для даты есть счетчик
	Consumed  bool // места списаны
	Remaining int
}

// LockTour читает тур под FOR SHARE: параллельные брони не блокируют друг друга,
// а правка или удаление тура ждут конца транзакции
func (t *BookingTx) LockTour(ctx context.Context, id string) (*models.Tour, error) {
	tour, err := scanTour(t.tx.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = $1 FOR SHARE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tour, err
}

// LockTourForUpdate берет тур под FOR NO KEY UPDATE: нужен, когда транзакция
// сама меняет строку тура (открытие новой даты)
func (t *BookingTx) LockTourForUpdate(ctx context.Context, id string) (*models.Tour, error) {
	tour, err := scanTour(t.tx.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = $1 FOR NO KEY UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tour, err
}

// ConsumeSeats атомарно уменьшает остаток, если мест хватает
func (t *BookingTx) ConsumeSeats(ctx context.Context, tourID string, date models.Date, n int) (ConsumeResult, error) {
	var remaining int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE tour_availability
		SET remaining = remaining - $3
		WHERE tour_id = $1 AND start_date = $2 AND remaining >= $3
		RETURNING remaining`, tourID, date, n).Scan(&remaining)
	if err == nil {
		return ConsumeResult{Tracked: true, Consumed: true, Remaining: remaining}, nil
	}
	if err != sql.ErrNoRows {
		return ConsumeResult{}, fmt.Errorf("failed to consume seats: %w", err)
	}

	err = t.tx.QueryRowContext(ctx, `
		SELECT remaining FROM tour_availability
		WHERE tour_id = $1 AND start_date = $2`, tourID, date).Scan(&remaining)
	if err == sql.ErrNoRows {
		return ConsumeResult{}, nil
	}
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("failed to read availability: %w", err)
	}
	return ConsumeResult{Tracked: true, Remaining: remaining}, nil
}

// OpenDeparture заводит счетчик для новой даты и добавляет дату в расписание тура
func (t *BookingTx) OpenDeparture(ctx context.Context, tourID string, date models.Date, capacity int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tour_availability (tour_id, start_date, capacity, remaining)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (tour_id, start_date) DO NOTHING`, tourID, date, capacity)
	if err != nil {
		return fmt.Errorf("failed to open departure: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE tours
		SET start_dates = ARRAY(SELECT DISTINCT d FROM unnest(array_append(start_dates, $2::date)) AS d ORDER BY d)
		WHERE id = $1`, tourID, date)
	if err != nil {
		return fmt.Errorf("failed to add start date: %w", err)
	}
	return nil
}

// ReleaseSeats возвращает места в счетчик, не превышая вместимость
func (t *BookingTx) ReleaseSeats(ctx context.Context, tourID string, date models.Date, n int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE tour_availability
		SET remaining = LEAST(capacity, remaining + $3)
		WHERE tour_id = $1 AND start_date = $2`, tourID, date, n)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}

func (t *BookingTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (tour_id, user_id, start_date, customer_full_name, customer_email,
		                      customer_phone, party_size, unit_price, total_price, status, seats_held)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := t.tx.QueryRowContext(ctx, query,
		booking.TourID,
		booking.UserID,
		booking.StartDate,
		booking.Customer.FullName,
		booking.Customer.Email,
		booking.Customer.Phone,
		booking.PartySize,
		booking.UnitPrice,
		booking.TotalPrice,
		booking.Status,
		booking.SeatsHeld,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// GetBookingForUpdate блокирует строку бронирования до конца транзакции
func (t *BookingTx) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	booking := &models.Booking{}
	err := scanBookingRow(t.tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = $1 FOR UPDATE`, id), booking)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (t *BookingTx) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		UPDATE bookings
		SET status = $1, seats_held = $2, customer_full_name = $3, customer_email = $4,
		    customer_phone = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := t.tx.QueryRowContext(ctx, query,
		booking.Status,
		booking.SeatsHeld,
		booking.Customer.FullName,
		booking.Customer.Email,
		booking.Customer.Phone,
		booking.ID,
	).Scan(&booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	return nil
}

func (t *BookingTx) DeleteBooking(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}
