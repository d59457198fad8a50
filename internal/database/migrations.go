package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createExtensions,
		createUsersTable,
		createToursTable,
		createTourAvailabilityTable,
		createBookingsTable,
		createIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createExtensions = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(100) NOT NULL,
    full_name VARCHAR(200) NOT NULL DEFAULT '',
    role VARCHAR(20) NOT NULL DEFAULT 'customer' CHECK (role IN ('admin', 'customer')),
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createToursTable = `
CREATE TABLE IF NOT EXISTS tours (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    slug VARCHAR(255) UNIQUE NOT NULL,
    name VARCHAR(500) NOT NULL,
    cover_image TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price BIGINT NOT NULL CHECK (price >= 0),
    location VARCHAR(255) NOT NULL,
    location_key TEXT NOT NULL,
    name_key TEXT NOT NULL,
    days INTEGER NOT NULL CHECK (days >= 1),
    max_guests INTEGER NOT NULL CHECK (max_guests >= 1),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    start_dates DATE[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

// Счетчики мест по датам отправления. Инвариант 0 <= remaining <= capacity
// держит сама база, аллокатор списывает места условным UPDATE.
const createTourAvailabilityTable = `
CREATE TABLE IF NOT EXISTS tour_availability (
    tour_id UUID NOT NULL REFERENCES tours(id) ON DELETE CASCADE,
    start_date DATE NOT NULL,
    capacity INTEGER NOT NULL CHECK (capacity >= 0),
    remaining INTEGER NOT NULL CHECK (remaining >= 0 AND remaining <= capacity),
    PRIMARY KEY (tour_id, start_date)
);`

// tour_id без внешнего ключа: удаление тура не трогает бронирования
const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    tour_id UUID NOT NULL,
    user_id UUID REFERENCES users(id) ON DELETE SET NULL,
    start_date DATE NOT NULL,
    customer_full_name VARCHAR(200) NOT NULL,
    customer_email VARCHAR(255) NOT NULL,
    customer_phone VARCHAR(50) NOT NULL,
    party_size INTEGER NOT NULL CHECK (party_size >= 1),
    unit_price BIGINT NOT NULL,
    total_price BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'unpaid' CHECK (status IN ('unpaid', 'paid', 'cancelled')),
    seats_held INTEGER NOT NULL DEFAULT 0 CHECK (seats_held >= 0),
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_tours_created_at ON tours(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tours_location_key ON tours(location_key);
CREATE INDEX IF NOT EXISTS idx_bookings_tour_date ON bookings(tour_id, start_date);
CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id);
CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);
CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings(created_at DESC);`
