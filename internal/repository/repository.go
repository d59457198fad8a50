package repository

import (
	"github.com/Peterdir/travel-booking-website/internal/database"
)

type Repositories struct {
	Tours    *TourRepository
	Bookings *BookingRepository
	Users    *UserRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Tours:    NewTourRepository(db),
		Bookings: NewBookingRepository(db),
		Users:    NewUserRepository(db),
	}
}
