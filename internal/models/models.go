package models

import (
	"time"

	"github.com/gosimple/slug"
)

// Field length limits, matching the column sizes in the migrations
const (
	MaxTourNameLen     = 500
	MaxTourLocationLen = 255
	MaxCustomerNameLen = 200
	MaxEmailLen        = 255
	MaxPhoneLen        = 50
)

// Role is the capability tag carried by an authenticated caller
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusUnpaid    BookingStatus = "unpaid"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusUnpaid, BookingStatusPaid, BookingStatusCancelled:
		return true
	}
	return false
}

// User represents a user in the system
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     string    `json:"fullName" db:"full_name"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// AvailabilityEntry is the seat counter of one departure of a tour
type AvailabilityEntry struct {
	StartDate Date `json:"startDate" db:"start_date"`
	Remaining int  `json:"remaining" db:"remaining"`
	Capacity  int  `json:"capacity" db:"capacity"`
}

// Tour represents a sellable travel package
type Tour struct {
	ID           string              `json:"id" db:"id"`
	Slug         string              `json:"slug" db:"slug"`
	Name         string              `json:"name" db:"name"`
	CoverImage   string              `json:"coverImage" db:"cover_image"`
	Description  string              `json:"description" db:"description"`
	Price        int64               `json:"price" db:"price"`
	Location     string              `json:"location" db:"location"`
	Days         int                 `json:"days" db:"days"`
	MaxGuests    int                 `json:"maxGuests" db:"max_guests"`
	IsActive     bool                `json:"isActive" db:"is_active"`
	StartDates   []Date              `json:"startDates" db:"start_dates"`
	Availability []AvailabilityEntry `json:"availability"` // Not from tours table, filled separately
	CreatedAt    time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time           `json:"updatedAt" db:"updated_at"`
}

// AvailabilityFor returns the entry tracking the given departure, if any.
func (t *Tour) AvailabilityFor(date Date) (AvailabilityEntry, bool) {
	for _, entry := range t.Availability {
		if entry.StartDate.Equal(date) {
			return entry, true
		}
	}
	return AvailabilityEntry{}, false
}

// SeatsLeft sums remaining seats over all tracked departures.
func (t *Tour) SeatsLeft() int {
	total := 0
	for _, entry := range t.Availability {
		total += entry.Remaining
	}
	return total
}

// Customer is the contact person of a booking
type Customer struct {
	FullName string `json:"fullName" db:"customer_full_name" binding:"required,max=200"`
	Email    string `json:"email" db:"customer_email" binding:"required,max=255"`
	Phone    string `json:"phone" db:"customer_phone" binding:"required,max=50"`
}

// Booking represents a reservation against one tour departure
type Booking struct {
	ID         string        `json:"id" db:"id"`
	TourID     string        `json:"tourId" db:"tour_id"`
	UserID     *string       `json:"userId" db:"user_id"`
	StartDate  Date          `json:"startDate" db:"start_date"`
	Customer   Customer      `json:"customer"`
	PartySize  int           `json:"partySize" db:"party_size"`
	UnitPrice  int64         `json:"unitPrice" db:"unit_price"`
	TotalPrice int64         `json:"totalPrice" db:"total_price"`
	Status     BookingStatus `json:"status" db:"status"`
	SeatsHeld  int           `json:"seatsHeld" db:"seats_held"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time     `json:"updatedAt" db:"updated_at"`
	Tour       *Tour         `json:"tour"` // Not from bookings table, joined on read
}

// TourFilter - условия выборки туров, все поля опциональны и объединяются через AND
type TourFilter struct {
	Location string
	MinPrice *int64
	MaxPrice *int64
	Days     *int
	IsActive *bool
	Query    string
	IDs      []string
	Page     int
	PageSize int
}

// BookingFilter - условия выборки бронирований
type BookingFilter struct {
	Status    BookingStatus
	TourID    string
	StartDate Date
	UserID    string
}

// FoldKey reduces free text to a lower-case ASCII key so that "Đà Lạt",
// "da lat" and "DA-LAT" all fold to "da-lat".
func FoldKey(s string) string {
	return slug.Make(s)
}

// UntrackedDatePolicy decides what the allocator does with a departure date
// that has no availability entry.
type UntrackedDatePolicy string

const (
	// UntrackedDatesAllow books the date without any capacity control
	UntrackedDatesAllow UntrackedDatePolicy = "allow"
	// UntrackedDatesReject refuses dates that are not scheduled departures
	UntrackedDatesReject UntrackedDatePolicy = "reject"
	// UntrackedDatesTrack opens an entry seeded with the tour's maxGuests
	UntrackedDatesTrack UntrackedDatePolicy = "track"
)

func (p UntrackedDatePolicy) Valid() bool {
	switch p {
	case UntrackedDatesAllow, UntrackedDatesReject, UntrackedDatesTrack:
		return true
	}
	return false
}
