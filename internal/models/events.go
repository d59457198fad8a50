package models

import "time"

// NATS Event Types
const (
	EventTourCreated    = "tour.created"
	EventTourUpdated    = "tour.updated"
	EventTourDeleted    = "tour.deleted"
	EventBookingCreated = "booking.created"
	EventBookingUpdated = "booking.updated"
	EventBookingDeleted = "booking.deleted"
)

// TourChangedEvent is published for tour.created, tour.updated and tour.deleted
type TourChangedEvent struct {
	TourID    string    `json:"tour_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent represents a booking creation event
type BookingCreatedEvent struct {
	BookingID  string    `json:"booking_id"`
	TourID     string    `json:"tour_id"`
	UserID     *string   `json:"user_id"`
	StartDate  string    `json:"start_date"`
	PartySize  int       `json:"party_size"`
	TotalPrice int64     `json:"total_price"`
	Tracked    bool      `json:"tracked"`
	Timestamp  time.Time `json:"timestamp"`
}

// BookingUpdatedEvent represents a status or contact change of a booking
type BookingUpdatedEvent struct {
	BookingID     string        `json:"booking_id"`
	TourID        string        `json:"tour_id"`
	Status        BookingStatus `json:"status"`
	PrevStatus    BookingStatus `json:"prev_status"`
	SeatsReleased int           `json:"seats_released"`
	Timestamp     time.Time     `json:"timestamp"`
}

// BookingDeletedEvent represents a booking removal
type BookingDeletedEvent struct {
	BookingID     string    `json:"booking_id"`
	TourID        string    `json:"tour_id"`
	SeatsReleased int       `json:"seats_released"`
	Timestamp     time.Time `json:"timestamp"`
}
