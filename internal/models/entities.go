package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexibleBool - гибкий boolean тип, поддерживающий строки и числа
type FlexibleBool bool

// UnmarshalJSON поддерживает парсинг boolean из строки, числа и boolean
func (fb *FlexibleBool) UnmarshalJSON(data []byte) error {
	// Убираем кавычки
	str := string(data)
	str = strings.Trim(str, `"`)

	switch strings.ToLower(str) {
	case "true", "1", "yes", "on":
		*fb = true
	case "false", "0", "no", "off":
		*fb = false
	default:
		return fmt.Errorf("invalid boolean value: %s", str)
	}
	return nil
}

// Bool возвращает bool значение
func (fb FlexibleBool) Bool() bool {
	return bool(fb)
}

// FlexibleInt - целое число, которое форма админки может прислать строкой ("1,500,000")
type FlexibleInt int64

func (fi *FlexibleInt) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	str = strings.ReplaceAll(str, ",", "")
	if str == "" {
		return fmt.Errorf("invalid number value: empty")
	}

	if v, err := strconv.ParseInt(str, 10, 64); err == nil {
		*fi = FlexibleInt(v)
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("invalid number value: %s", str)
	}
	if f != float64(int64(f)) {
		return fmt.Errorf("invalid number value: %s is not a whole number", str)
	}
	*fi = FlexibleInt(int64(f))
	return nil
}

func (fi FlexibleInt) Int64() int64 {
	return int64(fi)
}

// AvailabilityInput - явно заданная вместимость для даты отправления
type AvailabilityInput struct {
	StartDate Date `json:"startDate"`
	Remaining int  `json:"remaining" binding:"gte=0"`
}

// CreateTourRequest - модель для создания тура
type CreateTourRequest struct {
	Name         string              `json:"name" binding:"required,max=500"`
	CoverImage   string              `json:"coverImage" binding:"required"`
	Description  string              `json:"description"`
	Price        *FlexibleInt        `json:"price" binding:"required,gte=0"`
	Location     string              `json:"location" binding:"required,max=255"`
	Days         FlexibleInt         `json:"days" binding:"required,gte=1"`
	MaxGuests    FlexibleInt         `json:"maxGuests" binding:"required,gte=1"`
	IsActive     *FlexibleBool       `json:"isActive,omitempty"`
	StartDates   []Date              `json:"startDates"`
	Availability []AvailabilityInput `json:"availability,omitempty" binding:"omitempty,dive"`
}

// UpdateTourRequest - частичное обновление тура, nil означает "не менять"
type UpdateTourRequest struct {
	Name         *string              `json:"name,omitempty" binding:"omitempty,max=500"`
	CoverImage   *string              `json:"coverImage,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Price        *FlexibleInt         `json:"price,omitempty" binding:"omitempty,gte=0"`
	Location     *string              `json:"location,omitempty" binding:"omitempty,max=255"`
	Days         *FlexibleInt         `json:"days,omitempty" binding:"omitempty,gte=1"`
	MaxGuests    *FlexibleInt         `json:"maxGuests,omitempty" binding:"omitempty,gte=1"`
	IsActive     *FlexibleBool        `json:"isActive,omitempty"`
	StartDates   *[]Date              `json:"startDates,omitempty"`
	Availability *[]AvailabilityInput `json:"availability,omitempty"`
}

// ListToursResponse - список туров
type ListToursResponse []Tour

// CreateBookingRequest - модель для создания бронирования.
// Клиент исторически присылает идентификатор тура в поле "tour".
type CreateBookingRequest struct {
	TourID     string   `json:"tourId"`
	LegacyTour string   `json:"tour,omitempty"`
	StartDate  Date     `json:"startDate"`
	PartySize  int      `json:"partySize" binding:"required,gte=1"`
	Customer   Customer `json:"customer"`
}

// TargetTourID returns the tour the booking is for, whichever field carried it.
func (r *CreateBookingRequest) TargetTourID() string {
	if r.TourID != "" {
		return strings.TrimSpace(r.TourID)
	}
	return strings.TrimSpace(r.LegacyTour)
}

// CustomerPatch - частичное обновление контактных данных
type CustomerPatch struct {
	FullName *string `json:"fullName,omitempty" binding:"omitempty,max=200"`
	Email    *string `json:"email,omitempty" binding:"omitempty,max=255"`
	Phone    *string `json:"phone,omitempty" binding:"omitempty,max=50"`
}

// UpdateBookingRequest - частичное обновление бронирования.
// Количество гостей и цены не меняются после создания.
type UpdateBookingRequest struct {
	Status   *BookingStatus `json:"status,omitempty" binding:"omitempty,bookingstatus"`
	Customer *CustomerPatch `json:"customer,omitempty"`
}

// ListBookingsResponse - список бронирований
type ListBookingsResponse []Booking

// RegisterRequest - модель регистрации
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest - модель входа
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse - ответ при успешном входе
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// MessageResponse - ответ без сущности
type MessageResponse struct {
	Message string `json:"message"`
}
