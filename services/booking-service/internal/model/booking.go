package model

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Active bookings occupy their slot.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// CanTransition lists the moves artists and payment callbacks may make.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	switch s {
	case BookingPending:
		return to == BookingConfirmed || to == BookingCancelled
	case BookingConfirmed:
		return to == BookingCompleted || to == BookingCancelled
	default:
		return false
	}
}

type LocationType string

const (
	LocationArtistStudio LocationType = "artist_studio"
	LocationClientHome   LocationType = "client_home"
)

func (l LocationType) Valid() bool {
	return l == LocationArtistStudio || l == LocationClientHome
}

type Booking struct {
	ID              string        `json:"id"`
	CustomerID      string        `json:"customer_id"`
	ArtistID        string        `json:"artist_id"`
	ServiceID       string        `json:"service_id"`
	BookingDate     string        `json:"booking_date"`
	BookingTime     string        `json:"booking_time"`
	Status          BookingStatus `json:"status"`
	TotalPrice      float64       `json:"total_price"`
	LocationType    LocationType  `json:"location_type"`
	LocationAddress string        `json:"location_address,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	IdempotencyKey  string        `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
