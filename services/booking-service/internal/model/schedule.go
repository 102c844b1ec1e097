package model

import "time"

// Layouts for calendar dates and wall-clock times exchanged with clients.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

const (
	DefaultStartTime = "09:00"
	DefaultEndTime   = "17:00"
	DaysPerWeek      = 7
)

// WorkingHour is an artist's rule for one weekday (0 = Sunday).
// Nil times mean the defaults apply.
type WorkingHour struct {
	ArtistID  string  `json:"artist_id"`
	DayOfWeek int     `json:"day_of_week"`
	IsWorking bool    `json:"is_working"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

// Hours returns the effective open and close times.
func (w WorkingHour) Hours() (string, string) {
	start, end := DefaultStartTime, DefaultEndTime
	if w.StartTime != nil && *w.StartTime != "" {
		start = *w.StartTime
	}
	if w.EndTime != nil && *w.EndTime != "" {
		end = *w.EndTime
	}
	return start, end
}

// DayEntry is one element of a full weekly schedule replacement.
type DayEntry struct {
	IsWorking bool    `json:"is_working"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

type TodayHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type TodayAvailability struct {
	ArtistID         string      `json:"artist_id"`
	IsAvailableToday bool        `json:"is_available_today"`
	TodayHours       *TodayHours `json:"today_hours"`
}

type BlockedDate struct {
	ID          string    `json:"id"`
	ArtistID    string    `json:"artist_id"`
	BlockedDate string    `json:"blocked_date"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
