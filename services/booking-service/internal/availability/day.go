package availability

import (
	"errors"
	"time"

	"github.com/glamhq/glam/services/booking-service/internal/model"
)

var ErrInvalidClock = errors.New("time must be HH:MM")

// Day is everything that decides bookability for one artist on one date.
type Day struct {
	Date    time.Time          // midnight in the artist's location
	Hours   *model.WorkingHour // nil when no rule exists for the weekday
	Blocked bool
	Busy    []Interval
}

// At returns date combined with an "HH:MM" wall-clock time.
func At(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(model.ClockLayout, clock)
	if err != nil {
		return time.Time{}, ErrInvalidClock
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

// Window is the open interval for the day, false when closed or blocked.
func (d Day) Window() (Interval, bool) {
	if d.Blocked || d.Hours == nil || !d.Hours.IsWorking {
		return Interval{}, false
	}
	startClock, endClock := d.Hours.Hours()
	start, err := At(d.Date, startClock)
	if err != nil {
		return Interval{}, false
	}
	end, err := At(d.Date, endClock)
	if err != nil || !end.After(start) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// IsBookable reports whether a booking of length duration may start at clock.
func (d Day) IsBookable(clock string, duration time.Duration) bool {
	w, ok := d.Window()
	if !ok || duration <= 0 {
		return false
	}
	start, err := At(d.Date, clock)
	if err != nil {
		return false
	}
	c := Interval{Start: start, End: start.Add(duration)}
	return w.Covers(c) && Free(c, d.Busy)
}

// Slots lists free start times for the day.
func (d Day) Slots(duration, step time.Duration, now time.Time) []time.Time {
	w, ok := d.Window()
	if !ok {
		return nil
	}
	return AvailableSlots(w, duration, step, d.Busy, now)
}
