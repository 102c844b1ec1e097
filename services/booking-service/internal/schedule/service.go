package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glamhq/glam/libs/clock"
	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/services/booking-service/internal/availability"
	"github.com/glamhq/glam/services/booking-service/internal/cache"
	"github.com/glamhq/glam/services/booking-service/internal/model"
	"github.com/glamhq/glam/services/booking-service/internal/storage"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = storage.ErrNotFound
	ErrRejected     = storage.ErrRejected
)

type Repository interface {
	ListWorkingHours(ctx context.Context, artistID string) ([]model.WorkingHour, error)
	ListWorkingHoursForDay(ctx context.Context, artistIDs []string, dayOfWeek int) ([]model.WorkingHour, error)
	ReplaceWeek(ctx context.Context, artistID string, days [model.DaysPerWeek]model.DayEntry) ([]model.WorkingHour, error)
	AddBlockedDate(ctx context.Context, artistID, date, reason string) (model.BlockedDate, error)
	RemoveBlockedDate(ctx context.Context, artistID, id string) error
	ListBlockedDates(ctx context.Context, artistID, from string) ([]model.BlockedDate, error)
	IsBlocked(ctx context.Context, artistID, date string) (bool, error)
}

// Bookings supplies the occupied times used by slot listing.
type Bookings interface {
	ActiveOnDate(ctx context.Context, artistID, date string) ([]model.Booking, error)
}

type Config struct {
	Location *time.Location
	CacheTTL time.Duration
}

type Service struct {
	repo     Repository
	bookings Bookings
	cache    cache.Store
	clock    clock.Clock
	loc      *time.Location
	ttl      time.Duration
	logger   *slog.Logger
}

func NewService(repo Repository, bookings Bookings, store cache.Store, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Service{
		repo:     repo,
		bookings: bookings,
		cache:    store,
		clock:    clk,
		loc:      cfg.Location,
		ttl:      cfg.CacheTTL,
		logger:   logger,
	}
}

// Weekday is the current day of week in the service's location.
func (s *Service) Weekday() time.Weekday {
	return s.clock.Now().In(s.loc).Weekday()
}

func (s *Service) WorkingHours(ctx context.Context, artistID string) ([]model.WorkingHour, error) {
	return cache.ReadThrough(ctx, s.cache, cache.WorkingHoursKey(artistID), s.ttl, func(ctx context.Context) ([]model.WorkingHour, error) {
		return s.repo.ListWorkingHours(ctx, artistID)
	})
}

func (s *Service) Today(ctx context.Context, artistID string) (model.TodayAvailability, error) {
	rows, err := s.WorkingHours(ctx, artistID)
	if err != nil {
		return model.TodayAvailability{}, fmt.Errorf("load working hours: %w", err)
	}
	return availability.ResolveToday(artistID, rows, s.Weekday()), nil
}

// TodayBulk resolves today's availability for every id with a single query.
func (s *Service) TodayBulk(ctx context.Context, artistIDs []string) (map[string]model.TodayAvailability, error) {
	ids := uniq(artistIDs)
	weekday := s.Weekday()
	rows, err := s.repo.ListWorkingHoursForDay(ctx, ids, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	return availability.ResolveTodayBulk(ids, rows, weekday), nil
}

// ReplaceWeek overwrites the artist's schedule with exactly seven days, Sunday first.
func (s *Service) ReplaceWeek(ctx context.Context, caller httpx.Identity, artistID string, days []model.DayEntry) ([]model.WorkingHour, error) {
	if !caller.CanManageArtist(artistID) {
		return nil, ErrForbidden
	}
	if len(days) != model.DaysPerWeek {
		return nil, fmt.Errorf("%w: expected %d days, got %d", ErrInvalidInput, model.DaysPerWeek, len(days))
	}
	var week [model.DaysPerWeek]model.DayEntry
	for i, d := range days {
		norm, err := normalizeDay(d)
		if err != nil {
			return nil, fmt.Errorf("%w: day %d: %v", ErrInvalidInput, i, err)
		}
		week[i] = norm
	}

	rows, err := s.repo.ReplaceWeek(ctx, artistID, week)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.WorkingHoursChanged{ArtistID: artistID})
	return rows, nil
}

func (s *Service) AddBlockedDate(ctx context.Context, caller httpx.Identity, artistID, date, reason string) (model.BlockedDate, error) {
	if !caller.CanManageArtist(artistID) {
		return model.BlockedDate{}, ErrForbidden
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return model.BlockedDate{}, fmt.Errorf("%w: blocked_date must be YYYY-MM-DD", ErrInvalidInput)
	}
	bd, err := s.repo.AddBlockedDate(ctx, artistID, date, strings.TrimSpace(reason))
	if err != nil {
		return model.BlockedDate{}, err
	}
	s.invalidate(ctx, cache.BlockedDatesChanged{ArtistID: artistID})
	return bd, nil
}

func (s *Service) RemoveBlockedDate(ctx context.Context, caller httpx.Identity, artistID, id string) error {
	if !caller.CanManageArtist(artistID) {
		return ErrForbidden
	}
	if err := s.repo.RemoveBlockedDate(ctx, artistID, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.BlockedDatesChanged{ArtistID: artistID})
	return nil
}

func (s *Service) ListBlockedDates(ctx context.Context, artistID string) ([]model.BlockedDate, error) {
	return cache.ReadThrough(ctx, s.cache, cache.BlockedDatesKey(artistID), s.ttl, func(ctx context.Context) ([]model.BlockedDate, error) {
		return s.repo.ListBlockedDates(ctx, artistID, "")
	})
}

// Day assembles the bookability inputs for one artist and date.
func (s *Service) Day(ctx context.Context, artistID, date string, duration time.Duration) (availability.Day, error) {
	d, err := time.ParseInLocation(model.DateLayout, date, s.loc)
	if err != nil {
		return availability.Day{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	rows, err := s.WorkingHours(ctx, artistID)
	if err != nil {
		return availability.Day{}, err
	}
	day := availability.Day{Date: d}
	for i := range rows {
		if rows[i].DayOfWeek == int(d.Weekday()) {
			day.Hours = &rows[i]
			break
		}
	}
	if day.Blocked, err = s.repo.IsBlocked(ctx, artistID, date); err != nil {
		return availability.Day{}, err
	}
	booked, err := s.bookings.ActiveOnDate(ctx, artistID, date)
	if err != nil {
		return availability.Day{}, err
	}
	for _, b := range booked {
		start, err := availability.At(d, b.BookingTime)
		if err != nil {
			continue
		}
		day.Busy = append(day.Busy, availability.Interval{Start: start, End: start.Add(duration)})
	}
	return day, nil
}

// Slots lists free "HH:MM" start times on date for a booking of the given duration.
func (s *Service) Slots(ctx context.Context, artistID, date string, duration, step time.Duration) ([]string, error) {
	if duration <= 0 || step <= 0 {
		return nil, fmt.Errorf("%w: duration and step must be positive", ErrInvalidInput)
	}
	day, err := s.Day(ctx, artistID, date, duration)
	if err != nil {
		return nil, err
	}
	starts := day.Slots(duration, step, s.clock.Now().In(s.loc))
	out := make([]string, 0, len(starts))
	for _, t := range starts {
		out = append(out, t.Format(model.ClockLayout))
	}
	return out, nil
}

// IsBookable reports whether a booking of duration may start at clock on date.
func (s *Service) IsBookable(ctx context.Context, artistID, date, clock string, duration time.Duration) (bool, error) {
	if _, err := time.Parse(model.ClockLayout, clock); err != nil {
		return false, fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	}
	if duration <= 0 {
		return false, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	day, err := s.Day(ctx, artistID, date, duration)
	if err != nil {
		return false, err
	}
	return day.IsBookable(clock, duration), nil
}

func (s *Service) invalidate(ctx context.Context, events ...cache.Event) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, events...); err != nil {
		s.logger.Warn("cache invalidation failed", "err", err, "keys", cache.Keys(events...))
	}
}

func normalizeDay(d model.DayEntry) (model.DayEntry, error) {
	var start, end time.Time
	var err error
	if d.StartTime != nil && *d.StartTime != "" {
		if start, err = time.Parse(model.ClockLayout, *d.StartTime); err != nil {
			return d, errors.New("start_time must be HH:MM")
		}
	} else {
		d.StartTime = nil
	}
	if d.EndTime != nil && *d.EndTime != "" {
		if end, err = time.Parse(model.ClockLayout, *d.EndTime); err != nil {
			return d, errors.New("end_time must be HH:MM")
		}
	} else {
		d.EndTime = nil
	}
	if d.IsWorking && d.StartTime != nil && d.EndTime != nil && !start.Before(end) {
		return d, errors.New("start_time must be before end_time")
	}
	return d, nil
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
