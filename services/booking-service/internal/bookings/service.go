package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/services/booking-service/internal/cache"
	"github.com/glamhq/glam/services/booking-service/internal/model"
	"github.com/glamhq/glam/services/booking-service/internal/storage"
	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "glam.booking.created.v1"
	EventBookingStatusChanged = "glam.booking.status_changed.v1"
	aggregateType             = "booking"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = storage.ErrNotFound
	ErrSlotTaken         = storage.ErrSlotTaken
	ErrRejected          = storage.ErrRejected
)

type Repository interface {
	Create(ctx context.Context, b model.Booking, evt outbox.Event) (model.Booking, bool, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	List(ctx context.Context, f storage.BookingFilter) ([]model.Booking, error)
	PendingCount(ctx context.Context, artistID string) (int, error)
	UpdateStatus(ctx context.Context, id string, fn storage.Mutation) (model.Booking, error)
}

type Service struct {
	repo    Repository
	cache   cache.Store
	ttl     time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

func NewService(repo Repository, store cache.Store, ttl time.Duration, metrics *Metrics, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{repo: repo, cache: store, ttl: ttl, metrics: metrics, logger: logger}
}

type CreateInput struct {
	ArtistID        string             `json:"artist_id"`
	ServiceID       string             `json:"service_id"`
	BookingDate     string             `json:"booking_date"`
	BookingTime     string             `json:"booking_time"`
	LocationType    model.LocationType `json:"location_type"`
	LocationAddress string             `json:"location_address"`
	TotalPrice      float64            `json:"total_price"`
	Notes           string             `json:"notes"`
	IdempotencyKey  string             `json:"-"`
}

func (in *CreateInput) normalize() error {
	in.ArtistID = strings.TrimSpace(in.ArtistID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	in.LocationAddress = strings.TrimSpace(in.LocationAddress)
	in.Notes = strings.TrimSpace(in.Notes)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.ArtistID == "" || in.ServiceID == "" {
		return fmt.Errorf("%w: artist_id and service_id are required", ErrInvalidInput)
	}
	if _, err := uuid.Parse(in.ArtistID); err != nil {
		return fmt.Errorf("%w: artist_id must be a uuid", ErrInvalidInput)
	}
	if _, err := uuid.Parse(in.ServiceID); err != nil {
		return fmt.Errorf("%w: service_id must be a uuid", ErrInvalidInput)
	}
	if _, err := time.Parse(model.DateLayout, in.BookingDate); err != nil {
		return fmt.Errorf("%w: booking_date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if _, err := time.Parse(model.ClockLayout, in.BookingTime); err != nil {
		return fmt.Errorf("%w: booking_time must be HH:MM", ErrInvalidInput)
	}
	if !in.LocationType.Valid() {
		return fmt.Errorf("%w: location_type must be artist_studio or client_home", ErrInvalidInput)
	}
	if in.TotalPrice < 0 {
		return fmt.Errorf("%w: total_price must not be negative", ErrInvalidInput)
	}
	return nil
}

type createdPayload struct {
	BookingID   string  `json:"booking_id"`
	CustomerID  string  `json:"customer_id"`
	ArtistID    string  `json:"artist_id"`
	ServiceID   string  `json:"service_id"`
	BookingDate string  `json:"booking_date"`
	BookingTime string  `json:"booking_time"`
	TotalPrice  float64 `json:"total_price"`
}

// Create stores a pending booking for the caller. The bool is false when an
// idempotency key replayed an earlier booking.
func (s *Service) Create(ctx context.Context, caller httpx.Identity, in CreateInput) (model.Booking, bool, error) {
	if !caller.Authenticated() {
		return model.Booking{}, false, ErrUnauthenticated
	}
	if err := in.normalize(); err != nil {
		return model.Booking{}, false, err
	}

	b := model.Booking{
		ID:              uuid.NewString(),
		CustomerID:      caller.UserID,
		ArtistID:        in.ArtistID,
		ServiceID:       in.ServiceID,
		BookingDate:     in.BookingDate,
		BookingTime:     in.BookingTime,
		Status:          model.BookingPending,
		TotalPrice:      in.TotalPrice,
		LocationType:    in.LocationType,
		LocationAddress: in.LocationAddress,
		Notes:           in.Notes,
		IdempotencyKey:  in.IdempotencyKey,
	}
	evt, err := outbox.NewEvent(aggregateType, b.ID, EventBookingCreated, createdPayload{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		ArtistID:    b.ArtistID,
		ServiceID:   b.ServiceID,
		BookingDate: b.BookingDate,
		BookingTime: b.BookingTime,
		TotalPrice:  b.TotalPrice,
	})
	if err != nil {
		return model.Booking{}, false, err
	}

	created, fresh, err := s.repo.Create(ctx, b, evt)
	if err != nil {
		return model.Booking{}, false, err
	}
	if fresh {
		s.metrics.Created.Inc()
		s.invalidate(ctx, cache.BookingChanged(created.CustomerID, created.ArtistID)...)
	}
	return created, fresh, nil
}

func (s *Service) Get(ctx context.Context, caller httpx.Identity, id string) (model.Booking, error) {
	if !caller.Authenticated() {
		return model.Booking{}, ErrUnauthenticated
	}
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.CustomerID != caller.UserID && !caller.CanManageArtist(b.ArtistID) {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (s *Service) ListMine(ctx context.Context, caller httpx.Identity) ([]model.Booking, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return cache.ReadThrough(ctx, s.cache, cache.CustomerBookingsKey(caller.UserID), s.ttl, func(ctx context.Context) ([]model.Booking, error) {
		return s.repo.List(ctx, storage.BookingFilter{CustomerID: caller.UserID})
	})
}

func (s *Service) ListForArtist(ctx context.Context, caller httpx.Identity, artistID string) ([]model.Booking, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !caller.CanManageArtist(artistID) {
		return nil, ErrForbidden
	}
	return cache.ReadThrough(ctx, s.cache, cache.ArtistBookingsKey(artistID), s.ttl, func(ctx context.Context) ([]model.Booking, error) {
		return s.repo.List(ctx, storage.BookingFilter{ArtistID: artistID})
	})
}

// PendingCount backs the artist's pending-requests badge.
func (s *Service) PendingCount(ctx context.Context, caller httpx.Identity, artistID string) (int, error) {
	if !caller.Authenticated() {
		return 0, ErrUnauthenticated
	}
	if !caller.CanManageArtist(artistID) {
		return 0, ErrForbidden
	}
	return cache.ReadThrough(ctx, s.cache, cache.PendingCountKey(artistID), s.ttl, func(ctx context.Context) (int, error) {
		return s.repo.PendingCount(ctx, artistID)
	})
}

type statusPayload struct {
	BookingID  string              `json:"booking_id"`
	CustomerID string              `json:"customer_id"`
	ArtistID   string              `json:"artist_id"`
	From       model.BookingStatus `json:"from"`
	To         model.BookingStatus `json:"to"`
	Reason     string              `json:"reason,omitempty"`
}

// Transition moves a booking to status on behalf of the artist, an admin, or the
// customer cancelling their own booking.
func (s *Service) Transition(ctx context.Context, caller httpx.Identity, id string, to model.BookingStatus) (model.Booking, error) {
	if !caller.Authenticated() {
		return model.Booking{}, ErrUnauthenticated
	}
	return s.transition(ctx, id, to, "", func(b model.Booking) error {
		if caller.CanManageArtist(b.ArtistID) {
			return nil
		}
		if b.CustomerID == caller.UserID && to == model.BookingCancelled {
			return nil
		}
		return ErrForbidden
	})
}

// ConfirmPaid confirms a pending booking after a successful payment.
// Bookings that already left pending, or do not exist, are left unchanged.
func (s *Service) ConfirmPaid(ctx context.Context, bookingID, transactionID string) error {
	_, err := s.transition(ctx, bookingID, model.BookingConfirmed, "payment "+transactionID, nil)
	switch {
	case errors.Is(err, ErrInvalidTransition):
		s.logger.Info("payment for non-pending booking ignored", "booking_id", bookingID, "transaction_id", transactionID)
		return nil
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("payment for unknown booking ignored", "booking_id", bookingID, "transaction_id", transactionID)
		return nil
	}
	return err
}

func (s *Service) transition(ctx context.Context, id string, to model.BookingStatus, reason string, authorize func(model.Booking) error) (model.Booking, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, func(b *model.Booking) (*outbox.Event, error) {
		if authorize != nil {
			if err := authorize(*b); err != nil {
				return nil, err
			}
		}
		if !b.Status.CanTransition(to) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.Status, to)
		}
		from := b.Status
		b.Status = to
		evt, err := outbox.NewEvent(aggregateType, b.ID, EventBookingStatusChanged, statusPayload{
			BookingID:  b.ID,
			CustomerID: b.CustomerID,
			ArtistID:   b.ArtistID,
			From:       from,
			To:         to,
			Reason:     reason,
		})
		if err != nil {
			return nil, err
		}
		return &evt, nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.metrics.Transitions.WithLabelValues(string(to)).Inc()
	s.invalidate(ctx, cache.BookingChanged(updated.CustomerID, updated.ArtistID)...)
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context, events ...cache.Event) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, events...); err != nil {
		s.logger.Warn("cache invalidation failed", "err", err, "keys", cache.Keys(events...))
	}
}
