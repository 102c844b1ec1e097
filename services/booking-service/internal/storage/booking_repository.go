package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/glamhq/glam/libs/db"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `id::text, customer_id::text, artist_id::text, service_id::text,
	to_char(booking_date, 'YYYY-MM-DD'), to_char(booking_time, 'HH24:MI'), status,
	total_price::float8, location_type, COALESCE(location_address, ''), COALESCE(notes, ''),
	COALESCE(idempotency_key, ''), created_at, updated_at`

var bookingSelect = psql.Select(bookingColumns).From("bookings")

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.CustomerID, &b.ArtistID, &b.ServiceID,
		&b.BookingDate, &b.BookingTime, &b.Status,
		&b.TotalPrice, &b.LocationType, &b.LocationAddress, &b.Notes,
		&b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Booking, error) {
		return scanBooking(row)
	})
}

// Create inserts b and evt in one transaction. When b carries an idempotency key that
// the customer already used, the earlier booking is returned with created=false.
func (r *BookingRepository) Create(ctx context.Context, b model.Booking, evt outbox.Event) (model.Booking, bool, error) {
	if b.IdempotencyKey != "" {
		existing, err := r.byIdempotencyKey(ctx, b.CustomerID, b.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return model.Booking{}, false, err
		}
	}

	var out model.Booking
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO bookings
				(id, customer_id, artist_id, service_id, booking_date, booking_time, status,
				 total_price, location_type, location_address, notes, idempotency_key)
			VALUES ($1, $2, $3, $4, $5::date, $6::time, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''))
			RETURNING `+bookingColumns,
			b.ID, b.CustomerID, b.ArtistID, b.ServiceID, b.BookingDate, b.BookingTime, b.Status,
			b.TotalPrice, b.LocationType, b.LocationAddress, b.Notes, b.IdempotencyKey)
		created, err := scanBooking(row)
		if err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("outbox insert: %w", err)
		}
		out = created
		return nil
	})
	switch {
	case err == nil:
		return out, true, nil
	case db.IsUniqueViolation(err, idempotencyConstraint):
		existing, getErr := r.byIdempotencyKey(ctx, b.CustomerID, b.IdempotencyKey)
		if getErr != nil {
			return model.Booking{}, false, getErr
		}
		return existing, false, nil
	case db.IsUniqueViolation(err, activeSlotConstraint):
		return model.Booking{}, false, ErrSlotTaken
	default:
		return model.Booking{}, false, rejected(err)
	}
}

func (r *BookingRepository) byIdempotencyKey(ctx context.Context, customerID, key string) (model.Booking, error) {
	query, args, err := bookingSelect.
		Where(squirrel.Eq{"customer_id": customerID, "idempotency_key": key}).
		ToSql()
	if err != nil {
		return model.Booking{}, err
	}
	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if db.IsNotFound(err) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	query, args, err := bookingSelect.Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return model.Booking{}, err
	}
	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if db.IsNotFound(err) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

// BookingFilter narrows List. Zero fields are ignored.
type BookingFilter struct {
	CustomerID string
	ArtistID   string
	Status     model.BookingStatus
	Date       string
	Limit      uint64
}

func (r *BookingRepository) List(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	q := bookingSelect.OrderBy("booking_date DESC", "booking_time DESC")
	if f.CustomerID != "" {
		q = q.Where(squirrel.Eq{"customer_id": f.CustomerID})
	}
	if f.ArtistID != "" {
		q = q.Where(squirrel.Eq{"artist_id": f.ArtistID})
	}
	if f.Status != "" {
		q = q.Where(squirrel.Eq{"status": f.Status})
	}
	if f.Date != "" {
		q = q.Where(squirrel.Expr("booking_date = ?::date", f.Date))
	}
	limit := f.Limit
	if limit == 0 || limit > 200 {
		limit = 50
	}
	query, args, err := q.Limit(limit).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ActiveOnDate returns the artist's pending and confirmed bookings for date.
func (r *BookingRepository) ActiveOnDate(ctx context.Context, artistID, date string) ([]model.Booking, error) {
	query, args, err := bookingSelect.
		Where(squirrel.Eq{"artist_id": artistID, "status": []model.BookingStatus{model.BookingPending, model.BookingConfirmed}}).
		Where(squirrel.Expr("booking_date = ?::date", date)).
		OrderBy("booking_time ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *BookingRepository) PendingCount(ctx context.Context, artistID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM bookings
		WHERE artist_id = $1 AND status = 'pending'
	`, artistID).Scan(&n)
	return n, err
}

// Mutation inspects the locked booking and either sets a new status or aborts with an error.
// A nil event skips the outbox write.
type Mutation func(b *model.Booking) (*outbox.Event, error)

// UpdateStatus locks the booking row, applies fn and persists the result with its event.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, fn Mutation) (model.Booking, error) {
	var out model.Booking
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if db.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		evt, err := fn(&b)
		if err != nil {
			return err
		}
		updated, err := scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+bookingColumns, id, b.Status))
		if err != nil {
			return err
		}
		if evt != nil {
			if err := r.outbox.Insert(ctx, tx, *evt); err != nil {
				return fmt.Errorf("outbox insert: %w", err)
			}
		}
		out = updated
		return nil
	})
	if db.IsUniqueViolation(err, activeSlotConstraint) {
		return model.Booking{}, ErrSlotTaken
	}
	return out, err
}
