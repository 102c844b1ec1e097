package storage

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/glamhq/glam/libs/db"
	"github.com/glamhq/glam/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

var workingHourColumns = []string{
	"artist_id::text",
	"day_of_week",
	"is_working",
	"to_char(start_time, 'HH24:MI')",
	"to_char(end_time, 'HH24:MI')",
}

func scanWorkingHour(row pgx.CollectableRow) (model.WorkingHour, error) {
	var wh model.WorkingHour
	err := row.Scan(&wh.ArtistID, &wh.DayOfWeek, &wh.IsWorking, &wh.StartTime, &wh.EndTime)
	return wh, err
}

func (r *ScheduleRepository) ListWorkingHours(ctx context.Context, artistID string) ([]model.WorkingHour, error) {
	query, args, err := psql.Select(workingHourColumns...).
		From("artist_working_hours").
		Where(squirrel.Eq{"artist_id": artistID}).
		OrderBy("day_of_week").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanWorkingHour)
}

// ListWorkingHoursForDay loads the weekday's row for every artist in one query.
func (r *ScheduleRepository) ListWorkingHoursForDay(ctx context.Context, artistIDs []string, dayOfWeek int) ([]model.WorkingHour, error) {
	if len(artistIDs) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select(workingHourColumns...).
		From("artist_working_hours").
		Where(squirrel.Eq{"artist_id": artistIDs, "day_of_week": dayOfWeek}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanWorkingHour)
}

// ReplaceWeek upserts all seven days and removes anything else for the artist in one transaction.
func (r *ScheduleRepository) ReplaceWeek(ctx context.Context, artistID string, days [model.DaysPerWeek]model.DayEntry) ([]model.WorkingHour, error) {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM artist_working_hours
			WHERE artist_id = $1 AND (day_of_week < 0 OR day_of_week > 6)
		`, artistID); err != nil {
			return fmt.Errorf("delete stray rows: %w", err)
		}
		batch := &pgx.Batch{}
		for dow, d := range days {
			batch.Queue(`
				INSERT INTO artist_working_hours (artist_id, day_of_week, is_working, start_time, end_time)
				VALUES ($1, $2, $3, $4::time, $5::time)
				ON CONFLICT (artist_id, day_of_week) DO UPDATE
				SET is_working = EXCLUDED.is_working,
					start_time = EXCLUDED.start_time,
					end_time = EXCLUDED.end_time,
					updated_at = now()
			`, artistID, dow, d.IsWorking, d.StartTime, d.EndTime)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert week: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, rejected(err)
	}
	return r.ListWorkingHours(ctx, artistID)
}

const blockedDateColumns = `id::text, artist_id::text, to_char(blocked_date, 'YYYY-MM-DD'), COALESCE(reason, ''), created_at`

func (r *ScheduleRepository) AddBlockedDate(ctx context.Context, artistID, date, reason string) (model.BlockedDate, error) {
	var bd model.BlockedDate
	err := r.pool.QueryRow(ctx, `
		INSERT INTO artist_blocked_dates (artist_id, blocked_date, reason)
		VALUES ($1, $2::date, NULLIF($3, ''))
		RETURNING `+blockedDateColumns+`
	`, artistID, date, reason).Scan(&bd.ID, &bd.ArtistID, &bd.BlockedDate, &bd.Reason, &bd.CreatedAt)
	return bd, rejected(err)
}

func (r *ScheduleRepository) RemoveBlockedDate(ctx context.Context, artistID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM artist_blocked_dates
		WHERE id = $1 AND artist_id = $2
	`, id, artistID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlockedDates returns the artist's blocked dates, earliest first.
// A non-empty from restricts the list to dates on or after it.
func (r *ScheduleRepository) ListBlockedDates(ctx context.Context, artistID, from string) ([]model.BlockedDate, error) {
	q := psql.Select(blockedDateColumns).
		From("artist_blocked_dates").
		Where(squirrel.Eq{"artist_id": artistID}).
		OrderBy("blocked_date ASC", "created_at ASC")
	if from != "" {
		q = q.Where(squirrel.Expr("blocked_date >= ?::date", from))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.BlockedDate, error) {
		var bd model.BlockedDate
		err := row.Scan(&bd.ID, &bd.ArtistID, &bd.BlockedDate, &bd.Reason, &bd.CreatedAt)
		return bd, err
	})
}

func (r *ScheduleRepository) IsBlocked(ctx context.Context, artistID, date string) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM artist_blocked_dates
			WHERE artist_id = $1 AND blocked_date = $2::date
		)
	`, artistID, date).Scan(&blocked)
	return blocked, err
}
