package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glamhq/glam/libs/db"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/services/payment-service/internal/model"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateProviderEvent = errors.New("duplicate provider event")
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

const transactionColumns = `id::text, order_id, COALESCE(booking_id::text, ''), customer_id::text,
	amount::float8, currency, status, COALESCE(gateway_reference, ''), COALESCE(message, ''),
	created_at, updated_at`

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.BookingID, &t.CustomerID,
		&t.Amount, &t.Currency, &t.Status, &t.GatewayReference, &t.Message,
		&t.CreatedAt, &t.UpdatedAt)
	if db.IsNotFound(err) {
		return model.Transaction{}, ErrNotFound
	}
	return t, err
}

func (r *Repository) Create(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `
		INSERT INTO payment_transactions (id, order_id, booking_id, customer_id, amount, currency, status)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)
		RETURNING `+transactionColumns,
		t.ID, t.OrderID, t.BookingID, t.CustomerID, t.Amount, t.Currency, t.Status))
}

func (r *Repository) Get(ctx context.Context, id string) (model.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id))
}

// MarkFailed moves a pending transaction to failed. Settled transactions are left alone.
func (r *Repository) MarkFailed(ctx context.Context, id, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payment_transactions
		SET status = 'failed', message = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, message)
	return err
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         map[string]string
}

// Settlement decides the new state of a locked transaction. A nil event leaves the row untouched.
type Settlement func(t *model.Transaction) (*outbox.Event, error)

// Settle records the provider event, locks the transaction for orderID and applies fn in one
// transaction. Replayed provider events return ErrDuplicateProviderEvent.
func (r *Repository) Settle(ctx context.Context, evt ProviderEvent, orderID string, fn Settlement) (model.Transaction, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return model.Transaction{}, err
	}

	var out model.Transaction
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (provider, provider_event_id) DO NOTHING
		`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicateProviderEvent
		}

		t, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE order_id = $1 FOR UPDATE`, orderID))
		if err != nil {
			return err
		}
		event, err := fn(&t)
		if err != nil {
			return err
		}
		if event == nil {
			out = t
			return nil
		}
		if out, err = r.update(ctx, tx, t); err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, *event); err != nil {
			return fmt.Errorf("outbox insert: %w", err)
		}
		return nil
	})
	return out, err
}

// ExpirePending fails up to limit transactions still pending at cutoff. fn builds the outbox
// event for each expired row.
func (r *Repository) ExpirePending(ctx context.Context, cutoff time.Time, limit int, fn Settlement) (int, error) {
	n := 0
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+transactionColumns+`
			FROM payment_transactions
			WHERE status = 'pending' AND created_at < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, cutoff, limit)
		if err != nil {
			return err
		}
		stale, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Transaction, error) {
			return scanTransaction(row)
		})
		if err != nil {
			return err
		}
		for _, t := range stale {
			event, err := fn(&t)
			if err != nil {
				return err
			}
			if event == nil {
				continue
			}
			if _, err := r.update(ctx, tx, t); err != nil {
				return err
			}
			if err := r.outbox.Insert(ctx, tx, *event); err != nil {
				return fmt.Errorf("outbox insert: %w", err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) update(ctx context.Context, tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `
		UPDATE payment_transactions
		SET status = $2, gateway_reference = NULLIF($3, ''), message = NULLIF($4, ''), updated_at = now()
		WHERE id = $1
		RETURNING `+transactionColumns,
		t.ID, t.Status, t.GatewayReference, t.Message))
}
