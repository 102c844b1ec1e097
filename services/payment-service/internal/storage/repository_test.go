package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glamhq/glam/libs/db"
	"github.com/glamhq/glam/libs/db/dbtest"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/services/payment-service/internal/model"
	"github.com/google/uuid"
)

func openTestRepo(t *testing.T) (*Repository, *db.Pool) {
	pool := dbtest.Open(t, filepath.Join("..", "..", "migrations", "0001_init.sql"))
	return NewRepository(pool, outbox.NewRepository(pool)), pool
}

func countRows(t *testing.T, pool *db.Pool, query string, args ...any) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func createPending(t *testing.T, repo *Repository, orderID string) model.Transaction {
	t.Helper()
	tx, err := repo.Create(context.Background(), model.Transaction{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		CustomerID: uuid.NewString(),
		Amount:     150,
		Currency:   "QAR",
		Status:     model.TransactionPending,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tx
}

func settleSuccess(t *model.Transaction) (*outbox.Event, error) {
	t.Status = model.TransactionSuccess
	t.GatewayReference = "T-1"
	t.Message = "Txn Success"
	evt, err := outbox.NewEvent("payment_transaction", t.ID, "glam.payment.completed.v1", map[string]string{"status": string(t.Status)})
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

func TestSettleDeduplicatesProviderEvents(t *testing.T) {
	repo, pool := openTestRepo(t)
	ctx := context.Background()
	created := createPending(t, repo, "GLAM-1")
	evt := ProviderEvent{Provider: "sadad", ProviderEventID: "GLAM-1:T-1:TXN_SUCCESS", EventType: "callback.txn_success", Payload: map[string]string{"ORDERID": "GLAM-1"}}

	settled, err := repo.Settle(ctx, evt, "GLAM-1", settleSuccess)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.ID != created.ID || settled.Status != model.TransactionSuccess || settled.GatewayReference != "T-1" {
		t.Fatalf("unexpected settled row: %+v", settled)
	}

	calls := 0
	_, err = repo.Settle(ctx, evt, "GLAM-1", func(t *model.Transaction) (*outbox.Event, error) {
		calls++
		return settleSuccess(t)
	})
	if !errors.Is(err, ErrDuplicateProviderEvent) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("settlement ran for a duplicate event")
	}

	if n := countRows(t, pool, `SELECT count(*) FROM provider_events`); n != 1 {
		t.Fatalf("expected one provider event, got %d", n)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM outbox_events`); n != 1 {
		t.Fatalf("expected one outbox row, got %d", n)
	}
}

func TestSettleWithoutChangeKeepsRow(t *testing.T) {
	repo, pool := openTestRepo(t)
	ctx := context.Background()
	created := createPending(t, repo, "GLAM-2")

	got, err := repo.Settle(ctx, ProviderEvent{Provider: "sadad", ProviderEventID: "GLAM-2::PENDING", EventType: "callback.pending", Payload: map[string]string{}}, "GLAM-2",
		func(*model.Transaction) (*outbox.Event, error) { return nil, nil })
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got.Status != model.TransactionPending || !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("row should be untouched: %+v", got)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM outbox_events`); n != 0 {
		t.Fatalf("expected no outbox rows, got %d", n)
	}
}

func TestSettleUnknownOrderRollsBackProviderEvent(t *testing.T) {
	repo, pool := openTestRepo(t)
	ctx := context.Background()
	evt := ProviderEvent{Provider: "sadad", ProviderEventID: "NOPE:T-9:TXN_SUCCESS", EventType: "callback.txn_success", Payload: map[string]string{"ORDERID": "NOPE"}}

	if _, err := repo.Settle(ctx, evt, "NOPE", settleSuccess); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM provider_events WHERE provider_event_id = $1`, evt.ProviderEventID); n != 0 {
		t.Fatalf("provider event should roll back, found %d", n)
	}

	createPending(t, repo, "NOPE")
	if _, err := repo.Settle(ctx, evt, "NOPE", settleSuccess); err != nil {
		t.Fatalf("retry after the order exists: %v", err)
	}
}

func TestExpirePendingSkipsFreshAndSettled(t *testing.T) {
	repo, pool := openTestRepo(t)
	ctx := context.Background()
	stale := createPending(t, repo, "GLAM-OLD")
	paid := createPending(t, repo, "GLAM-PAID")
	if _, err := repo.Settle(ctx, ProviderEvent{Provider: "sadad", ProviderEventID: "paid", EventType: "callback.txn_success", Payload: map[string]string{}}, "GLAM-PAID", settleSuccess); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE payment_transactions SET created_at = now() - interval '1 hour' WHERE id IN ($1, $2)`, stale.ID, paid.ID); err != nil {
		t.Fatalf("age rows: %v", err)
	}
	createPending(t, repo, "GLAM-NEW")

	n, err := repo.ExpirePending(ctx, time.Now().Add(-30*time.Minute), 10, func(t *model.Transaction) (*outbox.Event, error) {
		t.Status = model.TransactionFailed
		t.Message = "expired"
		evt, err := outbox.NewEvent("payment_transaction", t.ID, "glam.payment.completed.v1", map[string]string{"status": "failed"})
		return &evt, err
	})
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expired transaction, got %d", n)
	}
	got, err := repo.Get(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.TransactionFailed || got.Message != "expired" {
		t.Fatalf("unexpected stale row: %+v", got)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM payment_transactions WHERE status = 'pending'`); n != 1 {
		t.Fatalf("expected the fresh transaction to stay pending, got %d pending", n)
	}
}
