package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/glamhq/glam/libs/clock"
	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/services/payment-service/internal/model"
	"github.com/glamhq/glam/services/payment-service/internal/sadad"
	"github.com/glamhq/glam/services/payment-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const merchantKey = "0123456789abcdef"

type fakeRepo struct {
	txs      map[string]model.Transaction
	seen     map[string]bool
	events   []outbox.Event
	failures map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{txs: map[string]model.Transaction{}, seen: map[string]bool{}, failures: map[string]string{}}
}

func (f *fakeRepo) Create(_ context.Context, t model.Transaction) (model.Transaction, error) {
	t.CreatedAt = epoch
	t.UpdatedAt = epoch
	f.txs[t.ID] = t
	return t, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (model.Transaction, error) {
	t, ok := f.txs[id]
	if !ok {
		return model.Transaction{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id, message string) error {
	t := f.txs[id]
	if t.Status == model.TransactionPending {
		t.Status = model.TransactionFailed
		t.Message = message
		f.txs[id] = t
	}
	f.failures[id] = message
	return nil
}

func (f *fakeRepo) Settle(_ context.Context, evt storage.ProviderEvent, orderID string, fn storage.Settlement) (model.Transaction, error) {
	if f.seen[evt.ProviderEventID] {
		return model.Transaction{}, storage.ErrDuplicateProviderEvent
	}
	for id, t := range f.txs {
		if t.OrderID != orderID {
			continue
		}
		e, err := fn(&t)
		if err != nil {
			return model.Transaction{}, err
		}
		f.seen[evt.ProviderEventID] = true
		if e != nil {
			f.txs[id] = t
			f.events = append(f.events, *e)
		}
		return f.txs[id], nil
	}
	return model.Transaction{}, storage.ErrNotFound
}

func (f *fakeRepo) ExpirePending(_ context.Context, cutoff time.Time, limit int, fn storage.Settlement) (int, error) {
	n := 0
	for id, t := range f.txs {
		if n == limit || t.Status != model.TransactionPending || !t.CreatedAt.Before(cutoff) {
			continue
		}
		e, err := fn(&t)
		if err != nil {
			return 0, err
		}
		if e != nil {
			f.txs[id] = t
			f.events = append(f.events, *e)
			n++
		}
	}
	return n, nil
}

type fakeCheckout struct {
	enabled bool
	err     error
	fields  map[string]string
}

func (c *fakeCheckout) Enabled() bool { return c.enabled }

func (c *fakeCheckout) CreateCheckout(_ context.Context, fields map[string]string) (string, error) {
	c.fields = fields
	if c.err != nil {
		return "", c.err
	}
	return "https://sadadqa.com/pay/" + fields[sadad.FieldOrderID], nil
}

var (
	payer      = httpx.Identity{UserID: "c-1", Role: httpx.RoleCustomer}
	sadadCfg   = sadad.Config{MerchantID: "7001", MerchantKey: merchantKey, Website: "glam.qa", CallbackURL: "https://api.glam.qa/cb", GatewayURL: "https://sadadqa.com/webpurchase"}
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func newTestService(repo *fakeRepo, checkout Checkout) (*Service, *Metrics) {
	m := NewMetrics(prometheus.NewRegistry())
	return NewService(repo, sadadCfg, checkout, clock.NewFake(epoch), time.UTC, m, testLogger), m
}

func signedCallback(t *testing.T, values map[string]string) sadad.Callback {
	t.Helper()
	sum, err := sadad.Sign(values, merchantKey)
	require.NoError(t, err)
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	form.Set(sadad.ChecksumField, sum)
	return sadad.ParseCallback(form)
}

func TestInitiateBuildsSignedFieldsAndRedirect(t *testing.T) {
	repo := newFakeRepo()
	checkout := &fakeCheckout{enabled: true}
	svc, m := newTestService(repo, checkout)

	res, err := svc.Initiate(context.Background(), payer, InitiateInput{BookingID: "6f1c1b1e-0000-4000-8000-0000000000aa", Amount: 150, Email: "a@b.qa"})
	require.NoError(t, err)

	tx := repo.txs[res.TransactionID]
	assert.Equal(t, model.TransactionPending, tx.Status)
	assert.Equal(t, "c-1", tx.CustomerID)
	assert.Equal(t, res.OrderID, res.Fields[sadad.FieldOrderID])
	assert.Equal(t, "150.00", res.Fields[sadad.FieldAmount])
	assert.Equal(t, "2024-06-12 10:00:00", res.Fields[sadad.FieldTxnDate])
	assert.Equal(t, res.Checksum, res.Fields[sadad.ChecksumField])
	require.NoError(t, sadad.Verify(res.Fields, merchantKey, res.Checksum))
	assert.Equal(t, "https://sadadqa.com/pay/"+res.OrderID, res.RedirectURL)
	assert.Equal(t, sadadCfg.GatewayURL, res.GatewayURL)
	assert.Equal(t, res.Checksum, checkout.fields[sadad.ChecksumField])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Initiated))
}

func TestInitiateWithoutSessionEndpointReturnsFormOnly(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), &fakeCheckout{enabled: false})

	res, err := svc.Initiate(context.Background(), payer, InitiateInput{Amount: 10})
	require.NoError(t, err)
	assert.Empty(t, res.RedirectURL)
	assert.NotEmpty(t, res.Checksum)
}

func TestInitiateValidation(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), nil)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, httpx.Identity{}, InitiateInput{Amount: 10})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Initiate(ctx, payer, InitiateInput{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Initiate(ctx, payer, InitiateInput{Amount: 5, BookingID: "b-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInitiateCheckoutFailureFailsTransaction(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, &fakeCheckout{enabled: true, err: errors.New("connection reset")})

	_, err := svc.Initiate(context.Background(), payer, InitiateInput{Amount: 10})
	assert.ErrorIs(t, err, ErrCheckoutUnavailable)
	require.Len(t, repo.failures, 1)
	for id := range repo.failures {
		assert.Equal(t, model.TransactionFailed, repo.txs[id].Status)
	}
}

func TestApplyCallbackSettlesOnce(t *testing.T) {
	repo := newFakeRepo()
	svc, m := newTestService(repo, nil)
	ctx := context.Background()

	res, err := svc.Initiate(ctx, payer, InitiateInput{BookingID: "6f1c1b1e-0000-4000-8000-0000000000aa", Amount: 150})
	require.NoError(t, err)

	pending := signedCallback(t, map[string]string{"ORDERID": res.OrderID, "STATUS": "PENDING", "transaction_number": "T-1"})
	tx, err := svc.ApplyCallback(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionPending, tx.Status)

	success := signedCallback(t, map[string]string{
		"ORDERID": res.OrderID, "STATUS": sadad.StatusSuccess, "RESPMSG": "Txn Success",
		"transaction_number": "T-1", "TXNAMOUNT": "150.00",
	})
	tx, err = svc.ApplyCallback(ctx, success)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionSuccess, tx.Status)
	assert.Equal(t, "T-1", tx.GatewayReference)

	_, err = svc.ApplyCallback(ctx, success)
	assert.ErrorIs(t, err, ErrDuplicateCallback)

	late := signedCallback(t, map[string]string{"ORDERID": res.OrderID, "STATUS": sadad.StatusFailure, "transaction_number": "T-1"})
	tx, err = svc.ApplyCallback(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionSuccess, tx.Status, "settled transactions stay settled")

	require.Len(t, repo.events, 1)
	assert.Equal(t, EventPaymentCompleted, repo.events[0].EventType)
	var payload completedPayload
	require.NoError(t, json.Unmarshal(repo.events[0].Payload, &payload))
	assert.Equal(t, "6f1c1b1e-0000-4000-8000-0000000000aa", payload.BookingID)
	assert.Equal(t, model.TransactionSuccess, payload.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Callbacks.WithLabelValues("duplicate")))
}

func TestApplyCallbackRejectsBadChecksumAndAmount(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	res, err := svc.Initiate(ctx, payer, InitiateInput{Amount: 150})
	require.NoError(t, err)

	forged := signedCallback(t, map[string]string{"ORDERID": res.OrderID, "STATUS": sadad.StatusSuccess})
	forged.Values["TXNAMOUNT"] = "1.00"
	_, err = svc.ApplyCallback(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidChecksum)
	assert.Equal(t, model.TransactionPending, repo.txs[res.TransactionID].Status)

	short := signedCallback(t, map[string]string{"ORDERID": res.OrderID, "STATUS": sadad.StatusSuccess, "TXNAMOUNT": "15.00", "transaction_number": "T-2"})
	tx, err := svc.ApplyCallback(ctx, short)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionFailed, tx.Status)
	assert.Equal(t, "amount mismatch", tx.Message)

	unknown := signedCallback(t, map[string]string{"ORDERID": "nope", "STATUS": sadad.StatusSuccess})
	_, err = svc.ApplyCallback(ctx, unknown)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetHidesOtherCustomersTransactions(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	res, err := svc.Initiate(ctx, payer, InitiateInput{Amount: 10})
	require.NoError(t, err)

	_, err = svc.Get(ctx, httpx.Identity{UserID: "c-2", Role: httpx.RoleCustomer}, res.TransactionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, httpx.Identity{UserID: "ops", Role: httpx.RoleAdmin}, res.TransactionID)
	assert.NoError(t, err)
}

func TestSweeperExpiresStalePending(t *testing.T) {
	repo := newFakeRepo()
	repo.txs["old"] = model.Transaction{ID: "old", Status: model.TransactionPending, CreatedAt: epoch.Add(-time.Hour)}
	repo.txs["fresh"] = model.Transaction{ID: "fresh", Status: model.TransactionPending, CreatedAt: epoch.Add(-time.Minute)}
	repo.txs["paid"] = model.Transaction{ID: "paid", Status: model.TransactionSuccess, CreatedAt: epoch.Add(-time.Hour)}

	m := NewMetrics(prometheus.NewRegistry())
	sw := NewSweeper(repo, clock.NewFake(epoch), SweeperConfig{}, m, testLogger)
	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TransactionFailed, repo.txs["old"].Status)
	assert.Equal(t, "expired", repo.txs["old"].Message)
	assert.Equal(t, model.TransactionPending, repo.txs["fresh"].Status)
	assert.Equal(t, model.TransactionSuccess, repo.txs["paid"].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Expired))
	require.Len(t, repo.events, 1)
}

func TestSuccessCallbackAfterExpirySettles(t *testing.T) {
	repo := newFakeRepo()
	svc, m := newTestService(repo, nil)
	ctx := context.Background()

	res, err := svc.Initiate(ctx, payer, InitiateInput{BookingID: "6f1c1b1e-0000-4000-8000-0000000000aa", Amount: 150})
	require.NoError(t, err)

	sw := NewSweeper(repo, clock.NewFake(epoch.Add(31*time.Minute)), SweeperConfig{}, m, testLogger)
	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "expired", repo.txs[res.TransactionID].Message)

	success := signedCallback(t, map[string]string{
		"ORDERID": res.OrderID, "STATUS": sadad.StatusSuccess, "RESPMSG": "Txn Success",
		"transaction_number": "T-9", "TXNAMOUNT": "150.00",
	})
	tx, err := svc.ApplyCallback(ctx, success)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionSuccess, tx.Status)
	assert.Equal(t, "Txn Success", tx.Message)
	assert.Equal(t, "T-9", tx.GatewayReference)

	require.Len(t, repo.events, 2)
	var payload completedPayload
	require.NoError(t, json.Unmarshal(repo.events[1].Payload, &payload))
	assert.Equal(t, model.TransactionSuccess, payload.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Callbacks.WithLabelValues("late_success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Callbacks.WithLabelValues("failed")))

	failure := signedCallback(t, map[string]string{"ORDERID": res.OrderID, "STATUS": sadad.StatusFailure, "transaction_number": "T-9"})
	tx, err = svc.ApplyCallback(ctx, failure)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionSuccess, tx.Status)
}

func TestFailureCallbackAfterExpiryKeepsExpiry(t *testing.T) {
	repo := newFakeRepo()
	svc, m := newTestService(repo, nil)
	ctx := context.Background()

	res, err := svc.Initiate(ctx, payer, InitiateInput{Amount: 40})
	require.NoError(t, err)
	sw := NewSweeper(repo, clock.NewFake(epoch.Add(time.Hour)), SweeperConfig{}, m, testLogger)
	_, err = sw.SweepOnce(ctx)
	require.NoError(t, err)

	failure := signedCallback(t, map[string]string{"ORDERID": res.OrderID, "STATUS": sadad.StatusFailure, "transaction_number": "T-3"})
	tx, err := svc.ApplyCallback(ctx, failure)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionFailed, tx.Status)
	assert.Equal(t, "expired", tx.Message)
	assert.Len(t, repo.events, 1)
}
