package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glamhq/glam/libs/clock"
	"github.com/glamhq/glam/services/payment-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

// scriptedReader returns statuses[i] on the i-th read and the last one afterwards.
type scriptedReader struct {
	statuses []model.TransactionStatus
	errs     map[int]error
	reads    int
	message  string
}

func (r *scriptedReader) Get(_ context.Context, id string) (model.Transaction, error) {
	r.reads++
	if err := r.errs[r.reads]; err != nil {
		return model.Transaction{}, err
	}
	i := r.reads - 1
	if i >= len(r.statuses) {
		i = len(r.statuses) - 1
	}
	return model.Transaction{ID: id, Status: r.statuses[i], Message: r.message}, nil
}

func newTestPoller(r TransactionReader, clk clock.Clock) *Poller {
	return NewPoller(r, clk, PollerConfig{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAwaitSucceedsOnFirstSuccessfulRead(t *testing.T) {
	reader := &scriptedReader{statuses: []model.TransactionStatus{
		model.TransactionPending, model.TransactionPending, model.TransactionSuccess, model.TransactionFailed,
	}}
	clk := clock.NewFake(epoch)

	res, err := newTestPoller(reader, clk).Await(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, reader.reads)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, clk.Sleeps())
}

func TestAwaitTimesOutAfterTwentyReads(t *testing.T) {
	reader := &scriptedReader{statuses: []model.TransactionStatus{model.TransactionPending}}
	clk := clock.NewFake(epoch)

	res, err := newTestPoller(reader, clk).Await(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Equal(t, 20, res.Attempts)
	assert.Equal(t, 20, reader.reads)

	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 19)
	for _, d := range sleeps {
		assert.Equal(t, 3*time.Second, d)
	}
	elapsed := clk.Now().Sub(epoch)
	assert.Equal(t, 57*time.Second, elapsed)
	assert.LessOrEqual(t, elapsed, time.Minute)
}

func TestAwaitFailedCarriesMessage(t *testing.T) {
	reader := &scriptedReader{statuses: []model.TransactionStatus{model.TransactionFailed}, message: "Card declined"}

	res, err := newTestPoller(reader, clock.NewFake(epoch)).Await(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "Card declined", res.Message)
	assert.Equal(t, 1, res.Attempts)
}

func TestAwaitReadErrorsUseAnAttempt(t *testing.T) {
	reader := &scriptedReader{
		statuses: []model.TransactionStatus{model.TransactionPending, model.TransactionSuccess},
		errs:     map[int]error{1: errors.New("timeout")},
	}

	res, err := newTestPoller(reader, clock.NewFake(epoch)).Await(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
}

func TestAwaitNotFoundStopsImmediately(t *testing.T) {
	reader := &scriptedReader{statuses: []model.TransactionStatus{model.TransactionPending}, errs: map[int]error{1: ErrNotFound}}
	clk := clock.NewFake(epoch)

	_, err := newTestPoller(reader, clk).Await(context.Background(), "tx-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, clk.Sleeps())
}

func TestAwaitHonoursCancellation(t *testing.T) {
	reader := &scriptedReader{statuses: []model.TransactionStatus{model.TransactionPending}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(reader, clock.NewFake(epoch)).Await(ctx, "tx-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, reader.reads)
}

func TestAwaitWithRealClockShortInterval(t *testing.T) {
	reader := &scriptedReader{statuses: []model.TransactionStatus{model.TransactionPending, model.TransactionSuccess}}
	p := NewPoller(reader, clock.Real{}, PollerConfig{Attempts: 3, Interval: time.Millisecond}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := p.Await(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2*time.Millisecond, p.Budget())
}
