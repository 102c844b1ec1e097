package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/glamhq/glam/libs/clock"
	"github.com/glamhq/glam/services/payment-service/internal/model"
)

const (
	DefaultPollAttempts = 20
	DefaultPollInterval = 3 * time.Second
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
)

type AwaitResult struct {
	Outcome     Outcome           `json:"outcome"`
	Message     string            `json:"message,omitempty"`
	Attempts    int               `json:"attempts"`
	Transaction model.Transaction `json:"transaction"`
}

// TransactionReader is what the poller reads on every attempt.
type TransactionReader interface {
	Get(ctx context.Context, id string) (model.Transaction, error)
}

// Poller waits for a transaction to reach a terminal status with a fixed
// attempt budget and fixed spacing.
type Poller struct {
	reader   TransactionReader
	clock    clock.Clock
	attempts int
	interval time.Duration
	metrics  *Metrics
	logger   *slog.Logger
}

type PollerConfig struct {
	Attempts int
	Interval time.Duration
}

func NewPoller(reader TransactionReader, clk clock.Clock, cfg PollerConfig, metrics *Metrics, logger *slog.Logger) *Poller {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultPollAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Poller{reader: reader, clock: clk, attempts: cfg.Attempts, interval: cfg.Interval, metrics: metrics, logger: logger}
}

// Budget is the longest Await can wait between the first and last read.
func (p *Poller) Budget() time.Duration {
	return time.Duration(p.attempts-1) * p.interval
}

// Await reads the transaction until it succeeds or fails, or the attempts run out.
// A missing transaction ends the wait with ErrNotFound; other read errors use up an attempt.
func (p *Poller) Await(ctx context.Context, transactionID string) (AwaitResult, error) {
	var last model.Transaction
	for attempt := 1; attempt <= p.attempts; attempt++ {
		tx, err := p.reader.Get(ctx, transactionID)
		switch {
		case errors.Is(err, ErrNotFound):
			return AwaitResult{}, err
		case err != nil:
			if ctx.Err() != nil {
				return AwaitResult{}, ctx.Err()
			}
			p.logger.Warn("payment poll read failed", "err", err, "transaction_id", transactionID, "attempt", attempt)
		default:
			last = tx
			switch tx.Status {
			case model.TransactionSuccess:
				return p.done(AwaitResult{Outcome: OutcomeSuccess, Attempts: attempt, Transaction: tx}), nil
			case model.TransactionFailed:
				return p.done(AwaitResult{Outcome: OutcomeFailed, Message: tx.Message, Attempts: attempt, Transaction: tx}), nil
			}
		}
		if attempt == p.attempts {
			break
		}
		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return AwaitResult{}, err
		}
	}
	return p.done(AwaitResult{Outcome: OutcomeTimeout, Attempts: p.attempts, Transaction: last}), nil
}

func (p *Poller) done(r AwaitResult) AwaitResult {
	p.metrics.Awaits.WithLabelValues(string(r.Outcome)).Inc()
	return r
}
