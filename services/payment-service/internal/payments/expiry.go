package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/glamhq/glam/libs/clock"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/services/payment-service/internal/model"
	"github.com/glamhq/glam/services/payment-service/internal/storage"
)

const expiredMessage = "expired"

type Expirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time, limit int, fn storage.Settlement) (int, error)
}

// Sweeper fails transactions whose customer never came back from the gateway.
type Sweeper struct {
	repo     Expirer
	clock    clock.Clock
	ttl      time.Duration
	interval time.Duration
	batch    int
	metrics  *Metrics
	logger   *slog.Logger
}

type SweeperConfig struct {
	TTL       time.Duration
	Interval  time.Duration
	BatchSize int
}

func NewSweeper(repo Expirer, clk clock.Clock, cfg SweeperConfig, metrics *Metrics, logger *slog.Logger) *Sweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Sweeper{repo: repo, clock: clk, ttl: cfg.TTL, interval: cfg.Interval, batch: cfg.BatchSize, metrics: metrics, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) {
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("payment expiry sweep failed", "err", err)
		}
		if s.clock.Sleep(ctx, s.interval) != nil {
			return
		}
	}
}

// SweepOnce expires one batch and returns how many transactions changed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.ttl)
	n, err := s.repo.ExpirePending(ctx, cutoff, s.batch, func(t *model.Transaction) (*outbox.Event, error) {
		if t.Status != model.TransactionPending {
			return nil, nil
		}
		t.Status = model.TransactionFailed
		t.Message = expiredMessage
		return completedEvent(*t)
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.Expired.Add(float64(n))
		s.logger.Info("expired pending payments", "count", n)
	}
	return n, nil
}
