package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/boutiqueops/checkout/internal/telemetry"
)

// DefaultInterval is how often the sweep runs when not configured.
const DefaultInterval = 5 * time.Minute

// ExpiredLister finds reserved orders whose reservation deadline has passed.
type ExpiredLister interface {
	ListExpiredReserved(ctx context.Context) ([]string, error)
}

// Expirer applies the reserved -> expired transition for one order in its
// own transaction.
type Expirer interface {
	Expire(ctx context.Context, orderID string) error
}

// Sweeper periodically releases stale reservations. One failing order never
// blocks the rest of the sweep; failures are logged and retried on the next
// cycle.
type Sweeper struct {
	lister   ExpiredLister
	expirer  Expirer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	interval time.Duration
}

func New(lister ExpiredLister, expirer Expirer, metrics *telemetry.Metrics, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		lister:   lister,
		expirer:  expirer,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps on a fixed ticker until ctx is cancelled. An initial sweep runs
// immediately so a restart does not leave stale orders pending for a full
// interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep cycle. Zero expired orders is the common
// case and stays quiet.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ids, err := s.lister.ListExpiredReserved(ctx)
	if err != nil {
		s.logger.Error("failed to list expired orders", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Info("sweeping expired orders", "count", len(ids))

	expired := 0
	for _, id := range ids {
		if err := s.expirer.Expire(ctx, id); err != nil {
			s.logger.Error("failed to expire order", "error", err, "order_id", id)
			if s.metrics != nil {
				s.metrics.SweepFailures.Add(ctx, 1)
			}
			continue
		}
		expired++
	}

	s.logger.Info("sweep complete", "expired", expired, "failed", len(ids)-expired)
}
