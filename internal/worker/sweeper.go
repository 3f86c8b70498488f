package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

const sweepLockKey = "idempotency-sweep"

// StaleSweeper releases idempotency records whose attempt was abandoned
type StaleSweeper interface {
	SweepStaleIdempotency(ctx context.Context, cutoff time.Time) (int64, error)
}

// Locker keeps concurrent instances from sweeping at the same time
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// IdempotencySweeper periodically fails processing records older than the
// staleness window so their keys can be retried
type IdempotencySweeper struct {
	store      StaleSweeper
	lock       Locker
	staleAfter time.Duration
	schedule   string
	cron       *cron.Cron
	now        func() time.Time
	logger     *zap.Logger
}

// NewIdempotencySweeper creates a sweeper. lock may be nil on a single
// instance deployment.
func NewIdempotencySweeper(store StaleSweeper, lock Locker, staleAfter time.Duration, schedule string) *IdempotencySweeper {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &IdempotencySweeper{
		store:      store,
		lock:       lock,
		staleAfter: staleAfter,
		schedule:   schedule,
		cron:       cron.New(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     util.GetLogger(),
	}
}

// Start schedules the sweep
func (s *IdempotencySweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("Idempotency sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Idempotency sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops scheduling and waits for a running sweep
func (s *IdempotencySweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Idempotency sweeper stopped")
}

// Sweep runs one pass and returns the number of released records. A pass
// another instance holds the lock for is skipped.
func (s *IdempotencySweeper) Sweep(ctx context.Context) (int64, error) {
	if s.lock != nil {
		ok, err := s.lock.AcquireLock(ctx, sweepLockKey, s.staleAfter)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !ok {
			s.logger.Debug("Sweep lock held elsewhere, skipping")
			return 0, nil
		}
		defer func() {
			if err := s.lock.ReleaseLock(context.WithoutCancel(ctx), sweepLockKey); err != nil {
				s.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	n, err := s.store.SweepStaleIdempotency(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep idempotency records: %w", err)
	}
	if n > 0 {
		util.IdempotencySweptTotal.Add(float64(n))
		s.logger.Info("Released abandoned idempotency keys", zap.Int64("count", n))
	}
	return n, nil
}
