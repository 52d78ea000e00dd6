package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/swiftride/ledger/internal/hold"
	"github.com/swiftride/ledger/internal/ledger"
	"github.com/swiftride/ledger/internal/notification"
)

const (
	leaseKey         = "ledger:sweeper:lease"
	defaultInterval  = time.Minute
	defaultBatchSize = 100
)

// Options wires the sweeper's dependencies.
type Options struct {
	Store    ledger.Store
	Holds    *hold.Service
	Notifier notification.Notifier
	Logger   *slog.Logger

	// Cache, when set, is used to take a per-cycle leader lease so only one
	// sweeper replica sweeps at a time. Nil runs the sweeper standalone.
	Cache *redis.Client

	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// Sweeper periodically releases holds whose expiry has passed. Cleanup is
// best-effort: a hold that fails to release is logged and retried on the next
// cycle.
type Sweeper struct {
	store      ledger.Store
	holds      *hold.Service
	cache      *redis.Client
	notifier   notification.Notifier
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	now        func() time.Time
	instanceID string
}

// New constructs a sweeper, applying defaults for interval, batch size and clock.
func New(opts Options) *Sweeper {
	s := &Sweeper{
		store:      opts.Store,
		holds:      opts.Holds,
		cache:      opts.Cache,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		interval:   opts.Interval,
		batchSize:  opts.BatchSize,
		now:        opts.Now,
		instanceID: uuid.NewString(),
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep cycle failed", "error", err)
			}
		}
	}
}

// SweepOnce runs a single sweep cycle and returns the number of holds
// released. When another replica holds the leader lease the cycle is skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if ok, err := s.acquireLease(ctx); err != nil {
		return 0, err
	} else if !ok {
		s.logger.Debug("sweep skipped, lease held elsewhere")
		return 0, nil
	}

	expired, err := s.store.ExpiredHolds(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, h := range expired {
		if _, err := s.holds.Release(ctx, h.ID); err != nil {
			// Leave the hold for the next cycle; one failure must not block
			// the rest of the batch.
			s.logger.Error("release expired hold failed", "hold_id", h.ID, "account_id", h.AccountID, "error", err)
			continue
		}
		released++
		s.logger.Info("released expired hold", "hold_id", h.ID, "account_id", h.AccountID, "amount", h.Amount, "currency", h.Currency)
		if s.notifier != nil {
			_ = s.notifier.Send(ctx, notification.Event{
				Kind:      notification.KindHoldExpired,
				AccountID: h.AccountID,
				Detail:    h.Reason,
			})
		}
	}
	return released, nil
}

func (s *Sweeper) acquireLease(ctx context.Context) (bool, error) {
	if s.cache == nil {
		return true, nil
	}
	return s.cache.SetNX(ctx, leaseKey, s.instanceID, s.interval).Result()
}
