package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/swiftride/ledger/internal/hold"
	"github.com/swiftride/ledger/internal/ledger"
	"github.com/swiftride/ledger/internal/logging"
	"github.com/swiftride/ledger/internal/notification"
)

type env struct {
	store ledger.Store
	holds *hold.Service
	acct  ledger.Account
	now   *time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	store := ledger.NewInMemoryWithClock(clock)
	acct, err := store.GetOrCreateAccount(context.Background(), "rider-1", ledger.CategoryUserWallet, "NGN")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	ledger.SeedBalance(store, acct.ID, 10_000)

	return &env{
		store: store,
		holds: hold.NewServiceWithClock(store, clock),
		acct:  acct,
		now:   &now,
	}
}

func (e *env) sweeper(store ledger.Store, cache *redis.Client) *Sweeper {
	return New(Options{
		Store:    store,
		Holds:    hold.NewServiceWithClock(store, func() time.Time { return *e.now }),
		Cache:    cache,
		Notifier: notification.NewLoggerNotifier(logging.Discard()),
		Logger:   logging.Discard(),
		Interval: time.Minute,
		Now:      func() time.Time { return *e.now },
	})
}

func TestSweepReleasesOnlyExpiredHolds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	stale, err := e.holds.Hold(ctx, hold.HoldInput{AccountID: e.acct.ID, Amount: 300, Currency: "NGN", Reason: "ride-match", TTL: 10 * time.Minute})
	if err != nil {
		t.Fatalf("stale hold: %v", err)
	}
	fresh, err := e.holds.Hold(ctx, hold.HoldInput{AccountID: e.acct.ID, Amount: 200, Currency: "NGN", Reason: "ride-match", TTL: 2 * time.Hour})
	if err != nil {
		t.Fatalf("fresh hold: %v", err)
	}

	*e.now = e.now.Add(time.Hour)
	sw := e.sweeper(e.store, nil)

	released, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released hold, got %d", released)
	}

	staleHold, _ := e.store.HoldByID(ctx, stale.ID)
	freshHold, _ := e.store.HoldByID(ctx, fresh.ID)
	if !staleHold.Released {
		t.Fatalf("stale hold not released")
	}
	if freshHold.Released {
		t.Fatalf("fresh hold released early")
	}

	acct, _ := e.store.AccountByID(ctx, e.acct.ID)
	if acct.AvailableBalance != 9_800 || acct.HeldBalance != 200 || acct.Balance != 10_000 {
		t.Fatalf("unexpected balances after sweep: %+v", acct)
	}

	// Nothing left to do on the next cycle.
	released, err = sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected idle sweep, released %d", released)
	}
}

type flakyStore struct {
	ledger.Store
	failID string
}

func (f *flakyStore) ReleaseHold(ctx context.Context, id string) (ledger.BalanceHold, error) {
	if id == f.failID {
		return ledger.BalanceHold{}, errors.New("storage unavailable")
	}
	return f.Store.ReleaseHold(ctx, id)
}

func TestSweepFailureDoesNotBlockBatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bad, err := e.holds.Hold(ctx, hold.HoldInput{AccountID: e.acct.ID, Amount: 100, Currency: "NGN", Reason: "r1", TTL: time.Minute})
	if err != nil {
		t.Fatalf("bad hold: %v", err)
	}
	good, err := e.holds.Hold(ctx, hold.HoldInput{AccountID: e.acct.ID, Amount: 100, Currency: "NGN", Reason: "r2", TTL: time.Minute})
	if err != nil {
		t.Fatalf("good hold: %v", err)
	}

	*e.now = e.now.Add(time.Hour)
	flaky := &flakyStore{Store: e.store, failID: bad.ID}
	sw := e.sweeper(flaky, nil)

	released, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released hold despite failure, got %d", released)
	}
	goodHold, _ := e.store.HoldByID(ctx, good.ID)
	if !goodHold.Released {
		t.Fatalf("good hold not released")
	}

	// The failed hold is retried on the next cycle once storage recovers.
	flaky.failID = ""
	released, err = sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected failed hold retried, got %d", released)
	}
	badHold, _ := e.store.HoldByID(ctx, bad.ID)
	if !badHold.Released {
		t.Fatalf("bad hold not released on retry")
	}
}

func TestSweepLeaseExcludesSecondInstance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	if _, err := e.holds.Hold(ctx, hold.HoldInput{AccountID: e.acct.ID, Amount: 100, Currency: "NGN", Reason: "r1", TTL: time.Minute}); err != nil {
		t.Fatalf("hold: %v", err)
	}
	*e.now = e.now.Add(time.Hour)

	first := e.sweeper(e.store, cache)
	second := e.sweeper(e.store, cache)

	released, err := first.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("first sweeper expected 1 release, got %d", released)
	}

	if _, err := e.holds.Hold(ctx, hold.HoldInput{AccountID: e.acct.ID, Amount: 100, Currency: "NGN", Reason: "r2", TTL: time.Minute}); err != nil {
		t.Fatalf("second hold: %v", err)
	}
	*e.now = e.now.Add(time.Hour)

	// The first instance still owns the lease, so the second skips its cycle.
	released, err = second.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if released != 0 {
		t.Fatalf("second sweeper swept under a held lease: %d", released)
	}

	mr.FastForward(2 * time.Minute)
	released, err = second.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("post-expiry sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected sweep after lease expiry, got %d", released)
	}
}
