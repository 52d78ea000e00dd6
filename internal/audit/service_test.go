package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/swiftride/ledger/internal/ledger"
	"github.com/swiftride/ledger/internal/notification"
)

type captureNotifier struct {
	events []notification.Event
}

func (n *captureNotifier) Send(_ context.Context, event notification.Event) error {
	n.events = append(n.events, event)
	return nil
}

func TestVerifyBalanceBalancedAccount(t *testing.T) {
	store := ledger.NewInMemory()
	ctx := context.Background()

	a, _ := store.GetOrCreateAccount(ctx, "rider-1", ledger.CategoryUserWallet, "NGN")
	b, _ := store.GetOrCreateAccount(ctx, "driver-1", ledger.CategoryDriverWallet, "NGN")
	ledger.SeedBalance(store, a.ID, 10_000)

	if _, err := store.Post(ctx, ledger.Posting{Type: "transfer", IdempotencyKey: "t1", FromAccountID: a.ID, ToAccountID: b.ID, Amount: 400, Currency: "NGN"}); err != nil {
		t.Fatalf("post: %v", err)
	}

	svc := NewService(store, nil)
	report, err := svc.VerifyBalance(ctx, b.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.IsBalanced {
		t.Fatalf("expected balanced account, got %+v", report)
	}
	if report.TotalCredits != 400 || report.TotalDebits != 0 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.CalculatedBalance != 400 || report.StoredBalance != 400 {
		t.Fatalf("unexpected balances: %+v", report)
	}
}

func TestVerifyBalanceDetectsDrift(t *testing.T) {
	store := ledger.NewInMemory()
	ctx := context.Background()

	a, _ := store.GetOrCreateAccount(ctx, "rider-1", ledger.CategoryUserWallet, "NGN")
	b, _ := store.GetOrCreateAccount(ctx, "driver-1", ledger.CategoryDriverWallet, "NGN")

	// Seeding writes a stored balance with no backing entries, which is
	// exactly the drift the verifier exists to find.
	ledger.SeedBalance(store, a.ID, 10_000)
	if _, err := store.Post(ctx, ledger.Posting{Type: "transfer", IdempotencyKey: "t1", FromAccountID: a.ID, ToAccountID: b.ID, Amount: 400, Currency: "NGN"}); err != nil {
		t.Fatalf("post: %v", err)
	}

	notifier := &captureNotifier{}
	svc := NewService(store, notifier)
	report, err := svc.VerifyBalance(ctx, a.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.IsBalanced {
		t.Fatalf("expected drift, got %+v", report)
	}
	if report.CalculatedBalance != -400 || report.StoredBalance != 9_600 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if len(notifier.events) != 1 || notifier.events[0].Kind != notification.KindBalanceDrift {
		t.Fatalf("expected one drift event, got %+v", notifier.events)
	}

	// Verification is read-only: the stored balance is untouched.
	acct, _ := store.AccountByID(ctx, a.ID)
	if acct.Balance != 9_600 {
		t.Fatalf("verifier mutated stored balance: %d", acct.Balance)
	}
}

func TestVerifyBalanceUnknownAccount(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), nil)
	if _, err := svc.VerifyBalance(context.Background(), "missing"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}
