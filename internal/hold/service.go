package hold

import (
	"context"
	"fmt"
	"time"

	"github.com/swiftride/ledger/internal/ledger"
)

// TypeCapture is the transaction type used when a capture does not specify one.
const TypeCapture = "capture"

// Service manages balance holds: temporary reservations of available funds
// for two-phase settlement. Captures are real ledgered movements executed
// with the same atomic mechanics as transfers.
type Service struct {
	store ledger.Store
	now   func() time.Time
}

// NewService constructs a hold manager.
func NewService(store ledger.Store) *Service {
	return NewServiceWithClock(store, time.Now)
}

// NewServiceWithClock constructs a hold manager with an injected clock for
// deterministic expiry tests.
func NewServiceWithClock(store ledger.Store, now func() time.Time) *Service {
	return &Service{store: store, now: now}
}

// HoldInput captures the data required to reserve funds.
type HoldInput struct {
	AccountID string
	Amount    int64
	Currency  string
	Reason    string
	Reference string
	TTL       time.Duration
	Metadata  map[string]string
}

// CaptureResult describes the ledger outcome of a capture.
type CaptureResult struct {
	TransactionID string
	FromBalance   int64
	ToBalance     int64
	Hold          ledger.BalanceHold
}

// Hold reserves funds on an account: the amount moves from available to held
// balance without changing the total balance. The hold expires after TTL and
// is then released by the sweeper.
func (s *Service) Hold(ctx context.Context, input HoldInput) (ledger.BalanceHold, error) {
	if input.Amount <= 0 {
		return ledger.BalanceHold{}, ledger.ErrInvalidAmount
	}
	if input.TTL <= 0 {
		return ledger.BalanceHold{}, fmt.Errorf("hold ttl must be positive")
	}
	return s.store.CreateHold(ctx, ledger.CreateHoldInput{
		AccountID: input.AccountID,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Reason:    input.Reason,
		Reference: input.Reference,
		ExpiresAt: s.now().Add(input.TTL),
		Metadata:  input.Metadata,
	})
}

// Release returns a hold's amount to available balance. Safe to call from
// caller code and from the expiry sweeper; a terminal hold is rejected with
// ErrHoldAlreadyReleased, never silently re-released.
func (s *Service) Release(ctx context.Context, holdID string) (ledger.BalanceHold, error) {
	return s.store.ReleaseHold(ctx, holdID)
}

// Capture converts a hold into an actual movement of value: the held amount
// is debited from the holding account's balance and credited to the
// destination, and the hold is marked released, all in one atomic unit of
// work. This is the only path by which a reservation becomes recognized value.
func (s *Service) Capture(ctx context.Context, holdID, destinationAccountID, txType, description string) (CaptureResult, error) {
	h, err := s.store.HoldByID(ctx, holdID)
	if err != nil {
		return CaptureResult{}, err
	}
	if h.Released {
		return CaptureResult{}, ledger.ErrHoldAlreadyReleased
	}
	if h.AccountID == destinationAccountID {
		return CaptureResult{}, ledger.ErrSameAccount
	}
	dest, err := s.store.AccountByID(ctx, destinationAccountID)
	if err != nil {
		return CaptureResult{}, err
	}
	if dest.Currency != h.Currency {
		return CaptureResult{}, ledger.ErrCurrencyMismatch
	}
	if txType == "" {
		txType = TypeCapture
	}

	res, err := s.store.Post(ctx, ledger.Posting{
		Type: txType,
		// One key per hold: a replayed capture collides instead of moving
		// value twice.
		IdempotencyKey: "capture:" + h.ID,
		FromAccountID:  h.AccountID,
		ToAccountID:    dest.ID,
		Amount:         h.Amount,
		Currency:       h.Currency,
		Description:    description,
		Metadata:       map[string]string{"hold_id": h.ID, "hold_reason": h.Reason},
		CaptureHoldID:  h.ID,
	})
	if err != nil {
		return CaptureResult{}, err
	}

	released, err := s.store.HoldByID(ctx, h.ID)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{
		TransactionID: res.Transaction.ID,
		FromBalance:   res.From.Balance,
		ToBalance:     res.To.Balance,
		Hold:          released,
	}, nil
}
