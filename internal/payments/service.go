package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swiftride/ledger/internal/ledger"
)

const (
	// TypeTopUp marks a float-to-wallet funding transaction.
	TypeTopUp = "topup"
	// TypeWithdrawal marks a wallet-to-float withdrawal transaction.
	TypeWithdrawal = "withdrawal"
	// TypeTransfer marks a direct account-to-account movement.
	TypeTransfer = "transfer"

	defaultHistoryLimit = 50
)

// Service is the ledger engine: it executes top-ups, withdrawals and
// transfers as atomic, balanced postings against the store.
type Service struct {
	store ledger.Store
}

// NewService constructs a ledger engine.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// TopUpInput captures the data required to fund a wallet from the platform
// float after an external payment event.
type TopUpInput struct {
	Owner       string
	Category    ledger.AccountCategory
	Amount      int64
	Currency    string
	ExternalRef string
	Description string
}

// WithdrawInput captures the data required to move wallet funds back to the
// platform float for an external payout.
type WithdrawInput struct {
	Owner       string
	Category    ledger.AccountCategory
	Amount      int64
	Currency    string
	ExternalRef string
	Description string
}

// TransferInput captures a direct account-to-account movement.
type TransferInput struct {
	FromAccountID  string
	ToAccountID    string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Description    string
}

// Result describes the ledger outcome of a mutating operation.
type Result struct {
	TransactionID string
	FromBalance   int64
	ToBalance     int64
	CompletedAt   time.Time
}

// TopUp moves funds from the currency's float account into the owner's
// wallet. The idempotency key is derived from the external payment reference,
// so replaying the same payment event fails with ErrDuplicateIdempotencyKey
// instead of double-crediting.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, ledger.ErrInvalidAmount
	}
	if input.ExternalRef == "" {
		return Result{}, fmt.Errorf("external reference is required")
	}

	float, err := s.store.FindAccount(ctx, "", ledger.CategoryPlatformFloat, input.Currency)
	if err != nil {
		return Result{}, err
	}
	wallet, err := s.store.GetOrCreateAccount(ctx, input.Owner, input.Category, input.Currency)
	if err != nil {
		return Result{}, err
	}

	res, err := s.store.Post(ctx, ledger.Posting{
		Type:           TypeTopUp,
		IdempotencyKey: TypeTopUp + ":" + input.ExternalRef,
		FromAccountID:  float.ID,
		ToAccountID:    wallet.ID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Description:    input.Description,
		Metadata:       map[string]string{"external_ref": input.ExternalRef},
	})
	if err != nil {
		return Result{}, err
	}
	return resultFrom(res), nil
}

// Withdraw is the inverse of TopUp: wallet funds return to the float for an
// external payout. The wallet must exist and hold sufficient available funds.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, ledger.ErrInvalidAmount
	}
	ref := input.ExternalRef
	if ref == "" {
		ref = uuid.NewString()
	}

	wallet, err := s.store.FindAccount(ctx, input.Owner, input.Category, input.Currency)
	if err != nil {
		return Result{}, err
	}
	float, err := s.store.FindAccount(ctx, "", ledger.CategoryPlatformFloat, input.Currency)
	if err != nil {
		return Result{}, err
	}

	res, err := s.store.Post(ctx, ledger.Posting{
		Type:           TypeWithdrawal,
		IdempotencyKey: TypeWithdrawal + ":" + ref,
		FromAccountID:  wallet.ID,
		ToAccountID:    float.ID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Description:    input.Description,
		Metadata:       map[string]string{"external_ref": ref},
	})
	if err != nil {
		return Result{}, err
	}
	return resultFrom(res), nil
}

// Transfer posts a balanced movement between two existing accounts.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, ledger.ErrInvalidAmount
	}
	if input.FromAccountID == input.ToAccountID {
		return Result{}, ledger.ErrSameAccount
	}

	from, err := s.store.AccountByID(ctx, input.FromAccountID)
	if err != nil {
		return Result{}, err
	}
	to, err := s.store.AccountByID(ctx, input.ToAccountID)
	if err != nil {
		return Result{}, err
	}
	if from.Currency != input.Currency || to.Currency != input.Currency {
		return Result{}, ledger.ErrCurrencyMismatch
	}

	key := input.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	res, err := s.store.Post(ctx, ledger.Posting{
		Type:           TypeTransfer,
		IdempotencyKey: key,
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Description:    input.Description,
	})
	if err != nil {
		return Result{}, err
	}
	return resultFrom(res), nil
}

// History returns an account's transaction history, newest first. Consumed by
// reconciliation jobs and support tooling; read-only.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]ledger.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if _, err := s.store.AccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.TransactionHistory(ctx, accountID, limit)
}

func resultFrom(res ledger.PostResult) Result {
	return Result{
		TransactionID: res.Transaction.ID,
		FromBalance:   res.From.Balance,
		ToBalance:     res.To.Balance,
		CompletedAt:   res.Transaction.CompletedAt,
	}
}
