package ledger

import (
	"context"
	"time"
)

// Posting describes one balanced double-entry movement: a DEBIT against the
// source account and a matching CREDIT against the destination account.
type Posting struct {
	Type           string
	IdempotencyKey string
	FromAccountID  string
	ToAccountID    string
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string

	// CaptureHoldID, when set, turns the posting into a hold capture: the
	// debit consumes the source account's held balance instead of its
	// available balance, and the hold is marked released in the same atomic
	// unit of work.
	CaptureHoldID string
}

// PostResult captures the outcome of a posting, including both accounts as
// updated by it.
type PostResult struct {
	Transaction Transaction
	From        Account
	To          Account
}

// CreateHoldInput carries the data needed to reserve funds on an account.
type CreateHoldInput struct {
	AccountID string
	Amount    int64
	Currency  string
	Reason    string
	Reference string
	ExpiresAt time.Time
	Metadata  map[string]string
}

// Store is the contract implemented by ledger backends (e.g. Postgres).
// Every mutating method executes as one atomic unit of work: it either
// commits fully or leaves no trace.
type Store interface {
	// GetOrCreateAccount returns the account identified by
	// (owner, category, currency), creating it with zero balances when absent.
	GetOrCreateAccount(ctx context.Context, owner string, category AccountCategory, currency string) (Account, error)

	// FindAccount returns the account identified by (owner, category, currency)
	// or ErrAccountNotFound. It never creates.
	FindAccount(ctx context.Context, owner string, category AccountCategory, currency string) (Account, error)

	// AccountByID returns an account by identity or ErrAccountNotFound.
	AccountByID(ctx context.Context, id string) (Account, error)

	// Post applies a balanced double-entry posting. It rejects reused
	// idempotency keys with ErrDuplicateIdempotencyKey and insufficient
	// source liquidity with ErrInsufficientBalance.
	Post(ctx context.Context, posting Posting) (PostResult, error)

	// CreateHold moves input.Amount from the account's available balance to
	// its held balance and records the hold. The account's total balance is
	// unchanged.
	CreateHold(ctx context.Context, input CreateHoldInput) (BalanceHold, error)

	// HoldByID returns a hold by identity or ErrHoldNotFound.
	HoldByID(ctx context.Context, id string) (BalanceHold, error)

	// ReleaseHold moves the held amount back to available balance and marks
	// the hold released. Re-entering a terminal hold fails with
	// ErrHoldAlreadyReleased.
	ReleaseHold(ctx context.Context, id string) (BalanceHold, error)

	// ExpiredHolds lists unreleased holds whose expiry has passed, oldest
	// first, up to limit.
	ExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]BalanceHold, error)

	// EntriesForAccount returns every ledger entry posted to the account in
	// creation order.
	EntriesForAccount(ctx context.Context, accountID string) ([]LedgerEntry, error)

	// TransactionHistory returns the account's entries joined with their
	// transactions, newest first, up to limit.
	TransactionHistory(ctx context.Context, accountID string, limit int) ([]HistoryEntry, error)
}
