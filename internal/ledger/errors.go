package ledger

import "errors"

var (
	// ErrAccountNotFound indicates a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCurrencyMismatch occurs when an operation's currency disagrees with
	// the currency of an account it touches.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInsufficientBalance occurs when the source account lacks available
	// balance to cover a requested posting.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAvailableBalance occurs when an account lacks available
	// balance to cover a requested hold.
	ErrInsufficientAvailableBalance = errors.New("insufficient available balance")

	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSameAccount indicates a transfer naming the same account on both sides.
	ErrSameAccount = errors.New("source and destination accounts are the same")

	// ErrDuplicateIdempotencyKey indicates the provided idempotency key has
	// already been used; the operation was not re-applied.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrHoldNotFound indicates a referenced hold does not exist.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrHoldAlreadyReleased indicates a release or capture was attempted on a
	// hold that already reached its terminal state.
	ErrHoldAlreadyReleased = errors.New("hold already released")
)
