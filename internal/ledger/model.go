package ledger

import "time"

// AccountCategory classifies who an account belongs to and what role it plays.
type AccountCategory string

const (
	// CategoryUserWallet is a rider's stored-value wallet.
	CategoryUserWallet AccountCategory = "user_wallet"
	// CategoryDriverWallet is a driver's earnings wallet.
	CategoryDriverWallet AccountCategory = "driver_wallet"
	// CategoryPlatformFloat is the system-owned float holding platform funds
	// for a currency. Float accounts have no owner.
	CategoryPlatformFloat AccountCategory = "platform_float"
)

// EntryType marks which side of a transaction a ledger entry records.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Account is a stored-value account. Balance is always the signed sum of
// every entry posted to the account and always equals
// AvailableBalance + HeldBalance.
type Account struct {
	ID               string
	OwnerID          string
	Category         AccountCategory
	Currency         string
	Balance          int64
	AvailableBalance int64
	HeldBalance      int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transaction is one completed movement of value. It only ever exists fully
// balanced: exactly one DEBIT and one CREDIT entry reference it.
type Transaction struct {
	ID             string
	IdempotencyKey string
	Type           string
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	CompletedAt    time.Time
}

// LedgerEntry records one side of a transaction. Entries are append-only;
// BalanceAfter is the owning account's balance immediately after the entry.
type LedgerEntry struct {
	ID            string
	TransactionID string
	AccountID     string
	Type          EntryType
	Amount        int64
	BalanceAfter  int64
	Description   string
	CreatedAt     time.Time
}

// BalanceHold reserves part of an account's available balance without moving
// value. A hold is created active and transitions exactly once to released,
// via explicit release, capture, or sweeper-driven expiry.
type BalanceHold struct {
	ID         string
	AccountID  string
	Amount     int64
	Currency   string
	Reason     string
	Reference  string
	ExpiresAt  time.Time
	Released   bool
	ReleasedAt time.Time
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Expired reports whether the hold has passed its expiry without being released.
func (h BalanceHold) Expired(now time.Time) bool {
	return !h.Released && now.After(h.ExpiresAt)
}

// BalanceSnapshot is the read-only balance view returned to callers.
type BalanceSnapshot struct {
	Balance          int64
	AvailableBalance int64
	HeldBalance      int64
}

// HistoryEntry is one row of an account's transaction history: a ledger entry
// joined with its owning transaction.
type HistoryEntry struct {
	TransactionID   string
	IdempotencyKey  string
	TransactionType string
	EntryType       EntryType
	Amount          int64
	Currency        string
	BalanceAfter    int64
	Description     string
	CreatedAt       time.Time
}
