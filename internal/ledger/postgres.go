package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, owner_id, category, currency, balance, available_balance, held_balance, created_at, updated_at`

const holdColumns = `id, account_id, amount, currency, reason, reference, expires_at, is_released, released_at, COALESCE(metadata, '{}'::jsonb), created_at`

// PostgresStore persists the ledger in PostgreSQL. All multi-row mutations run
// inside a single database transaction with the touched account rows locked
// FOR UPDATE, so concurrent operations on the same account serialize at the
// store.
type PostgresStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// GetOrCreateAccount returns the account for (owner, category, currency),
// creating it with zero balances when it does not exist yet.
func (s *PostgresStore) GetOrCreateAccount(ctx context.Context, owner string, category AccountCategory, currency string) (Account, error) {
	now := s.now().UTC()
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, owner_id, category, currency, balance, available_balance, held_balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, 0, 0, 0, $5, $5)
        ON CONFLICT (owner_id, category, currency) DO NOTHING`,
		uuid.New(), owner, category, currency, now)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return s.FindAccount(ctx, owner, category, currency)
}

// FindAccount fetches the account for (owner, category, currency) without
// creating it.
func (s *PostgresStore) FindAccount(ctx context.Context, owner string, category AccountCategory, currency string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE owner_id = $1 AND category = $2 AND currency = $3`, owner, category, currency)
	return scanAccount(row)
}

// AccountByID fetches an account by identity.
func (s *PostgresStore) AccountByID(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Post records a balanced double-entry posting: one transaction row, a DEBIT
// entry against the source and a CREDIT entry against the destination, plus
// the matching balance updates, all in one database transaction.
func (s *PostgresStore) Post(ctx context.Context, posting Posting) (PostResult, error) {
	if posting.Amount <= 0 {
		return PostResult{}, ErrInvalidAmount
	}
	if posting.IdempotencyKey == "" {
		return PostResult{}, fmt.Errorf("idempotency key is required")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PostResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Lock account rows in ascending ID order to avoid lock-order deadlocks
	// between concurrent postings touching the same pair.
	first, second := posting.FromAccountID, posting.ToAccountID
	if first > second {
		first, second = second, first
	}
	firstAcct, err := lockAccount(ctx, tx, first)
	if err != nil {
		return PostResult{}, err
	}
	secondAcct, err := lockAccount(ctx, tx, second)
	if err != nil {
		return PostResult{}, err
	}
	from, to := firstAcct, secondAcct
	if from.ID != posting.FromAccountID {
		from, to = secondAcct, firstAcct
	}

	var usedKey bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE idempotency_key = $1)`, posting.IdempotencyKey).Scan(&usedKey); err != nil {
		return PostResult{}, err
	}
	if usedKey {
		return PostResult{}, ErrDuplicateIdempotencyKey
	}

	var hold BalanceHold
	if posting.CaptureHoldID != "" {
		hold, err = lockHold(ctx, tx, posting.CaptureHoldID)
		if err != nil {
			return PostResult{}, err
		}
		if hold.Released {
			return PostResult{}, ErrHoldAlreadyReleased
		}
		if hold.AccountID != from.ID {
			return PostResult{}, fmt.Errorf("hold %s does not belong to account %s", hold.ID, from.ID)
		}
		if from.HeldBalance < posting.Amount {
			return PostResult{}, ErrInsufficientBalance
		}
		from.HeldBalance -= posting.Amount
	} else {
		if from.AvailableBalance < posting.Amount {
			return PostResult{}, ErrInsufficientBalance
		}
		from.AvailableBalance -= posting.Amount
	}
	from.Balance -= posting.Amount
	to.Balance += posting.Amount
	to.AvailableBalance += posting.Amount

	now := s.now().UTC()
	metadata := posting.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	txn := Transaction{
		ID:             uuid.NewString(),
		IdempotencyKey: posting.IdempotencyKey,
		Type:           posting.Type,
		Amount:         posting.Amount,
		Currency:       posting.Currency,
		Description:    posting.Description,
		Metadata:       metadata,
		CompletedAt:    now,
	}
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, idempotency_key, type, amount, currency, description, metadata, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txn.ID, txn.IdempotencyKey, txn.Type, txn.Amount, txn.Currency, txn.Description, txn.Metadata, txn.CompletedAt); err != nil {
		if isUniqueViolation(err) {
			return PostResult{}, ErrDuplicateIdempotencyKey
		}
		return PostResult{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := insertEntry(ctx, tx, txn.ID, from.ID, EntryDebit, posting.Amount, from.Balance, posting.Description, now); err != nil {
		return PostResult{}, err
	}
	if err := updateBalances(ctx, tx, from, now); err != nil {
		return PostResult{}, err
	}
	if err := insertEntry(ctx, tx, txn.ID, to.ID, EntryCredit, posting.Amount, to.Balance, posting.Description, now); err != nil {
		return PostResult{}, err
	}
	if err := updateBalances(ctx, tx, to, now); err != nil {
		return PostResult{}, err
	}

	if posting.CaptureHoldID != "" {
		if err := markHoldReleased(ctx, tx, hold.ID, now); err != nil {
			return PostResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PostResult{}, err
	}

	from.UpdatedAt = now
	to.UpdatedAt = now
	return PostResult{Transaction: txn, From: from, To: to}, nil
}

// CreateHold reserves funds on an account by moving the amount from available
// to held balance and recording the hold row.
func (s *PostgresStore) CreateHold(ctx context.Context, input CreateHoldInput) (BalanceHold, error) {
	if input.Amount <= 0 {
		return BalanceHold{}, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return BalanceHold{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	acct, err := lockAccount(ctx, tx, input.AccountID)
	if err != nil {
		return BalanceHold{}, err
	}
	if acct.Currency != input.Currency {
		return BalanceHold{}, ErrCurrencyMismatch
	}
	if acct.AvailableBalance < input.Amount {
		return BalanceHold{}, ErrInsufficientAvailableBalance
	}
	acct.AvailableBalance -= input.Amount
	acct.HeldBalance += input.Amount

	now := s.now().UTC()
	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	hold := BalanceHold{
		ID:        uuid.NewString(),
		AccountID: acct.ID,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Reason:    input.Reason,
		Reference: input.Reference,
		ExpiresAt: input.ExpiresAt.UTC(),
		Metadata:  metadata,
		CreatedAt: now,
	}
	if _, err := tx.Exec(ctx, `INSERT INTO balance_holds (id, account_id, amount, currency, reason, reference, expires_at, is_released, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)`,
		hold.ID, hold.AccountID, hold.Amount, hold.Currency, hold.Reason, hold.Reference, hold.ExpiresAt, hold.Metadata, hold.CreatedAt); err != nil {
		return BalanceHold{}, fmt.Errorf("insert hold: %w", err)
	}
	if err := updateBalances(ctx, tx, acct, now); err != nil {
		return BalanceHold{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BalanceHold{}, err
	}
	return hold, nil
}

// HoldByID fetches a hold by identity.
func (s *PostgresStore) HoldByID(ctx context.Context, id string) (BalanceHold, error) {
	row := s.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM balance_holds WHERE id = $1`, id)
	return scanHold(row)
}

// ReleaseHold returns a hold's amount from held to available balance and
// marks the hold released.
func (s *PostgresStore) ReleaseHold(ctx context.Context, id string) (BalanceHold, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return BalanceHold{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Lock the account before the hold, matching the capture path's lock
	// order. The unlocked read only resolves the account; the released check
	// happens under the row lock below.
	hold, err := s.HoldByID(ctx, id)
	if err != nil {
		return BalanceHold{}, err
	}
	acct, err := lockAccount(ctx, tx, hold.AccountID)
	if err != nil {
		return BalanceHold{}, err
	}
	hold, err = lockHold(ctx, tx, id)
	if err != nil {
		return BalanceHold{}, err
	}
	if hold.Released {
		return BalanceHold{}, ErrHoldAlreadyReleased
	}
	acct.HeldBalance -= hold.Amount
	acct.AvailableBalance += hold.Amount

	now := s.now().UTC()
	if err := markHoldReleased(ctx, tx, hold.ID, now); err != nil {
		return BalanceHold{}, err
	}
	if err := updateBalances(ctx, tx, acct, now); err != nil {
		return BalanceHold{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BalanceHold{}, err
	}

	hold.Released = true
	hold.ReleasedAt = now
	return hold, nil
}

// ExpiredHolds lists unreleased holds that expired at or before asOf, oldest
// expiry first.
func (s *PostgresStore) ExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]BalanceHold, error) {
	rows, err := s.db.Query(ctx, `SELECT `+holdColumns+` FROM balance_holds
        WHERE is_released = false AND expires_at <= $1
        ORDER BY expires_at ASC
        LIMIT $2`, asOf.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []BalanceHold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, hold)
	}
	return holds, rows.Err()
}

// EntriesForAccount returns the account's full entry history in creation order.
func (s *PostgresStore) EntriesForAccount(ctx context.Context, accountID string) ([]LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, transaction_id, account_id, entry_type, amount, balance_after, description, created_at
        FROM ledger_entries WHERE account_id = $1 ORDER BY created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Type, &e.Amount, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TransactionHistory returns the account's entries joined with their
// transactions, newest first.
func (s *PostgresStore) TransactionHistory(ctx context.Context, accountID string, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT t.id, t.idempotency_key, t.type, e.entry_type, e.amount, t.currency, e.balance_after, e.description, e.created_at
        FROM ledger_entries e
        INNER JOIN transactions t ON t.id = e.transaction_id
        WHERE e.account_id = $1
        ORDER BY e.created_at DESC, e.id DESC
        LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.TransactionID, &h.IdempotencyKey, &h.TransactionType, &h.EntryType, &h.Amount, &h.Currency, &h.BalanceAfter, &h.Description, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func lockAccount(ctx context.Context, tx pgx.Tx, id string) (Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func lockHold(ctx context.Context, tx pgx.Tx, id string) (BalanceHold, error) {
	row := tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM balance_holds WHERE id = $1 FOR UPDATE`, id)
	return scanHold(row)
}

func insertEntry(ctx context.Context, tx pgx.Tx, transactionID, accountID string, entryType EntryType, amount, balanceAfter int64, description string, at time.Time) error {
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, transaction_id, account_id, entry_type, amount, balance_after, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), transactionID, accountID, entryType, amount, balanceAfter, description, at); err != nil {
		return fmt.Errorf("insert %s entry: %w", entryType, err)
	}
	return nil
}

func updateBalances(ctx context.Context, tx pgx.Tx, acct Account, at time.Time) error {
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, available_balance = $2, held_balance = $3, updated_at = $4 WHERE id = $5`,
		acct.Balance, acct.AvailableBalance, acct.HeldBalance, at, acct.ID); err != nil {
		return fmt.Errorf("update account %s: %w", acct.ID, err)
	}
	return nil
}

func markHoldReleased(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	if _, err := tx.Exec(ctx, `UPDATE balance_holds SET is_released = true, released_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("release hold %s: %w", id, err)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Category, &a.Currency, &a.Balance, &a.AvailableBalance, &a.HeldBalance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanHold(row pgx.Row) (BalanceHold, error) {
	var h BalanceHold
	var releasedAt *time.Time
	if err := row.Scan(&h.ID, &h.AccountID, &h.Amount, &h.Currency, &h.Reason, &h.Reference, &h.ExpiresAt, &h.Released, &releasedAt, &h.Metadata, &h.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceHold{}, ErrHoldNotFound
		}
		return BalanceHold{}, err
	}
	if releasedAt != nil {
		h.ReleasedAt = *releasedAt
	}
	return h, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
