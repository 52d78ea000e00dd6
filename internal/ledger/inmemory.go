package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type accountKey struct {
	owner    string
	category AccountCategory
	currency string
}

type inMemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	accounts map[string]*Account
	index    map[accountKey]string
	txns     map[string]Transaction
	usedKeys map[string]string
	entries  []LedgerEntry
	holds    map[string]*BalanceHold
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests.
func NewInMemory() Store {
	return NewInMemoryWithClock(time.Now)
}

// NewInMemoryWithClock creates an in-memory store with an injected clock for
// deterministic expiry tests.
func NewInMemoryWithClock(now func() time.Time) Store {
	return &inMemoryStore{
		now:      now,
		accounts: make(map[string]*Account),
		index:    make(map[accountKey]string),
		txns:     make(map[string]Transaction),
		usedKeys: make(map[string]string),
		holds:    make(map[string]*BalanceHold),
	}
}

func (s *inMemoryStore) GetOrCreateAccount(_ context.Context, owner string, category AccountCategory, currency string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{owner: owner, category: category, currency: currency}
	if id, ok := s.index[key]; ok {
		return *s.accounts[id], nil
	}

	now := s.now().UTC()
	acct := &Account{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Category:  category,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[acct.ID] = acct
	s.index[key] = acct.ID
	return *acct, nil
}

func (s *inMemoryStore) FindAccount(_ context.Context, owner string, category AccountCategory, currency string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.index[accountKey{owner: owner, category: category, currency: currency}]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *s.accounts[id], nil
}

func (s *inMemoryStore) AccountByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *acct, nil
}

func (s *inMemoryStore) Post(_ context.Context, posting Posting) (PostResult, error) {
	if posting.Amount <= 0 {
		return PostResult{}, ErrInvalidAmount
	}
	if posting.IdempotencyKey == "" {
		return PostResult{}, fmt.Errorf("idempotency key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.accounts[posting.FromAccountID]
	if !ok {
		return PostResult{}, ErrAccountNotFound
	}
	to, ok := s.accounts[posting.ToAccountID]
	if !ok {
		return PostResult{}, ErrAccountNotFound
	}
	if _, used := s.usedKeys[posting.IdempotencyKey]; used {
		return PostResult{}, ErrDuplicateIdempotencyKey
	}

	var hold *BalanceHold
	if posting.CaptureHoldID != "" {
		hold, ok = s.holds[posting.CaptureHoldID]
		if !ok {
			return PostResult{}, ErrHoldNotFound
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
	} else if from.AvailableBalance < posting.Amount {
		return PostResult{}, ErrInsufficientBalance
	}

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

	if hold != nil {
		from.HeldBalance -= posting.Amount
		hold.Released = true
		hold.ReleasedAt = now
	} else {
		from.AvailableBalance -= posting.Amount
	}
	from.Balance -= posting.Amount
	from.UpdatedAt = now
	to.Balance += posting.Amount
	to.AvailableBalance += posting.Amount
	to.UpdatedAt = now

	s.txns[txn.ID] = txn
	s.usedKeys[posting.IdempotencyKey] = txn.ID
	s.entries = append(s.entries,
		LedgerEntry{
			ID:            uuid.NewString(),
			TransactionID: txn.ID,
			AccountID:     from.ID,
			Type:          EntryDebit,
			Amount:        posting.Amount,
			BalanceAfter:  from.Balance,
			Description:   posting.Description,
			CreatedAt:     now,
		},
		LedgerEntry{
			ID:            uuid.NewString(),
			TransactionID: txn.ID,
			AccountID:     to.ID,
			Type:          EntryCredit,
			Amount:        posting.Amount,
			BalanceAfter:  to.Balance,
			Description:   posting.Description,
			CreatedAt:     now,
		},
	)

	return PostResult{Transaction: txn, From: *from, To: *to}, nil
}

func (s *inMemoryStore) CreateHold(_ context.Context, input CreateHoldInput) (BalanceHold, error) {
	if input.Amount <= 0 {
		return BalanceHold{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[input.AccountID]
	if !ok {
		return BalanceHold{}, ErrAccountNotFound
	}
	if acct.Currency != input.Currency {
		return BalanceHold{}, ErrCurrencyMismatch
	}
	if acct.AvailableBalance < input.Amount {
		return BalanceHold{}, ErrInsufficientAvailableBalance
	}

	now := s.now().UTC()
	acct.AvailableBalance -= input.Amount
	acct.HeldBalance += input.Amount
	acct.UpdatedAt = now

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	hold := &BalanceHold{
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
	s.holds[hold.ID] = hold
	return *hold, nil
}

func (s *inMemoryStore) HoldByID(_ context.Context, id string) (BalanceHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hold, ok := s.holds[id]
	if !ok {
		return BalanceHold{}, ErrHoldNotFound
	}
	return *hold, nil
}

func (s *inMemoryStore) ReleaseHold(_ context.Context, id string) (BalanceHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, ok := s.holds[id]
	if !ok {
		return BalanceHold{}, ErrHoldNotFound
	}
	if hold.Released {
		return BalanceHold{}, ErrHoldAlreadyReleased
	}

	acct := s.accounts[hold.AccountID]
	now := s.now().UTC()
	acct.HeldBalance -= hold.Amount
	acct.AvailableBalance += hold.Amount
	acct.UpdatedAt = now
	hold.Released = true
	hold.ReleasedAt = now
	return *hold, nil
}

func (s *inMemoryStore) ExpiredHolds(_ context.Context, asOf time.Time, limit int) ([]BalanceHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []BalanceHold
	for _, hold := range s.holds {
		if !hold.Released && !hold.ExpiresAt.After(asOf) {
			expired = append(expired, *hold)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *inMemoryStore) EntriesForAccount(_ context.Context, accountID string) ([]LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *inMemoryStore) TransactionHistory(_ context.Context, accountID string, limit int) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var history []HistoryEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.AccountID != accountID {
			continue
		}
		txn := s.txns[e.TransactionID]
		history = append(history, HistoryEntry{
			TransactionID:   txn.ID,
			IdempotencyKey:  txn.IdempotencyKey,
			TransactionType: txn.Type,
			EntryType:       e.Type,
			Amount:          e.Amount,
			Currency:        txn.Currency,
			BalanceAfter:    e.BalanceAfter,
			Description:     e.Description,
			CreatedAt:       e.CreatedAt,
		})
		if limit > 0 && len(history) == limit {
			break
		}
	}
	return history, nil
}
