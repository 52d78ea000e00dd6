package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/swiftride/ledger/internal/ledger"
)

// Service is the account registry: it owns account identity, lookup and lazy
// creation. No business logic beyond existence lives here.
type Service struct {
	store ledger.Store
}

// NewService builds an account registry backed by the given store.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// GetOrCreate returns the account for (owner, category, currency), creating it
// with zero balances on first use. Accounts are never deleted.
func (s *Service) GetOrCreate(ctx context.Context, owner string, category ledger.AccountCategory, currency string) (ledger.Account, error) {
	if currency == "" {
		return ledger.Account{}, fmt.Errorf("currency is required")
	}
	if owner == "" && category != ledger.CategoryPlatformFloat {
		return ledger.Account{}, fmt.Errorf("owner is required for %s accounts", category)
	}
	return s.store.GetOrCreateAccount(ctx, owner, category, currency)
}

// Balance returns the balances for (owner, category, currency). A missing
// account yields an all-zero snapshot and is not created.
func (s *Service) Balance(ctx context.Context, owner string, category ledger.AccountCategory, currency string) (ledger.BalanceSnapshot, error) {
	acct, err := s.store.FindAccount(ctx, owner, category, currency)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return ledger.BalanceSnapshot{}, nil
		}
		return ledger.BalanceSnapshot{}, err
	}
	return ledger.BalanceSnapshot{
		Balance:          acct.Balance,
		AvailableBalance: acct.AvailableBalance,
		HeldBalance:      acct.HeldBalance,
	}, nil
}

// EnsureFloat provisions the system float account for a currency. Operators
// run this at bootstrap; top-ups into a currency without a float fail.
func (s *Service) EnsureFloat(ctx context.Context, currency string) (ledger.Account, error) {
	if currency == "" {
		return ledger.Account{}, fmt.Errorf("currency is required")
	}
	return s.store.GetOrCreateAccount(ctx, "", ledger.CategoryPlatformFloat, currency)
}
