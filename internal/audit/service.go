package audit

import (
	"context"
	"fmt"

	"github.com/swiftride/ledger/internal/ledger"
	"github.com/swiftride/ledger/internal/notification"
)

// balanceTolerance is the permitted gap, in minor units, between the replayed
// and stored balance. Integer arithmetic makes real drift a defect, but
// historical imports may carry rounding of at most one unit.
const balanceTolerance = 1

// Report is the outcome of replaying an account's full entry history against
// its stored balance.
type Report struct {
	AccountID         string
	TotalDebits       int64
	TotalCredits      int64
	CalculatedBalance int64
	StoredBalance     int64
	IsBalanced        bool
}

// Service is the balance verifier. It is read-only: drift is reported, never
// corrected, since reconciliation of a mismatch is an operational action.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
}

// NewService constructs a balance verifier. The notifier may be nil.
func NewService(store ledger.Store, notifier notification.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// VerifyBalance replays every ledger entry posted to the account, DEBIT
// subtracting and CREDIT adding, and compares the result with the stored
// balance. Intended for periodic audit, never for the hot mutating path.
func (s *Service) VerifyBalance(ctx context.Context, accountID string) (Report, error) {
	acct, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	entries, err := s.store.EntriesForAccount(ctx, accountID)
	if err != nil {
		return Report{}, err
	}

	report := Report{AccountID: accountID, StoredBalance: acct.Balance}
	for _, e := range entries {
		switch e.Type {
		case ledger.EntryDebit:
			report.TotalDebits += e.Amount
			report.CalculatedBalance -= e.Amount
		case ledger.EntryCredit:
			report.TotalCredits += e.Amount
			report.CalculatedBalance += e.Amount
		}
	}

	diff := report.CalculatedBalance - report.StoredBalance
	if diff < 0 {
		diff = -diff
	}
	report.IsBalanced = diff <= balanceTolerance

	if !report.IsBalanced && s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Event{
			Kind:      notification.KindBalanceDrift,
			AccountID: accountID,
			Detail:    fmt.Sprintf("calculated %d vs stored %d", report.CalculatedBalance, report.StoredBalance),
		})
	}
	return report, nil
}
