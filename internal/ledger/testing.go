package ledger

// SeedBalance is a test helper that sets an account's balance directly when
// using the in-memory store. The full amount is seeded as available.
func SeedBalance(s Store, accountID string, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if acct, exists := mem.accounts[accountID]; exists {
			acct.Balance = amount
			acct.AvailableBalance = amount
			acct.HeldBalance = 0
		}
	}
}
