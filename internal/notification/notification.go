package notification

import (
	"context"
	"log/slog"
)

const (
	// KindHoldExpired indicates the sweeper released a stale hold.
	KindHoldExpired = "hold_expired"
	// KindBalanceDrift indicates the verifier found a stored balance that
	// disagrees with the replayed ledger history.
	KindBalanceDrift = "balance_drift"
)

// Event describes an operational ledger event for downstream consumers.
type Event struct {
	Kind      string
	AccountID string
	Detail    string
}

// Notifier delivers ledger events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier is a stub implementation that writes events to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("ledger event", "kind", event.Kind, "account_id", event.AccountID, "detail", event.Detail)
	return nil
}
