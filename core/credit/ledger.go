package credit

import (
	"context"
	"errors"
)

// ErrUnavailable marks a failure to reach the balance store. It is distinct
// from the boolean "insufficient funds" outcome so callers can tell a denied
// request from a broken ledger.
var ErrUnavailable = errors.New("credit ledger unavailable")

// Ledger is the admission capability the dispatch path depends on.
type Ledger interface {
	// TryDeduct atomically charges one query cost. false means insufficient
	// balance, which is a normal outcome, not an error.
	TryDeduct(ctx context.Context, userID string) (bool, error)
	// Refund returns one query cost, compensating a failed dispatch.
	Refund(ctx context.Context, userID string) error
	// Balance reports the current balance for a requester.
	Balance(ctx context.Context, userID string) (int64, error)
	// Grant adds credits to a requester's balance.
	Grant(ctx context.Context, userID string, amount int64) error
}
