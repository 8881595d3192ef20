package quota

import "context"

// Store is the externally-owned persistence behind the ledger. Counters
// survive restarts and are shared across replicas; the in-memory
// implementation exists for tests and throwaway runs only.
type Store interface {
	// State returns the visitor's quota record, zero-valued on first contact.
	State(ctx context.Context, key string) (State, error)

	// Debit atomically consumes one unit, free allowance before credits, and
	// returns the resulting state. A visitor with nothing left is returned
	// unchanged; the debit never overdraws even under concurrent callers.
	Debit(ctx context.Context, key string) (State, error)

	// AddressCount and IncrementAddress back the coarse per-address gate.
	// IncrementAddress is atomic and returns the new count.
	AddressCount(ctx context.Context, hash string) (int, error)
	IncrementAddress(ctx context.Context, hash string) (int, error)

	// GrantCredits atomically credits a visitor, at most once per payment
	// session id. replay reports whether the session was already granted;
	// total is the resulting credit balance either way.
	GrantCredits(ctx context.Context, key, sessionID string, amount int) (total int, replay bool, err error)
}
