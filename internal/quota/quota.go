// Package quota gates and accounts for generation attempts per visitor.
package quota

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/do"

	"ghiblify/internal/identity"
	"ghiblify/internal/log"
)

const (
	// FreeQuota is the number of generations a new visitor gets before
	// needing purchased credits.
	FreeQuota = 2

	// AddressFreeQuota is the independent, coarser allowance keyed by hashed
	// network address. It is deliberately larger than FreeQuota so visitors
	// behind a shared NAT are not starved by each other.
	AddressFreeQuota = 10
)

// Denial reasons surfaced to callers alongside a refused check.
const (
	ReasonQuotaExhausted   = "quota_exhausted"
	ReasonAddressExhausted = "address_quota_exhausted"
)

// State is the per-visitor quota record. FreeUsed never exceeds FreeQuota
// and Credits never goes negative; only the ledger mutates it.
type State struct {
	FreeUsed int `json:"freeUsed"`
	Credits  int `json:"credits"`
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshot is the derived view served by the quota endpoint.
type Snapshot struct {
	RemainingFree    int `json:"remainingFree"`
	RemainingCredits int `json:"remainingCredits"`
	RemainingTotal   int `json:"remainingTotal"`
}

// Ledger enforces both quota gates. Persistent state lives in the Store;
// in-flight reservations are held in process so concurrent submissions from
// one visitor cannot both pass a check against the same last unit.
type Ledger struct {
	store Store

	mu      sync.Mutex
	pending map[string]int
	locks   map[string]*sync.Mutex
}

func New(store Store) *Ledger {
	return &Ledger{
		store:   store,
		pending: make(map[string]int),
		locks:   make(map[string]*sync.Mutex),
	}
}

func NewLedger(i *do.Injector) (*Ledger, error) {
	return New(do.MustInvoke[Store](i)), nil
}

// CheckAndReserve decides whether a generation may proceed. It does not
// debit persisted state; an allowed decision holds an in-process
// reservation that Commit or Release must settle.
func (l *Ledger) CheckAndReserve(ctx context.Context, id identity.Identity) (Decision, error) {
	state, err := l.store.State(ctx, id.Key())
	if err != nil {
		return Decision{}, fmt.Errorf("reading quota state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := (FreeQuota - state.FreeUsed) + state.Credits - l.pending[id.Key()]
	if remaining <= 0 {
		return Decision{Allowed: false, Reason: ReasonQuotaExhausted}, nil
	}

	// Secondary server-held gate. Credits are paid for, so they bypass the
	// free-tier abuse counter.
	if state.Credits == 0 {
		count, err := l.store.AddressCount(ctx, id.AddressHash)
		if err != nil {
			return Decision{}, fmt.Errorf("reading address usage: %w", err)
		}
		if count >= AddressFreeQuota {
			log.FromContextOrDiscard(ctx).Warn("address gate refused generation",
				"addressHash", id.AddressHash, "count", count)
			return Decision{Allowed: false, Reason: ReasonAddressExhausted}, nil
		}
	}

	l.pending[id.Key()]++
	return Decision{Allowed: true}, nil
}

// Commit debits exactly one unit after a successful generation, consuming
// free allowance before credits, and settles the reservation. Debits for
// one visitor are serialized by a keyed mutex; the store's Debit is atomic
// on top of that, so concurrent replicas cannot lose an update either.
func (l *Ledger) Commit(ctx context.Context, id identity.Identity) error {
	defer l.release(id.Key())

	lk := l.lockFor(id.Key())
	lk.Lock()
	defer lk.Unlock()

	before, err := l.store.State(ctx, id.Key())
	if err != nil {
		return fmt.Errorf("reading quota state: %w", err)
	}
	if before.FreeUsed >= FreeQuota && before.Credits == 0 {
		// Unreachable when CheckAndReserve was honored; debit nothing.
		log.FromContextOrDiscard(ctx).Warn("commit with no allowance left", "visitor", id.Key())
		return nil
	}

	if _, err := l.store.Debit(ctx, id.Key()); err != nil {
		return fmt.Errorf("debiting quota state: %w", err)
	}
	if _, err := l.store.IncrementAddress(ctx, id.AddressHash); err != nil {
		return fmt.Errorf("incrementing address usage: %w", err)
	}
	return nil
}

// lockFor returns the mutex serializing commits for one visitor key.
func (l *Ledger) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[key] = lk
	}
	return lk
}

// Release drops a reservation without debiting. Called on every failure
// path after an allowed check.
func (l *Ledger) Release(_ context.Context, id identity.Identity) {
	l.release(id.Key())
}

func (l *Ledger) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending[key] <= 1 {
		delete(l.pending, key)
	} else {
		l.pending[key]--
	}
}

// GrantCredits adds purchased credits, deduplicating by payment session id.
// Replays return the already-granted total without double-crediting.
func (l *Ledger) GrantCredits(ctx context.Context, id identity.Identity, sessionID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if sessionID == "" {
		return 0, fmt.Errorf("payment session id is required")
	}

	total, replay, err := l.store.GrantCredits(ctx, id.Key(), sessionID, amount)
	if err != nil {
		return 0, fmt.Errorf("granting credits: %w", err)
	}
	if replay {
		log.FromContextOrDiscard(ctx).Info("replayed payment confirmation ignored",
			"visitor", id.Key(), "session", sessionID)
	}
	return total, nil
}

// Remaining returns the derived free/credit/total view. The total is always
// the sum of the other two.
func (l *Ledger) Remaining(ctx context.Context, id identity.Identity) (Snapshot, error) {
	state, err := l.store.State(ctx, id.Key())
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading quota state: %w", err)
	}
	free := FreeQuota - state.FreeUsed
	if free < 0 {
		free = 0
	}
	return Snapshot{
		RemainingFree:    free,
		RemainingCredits: state.Credits,
		RemainingTotal:   free + state.Credits,
	}, nil
}
