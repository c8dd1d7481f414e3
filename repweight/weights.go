// Package repweight maintains the representative -> delegated-balance
// table (spec.md §4.8) and the online/trended stake samples used for
// quorum (spec.md §4.8, §8 scenario 6).
package repweight

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

// Table is the in-memory representative weight cache. The ledger updates
// it synchronously, under the same write-transaction discipline as every
// other ledger mutation (spec.md §4.8 "updated synchronously by ledger
// mutations"). The table lives in memory only: nothing writes it to
// Store's TableRepresentation and nothing calls Load at startup, so a
// restarted node starts from an empty table.
type Table struct {
	mu      sync.RWMutex
	weights map[ledgertypes.Account]ledgertypes.Amount
}

func NewTable() *Table {
	return &Table{weights: make(map[ledgertypes.Account]ledgertypes.Amount)}
}

// Load seeds the table from a persisted snapshot (account -> amount
// pairs), e.g. read from store.TableRepresentation at node startup.
func (t *Table) Load(entries map[ledgertypes.Account]ledgertypes.Amount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range entries {
		t.weights[k] = v
	}
}

// Weight returns the representative's current delegated balance (zero if
// unknown).
func (t *Table) Weight(rep ledgertypes.Account) ledgertypes.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.weights[rep]
}

// Add increases rep's weight by amount. Used when a balance newly comes
// under rep's representation (a send/receive/open/change that sets rep as
// the new representative, or an account's initial open).
func (t *Table) Add(rep ledgertypes.Account, amount ledgertypes.Amount) {
	if amount.IsZero() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.weights[rep]
	sum, ok := cur.Add(amount)
	if !ok {
		// Weight conservation (spec.md invariant 4) guarantees this never
		// happens in a correctly-applied ledger; a panic surfaces a bug
		// immediately rather than silently corrupting the weight table.
		panic("repweight: weight overflow, ledger invariant violated")
	}
	t.weights[rep] = sum
}

// Sub decreases rep's weight by amount, used on rollback or when balance
// moves away from rep's representation.
func (t *Table) Sub(rep ledgertypes.Account, amount ledgertypes.Amount) {
	if amount.IsZero() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.weights[rep]
	diff, ok := cur.Sub(amount)
	if !ok {
		panic("repweight: weight underflow, ledger invariant violated")
	}
	t.weights[rep] = diff
}

// Snapshot returns a copy of the full table, for persistence or for
// Σ-by-representative invariant checks (spec.md §8).
func (t *Table) Snapshot() map[ledgertypes.Account]ledgertypes.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[ledgertypes.Account]ledgertypes.Amount, len(t.weights))
	for k, v := range t.weights {
		out[k] = v
	}
	return out
}

// Principal reports whether rep's weight meets the principal-representative
// broadcast-priority threshold (spec.md §4.5 "principal representatives").
func (t *Table) Principal(rep ledgertypes.Account, minWeight ledgertypes.Amount) bool {
	w := t.Weight(rep)
	return w.Cmp(minWeight) >= 0
}

// PrincipalSet returns the representatives currently at or above
// minWeight as a set, for a republisher deciding whether a block
// touching one of them warrants aggressive-flooding fanout rather than
// ordinary republication (spec.md §4.4 "republish to a fanout of
// peers", §4.5 "principal representatives").
func (t *Table) PrincipalSet(minWeight ledgertypes.Amount) mapset.Set[ledgertypes.Account] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := mapset.NewThreadUnsafeSet[ledgertypes.Account]()
	for rep, w := range t.weights {
		if w.Cmp(minWeight) >= 0 {
			out.Add(rep)
		}
	}
	return out
}

// Principals returns every representative currently at or above
// minWeight, for callers wanting a plain slice (spec.md §4.5).
func (t *Table) Principals(minWeight ledgertypes.Amount) []ledgertypes.Account {
	return t.PrincipalSet(minWeight).ToSlice()
}
