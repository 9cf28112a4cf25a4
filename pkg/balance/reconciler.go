package balance

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"coinsbridge/pkg/core"
)

// Reconciler owns the session's balance set and diffs it against freshly
// fetched remote snapshots. It is the only writer of the set; the host
// reads through Get/All.
type Reconciler struct {
	mu       sync.RWMutex
	balances map[string]core.Balance
	logger   zerolog.Logger
}

// Delta reports what one reconciliation changed. Asset names are sorted
// for stable output.
type Delta struct {
	Added   []string
	Updated []string
	Removed []string
}

// Empty reports whether the reconciliation was a no-op.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		balances: make(map[string]core.Balance),
		logger:   zerolog.Nop(),
	}
}

// SetLogger sets the logger for reconciliation events.
func (r *Reconciler) SetLogger(logger zerolog.Logger) {
	r.logger = logger
}

// Reconcile applies a remote snapshot to the balance set and returns the
// delta. Assets present locally but absent remotely are removed (they no
// longer hold a balance); assets the snapshot flagged as malformed keep
// their prior local value instead of being zeroed or dropped. Applying
// the same snapshot twice yields an identical set and an empty second
// delta.
func (r *Reconciler) Reconcile(snapshot core.BalanceSnapshot) Delta {
	malformed := make(map[string]bool, len(snapshot.Malformed))
	for _, asset := range snapshot.Malformed {
		malformed[asset] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var delta Delta
	for asset, remote := range snapshot.Balances {
		local, exists := r.balances[asset]
		switch {
		case !exists:
			r.balances[asset] = remote
			delta.Added = append(delta.Added, asset)
		case local.Free.Cmp(&remote.Free) != 0 || local.Locked.Cmp(&remote.Locked) != 0:
			r.balances[asset] = remote
			delta.Updated = append(delta.Updated, asset)
		}
	}

	for asset := range r.balances {
		if _, ok := snapshot.Balances[asset]; ok {
			continue
		}
		if malformed[asset] {
			continue
		}
		delete(r.balances, asset)
		delta.Removed = append(delta.Removed, asset)
	}

	sort.Strings(delta.Added)
	sort.Strings(delta.Updated)
	sort.Strings(delta.Removed)

	if !delta.Empty() {
		r.logger.Debug().
			Strs("added", delta.Added).
			Strs("updated", delta.Updated).
			Strs("removed", delta.Removed).
			Msg("balances reconciled")
	}
	return delta
}

// Get returns the tracked balance for an asset.
func (r *Reconciler) Get(asset string) (core.Balance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[asset]
	return b, ok
}

// All returns a copy of the tracked balance set.
func (r *Reconciler) All() map[string]core.Balance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]core.Balance, len(r.balances))
	for asset, b := range r.balances {
		out[asset] = b
	}
	return out
}

// Len reports the number of tracked assets.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.balances)
}
