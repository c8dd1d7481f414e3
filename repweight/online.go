package repweight

import (
	"sort"
	"sync"
	"time"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

// OnlineReps tracks which representatives have been observed voting
// recently (spec.md §4.8 "Online Reps: rolling window of reps observed
// voting in the last online-weight period") and derives the online and
// trended stake figures quorum calculations use.
type OnlineReps struct {
	mu      sync.Mutex
	weights *Table
	window  time.Duration
	seen    map[ledgertypes.Account]time.Time
	// samples holds periodic snapshots of total online stake, oldest
	// first, used to compute the trended (median) stake.
	samples []ledgertypes.Amount
	maxSamples int
	// minimum is the configured floor below which quorum threshold never
	// falls, regardless of how far trended stake has decayed (spec.md
	// §4.5 "configured_online_weight_minimum").
	minimum ledgertypes.Amount
}

const defaultOnlineWindow = 5 * time.Minute

// NewOnlineReps builds an OnlineReps with the given configured online
// weight minimum, the floor QuorumThreshold never drops below.
func NewOnlineReps(weights *Table, minimum ledgertypes.Amount) *OnlineReps {
	return &OnlineReps{
		weights:    weights,
		window:     defaultOnlineWindow,
		seen:       make(map[ledgertypes.Account]time.Time),
		maxSamples: 2 * 24 * 12, // every 5 minutes for 2 days
		minimum:    minimum,
	}
}

// Observe records that rep was seen casting a vote at now. Called by
// election.Manager.IngestVote for every vote whose representative has
// nonzero weight.
func (o *OnlineReps) Observe(rep ledgertypes.Account, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen[rep] = now
}

// prune drops reps not seen within the window, relative to now. Caller
// must hold o.mu.
func (o *OnlineReps) prune(now time.Time) {
	cutoff := now.Add(-o.window)
	for rep, last := range o.seen {
		if last.Before(cutoff) {
			delete(o.seen, rep)
		}
	}
}

// OnlineStake sums the current weight of every representative observed
// within the window, as of now.
func (o *OnlineReps) OnlineStake(now time.Time) ledgertypes.Amount {
	o.mu.Lock()
	o.prune(now)
	reps := make([]ledgertypes.Account, 0, len(o.seen))
	for rep := range o.seen {
		reps = append(reps, rep)
	}
	o.mu.Unlock()

	total := ledgertypes.Amount{}
	for _, rep := range reps {
		sum, ok := total.Add(o.weights.Weight(rep))
		if ok {
			total = sum
		}
	}
	return total
}

// Sample appends the current online stake to the trended-stake history,
// intended to be called once per sampling period (spec.md §4.8 "Trended
// stake: median of recent online-stake samples, damps single-period
// spikes").
func (o *OnlineReps) Sample(now time.Time) {
	stake := o.OnlineStake(now)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples = append(o.samples, stake)
	if len(o.samples) > o.maxSamples {
		o.samples = o.samples[len(o.samples)-o.maxSamples:]
	}
}

// TrendedStake returns the median of the recorded online-stake samples,
// or the zero Amount if no samples have been taken yet.
func (o *OnlineReps) TrendedStake() ledgertypes.Amount {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.samples) == 0 {
		return ledgertypes.Amount{}
	}
	sorted := make([]ledgertypes.Amount, len(o.samples))
	copy(sorted, o.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	return sorted[len(sorted)/2]
}

// QuorumThreshold returns the stake required to confirm a block: a
// fraction (numerator/denominator) of whichever is larger, the configured
// online weight minimum or trended stake (spec.md §4.5
// "max(configured_online_weight_minimum, trended_online_weight) ×
// quorum_fraction"). Live online stake only feeds the trended figure
// through Sample; it never substitutes for the configured floor, or
// quorum would collapse toward zero the moment reps go quiet faster than
// a sample can record it.
func (o *OnlineReps) QuorumThreshold(now time.Time, numerator, denominator uint64) ledgertypes.Amount {
	trended := o.TrendedStake()
	base := o.minimum
	if trended.Cmp(o.minimum) > 0 {
		base = trended
	}
	num := ledgertypes.AmountFromUint64(numerator)
	scaled := base.Mul(num)
	return scaled.DivUint64(denominator)
}
