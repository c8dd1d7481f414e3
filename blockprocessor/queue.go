// Package blockprocessor implements the single-writer block processing
// loop (spec.md §4.4): three input queues feed a serial loop that
// verifies signatures in parallel, applies blocks through the ledger one
// write transaction at a time, and dispatches on the resulting
// classification.
package blockprocessor

import "github.com/nanocurrency/nanogod/ledgertypes"

// Source identifies which of the three input queues a block arrived on.
type Source uint8

const (
	// SourcePriority carries locally-forged blocks (wallet/RPC).
	SourcePriority Source = iota
	// SourceForced carries rollback-then-replace requests driven by
	// confirmed votes on a fork-loser's sibling.
	SourceForced
	// SourceStandard carries blocks received from peers.
	SourceStandard
)

func (s Source) String() string {
	switch s {
	case SourcePriority:
		return "priority"
	case SourceForced:
		return "forced"
	case SourceStandard:
		return "standard"
	default:
		return "unknown"
	}
}

// Item is a single queued unit of work.
type Item struct {
	Block  *ledgertypes.Block
	Source Source
}
