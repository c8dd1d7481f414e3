// Package work implements the stateless proof-of-work validator (spec.md
// §4.3): given a (version, root, nonce) it computes an effective
// difficulty and compares it to a threshold selected by block details.
package work

import "github.com/nanocurrency/nanogod/ledgertypes"

// Version distinguishes work-generation epochs in case the digest
// function or threshold set changes in the future (spec.md §4.3
// "(version, root, nonce)").
type Version uint8

const VersionOne Version = 1

// Details selects which threshold tier applies to a block: the cheaper
// "epoch" tier (receive/open/epoch-subtype blocks) or the base tier
// (send/change and anything else).
type Details struct {
	IsReceiveOrEpoch bool
}

// Thresholds holds the two difficulty tiers a network configuration
// selects between (spec.md §4.3 "Receive/epoch-subtype blocks may use a
// lower threshold than send/change blocks").
type Thresholds struct {
	Base  uint64
	Epoch uint64
}

// DefaultThresholds mirrors live-network-scale values: large enough that
// a validator without real PoW search fails, low enough that tests can
// brute-force a few nonces in milliseconds.
var DefaultThresholds = Thresholds{
	Base:  0xffffffc000000000,
	Epoch: 0xfffffff800000000,
}

// TestThresholds is deliberately trivial (any nonzero digest passes) so
// that package tests elsewhere in the repo can generate valid work
// without a real search.
var TestThresholds = Thresholds{Base: 1, Epoch: 1}

func (t Thresholds) For(d Details) uint64 {
	if d.IsReceiveOrEpoch {
		return t.Epoch
	}
	return t.Base
}

// Validator validates proof-of-work nonces. It is stateless and safe for
// concurrent use.
type Validator struct {
	Thresholds Thresholds
}

func NewValidator(t Thresholds) *Validator {
	return &Validator{Thresholds: t}
}

// Difficulty computes the effective difficulty of (root, nonce): the
// little-endian uint64 formed from the first 8 bytes of
// BLAKE2b-512(nonce || root) (SPEC_FULL.md §5). Higher values indicate
// more work.
func (v *Validator) Difficulty(root ledgertypes.Hash, nonce uint64) uint64 {
	return ledgertypes.WorkDigest(root, nonce)
}

// Valid reports whether nonce meets the threshold selected by details for
// root (spec.md §4.3 "compare to a threshold selected by (version,
// block_details)"). The comparison is value >= threshold: SPEC_FULL.md §5
// flags this as the detail most often inverted by mistake.
func (v *Validator) Valid(root ledgertypes.Hash, nonce uint64, d Details) bool {
	return v.Difficulty(root, nonce) >= v.Thresholds.For(d)
}

// ValidateBlock derives Details from the block's sideband subtype bits
// and checks its Work field against Root(). Used by the block processor
// before any ledger touch (spec.md §4.3 "An insufficient_work failure
// aborts block processing before ledger touches").
func (v *Validator) ValidateBlock(b *ledgertypes.Block) bool {
	d := Details{IsReceiveOrEpoch: b.Sideband.IsReceive || b.Sideband.IsEpoch}
	return v.Valid(b.Root(), b.Work, d)
}

// FindWork brute-force searches for a nonce meeting the threshold for
// root. It exists only to make tests self-sufficient; the real
// work-generation subsystem (spec.md §1 non-goals) is external.
func (v *Validator) FindWork(root ledgertypes.Hash, d Details) uint64 {
	threshold := v.Thresholds.For(d)
	for nonce := uint64(0); ; nonce++ {
		if v.Difficulty(root, nonce) >= threshold {
			return nonce
		}
	}
}
