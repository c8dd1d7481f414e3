// Package election implements Active Elections (spec.md §4.5): per-root
// vote tallying, quorum-based confirmation, and fork resolution by
// instructing the block processor to roll back a loser and re-apply the
// winner.
package election

import (
	"sync"
	"time"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

// QualifiedRoot keys an election by (block.root, block.previous) so that
// two blocks sharing a root but different predecessors (which cannot
// actually fork against each other) get separate elections (spec.md
// §4.5 "Keyed by qualified root").
type QualifiedRoot struct {
	Root     ledgertypes.Hash
	Previous ledgertypes.Hash
}

func qualifiedRootOf(b *ledgertypes.Block) QualifiedRoot {
	return QualifiedRoot{Root: b.Root(), Previous: b.Previous}
}

// Status is an election's lifecycle state.
type Status uint8

const (
	StatusStarted Status = iota
	StatusConfirmed
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusExpired:
		return "expired"
	default:
		return "started"
	}
}

// MaxCandidatesPerElection caps how many distinct block hashes a single
// election tracks at once (spec.md §4.5 "at most a few, capped").
const MaxCandidatesPerElection = 8

type voteRecord struct {
	sequence uint64
	hash     ledgertypes.Hash
}

// Election tallies votes for every candidate block sharing a qualified
// root until one crosses quorum.
type Election struct {
	mu sync.Mutex

	root       QualifiedRoot
	candidates map[ledgertypes.Hash]*ledgertypes.Block
	tally      map[ledgertypes.Hash]ledgertypes.Amount
	lastVote   map[ledgertypes.Account]voteRecord

	status Status
	winner ledgertypes.Hash
}

func newElection(root QualifiedRoot) *Election {
	return &Election{
		root:       root,
		candidates: make(map[ledgertypes.Hash]*ledgertypes.Block),
		tally:      make(map[ledgertypes.Hash]ledgertypes.Amount),
		lastVote:   make(map[ledgertypes.Account]voteRecord),
	}
}

// Status reports the election's current lifecycle state.
func (e *Election) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Winner returns the confirmed winning hash, if any.
func (e *Election) Winner() (ledgertypes.Hash, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.winner, e.status == StatusConfirmed
}

// Tally returns a candidate's current accumulated weight.
func (e *Election) Tally(hash ledgertypes.Hash) ledgertypes.Amount {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tally[hash]
}

// addCandidate registers a block as a live alternative in this election,
// a no-op if already present or if the cap has been reached.
func (e *Election) addCandidate(b *ledgertypes.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()
	hash := b.Hash()
	if _, ok := e.candidates[hash]; ok {
		return
	}
	if len(e.candidates) >= MaxCandidatesPerElection {
		return
	}
	e.candidates[hash] = b
	if _, ok := e.tally[hash]; !ok {
		e.tally[hash] = ledgertypes.Amount{}
	}
}

// ingestVote applies a single representative's weight to v's candidate
// hash, replacing whatever that rep previously voted for in this
// election (spec.md §4.5 vote-ingestion rule). It reports the leading
// candidate's current tally so the caller can check it against quorum.
func (e *Election) ingestVote(v *ledgertypes.Vote, hash ledgertypes.Hash, weight ledgertypes.Amount) (ledgertypes.Hash, ledgertypes.Amount, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusStarted {
		return ledgertypes.Hash{}, ledgertypes.Amount{}, false
	}

	prior, seen := e.lastVote[v.Representative]
	if seen && !v.IsFinal() && prior.sequence >= v.Sequence {
		return ledgertypes.Hash{}, ledgertypes.Amount{}, false // replay protection
	}
	if seen {
		if cur, ok := e.tally[prior.hash]; ok {
			if diff, ok := cur.Sub(weight); ok {
				e.tally[prior.hash] = diff
			}
		}
	}
	e.lastVote[v.Representative] = voteRecord{sequence: v.Sequence, hash: hash}

	sum, ok := e.tally[hash].Add(weight)
	if ok {
		e.tally[hash] = sum
	}

	return e.leader()
}

// leader returns the highest-tallied candidate. Caller must hold e.mu.
func (e *Election) leader() (ledgertypes.Hash, ledgertypes.Amount, bool) {
	var best ledgertypes.Hash
	var bestWeight ledgertypes.Amount
	found := false
	for hash, weight := range e.tally {
		if !found || weight.Cmp(bestWeight) > 0 {
			best, bestWeight, found = hash, weight, true
		}
	}
	return best, bestWeight, found
}

// confirm marks the election settled on winner. Caller must hold e.mu is
// NOT required: this takes the lock itself.
func (e *Election) confirm(winner ledgertypes.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusStarted {
		return
	}
	e.status = StatusConfirmed
	e.winner = winner
}

// expire marks the election abandoned without touching the ledger
// (spec.md §4.5 "Cancellation: an election may be dropped
// administratively without affecting the ledger").
func (e *Election) expire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusStarted {
		e.status = StatusExpired
	}
}

// candidateHashes returns every hash currently registered as a candidate.
func (e *Election) candidateHashes() []ledgertypes.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ledgertypes.Hash, 0, len(e.candidates))
	for hash := range e.candidates {
		out = append(out, hash)
	}
	return out
}

func (e *Election) candidateBlock(hash ledgertypes.Hash) (*ledgertypes.Block, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.candidates[hash]
	return b, ok
}

// CementedEntry is a single record in the recently-cemented ring
// (spec.md §4.5 "appended to a bounded recently-cemented ring for
// observers and RPC").
type CementedEntry struct {
	Hash      ledgertypes.Hash
	Account   ledgertypes.Account
	Timestamp time.Time
}
