package election

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nanocurrency/nanogod/blockprocessor"
	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/repweight"
	"github.com/nanocurrency/nanogod/store"
)

// Config tunes quorum and retention parameters (spec.md §4.5/§4.8).
type Config struct {
	// QuorumNumerator/QuorumDenominator express the confirmation
	// threshold as a fraction of online/trended stake (spec.md §8
	// scenario 6, default 67%).
	QuorumNumerator   uint64
	QuorumDenominator uint64
	// PrincipalMinWeight is the floor for aggressive-flooding fanout
	// (spec.md §4.5 "principal representatives").
	PrincipalMinWeight ledgertypes.Amount
	// RecentlyCementedCapacity bounds the ring observers/RPC can read.
	RecentlyCementedCapacity int
	// MaxActiveElections bounds memory for simultaneously active
	// elections (spec.md §4.5 "bounded active election set").
	MaxActiveElections int
}

// DefaultConfig matches spec.md's stated defaults: 67% quorum, a 256-deep
// recently-cemented ring, and up to 5000 simultaneously active elections.
var DefaultConfig = Config{
	QuorumNumerator:          67,
	QuorumDenominator:        100,
	PrincipalMinWeight:       ledgertypes.Amount{},
	RecentlyCementedCapacity: 256,
	MaxActiveElections:       5000,
}

// Manager is the Active Elections subsystem (spec.md §4.5): it owns
// every live Election keyed by qualified root, tallies incoming votes
// against quorum, and drives fork resolution by handing a rollback
// request to the block processor's forced queue.
type Manager struct {
	mu sync.Mutex

	store   store.Store
	ledger  *ledger.Ledger
	weights *repweight.Table
	online  *repweight.OnlineReps
	cfg     Config
	log     *zap.Logger

	processor  forcedEnqueuer
	observer   Observer
	confHeight confirmationFeed

	elections map[QualifiedRoot]*Election
	byHash    map[ledgertypes.Hash]QualifiedRoot
	deferred  map[ledgertypes.Hash][]*ledgertypes.Block

	recentlyCemented []CementedEntry
}

// forcedEnqueuer is the slice of *blockprocessor.Processor Manager
// drives fork resolution through.
type forcedEnqueuer interface {
	Enqueue(source blockprocessor.Source, b *ledgertypes.Block) bool
}

// Observer receives notice when an election opens or leaves the active
// set. Satisfied structurally by observer.Registry.
type Observer interface {
	ElectionStarted(root ledgertypes.Hash)
	ElectionStopped(root, winner ledgertypes.Hash, confirmed bool)
}

// confirmationFeed is the slice of *confheight.Processor a confirmed
// election's winning hash is handed to, so spec.md §4.7's walk starts
// the moment an election settles rather than waiting on some other
// trigger to notice.
type confirmationFeed interface {
	Enqueue(hash ledgertypes.Hash) bool
}

// NewManager builds a Manager. Call SetProcessor once the block
// processor exists, since construction order is store -> ledger ->
// weights/online -> blockprocessor -> election (SPEC_FULL.md §4.11).
func NewManager(s store.Store, l *ledger.Ledger, weights *repweight.Table, online *repweight.OnlineReps, cfg Config) *Manager {
	if cfg.QuorumDenominator == 0 {
		cfg = DefaultConfig
	}
	return &Manager{
		store:     s,
		ledger:    l,
		weights:   weights,
		online:    online,
		cfg:       cfg,
		log:       zap.NewNop(),
		elections: make(map[QualifiedRoot]*Election),
		byHash:    make(map[ledgertypes.Hash]QualifiedRoot),
		deferred:  make(map[ledgertypes.Hash][]*ledgertypes.Block),
	}
}

func (m *Manager) SetLogger(log *zap.Logger)     { m.log = log }
func (m *Manager) SetProcessor(p forcedEnqueuer) { m.processor = p }
func (m *Manager) SetObserver(o Observer)        { m.observer = o }
func (m *Manager) SetConfirmationFeed(c confirmationFeed) { m.confHeight = c }

// Progress starts (or joins) an election for a block the processor just
// committed without a fork (spec.md §4.4 "progress" branch feeds
// elections.Progress"). If the block's predecessor isn't confirmed yet,
// it's parked until that predecessor's election resolves (spec.md §4.5
// "an election for a successor block waits for its predecessor's
// election to confirm first").
func (m *Manager) Progress(b *ledgertypes.Block) {
	if !b.Previous.IsZero() && !m.predecessorReady(b.Previous) {
		m.mu.Lock()
		m.deferred[b.Previous] = append(m.deferred[b.Previous], b)
		m.mu.Unlock()
		return
	}

	root := qualifiedRootOf(b)
	m.mu.Lock()
	e := m.electionForLocked(root)
	m.mu.Unlock()

	e.addCandidate(b)
	m.trackHash(b.Hash(), root)
}

// predecessorReady reports whether hash is confirmed on disk, so a
// successor's election may start immediately instead of waiting (spec.md
// §4.5). Startup replay and genesis's own chain are always confirmed;
// a freshly-committed predecessor still mid-election is not, and a
// lookup failure fails open rather than deadlocking progress.
func (m *Manager) predecessorReady(hash ledgertypes.Hash) bool {
	txn, err := m.store.Begin(context.Background(), false)
	if err != nil {
		m.log.Warn("election manager could not open read transaction", zap.Error(err))
		return true
	}
	defer txn.Discard()

	confirmed, err := m.ledger.BlockConfirmed(txn, hash)
	if err != nil {
		m.log.Warn("election manager confirmation lookup failed", zap.Error(err))
		return true
	}
	return confirmed
}

// Fork registers both sides of a fork as candidates of the same
// election (spec.md §4.4 "fork" branch feeds elections.Fork(existing,
// attempted)").
func (m *Manager) Fork(existing, attempted *ledgertypes.Block) {
	root := qualifiedRootOf(existing)

	m.mu.Lock()
	e := m.electionForLocked(root)
	m.mu.Unlock()

	e.addCandidate(existing)
	e.addCandidate(attempted)
	m.trackHash(existing.Hash(), root)
	m.trackHash(attempted.Hash(), root)
}

// electionForLocked returns root's election, creating it if absent.
// Caller must hold m.mu and remains responsible for releasing it.
func (m *Manager) electionForLocked(root QualifiedRoot) *Election {
	if e, ok := m.elections[root]; ok {
		return e
	}
	e := newElection(root)
	if len(m.elections) < m.cfg.MaxActiveElections || m.cfg.MaxActiveElections == 0 {
		m.elections[root] = e
		if m.observer != nil {
			m.observer.ElectionStarted(root.Root)
		}
	}
	return e
}

// trackHash remembers which election a candidate hash belongs to, so
// IngestVote can route a vote straight to its election without scanning
// every live one.
func (m *Manager) trackHash(hash ledgertypes.Hash, root QualifiedRoot) {
	m.mu.Lock()
	m.byHash[hash] = root
	m.mu.Unlock()
}

// IngestVote applies a validly-signed vote to every election whose
// candidate set contains one of the vote's hashes, checking each
// affected election against quorum afterward (spec.md §4.6 "valid votes
// are applied to the matching active election's tally").
func (m *Manager) IngestVote(ctx context.Context, v *ledgertypes.Vote, now time.Time) {
	weight := m.weights.Weight(v.Representative)
	if weight.IsZero() {
		return
	}
	m.online.Observe(v.Representative, now)

	for _, hash := range v.Hashes {
		m.mu.Lock()
		root, tracked := m.byHash[hash]
		var e *Election
		if tracked {
			e = m.elections[root]
		} else {
			for _, candidate := range m.elections {
				if _, ok := candidate.candidateBlock(hash); ok {
					e = candidate
					root = candidate.root
					break
				}
			}
		}
		m.mu.Unlock()
		if e == nil {
			continue
		}
		m.trackHash(hash, root)

		leader, tally, ok := e.ingestVote(v, hash, weight)
		if !ok {
			continue
		}
		threshold := m.online.QuorumThreshold(now, m.cfg.QuorumNumerator, m.cfg.QuorumDenominator)
		if tally.Cmp(threshold) >= 0 {
			m.confirmElection(ctx, e, leader, now)
		}
	}
}

// confirmElection finalizes e on winner: marks it confirmed, appends a
// recently-cemented entry, promotes any blocks deferred on this hash,
// and pushes winner onto the block processor's forced queue. That push
// happens for every confirmation: the forced path rolls back a
// conflicting incumbent before applying winner, and classifies winner
// as old (no ledger change) when the ledger already holds it.
func (m *Manager) confirmElection(ctx context.Context, e *Election, winner ledgertypes.Hash, now time.Time) {
	if e.Status() != StatusStarted {
		return
	}
	winnerBlock, ok := e.candidateBlock(winner)
	if !ok {
		return
	}
	e.confirm(winner)

	account, _ := winnerBlock.SignerAccount()
	m.appendCemented(CementedEntry{Hash: winner, Account: account, Timestamp: now})

	if m.processor != nil {
		m.processor.Enqueue(blockprocessor.SourceForced, winnerBlock)
	}
	if m.confHeight != nil {
		m.confHeight.Enqueue(winner)
	}

	hashes := e.candidateHashes()
	m.mu.Lock()
	delete(m.elections, e.root)
	for _, hash := range hashes {
		delete(m.byHash, hash)
	}
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ElectionStopped(e.root.Root, winner, true)
	}

	m.promoteDeferred(winner)
}

// promoteDeferred re-enqueues blocks that were parked waiting on hash's
// election to resolve (spec.md §4.5 "a confirmed predecessor unparks its
// waiting successors").
func (m *Manager) promoteDeferred(hash ledgertypes.Hash) {
	m.mu.Lock()
	waiting := m.deferred[hash]
	delete(m.deferred, hash)
	m.mu.Unlock()

	for _, b := range waiting {
		root := qualifiedRootOf(b)
		m.mu.Lock()
		e := m.electionForLocked(root)
		m.mu.Unlock()
		e.addCandidate(b)
		m.trackHash(b.Hash(), root)
	}
}

func (m *Manager) appendCemented(entry CementedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentlyCemented = append(m.recentlyCemented, entry)
	if cap := m.cfg.RecentlyCementedCapacity; cap > 0 && len(m.recentlyCemented) > cap {
		m.recentlyCemented = m.recentlyCemented[len(m.recentlyCemented)-cap:]
	}
}

// RecentlyCemented returns a copy of the bounded recently-confirmed ring
// for observers and RPC (spec.md §4.5).
func (m *Manager) RecentlyCemented() []CementedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CementedEntry, len(m.recentlyCemented))
	copy(out, m.recentlyCemented)
	return out
}

// Active reports how many elections are currently live.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.elections)
}

// ElectionFor returns the election tracking hash, if any, for status
// inspection (RPC, tests).
func (m *Manager) ElectionFor(hash ledgertypes.Hash) (*Election, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, ok := m.byHash[hash]
	if !ok {
		return nil, false
	}
	e, ok := m.elections[root]
	return e, ok
}

// PrincipalRepresentatives returns the current principal-weight
// representative set, for the aggressive-flooding fanout a network
// layer would use (spec.md §4.5).
func (m *Manager) PrincipalRepresentatives() []ledgertypes.Account {
	return m.weights.Principals(m.cfg.PrincipalMinWeight)
}

// Expire abandons an election without touching the ledger (spec.md
// §4.5 "Cancellation").
func (m *Manager) Expire(hash ledgertypes.Hash) {
	m.mu.Lock()
	root, ok := m.byHash[hash]
	var e *Election
	if ok {
		e = m.elections[root]
		delete(m.elections, root)
	}
	m.mu.Unlock()
	if e == nil {
		return
	}
	e.expire()
	hashes := e.candidateHashes()
	m.mu.Lock()
	for _, h := range hashes {
		delete(m.byHash, h)
	}
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ElectionStopped(root.Root, ledgertypes.Hash{}, false)
	}
}
