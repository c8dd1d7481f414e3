// Package observer is the node's event fan-out: a small set of typed
// feeds (spec.md §4.10 is silent on transport, but every other
// subsystem needs a way to tell the outside world what just happened)
// modeled on the teacher's event.Feed/TypeMux pair, generalized to Go
// generics so each event type gets its own channel-based subscription
// instead of a single interface{} bus.
package observer

import (
	"sync"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

// BlockConfirmed is published once a block's confirmation height has
// been recorded (the confheight.Observer callback, replayed here).
type BlockConfirmed struct {
	Account ledgertypes.Account
	Hash    ledgertypes.Hash
	Height  uint64
}

// VoteReceived is published for every validly-signed vote the vote
// processor accepts, before it is dispatched to an election.
type VoteReceived struct {
	Representative ledgertypes.Account
	Sequence       uint64
	Hashes         []ledgertypes.Hash
}

// AccountBalanceChanged is published whenever the block processor
// applies a state block, carrying that block's resulting balance (also
// for change and epoch blocks, whose balance is unchanged).
type AccountBalanceChanged struct {
	Account ledgertypes.Account
	Balance ledgertypes.Amount
}

// ElectionStarted is published when the active-elections manager opens
// a new election for a qualified root.
type ElectionStarted struct {
	Root ledgertypes.Hash
}

// ElectionStopped is published when an election leaves the active set,
// whether by confirmation or by expiry; Confirmed distinguishes the two
// and Winner is the zero hash on expiry.
type ElectionStopped struct {
	Root      ledgertypes.Hash
	Winner    ledgertypes.Hash
	Confirmed bool
}

// feed is a minimal single-type event.Feed: Send delivers to every
// currently-subscribed channel without blocking on a slow or absent
// one, and Subscribe/unsubscribe keep the channel set current.
type feed[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{subs: make(map[chan T]struct{})}
}

// Subscription is returned by Subscribe; call Unsubscribe when the
// receiver is done listening.
type Subscription[T any] struct {
	f *feed[T]
	c chan T
}

// Unsubscribe stops delivery to this subscription's channel and closes
// it. Safe to call once.
func (s *Subscription[T]) Unsubscribe() {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if _, ok := s.f.subs[s.c]; ok {
		delete(s.f.subs, s.c)
		close(s.c)
	}
}

// Chan returns the channel this subscription delivers events on.
func (s *Subscription[T]) Chan() <-chan T { return s.c }

func (f *feed[T]) subscribe(capacity int) *Subscription[T] {
	if capacity <= 0 {
		capacity = 16
	}
	c := make(chan T, capacity)
	f.mu.Lock()
	f.subs[c] = struct{}{}
	f.mu.Unlock()
	return &Subscription[T]{f: f, c: c}
}

// send delivers event to every subscriber, dropping it for any whose
// channel is currently full rather than blocking the publisher — the
// same non-blocking-queue discipline used by the block processor and
// confirmation-height queues, applied here to fan-out instead of work
// intake.
func (f *feed[T]) send(event T) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	delivered := 0
	for c := range f.subs {
		select {
		case c <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Registry holds one feed per event type and is the fan-out point every
// subsystem publishes to and every subscriber reads from; within this
// repository only the package's tests subscribe. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	blockConfirmed        *feed[BlockConfirmed]
	voteReceived          *feed[VoteReceived]
	accountBalanceChanged *feed[AccountBalanceChanged]
	electionStarted       *feed[ElectionStarted]
	electionStopped       *feed[ElectionStopped]
}

// NewRegistry builds an empty Registry ready to accept subscribers and
// publishers.
func NewRegistry() *Registry {
	return &Registry{
		blockConfirmed:        newFeed[BlockConfirmed](),
		voteReceived:          newFeed[VoteReceived](),
		accountBalanceChanged: newFeed[AccountBalanceChanged](),
		electionStarted:       newFeed[ElectionStarted](),
		electionStopped:       newFeed[ElectionStopped](),
	}
}

// SubscribeBlockConfirmed registers a new listener with the given
// buffer capacity (<=0 uses a small default).
func (r *Registry) SubscribeBlockConfirmed(capacity int) *Subscription[BlockConfirmed] {
	return r.blockConfirmed.subscribe(capacity)
}

func (r *Registry) SubscribeVoteReceived(capacity int) *Subscription[VoteReceived] {
	return r.voteReceived.subscribe(capacity)
}

func (r *Registry) SubscribeAccountBalanceChanged(capacity int) *Subscription[AccountBalanceChanged] {
	return r.accountBalanceChanged.subscribe(capacity)
}

func (r *Registry) SubscribeElectionStarted(capacity int) *Subscription[ElectionStarted] {
	return r.electionStarted.subscribe(capacity)
}

func (r *Registry) SubscribeElectionStopped(capacity int) *Subscription[ElectionStopped] {
	return r.electionStopped.subscribe(capacity)
}

// PublishVoteReceived fans v out to VoteReceived subscribers.
func (r *Registry) PublishVoteReceived(v VoteReceived) int { return r.voteReceived.send(v) }

// PublishAccountBalanceChanged fans a balance change out to subscribers.
func (r *Registry) PublishAccountBalanceChanged(e AccountBalanceChanged) int {
	return r.accountBalanceChanged.send(e)
}

// PublishElectionStarted fans an election's opening out to subscribers.
func (r *Registry) PublishElectionStarted(e ElectionStarted) int { return r.electionStarted.send(e) }

// PublishElectionStopped fans an election's closing out to subscribers.
func (r *Registry) PublishElectionStopped(e ElectionStopped) int { return r.electionStopped.send(e) }

// BlockCemented implements confheight.Observer, translating its
// per-block callback into a published BlockConfirmed event.
func (r *Registry) BlockCemented(account ledgertypes.Account, hash ledgertypes.Hash, height uint64) {
	r.blockConfirmed.send(BlockConfirmed{Account: account, Hash: hash, Height: height})
}

// ElectionStarted implements election.Observer, translating a newly
// opened election into a published ElectionStarted event.
func (r *Registry) ElectionStarted(root ledgertypes.Hash) {
	r.electionStarted.send(ElectionStarted{Root: root})
}

// ElectionStopped implements election.Observer, translating an
// election's confirmation or expiry into a published ElectionStopped
// event.
func (r *Registry) ElectionStopped(root, winner ledgertypes.Hash, confirmed bool) {
	r.electionStopped.send(ElectionStopped{Root: root, Winner: winner, Confirmed: confirmed})
}

// VoteReceived implements vote.Observer, translating an accepted vote
// into a published VoteReceived event.
func (r *Registry) VoteReceived(representative ledgertypes.Account, sequence uint64, hashes []ledgertypes.Hash) {
	r.voteReceived.send(VoteReceived{Representative: representative, Sequence: sequence, Hashes: hashes})
}

// BlockProcessed implements blockprocessor.Observer. The new balance of
// a state block applied with ResultProgress is published as an
// AccountBalanceChanged event;
// legacy block kinds and non-progress results carry no balance change
// this registry can report without a ledger lookup, so they are
// ignored here.
func (r *Registry) BlockProcessed(result ledgertypes.ProcessResult, b *ledgertypes.Block) {
	if result != ledgertypes.ResultProgress {
		return
	}
	if b.Kind != ledgertypes.KindState {
		return
	}
	r.accountBalanceChanged.send(AccountBalanceChanged{Account: b.Account, Balance: b.BalanceAfter})
}
