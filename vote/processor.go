// Package vote implements the Vote Processor and Local Vote Cache
// (spec.md §4.6): validating incoming confirm_ack votes, dispatching
// them to active elections, retaining votes an election hasn't started
// yet, and generating the node's own votes when it holds representative
// keys.
package vote

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nanocurrency/nanogod/election"
	"github.com/nanocurrency/nanogod/ledgertypes"
)

// MaxHashesPerVote caps how many candidate hashes a single generated
// vote batches together, amortizing signature cost (spec.md §4.6
// "aggregated ... up to a size cap").
const MaxHashesPerVote = 12

// DefaultUnclaimedCapacity bounds how many distinct hashes the processor
// retains votes for when no election has claimed them yet (spec.md §4.6
// "unclaimed votes ... are briefly retained").
const DefaultUnclaimedCapacity = 4096

// electionFeed is the slice of *election.Manager the vote processor
// drives.
type electionFeed interface {
	IngestVote(ctx context.Context, v *ledgertypes.Vote, now time.Time)
	ElectionFor(hash ledgertypes.Hash) (*election.Election, bool)
}

// Observer receives notice of every validly-signed vote the processor
// accepts. Satisfied structurally by observer.Registry.
type Observer interface {
	VoteReceived(representative ledgertypes.Account, sequence uint64, hashes []ledgertypes.Hash)
}

// RootHash pairs a candidate hash with the qualified root it belongs to,
// the unit confirm_req asks about and generated votes are cached under.
type RootHash struct {
	Root ledgertypes.Hash
	Hash ledgertypes.Hash
}

// Processor validates incoming votes, forwards them to elections,
// retains unclaimed ones, and generates/caches this node's own votes.
type Processor struct {
	mu sync.Mutex

	elections electionFeed
	observer  Observer

	unclaimed *lru.Cache[ledgertypes.Hash, []*ledgertypes.Vote]
	history   map[RootHash]*ledgertypes.Vote

	representatives map[ledgertypes.Account]ed25519.PrivateKey
	sequence        map[ledgertypes.Account]uint64
}

// New builds a Processor. unclaimedCapacity <= 0 uses
// DefaultUnclaimedCapacity.
func New(elections electionFeed, unclaimedCapacity int) (*Processor, error) {
	if unclaimedCapacity <= 0 {
		unclaimedCapacity = DefaultUnclaimedCapacity
	}
	cache, err := lru.New[ledgertypes.Hash, []*ledgertypes.Vote](unclaimedCapacity)
	if err != nil {
		return nil, err
	}
	return &Processor{
		elections:       elections,
		unclaimed:       cache,
		history:         make(map[RootHash]*ledgertypes.Vote),
		representatives: make(map[ledgertypes.Account]ed25519.PrivateKey),
		sequence:        make(map[ledgertypes.Account]uint64),
	}, nil
}

// SetObserver registers a listener notified of every accepted vote.
func (p *Processor) SetObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = o
}

// ErrBadSignature is returned by ProcessVote when the claimed
// representative's key doesn't verify the vote's signature.
var ErrBadSignature = errors.New("vote: bad signature")

// ProcessVote validates v (decode is the caller's job; this checks the
// signature over (sequence, hash_list)) and dispatches it to whichever
// elections currently track its hashes, stashing the rest as unclaimed
// for a later-started election to replay (spec.md §4.6).
func (p *Processor) ProcessVote(ctx context.Context, v *ledgertypes.Vote, now time.Time) error {
	if !v.VerifySignature() {
		return ErrBadSignature
	}

	p.mu.Lock()
	for _, hash := range v.Hashes {
		if _, ok := p.elections.ElectionFor(hash); ok {
			continue
		}
		existing, _ := p.unclaimed.Get(hash)
		p.unclaimed.Add(hash, append(existing, v))
	}
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer.VoteReceived(v.Representative, v.Sequence, v.Hashes)
	}
	p.elections.IngestVote(ctx, v, now)
	return nil
}

// ReplayUnclaimed re-submits every vote stashed against hash (typically
// called right after an election starts tracking it) and clears them
// from the unclaimed cache (spec.md §4.6 "a later-started election can
// seed from them").
func (p *Processor) ReplayUnclaimed(ctx context.Context, hash ledgertypes.Hash, now time.Time) {
	p.mu.Lock()
	votes, ok := p.unclaimed.Get(hash)
	if ok {
		p.unclaimed.Remove(hash)
	}
	p.mu.Unlock()

	for _, v := range votes {
		p.elections.IngestVote(ctx, v, now)
	}
}

// AddRepresentative registers a local representative key the processor
// may generate votes for.
func (p *Processor) AddRepresentative(account ledgertypes.Account, priv ed25519.PrivateKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.representatives[account] = priv
	if _, ok := p.sequence[account]; !ok {
		p.sequence[account] = 0
	}
}

// Representatives returns the accounts this processor can generate votes
// for.
func (p *Processor) Representatives() []ledgertypes.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ledgertypes.Account, 0, len(p.representatives))
	for a := range p.representatives {
		out = append(out, a)
	}
	return out
}

// nextSequence returns and increments rep's monotonic sequence counter.
// Caller must hold p.mu.
func (p *Processor) nextSequence(rep ledgertypes.Account) uint64 {
	seq := p.sequence[rep] + 1
	p.sequence[rep] = seq
	return seq
}

// Generate produces (and caches) a batched vote from rep covering up to
// MaxHashesPerVote of pairs, signed at the next sequence number. A
// request for more than the cap is truncated; callers wanting full
// coverage issue multiple Generate calls.
func (p *Processor) Generate(rep ledgertypes.Account, pairs []RootHash) (*ledgertypes.Vote, error) {
	p.mu.Lock()
	priv, ok := p.representatives[rep]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("vote: no local key registered for representative %s", rep)
	}
	if len(pairs) > MaxHashesPerVote {
		pairs = pairs[:MaxHashesPerVote]
	}
	seq := p.nextSequence(rep)
	p.mu.Unlock()

	hashes := make([]ledgertypes.Hash, len(pairs))
	for i, pair := range pairs {
		hashes[i] = pair.Hash
	}
	v := &ledgertypes.Vote{Representative: rep, Sequence: seq, Hashes: hashes}
	v.Sign(priv)

	p.mu.Lock()
	for _, pair := range pairs {
		p.history[pair] = v
	}
	p.mu.Unlock()

	return v, nil
}

// GenerateFinal produces a final vote (spec.md §4.6 reserved maximum
// sequence), the irrevocable commitment used as rollback protection,
// covering a single candidate.
func (p *Processor) GenerateFinal(rep ledgertypes.Account, pair RootHash) (*ledgertypes.Vote, error) {
	p.mu.Lock()
	priv, ok := p.representatives[rep]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vote: no local key registered for representative %s", rep)
	}

	v := &ledgertypes.Vote{Representative: rep, Sequence: ledgertypes.FinalVoteSequence, Hashes: []ledgertypes.Hash{pair.Hash}}
	v.Sign(priv)

	p.mu.Lock()
	p.history[pair] = v
	p.mu.Unlock()

	return v, nil
}

// Cached returns the last vote generated covering pair, for confirm_req
// handling that prefers reusing a signature over regenerating one
// (spec.md §4.6 "reuse the cached signature rather than regenerate").
func (p *Processor) Cached(pair RootHash) (*ledgertypes.Vote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.history[pair]
	return v, ok
}

// CachedOrGenerate returns the cached vote for pair if one exists,
// otherwise generates and caches a fresh single-hash vote from rep.
func (p *Processor) CachedOrGenerate(rep ledgertypes.Account, pair RootHash) (*ledgertypes.Vote, error) {
	if v, ok := p.Cached(pair); ok {
		return v, nil
	}
	return p.Generate(rep, []RootHash{pair})
}
