// Package node wires every subsystem package into a single running
// ledger node (SPEC_FULL.md §4.11), the way the teacher's datx.DATx and
// eth.Ethereum structs own their whole subsystem graph. Construction is
// leaves-first: store, then the repweight table, ledger and online reps,
// then work/unchecked, then blockprocessor, then election, then vote,
// then confheight, then prune, wired together with the observer
// registry last.
package node

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nanocurrency/nanogod/blockprocessor"
	"github.com/nanocurrency/nanogod/confheight"
	"github.com/nanocurrency/nanogod/election"
	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/observer"
	"github.com/nanocurrency/nanogod/prune"
	"github.com/nanocurrency/nanogod/repweight"
	"github.com/nanocurrency/nanogod/store"
	"github.com/nanocurrency/nanogod/store/leveldbstore"
	"github.com/nanocurrency/nanogod/unchecked"
	"github.com/nanocurrency/nanogod/vote"
	"github.com/nanocurrency/nanogod/work"
)

// Config gathers every subsystem's configuration in one place, the same
// role DefaultConfig/Config play in the teacher's node package (now
// carrying ledger parameters instead of P2P/RPC endpoint settings, since
// this repository's wire/RPC surface is a thin interface rather than a
// real listener — SPEC_FULL.md §4.12).
type Config struct {
	DataDir         string
	BlockCacheBytes int

	Genesis ledger.GenesisSpec
	Epochs  map[uint8]ledger.EpochSpec

	WorkThresholds    work.Thresholds
	UncheckedCapacity int

	// OnlineWeightMinimum floors the quorum threshold regardless of how
	// far trended stake has decayed (spec.md §4.5).
	OnlineWeightMinimum ledgertypes.Amount

	BlockProcessor blockprocessor.Config
	Election       election.Config

	VoteUnclaimedCapacity int

	ConfirmationHeight confheight.Config

	// PruneEnabled gates whether the pruner ever runs at all (spec.md
	// §4.9 "when enabled").
	PruneEnabled bool
	Prune        prune.Config
}

// Node owns one running instance of every subsystem and the one-way
// references wiring them together.
type Node struct {
	cfg Config
	log *zap.Logger

	store  store.Store
	ledger *ledger.Ledger

	work      *work.Validator
	unchecked *unchecked.Buffer

	weights *repweight.Table
	online  *repweight.OnlineReps

	blockProcessor *blockprocessor.Processor
	election       *election.Manager
	vote           *vote.Processor
	confHeight     *confheight.Processor
	pruner         *prune.Pruner

	observer *observer.Registry
}

// electionFeedWithReplay adapts *election.Manager to
// blockprocessor.ElectionFeed while additionally replaying any votes the
// vote processor stashed for a hash before that hash's election existed
// to claim them (spec.md §4.6 "a later-started election can seed from
// them"). The block processor never needs to know this extra step
// happens; it only sees the two methods its ElectionFeed interface
// requires.
type electionFeedWithReplay struct {
	manager *election.Manager
	votes   *vote.Processor
}

func (e electionFeedWithReplay) Progress(b *ledgertypes.Block) {
	e.manager.Progress(b)
	e.votes.ReplayUnclaimed(context.Background(), b.Hash(), time.Now())
}

func (e electionFeedWithReplay) Fork(existing, attempted *ledgertypes.Block) {
	e.manager.Fork(existing, attempted)
	e.votes.ReplayUnclaimed(context.Background(), existing.Hash(), time.Now())
	e.votes.ReplayUnclaimed(context.Background(), attempted.Hash(), time.Now())
}

// New opens the store, builds every subsystem and wires them together,
// but does not seed genesis or start any background loop; call Start for
// that.
func New(cfg Config) (*Node, error) {
	if cfg.BlockCacheBytes <= 0 {
		cfg.BlockCacheBytes = 32 * 1024 * 1024
	}
	if cfg.WorkThresholds == (work.Thresholds{}) {
		cfg.WorkThresholds = work.DefaultThresholds
	}
	if cfg.Epochs == nil {
		cfg.Epochs = map[uint8]ledger.EpochSpec{}
	}

	s, err := leveldbstore.Open(cfg.DataDir, cfg.BlockCacheBytes)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	weights := repweight.NewTable()
	l := ledger.New(weights, cfg.Genesis, cfg.Epochs)
	online := repweight.NewOnlineReps(weights, cfg.OnlineWeightMinimum)

	validator := work.NewValidator(cfg.WorkThresholds)
	ub, err := unchecked.New(cfg.UncheckedCapacity)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("node: unchecked buffer: %w", err)
	}

	bp := blockprocessor.New(s, l, validator, ub, cfg.BlockProcessor)

	em := election.NewManager(s, l, weights, online, cfg.Election)
	em.SetProcessor(bp)

	vp, err := vote.New(em, cfg.VoteUnclaimedCapacity)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("node: vote processor: %w", err)
	}

	ch := confheight.New(s, l, cfg.ConfirmationHeight)
	em.SetConfirmationFeed(ch)
	pr := prune.New(s, l, cfg.Prune)

	reg := observer.NewRegistry()
	bp.SetObserver(reg)
	em.SetObserver(reg)
	vp.SetObserver(reg)
	ch.SetObserver(reg)

	bp.SetElectionFeed(electionFeedWithReplay{manager: em, votes: vp})

	return &Node{
		cfg:            cfg,
		log:            zap.NewNop(),
		store:          s,
		ledger:         l,
		work:           validator,
		unchecked:      ub,
		weights:        weights,
		online:         online,
		blockProcessor: bp,
		election:       em,
		vote:           vp,
		confHeight:     ch,
		pruner:         pr,
		observer:       reg,
	}, nil
}

// SetLogger propagates log to every subsystem that accepts one.
func (n *Node) SetLogger(log *zap.Logger) {
	n.log = log
	n.blockProcessor.SetLogger(log)
	n.election.SetLogger(log)
	n.confHeight.SetLogger(log)
	n.pruner.SetLogger(log)
}

// Start seeds the genesis block if the store is empty, then starts every
// background loop: the block processor's dispatch loop, the
// confirmation-height processor's drain loop, and — if PruneEnabled —
// the pruner's sweep timer.
func (n *Node) Start(ctx context.Context) error {
	txn, err := n.store.Begin(ctx, true)
	if err != nil {
		return fmt.Errorf("node: begin genesis transaction: %w", err)
	}
	if err := n.ledger.InitGenesis(txn); err != nil {
		txn.Discard()
		return fmt.Errorf("node: init genesis: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("node: commit genesis: %w", err)
	}

	n.blockProcessor.Start(ctx)
	n.confHeight.Start(ctx)
	if n.cfg.PruneEnabled {
		n.pruner.Run(ctx)
	}
	return nil
}

// Stop shuts every background loop down in reverse construction order
// and closes the store.
func (n *Node) Stop() error {
	if n.cfg.PruneEnabled {
		n.pruner.Stop()
	}
	n.confHeight.Stop()
	n.blockProcessor.Stop()
	return n.store.Close()
}

func (n *Node) Store() store.Store                       { return n.store }
func (n *Node) Ledger() *ledger.Ledger                    { return n.ledger }
func (n *Node) Weights() *repweight.Table                 { return n.weights }
func (n *Node) OnlineReps() *repweight.OnlineReps         { return n.online }
func (n *Node) BlockProcessor() *blockprocessor.Processor { return n.blockProcessor }
func (n *Node) Election() *election.Manager               { return n.election }
func (n *Node) Vote() *vote.Processor                     { return n.vote }
func (n *Node) ConfirmationHeight() *confheight.Processor { return n.confHeight }
func (n *Node) Pruner() *prune.Pruner                     { return n.pruner }
func (n *Node) Observer() *observer.Registry              { return n.observer }
