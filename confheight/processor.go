// Package confheight implements the Confirmation-Height Processor
// (spec.md §4.7): given a confirmed block hash, it walks backward through
// that account's chain — and, recursively, through any receive-source
// chain a cemented block drew from — until every reachable ancestor is
// itself recorded as confirmed, batching the resulting writes to
// confirmation_height and firing an observer once per block in commit
// order.
package confheight

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
)

// Config sizes the input queue and bounds how much of one account's
// backlog a single write transaction cements (spec.md §4.7 "batched
// writes", "bounded queue prevents unbounded catch-up").
type Config struct {
	QueueCapacity     int
	MaxBlocksPerBatch int
}

var DefaultConfig = Config{
	QueueCapacity:     4096,
	MaxBlocksPerBatch: 256,
}

// Observer receives one notification per cemented block, in the order it
// was committed. Satisfied structurally by observer.Registry.
type Observer interface {
	BlockCemented(account ledgertypes.Account, hash ledgertypes.Hash, height uint64)
}

// Processor drains confirmed-hash notifications and cements the chain
// behind each one.
type Processor struct {
	store  store.Store
	ledger *ledger.Ledger
	cfg    Config
	log    *zap.Logger

	observer Observer

	queue chan ledgertypes.Hash

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	cemented atomic.Uint64
	dropped  atomic.Uint64
}

// New builds a Processor. cfg's zero value is rejected in favor of
// DefaultConfig's sizing.
func New(s store.Store, l *ledger.Ledger, cfg Config) *Processor {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig.QueueCapacity
	}
	if cfg.MaxBlocksPerBatch <= 0 {
		cfg.MaxBlocksPerBatch = DefaultConfig.MaxBlocksPerBatch
	}
	return &Processor{
		store:  s,
		ledger: l,
		cfg:    cfg,
		log:    zap.NewNop(),
		queue:  make(chan ledgertypes.Hash, cfg.QueueCapacity),
		stopCh: make(chan struct{}),
	}
}

func (p *Processor) SetLogger(log *zap.Logger) { p.log = log }
func (p *Processor) SetObserver(o Observer)    { p.observer = o }

// Cemented returns the number of blocks this processor has recorded as
// confirmed so far.
func (p *Processor) Cemented() uint64 { return p.cemented.Load() }

// Dropped returns how many enqueue attempts were refused because the
// queue was saturated.
func (p *Processor) Dropped() uint64 { return p.dropped.Load() }

// Enqueue offers hash for cementing without blocking, reporting whether
// it was accepted (spec.md §4.7 "bounded queue prevents unbounded
// catch-up blocking the writer").
func (p *Processor) Enqueue(hash ledgertypes.Hash) bool {
	select {
	case p.queue <- hash:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Start runs the drain loop in a background goroutine until Stop or ctx
// is canceled.
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case hash := <-p.queue:
				p.process(ctx, hash)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the current item to
// finish.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// ProcessAll synchronously drains the queue, including any source-chain
// follow-up work it enqueues along the way. Safe to call without Start;
// used by tests and by callers that want a deterministic catch-up point.
func (p *Processor) ProcessAll(ctx context.Context) {
	for {
		select {
		case hash := <-p.queue:
			p.process(ctx, hash)
		default:
			return
		}
	}
}

// process cements as much of hash's account chain as MaxBlocksPerBatch
// allows in one write transaction, re-enqueueing hash if the chain has
// more uncemented ancestors left, and enqueueing any receive-source hash
// uncovered along the way so its chain gets the same treatment.
func (p *Processor) process(ctx context.Context, hash ledgertypes.Hash) {
	rtxn, err := p.store.Begin(ctx, false)
	if err != nil {
		p.log.Warn("confirmation height processor could not open read transaction", zap.Error(err))
		return
	}

	b, ok, err := p.ledger.BlockGet(rtxn, hash)
	if err != nil || !ok {
		rtxn.Discard()
		if err != nil {
			p.log.Warn("confirmation height processor could not load block", zap.Error(err))
		}
		return
	}
	account := b.Sideband.Account
	targetHeight := b.Sideband.Height

	currentHeight, err := confirmationHeight(rtxn, account)
	if err != nil {
		rtxn.Discard()
		p.log.Warn("confirmation height processor could not load confirmation height", zap.Error(err))
		return
	}

	if targetHeight <= currentHeight {
		rtxn.Discard()
		return
	}

	// Walk backward from hash over every ancestor strictly above
	// currentHeight, newest first, keeping only the oldest
	// MaxBlocksPerBatch of them so one pass cements a contiguous prefix
	// and one account's backlog cannot stall the writer indefinitely.
	var chain []*ledgertypes.Block
	var hashes []ledgertypes.Hash
	cur := hash
	curBlock := b
	for {
		if curBlock.Sideband.Height <= currentHeight {
			break
		}
		chain = append(chain, curBlock)
		hashes = append(hashes, cur)
		if len(chain) > p.cfg.MaxBlocksPerBatch {
			chain = chain[1:]
			hashes = hashes[1:]
		}
		if curBlock.Sideband.Height == currentHeight+1 {
			break
		}
		cur = curBlock.Previous
		next, ok, err := p.ledger.BlockGet(rtxn, cur)
		if err != nil || !ok {
			break
		}
		curBlock = next
	}
	rtxn.Discard()

	if len(chain) == 0 {
		return
	}

	// chain/hashes are newest-first; reverse to commit order (oldest,
	// i.e. lowest height, first).
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}

	newHeight := chain[len(chain)-1].Sideband.Height
	newFrontier := hashes[len(hashes)-1]

	wtxn, err := p.store.Begin(ctx, true)
	if err != nil {
		p.log.Warn("confirmation height processor could not open write transaction", zap.Error(err))
		return
	}
	chInfo := ledgertypes.ConfirmationHeightInfo{Height: newHeight, Frontier: newFrontier}
	if err := wtxn.Put(store.TableConfirmationHeight, account[:], chInfo.MarshalBinary()); err != nil {
		wtxn.Discard()
		p.log.Warn("confirmation height processor could not write confirmation height", zap.Error(err))
		return
	}
	if err := wtxn.Commit(); err != nil {
		p.log.Warn("confirmation height processor could not commit", zap.Error(err))
		return
	}

	p.cemented.Add(uint64(len(chain)))
	for i, blk := range chain {
		if p.observer != nil {
			p.observer.BlockCemented(account, hashes[i], blk.Sideband.Height)
		}
		if src, ok := receiveSourceHash(blk); ok {
			p.Enqueue(src)
		}
	}

	if newHeight < targetHeight {
		// Batch cap hit before reaching the originally requested height;
		// pick the walk back up next round.
		p.Enqueue(hash)
	}
}

// confirmationHeight reads an account's current confirmation height
// directly, mirroring the lookup ledger.BlockConfirmed performs
// internally; 0 (never confirmed) if the account has no recorded entry
// yet.
func confirmationHeight(txn store.Txn, account ledgertypes.Account) (uint64, error) {
	data, ok, err := txn.Get(store.TableConfirmationHeight, account[:])
	if err != nil || !ok {
		return 0, err
	}
	var ch ledgertypes.ConfirmationHeightInfo
	if err := ch.UnmarshalBinary(data); err != nil {
		return 0, err
	}
	return ch.Height, nil
}

// receiveSourceHash returns the send block hash a receive/open/state-
// receive block consumed, mirroring ledger.receiveSourceHash's kind
// switch (unexported there, so the same small dispatch is repeated here
// rather than exported solely for this one caller).
func receiveSourceHash(b *ledgertypes.Block) (ledgertypes.Hash, bool) {
	if !b.Sideband.IsReceive {
		return ledgertypes.Hash{}, false
	}
	switch b.Kind {
	case ledgertypes.KindReceive, ledgertypes.KindOpen:
		return b.Source, true
	case ledgertypes.KindState:
		return b.Link, true
	default:
		return ledgertypes.Hash{}, false
	}
}
