package blockprocessor

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
	"github.com/nanocurrency/nanogod/unchecked"
	"github.com/nanocurrency/nanogod/work"
)

// Config sizes the three queues and the per-batch ceiling (spec.md §4.4).
type Config struct {
	PriorityCapacity int
	ForcedCapacity   int
	StandardCapacity int
	BatchSize        int
}

// DefaultConfig gives the standard queue the bulk of the capacity since
// it absorbs unsolicited peer traffic; priority and forced traffic is
// comparatively rare and latency-sensitive.
var DefaultConfig = Config{
	PriorityCapacity: 1024,
	ForcedCapacity:   1024,
	StandardCapacity: 16384,
	BatchSize:        256,
}

// Processor is the single-writer block processing loop.
type Processor struct {
	store     store.Store
	ledger    *ledger.Ledger
	validator *work.Validator
	unchecked *unchecked.Buffer
	cfg       Config
	log       *zap.Logger

	priority chan Item
	forced   chan Item
	standard chan Item

	republisher Republisher
	elections   ElectionFeed
	observer    Observer

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	processed atomic.Uint64
	dropped   atomic.Uint64
	forked    atomic.Uint64
	gapped    atomic.Uint64
}

// New builds a Processor against its three collaborators. cfg's zero
// value is rejected in favor of DefaultConfig's sizing.
func New(s store.Store, l *ledger.Ledger, validator *work.Validator, u *unchecked.Buffer, cfg Config) *Processor {
	if cfg.PriorityCapacity <= 0 {
		cfg.PriorityCapacity = DefaultConfig.PriorityCapacity
	}
	if cfg.ForcedCapacity <= 0 {
		cfg.ForcedCapacity = DefaultConfig.ForcedCapacity
	}
	if cfg.StandardCapacity <= 0 {
		cfg.StandardCapacity = DefaultConfig.StandardCapacity
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	return &Processor{
		store:     s,
		ledger:    l,
		validator: validator,
		unchecked: u,
		cfg:       cfg,
		log:       zap.NewNop(),
		priority:  make(chan Item, cfg.PriorityCapacity),
		forced:    make(chan Item, cfg.ForcedCapacity),
		standard:  make(chan Item, cfg.StandardCapacity),
		stopCh:    make(chan struct{}),
	}
}

func (p *Processor) SetLogger(log *zap.Logger)    { p.log = log }
func (p *Processor) SetRepublisher(r Republisher) { p.republisher = r }
func (p *Processor) SetElectionFeed(e ElectionFeed) { p.elections = e }
func (p *Processor) SetObserver(o Observer)         { p.observer = o }

// Enqueue offers b to the named queue without blocking, reporting
// whether it was accepted. Backpressure (Full/HalfFull) is the caller's
// signal to refuse ingest before calling Enqueue at all (spec.md §4.4
// "upstream peer-ingest paths must refuse to enqueue when full").
func (p *Processor) Enqueue(source Source, b *ledgertypes.Block) bool {
	select {
	case p.queueFor(source) <- Item{Block: b, Source: source}:
		return true
	default:
		return false
	}
}

func (p *Processor) queueFor(source Source) chan Item {
	switch source {
	case SourcePriority:
		return p.priority
	case SourceForced:
		return p.forced
	default:
		return p.standard
	}
}

func (p *Processor) capacity() int {
	return cap(p.priority) + cap(p.forced) + cap(p.standard)
}

func (p *Processor) depth() int {
	return len(p.priority) + len(p.forced) + len(p.standard)
}

// Full reports whether every queue is saturated enough that new work
// should be refused upstream.
func (p *Processor) Full() bool { return p.depth() >= p.capacity() }

// HalfFull reports the earlier backpressure warning threshold.
func (p *Processor) HalfFull() bool { return p.depth() >= p.capacity()/2 }

func (p *Processor) Processed() uint64 { return p.processed.Load() }
func (p *Processor) Dropped() uint64   { return p.dropped.Load() }
func (p *Processor) Forked() uint64    { return p.forked.Load() }
func (p *Processor) Gapped() uint64    { return p.gapped.Load() }

// Start runs the loop in a background goroutine until Stop or ctx is
// canceled.
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			batch := p.collectBatch(ctx)
			if batch == nil {
				return
			}
			p.processBatch(ctx, batch)
		}
	}()
}

// Stop signals the loop to exit and waits for it to drain its current
// batch.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// ProcessAll synchronously drains every queue until empty, including any
// entries re-enqueued along the way by unchecked-buffer releases
// (spec.md §4.4 "callers may request a synchronous drain for testing;
// draining does not bypass dependency resolution"). It never blocks, so
// it is safe to call without Start.
func (p *Processor) ProcessAll(ctx context.Context) {
	for {
		batch := p.collectBatchNonBlocking()
		if len(batch) == 0 {
			return
		}
		p.processBatch(ctx, batch)
	}
}

// collectBatch blocks for at least one item (priority, then forced, then
// standard, in that preference order) and opportunistically fills the
// rest of the batch without blocking. Returns nil once stopped.
func (p *Processor) collectBatch(ctx context.Context) []Item {
	var batch []Item
	select {
	case it := <-p.priority:
		batch = append(batch, it)
	case it := <-p.forced:
		batch = append(batch, it)
	case it := <-p.standard:
		batch = append(batch, it)
	case <-p.stopCh:
		return nil
	case <-ctx.Done():
		return nil
	}
	return p.fillBatch(batch)
}

func (p *Processor) collectBatchNonBlocking() []Item {
	return p.fillBatch(nil)
}

func (p *Processor) fillBatch(batch []Item) []Item {
	for len(batch) < p.cfg.BatchSize {
		select {
		case it := <-p.priority:
			batch = append(batch, it)
			continue
		default:
		}
		select {
		case it := <-p.forced:
			batch = append(batch, it)
			continue
		default:
		}
		select {
		case it := <-p.standard:
			batch = append(batch, it)
			continue
		default:
		}
		break
	}
	return batch
}

// processBatch verifies signatures in parallel, then applies the
// surviving blocks one write transaction at a time (spec.md §4.4).
func (p *Processor) processBatch(ctx context.Context, batch []Item) {
	survivors := p.filterBadSignatures(batch)
	for _, it := range survivors {
		p.processOne(ctx, it)
	}
}

// filterBadSignatures drops any block whose signer is known up front
// (open/state blocks carry their account explicitly) and whose
// signature fails, verifying the batch concurrently since this check is
// stateless (spec.md §4.4 "Verify signatures in parallel across the
// batch; signature failure drops the block immediately"). Legacy
// send/receive/change blocks can't be checked here since their signer
// isn't known until the ledger resolves it from the previous block's
// frontier entry; those fall through to Process itself. State blocks
// whose link names a registered epoch marker are deferred the same way:
// an epoch block is signed by that epoch's configured signer over a
// target account it need not own (spec.md §4.2 step 3, §8 scenario 3),
// and confirming the epoch form needs the account's current balance,
// which this stateless pass doesn't have.
func (p *Processor) filterBadSignatures(batch []Item) []Item {
	keep := make([]bool, len(batch))
	var g errgroup.Group
	for i := range batch {
		i := i
		g.Go(func() error {
			b := batch[i].Block
			signer, ok := b.SignerAccount()
			if ok && p.ledger.IsEpochLink(b.Link) {
				ok = false
			}
			if ok && !b.VerifySignature(signer) {
				p.dropped.Add(1)
				p.notify(ledgertypes.ResultBadSignature, b)
				return nil
			}
			keep[i] = true
			return nil
		})
	}
	_ = g.Wait()

	survivors := batch[:0]
	for i, ok := range keep {
		if ok {
			survivors = append(survivors, batch[i])
		}
	}
	return survivors
}

// processOne opens one write transaction, optionally resolves a forced
// rollback, checks proof-of-work, runs the block through the ledger, and
// dispatches on the result.
func (p *Processor) processOne(ctx context.Context, it Item) {
	b := it.Block
	hash := b.Hash()

	txn, err := p.store.Begin(ctx, true)
	if err != nil {
		p.dropped.Add(1)
		p.log.Warn("block processor could not begin write transaction", zap.Error(err))
		return
	}
	defer txn.Discard()

	if it.Source == SourceForced {
		if err := p.resolveForkForForced(txn, b); err != nil {
			p.dropped.Add(1)
			p.log.Warn("forced rollback before replacement failed", zap.Error(err))
			return
		}
	}

	if !p.validator.Valid(b.Root(), b.Work, p.blockDetails(txn, b)) {
		p.dropped.Add(1)
		p.notify(ledgertypes.ResultInsufficientWork, b)
		return
	}

	result, err := p.ledger.Process(txn, b)
	if err != nil {
		p.dropped.Add(1)
		p.log.Warn("ledger process error", zap.Error(err))
		return
	}

	switch {
	case result == ledgertypes.ResultProgress:
		if err := txn.Commit(); err != nil {
			p.dropped.Add(1)
			p.log.Warn("commit failed", zap.Error(err))
			return
		}
		p.processed.Add(1)
		p.onProgress(hash, b)
	case result == ledgertypes.ResultFork:
		p.forked.Add(1)
		p.onFork(ctx, b)
	case result.IsGap():
		p.gapped.Add(1)
		p.onGap(result, b)
	default:
		p.dropped.Add(1)
		p.notify(result, b)
	}
}
