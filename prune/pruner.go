// Package prune implements the Pruner (spec.md §4.9): periodically
// erasing the body of old, deeply-confirmed blocks to bound disk usage,
// while leaving account_info, rep weights, and every account's frontier
// block untouched.
package prune

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
)

// Config gates which blocks are eligible and bounds how much work one
// sweep performs.
type Config struct {
	// Depth is how many confirmed blocks must remain above a candidate
	// before it becomes prunable (spec.md §4.9 "confirmation_height
	// exceeds a configured depth").
	Depth uint64
	// MinAge is how old a candidate's boundary block must be before its
	// account is swept, measured from the block's sideband timestamp,
	// which the ledger sets when it applies the block (spec.md §4.9
	// "cemented blocks exceed a configured age").
	MinAge time.Duration
	// MaxBlocksPerAccount bounds one sweep's work per account.
	MaxBlocksPerAccount int
	// Interval is how often Run's background loop sweeps.
	Interval time.Duration
}

var DefaultConfig = Config{
	Depth:               100_000,
	MinAge:              24 * time.Hour,
	MaxBlocksPerAccount: 4096,
	Interval:            time.Hour,
}

// Pruner erases the stored body of old, deeply-cemented blocks. Disabled
// (a no-op) unless explicitly started, matching spec.md §4.9 "when
// enabled".
type Pruner struct {
	store  store.Store
	ledger *ledger.Ledger
	cfg    Config
	log    *zap.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	pruned atomic.Uint64
}

func New(s store.Store, l *ledger.Ledger, cfg Config) *Pruner {
	if cfg.Depth == 0 {
		// A zero depth would make the confirmed frontier itself eligible;
		// spec.md §4.9 never prunes the frontier, so the minimum usable
		// depth is 1.
		cfg.Depth = 1
	}
	if cfg.MaxBlocksPerAccount <= 0 {
		cfg.MaxBlocksPerAccount = DefaultConfig.MaxBlocksPerAccount
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig.Interval
	}
	return &Pruner{
		store:  s,
		ledger: l,
		cfg:    cfg,
		log:    zap.NewNop(),
		stopCh: make(chan struct{}),
	}
}

func (p *Pruner) SetLogger(log *zap.Logger) { p.log = log }

// Pruned returns how many blocks have been erased so far.
func (p *Pruner) Pruned() uint64 { return p.pruned.Load() }

// Run sweeps every Interval until Stop is called or ctx is canceled.
func (p *Pruner) Run(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if _, err := p.Sweep(ctx, now); err != nil {
					p.log.Warn("pruner sweep failed", zap.Error(err))
				}
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the sweep loop to exit and waits for the current sweep to
// finish.
func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Sweep scans every account once and prunes whichever prefix of its
// chain is both deep enough (Depth) and old enough (MinAge), returning
// the number of blocks erased.
func (p *Pruner) Sweep(ctx context.Context, now time.Time) (int, error) {
	rtxn, err := p.store.Begin(ctx, false)
	if err != nil {
		return 0, err
	}
	accounts, err := p.collectCandidates(rtxn, now)
	rtxn.Discard()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range accounts {
		n, err := p.pruneAccount(ctx, c)
		if err != nil {
			p.log.Warn("pruner could not prune account", zap.String("account", c.account.String()), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

// candidate is one account's prunable prefix, discovered under a single
// read transaction and pruned under a later write transaction.
type candidate struct {
	account     ledgertypes.Account
	boundaryTop ledgertypes.Hash // highest-height block eligible for pruning
}

// collectCandidates scans every account and decides which ones have a
// prunable prefix at all, without touching any block bodies yet.
func (p *Pruner) collectCandidates(txn store.Txn, now time.Time) ([]candidate, error) {
	var out []candidate
	cur := txn.Cursor(store.TableAccounts, nil)
	defer cur.Close()

	for cur.Next() {
		var account ledgertypes.Account
		copy(account[:], cur.Key())

		chData, ok, err := txn.Get(store.TableConfirmationHeight, account[:])
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var ch ledgertypes.ConfirmationHeightInfo
		if err := ch.UnmarshalBinary(chData); err != nil {
			return nil, err
		}
		if ch.Height <= p.cfg.Depth {
			continue
		}
		boundary := ch.Height - p.cfg.Depth

		boundaryBlock, boundaryHash, ok, err := p.walkToHeight(txn, ch.Frontier, boundary)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		age := now.Sub(time.Unix(boundaryBlock.Sideband.Timestamp, 0))
		if age < p.cfg.MinAge {
			continue
		}
		out = append(out, candidate{account: account, boundaryTop: boundaryHash})
	}
	return out, nil
}

// walkToHeight follows Previous pointers backward from frontier until it
// reaches a block at exactly height, or returns ok=false if the chain
// ends first (nothing that low survives or was ever that long).
func (p *Pruner) walkToHeight(txn store.Txn, frontier ledgertypes.Hash, height uint64) (*ledgertypes.Block, ledgertypes.Hash, bool, error) {
	cur := frontier
	for {
		b, ok, err := p.ledger.BlockGet(txn, cur)
		if err != nil {
			return nil, ledgertypes.Hash{}, false, err
		}
		if !ok {
			return nil, ledgertypes.Hash{}, false, nil
		}
		if b.Sideband.Height == height {
			return b, cur, true, nil
		}
		if b.Sideband.Height < height || b.Previous.IsZero() {
			return nil, ledgertypes.Hash{}, false, nil
		}
		cur = b.Previous
	}
}

// pruneAccount erases c's prunable prefix (boundaryTop and every
// ancestor down to the account's true open, or down to the first
// already-pruned gap, bounded by MaxBlocksPerAccount) in one write
// transaction.
func (p *Pruner) pruneAccount(ctx context.Context, c candidate) (int, error) {
	txn, err := p.store.Begin(ctx, true)
	if err != nil {
		return 0, err
	}

	var toErase []ledgertypes.Hash
	cur := c.boundaryTop
	for len(toErase) < p.cfg.MaxBlocksPerAccount {
		b, ok, err := p.ledger.BlockGet(txn, cur)
		if err != nil {
			txn.Discard()
			return 0, err
		}
		if !ok {
			break // already pruned by an earlier sweep
		}
		toErase = append(toErase, cur)
		if b.Previous.IsZero() {
			break
		}
		cur = b.Previous
	}
	if len(toErase) == 0 {
		txn.Discard()
		return 0, nil
	}

	// The oldest hash collected may still have a surviving predecessor
	// from before pruning ever reached this far; if so, its Successor
	// sideband now points at nothing and must be cleared.
	oldest := toErase[len(toErase)-1]
	oldestBlock, _, err := p.ledger.BlockGet(txn, oldest)
	if err != nil {
		txn.Discard()
		return 0, err
	}
	if !oldestBlock.Previous.IsZero() {
		if pred, ok, err := p.ledger.BlockGet(txn, oldestBlock.Previous); err == nil && ok {
			pred.Sideband.Successor = ledgertypes.Hash{}
			data, err := pred.MarshalBinary()
			if err != nil {
				txn.Discard()
				return 0, err
			}
			if err := txn.Put(store.TableBlocks, oldestBlock.Previous[:], data); err != nil {
				txn.Discard()
				return 0, err
			}
		} else if err != nil {
			txn.Discard()
			return 0, err
		}
	}

	for _, hash := range toErase {
		if err := txn.Delete(store.TableBlocks, hash[:]); err != nil {
			txn.Discard()
			return 0, err
		}
		if err := txn.Put(store.TablePruned, hash[:], []byte{1}); err != nil {
			txn.Discard()
			return 0, err
		}
	}

	if err := txn.Commit(); err != nil {
		return 0, err
	}
	p.pruned.Add(uint64(len(toErase)))
	return len(toErase), nil
}
