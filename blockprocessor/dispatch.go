package blockprocessor

import (
	"context"

	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
	"github.com/nanocurrency/nanogod/unchecked"
	"github.com/nanocurrency/nanogod/work"
)

// missingHashFor derives which hash a gap classification is waiting on
// and which dependency slot it fills (spec.md §4.4 "insert into the
// unchecked buffer keyed by the missing hash").
func missingHashFor(result ledgertypes.ProcessResult, b *ledgertypes.Block) (ledgertypes.Hash, unchecked.DependencyKind) {
	if result == ledgertypes.ResultGapPrevious {
		return b.Previous, unchecked.DependsOnPrevious
	}
	if b.Kind == ledgertypes.KindState {
		return b.Link, unchecked.DependsOnSource
	}
	return b.Source, unchecked.DependsOnSource
}

// Republisher rebroadcasts a block to the network's peer fanout. The
// network layer supplies this; tests leave it nil. Rebroadcasting to a
// specific "sender" peer (spec.md §4.4 "re-broadcast the existing winner
// ... to the sender") isn't modeled here since this repository doesn't
// implement real peer transport (SPEC_FULL.md §6 non-goals) — fork
// resolution simply republishes the winner to the whole fanout instead.
type Republisher interface {
	Republish(b *ledgertypes.Block)
}

// ElectionFeed is how the block processor hands blocks to active
// elections (spec.md §4.4/§4.5). Satisfied structurally by
// election.Manager; no import of that package is needed here.
type ElectionFeed interface {
	Progress(b *ledgertypes.Block)
	Fork(existing, attempted *ledgertypes.Block)
}

// Observer receives a notification for every terminal classification,
// including drops. Satisfied structurally by observer.Registry.
type Observer interface {
	BlockProcessed(result ledgertypes.ProcessResult, b *ledgertypes.Block)
}

func (p *Processor) notify(result ledgertypes.ProcessResult, b *ledgertypes.Block) {
	if p.observer != nil {
		p.observer.BlockProcessed(result, b)
	}
}

// onProgress runs after a successful commit: republish, drain any
// unchecked entries this hash was blocking, and feed the election
// subsystem (spec.md §4.4 "progress" branch).
func (p *Processor) onProgress(hash ledgertypes.Hash, b *ledgertypes.Block) {
	if p.republisher != nil {
		p.republisher.Republish(b)
	}
	for _, e := range p.unchecked.Release(hash) {
		p.Enqueue(SourceStandard, e.Block)
	}
	p.notify(ledgertypes.ResultProgress, b)
	if p.elections != nil {
		p.elections.Progress(b)
	}
}

// onFork looks up the existing winner on account so elections and
// republishing can reference it, then feeds the fork subsystem
// (spec.md §4.4 "fork" branch).
func (p *Processor) onFork(ctx context.Context, b *ledgertypes.Block) {
	rtxn, err := p.store.Begin(ctx, false)
	if err != nil {
		p.notify(ledgertypes.ResultFork, b)
		return
	}
	defer rtxn.Discard()

	prevBlock, ok, err := p.ledger.BlockGet(rtxn, b.Previous)
	if err != nil || !ok {
		p.notify(ledgertypes.ResultFork, b)
		return
	}
	existing, ok, err := p.ledger.BlockGet(rtxn, prevBlock.Sideband.Successor)
	if err != nil || !ok {
		p.notify(ledgertypes.ResultFork, b)
		return
	}
	if p.elections != nil {
		p.elections.Fork(existing, b)
	}
	if p.republisher != nil {
		p.republisher.Republish(existing)
	}
	p.notify(ledgertypes.ResultFork, b)
}

// onGap stages b in the unchecked buffer keyed by whichever hash it is
// waiting on (spec.md §4.4 "gap_previous / gap_source" branch).
func (p *Processor) onGap(result ledgertypes.ProcessResult, b *ledgertypes.Block) {
	missing, kind := missingHashFor(result, b)
	p.unchecked.Put(unchecked.Entry{Block: b, Missing: missing, Kind: kind})
	p.notify(result, b)
}

// resolveForkForForced rolls back a conflicting existing chain before a
// forced (vote-confirmed) block is processed, so Ledger.Process sees a
// clean predecessor instead of reporting a fork (spec.md §4.4 "Forced
// queue for rollbacks requested by confirmed votes on a fork-loser's
// sibling").
func (p *Processor) resolveForkForForced(txn store.Txn, b *ledgertypes.Block) error {
	if b.Previous.IsZero() {
		return nil
	}
	hash := b.Hash()
	prevBlock, ok, err := p.ledger.BlockGet(txn, b.Previous)
	if err != nil || !ok {
		return nil
	}
	if prevBlock.Sideband.Successor.IsZero() || prevBlock.Sideband.Successor == hash {
		return nil
	}
	confirmed, _, err := p.confirmationHeight(txn, prevBlock.Sideband.Account)
	if err != nil {
		return err
	}
	_, err = p.ledger.Rollback(txn, prevBlock.Sideband.Successor, confirmed)
	return err
}

func (p *Processor) confirmationHeight(txn store.Txn, account ledgertypes.Account) (ledgertypes.ConfirmationHeightInfo, bool, error) {
	data, ok, err := txn.Get(store.TableConfirmationHeight, account[:])
	if err != nil || !ok {
		return ledgertypes.ConfirmationHeightInfo{}, ok, err
	}
	var ch ledgertypes.ConfirmationHeightInfo
	if err := ch.UnmarshalBinary(data); err != nil {
		return ledgertypes.ConfirmationHeightInfo{}, false, err
	}
	return ch, true, nil
}

// blockDetails derives the work-threshold tier for b (spec.md §4.3
// "a threshold selected by ... block_details"), reading just enough
// account state to classify receive/epoch blocks as the cheaper tier.
// This happens inside the same write transaction as Process, immediately
// before it, so an insufficient_work verdict still aborts before any
// ledger mutation even though it isn't fully stateless for state blocks.
func (p *Processor) blockDetails(txn store.Txn, b *ledgertypes.Block) work.Details {
	switch b.Kind {
	case ledgertypes.KindOpen, ledgertypes.KindReceive:
		return work.Details{IsReceiveOrEpoch: true}
	case ledgertypes.KindSend, ledgertypes.KindChange:
		return work.Details{}
	case ledgertypes.KindState:
		if b.Previous.IsZero() {
			return work.Details{IsReceiveOrEpoch: true}
		}
		info, ok, err := p.ledger.AccountInfo(txn, b.Account)
		if err != nil || !ok {
			return work.Details{}
		}
		if b.BalanceAfter.Cmp(info.Balance) > 0 {
			return work.Details{IsReceiveOrEpoch: true}
		}
		if b.BalanceAfter.Cmp(info.Balance) == 0 && p.ledger.IsEpochLink(b.Link) {
			return work.Details{IsReceiveOrEpoch: true}
		}
		return work.Details{}
	default:
		return work.Details{}
	}
}
