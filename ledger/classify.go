package ledger

import (
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
)

// effect is the computed balance/pending/representative delta a block
// implies, once classify has determined it is internally consistent.
// apply uses it to perform the actual writes (spec.md §4.2 step 7).
type effect struct {
	newBalance     ledgertypes.Amount
	representative ledgertypes.Account
	epoch          uint8

	// exactly one of these is set, or neither for a pure change/epoch.
	createsPendingFor *ledgertypes.PendingKey // send: new pending entry to write
	pendingAmount     ledgertypes.Amount
	consumesPending   *ledgertypes.PendingKey // receive/open: pending entry to erase
	consumedAmount    ledgertypes.Amount
	consumedSource    ledgertypes.Account
}

// classify determines whether b is internally consistent against account's
// current state and, if so, computes the effect apply() will perform. It
// performs no writes itself.
func (l *Ledger) classify(txn store.Txn, account ledgertypes.Account, info resolvedInfo, b *ledgertypes.Block) (ledgertypes.ProcessResult, *effect, error) {
	switch b.Kind {
	case ledgertypes.KindOpen:
		return l.classifyOpen(txn, account, b)
	case ledgertypes.KindSend:
		return l.classifySend(info, b)
	case ledgertypes.KindReceive:
		return l.classifyReceive(txn, account, info, b)
	case ledgertypes.KindChange:
		return l.classifyChange(info, b)
	case ledgertypes.KindState:
		return l.classifyState(txn, account, info, b)
	default:
		return ledgertypes.ResultBlockPosition, nil, nil
	}
}

func (l *Ledger) classifyOpen(txn store.Txn, account ledgertypes.Account, b *ledgertypes.Block) (ledgertypes.ProcessResult, *effect, error) {
	key := ledgertypes.PendingKey{Destination: account, Hash: b.Source}
	val, ok, err := txn.Get(store.TablePending, key.MarshalBinary())
	if err != nil {
		return ledgertypes.ResultInvalid, nil, err
	}
	if !ok {
		if _, exists, err := txn.Get(store.TableBlocks, hashKey(b.Source)); err != nil {
			return ledgertypes.ResultInvalid, nil, err
		} else if !exists {
			return ledgertypes.ResultGapSource, nil, nil
		}
		return ledgertypes.ResultUnreceivable, nil, nil
	}
	var pv ledgertypes.PendingValue
	if err := pv.UnmarshalBinary(val); err != nil {
		return ledgertypes.ResultInvalid, nil, err
	}
	return ledgertypes.ResultProgress, &effect{
		newBalance:      pv.Amount,
		representative:  b.Representative,
		epoch:           pv.Epoch,
		consumesPending: &key,
		consumedAmount:  pv.Amount,
		consumedSource:  pv.Source,
	}, nil
}

func (l *Ledger) classifySend(info resolvedInfo, b *ledgertypes.Block) (ledgertypes.ProcessResult, *effect, error) {
	if b.BalanceAfter.Cmp(info.info.Balance) > 0 {
		return ledgertypes.ResultNegativeSpend, nil, nil
	}
	sent, ok := info.info.Balance.Sub(b.BalanceAfter)
	if !ok {
		return ledgertypes.ResultNegativeSpend, nil, nil
	}
	key := ledgertypes.PendingKey{Destination: b.Destination, Hash: b.Hash()}
	return ledgertypes.ResultProgress, &effect{
		newBalance:        b.BalanceAfter,
		representative:    info.info.Representative,
		epoch:             info.info.Epoch,
		createsPendingFor: &key,
		pendingAmount:     sent,
	}, nil
}

func (l *Ledger) classifyReceive(txn store.Txn, account ledgertypes.Account, info resolvedInfo, b *ledgertypes.Block) (ledgertypes.ProcessResult, *effect, error) {
	key := ledgertypes.PendingKey{Destination: account, Hash: b.Source}
	val, ok, err := txn.Get(store.TablePending, key.MarshalBinary())
	if err != nil {
		return ledgertypes.ResultInvalid, nil, err
	}
	if !ok {
		if _, exists, err := txn.Get(store.TableBlocks, hashKey(b.Source)); err != nil {
			return ledgertypes.ResultInvalid, nil, err
		} else if !exists {
			return ledgertypes.ResultGapSource, nil, nil
		}
		return ledgertypes.ResultUnreceivable, nil, nil
	}
	var pv ledgertypes.PendingValue
	if err := pv.UnmarshalBinary(val); err != nil {
		return ledgertypes.ResultInvalid, nil, err
	}
	newBalance, ok := info.info.Balance.Add(pv.Amount)
	if !ok {
		return ledgertypes.ResultBalanceMismatch, nil, nil
	}
	return ledgertypes.ResultProgress, &effect{
		newBalance:      newBalance,
		representative:  info.info.Representative,
		epoch:           info.info.Epoch,
		consumesPending: &key,
		consumedAmount:  pv.Amount,
		consumedSource:  pv.Source,
	}, nil
}

func (l *Ledger) classifyChange(info resolvedInfo, b *ledgertypes.Block) (ledgertypes.ProcessResult, *effect, error) {
	return ledgertypes.ResultProgress, &effect{
		newBalance:     info.info.Balance,
		representative: b.Representative,
		epoch:          info.info.Epoch,
	}, nil
}

// classifyState infers the subtype from the balance delta and link field
// (spec.md §4.2 step 5) and delegates to the matching legacy-equivalent
// classification, filling in epoch and representative-mismatch checks the
// legacy kinds don't need.
func (l *Ledger) classifyState(txn store.Txn, account ledgertypes.Account, info resolvedInfo, b *ledgertypes.Block) (ledgertypes.ProcessResult, *effect, error) {
	prevBalance := info.info.Balance
	prevRep := info.info.Representative
	prevEpoch := info.info.Epoch

	switch {
	case (info.isOpen && l.IsEpochLink(b.Link)) || (!info.isOpen && b.BalanceAfter.Cmp(prevBalance) == 0):
		// epoch open (balance 0, link a registered marker) or balance
		// held flat on an existing account: epoch upgrade or pure
		// representative change. The signer was already authenticated
		// against the epoch signer's key during signature verification;
		// account here is purely the upgrade target, never re-checked
		// against the signer (spec.md §4.2 step 3).
		if l.IsEpochLink(b.Link) {
			newEpoch := epochOrdinal(b.Link, l.epochs)
			if newEpoch <= prevEpoch {
				return ledgertypes.ResultBlockPosition, nil, nil
			}
			if b.Representative != prevRep {
				return ledgertypes.ResultRepresentativeMismatch, nil, nil
			}
			return ledgertypes.ResultProgress, &effect{
				newBalance:     prevBalance,
				representative: prevRep,
				epoch:          newEpoch,
			}, nil
		}
		return ledgertypes.ResultProgress, &effect{
			newBalance:     prevBalance,
			representative: b.Representative,
			epoch:          prevEpoch,
		}, nil

	case (info.isOpen && !l.IsEpochLink(b.Link)) || (!info.isOpen && b.BalanceAfter.Cmp(prevBalance) > 0):
		// open or receive: Link is the source hash of an unconsumed pending
		// entry for this account.
		key := ledgertypes.PendingKey{Destination: account, Hash: b.Link}
		val, ok, err := txn.Get(store.TablePending, key.MarshalBinary())
		if err != nil {
			return ledgertypes.ResultInvalid, nil, err
		}
		if !ok {
			if _, exists, err := txn.Get(store.TableBlocks, hashKey(b.Link)); err != nil {
				return ledgertypes.ResultInvalid, nil, err
			} else if !exists {
				return ledgertypes.ResultGapSource, nil, nil
			}
			return ledgertypes.ResultUnreceivable, nil, nil
		}
		var pv ledgertypes.PendingValue
		if err := pv.UnmarshalBinary(val); err != nil {
			return ledgertypes.ResultInvalid, nil, err
		}
		expected, ok := prevBalance.Add(pv.Amount)
		if !ok || expected.Cmp(b.BalanceAfter) != 0 {
			return ledgertypes.ResultBalanceMismatch, nil, nil
		}
		return ledgertypes.ResultProgress, &effect{
			newBalance:      b.BalanceAfter,
			representative:  b.Representative,
			epoch:           pv.Epoch,
			consumesPending: &key,
			consumedAmount:  pv.Amount,
			consumedSource:  pv.Source,
		}, nil

	case b.BalanceAfter.Cmp(prevBalance) < 0:
		// send: Link holds the destination account.
		sent, ok := prevBalance.Sub(b.BalanceAfter)
		if !ok {
			return ledgertypes.ResultNegativeSpend, nil, nil
		}
		var destination ledgertypes.Account
		copy(destination[:], b.Link[:])
		key := ledgertypes.PendingKey{Destination: destination, Hash: b.Hash()}
		return ledgertypes.ResultProgress, &effect{
			newBalance:        b.BalanceAfter,
			representative:    b.Representative,
			epoch:             prevEpoch,
			createsPendingFor: &key,
			pendingAmount:     sent,
		}, nil
	}

	// Every reachable combination of isOpen and the balance delta is
	// covered by the cases above; a send/receive/open/epoch/change state
	// block always matches exactly one.
	return ledgertypes.ResultBlockPosition, nil, nil
}

func epochOrdinal(link ledgertypes.Hash, epochs map[uint8]EpochSpec) uint8 {
	for ord, spec := range epochs {
		if spec.Link == link {
			return ord
		}
	}
	return 0
}
