package ledger

import (
	"errors"
	"fmt"

	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
)

// ErrCementedRollback is returned when the caller asks to roll back a
// block at or below an account's confirmed height (spec.md §4.2
// "Cannot roll back a cemented block; attempting to do so fails").
var ErrCementedRollback = errors.New("ledger: cannot roll back a cemented block")

// ErrPendingAlreadyConsumed is returned when rolling back a send whose
// pending entry has already been received by its destination account.
// Cascading the rollback across chains (as the reference node does) is
// out of scope here; the caller must roll back the receiving chain
// first.
var ErrPendingAlreadyConsumed = errors.New("ledger: send's pending entry already consumed, roll back the receiver first")

// Rollback walks forward from target through its successor chain and
// pops each block in reverse (LIFO) order, inverting apply's effects
// (spec.md §4.2 "rollback(target_hash)"). It returns the hashes rolled
// back, most-recently-applied first.
func (l *Ledger) Rollback(txn store.Txn, target ledgertypes.Hash, confirmed ledgertypes.ConfirmationHeightInfo) ([]ledgertypes.Hash, error) {
	targetData, ok, err := txn.Get(store.TableBlocks, hashKey(target))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ledger: rollback target %s not found", target)
	}
	var targetBlock ledgertypes.Block
	if err := targetBlock.UnmarshalBinary(targetData); err != nil {
		return nil, err
	}
	if targetBlock.Sideband.Height <= confirmed.Height {
		return nil, ErrCementedRollback
	}

	chain := []ledgertypes.Block{targetBlock}
	cur := targetBlock
	for !cur.Sideband.Successor.IsZero() {
		data, ok, err := txn.Get(store.TableBlocks, hashKey(cur.Sideband.Successor))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("ledger: successor %s missing from store", cur.Sideband.Successor)
		}
		var next ledgertypes.Block
		if err := next.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		chain = append(chain, next)
		cur = next
	}

	var rolledBack []ledgertypes.Hash
	for i := len(chain) - 1; i >= 0; i-- {
		hash, err := l.rollbackOne(txn, chain[i])
		if err != nil {
			return rolledBack, err
		}
		rolledBack = append(rolledBack, hash)
	}
	return rolledBack, nil
}

// rollbackOne inverts a single previously-applied block, using the
// Prev* fields its own sideband recorded at apply time.
func (l *Ledger) rollbackOne(txn store.Txn, b ledgertypes.Block) (ledgertypes.Hash, error) {
	hash := b.Hash()
	sb := b.Sideband
	account := sb.Account

	if sb.IsSend {
		destination, sendHash, err := l.sendDestination(&b)
		if err != nil {
			return hash, err
		}
		key := ledgertypes.PendingKey{Destination: destination, Hash: sendHash}
		_, exists, err := txn.Get(store.TablePending, key.MarshalBinary())
		if err != nil {
			return hash, err
		}
		if !exists {
			return hash, ErrPendingAlreadyConsumed
		}
		if err := txn.Delete(store.TablePending, key.MarshalBinary()); err != nil {
			return hash, err
		}
	}

	if sb.IsReceive {
		sourceHash, err := l.receiveSourceHash(&b)
		if err != nil {
			return hash, err
		}
		srcAccountBytes, ok, err := txn.Get(store.TableFrontiers, hashKey(sourceHash))
		if err != nil {
			return hash, err
		}
		if !ok {
			return hash, fmt.Errorf("ledger: rollback cannot locate source account for %s", sourceHash)
		}
		var srcAccount ledgertypes.Account
		copy(srcAccount[:], srcAccountBytes)

		curBytes, ok, err := txn.Get(store.TableAccounts, accountKey(account))
		if err != nil {
			return hash, err
		}
		if !ok {
			return hash, fmt.Errorf("ledger: rollback missing account info for %s", account)
		}
		var curInfo ledgertypes.AccountInfo
		if err := curInfo.UnmarshalBinary(curBytes); err != nil {
			return hash, err
		}
		consumedAmount, ok := curInfo.Balance.Sub(sb.PrevBalance)
		if !ok {
			return hash, fmt.Errorf("ledger: rollback balance underflow for %s", hash)
		}
		pv := ledgertypes.PendingValue{Source: srcAccount, Amount: consumedAmount, Epoch: sb.Epoch}
		key := ledgertypes.PendingKey{Destination: account, Hash: sourceHash}
		if err := txn.Put(store.TablePending, key.MarshalBinary(), pv.MarshalBinary()); err != nil {
			return hash, err
		}
	}

	if err := txn.Delete(store.TableBlocks, hashKey(hash)); err != nil {
		return hash, err
	}
	if err := txn.Delete(store.TableFrontiers, hashKey(hash)); err != nil {
		return hash, err
	}

	if !b.Previous.IsZero() {
		prevData, ok, err := txn.Get(store.TableBlocks, hashKey(b.Previous))
		if err != nil {
			return hash, err
		}
		if ok {
			var prevBlock ledgertypes.Block
			if err := prevBlock.UnmarshalBinary(prevData); err != nil {
				return hash, err
			}
			prevBlock.Sideband.Successor = ledgertypes.Hash{}
			data, err := prevBlock.MarshalBinary()
			if err != nil {
				return hash, err
			}
			if err := txn.Put(store.TableBlocks, hashKey(b.Previous), data); err != nil {
				return hash, err
			}
		}
	}

	curBytes, exists, err := txn.Get(store.TableAccounts, accountKey(account))
	if err != nil {
		return hash, err
	}
	if exists {
		var curInfo ledgertypes.AccountInfo
		if err := curInfo.UnmarshalBinary(curBytes); err != nil {
			return hash, err
		}
		l.weights.Sub(curInfo.Representative, curInfo.Balance)
	}

	if b.Previous.IsZero() {
		if err := txn.Delete(store.TableAccounts, accountKey(account)); err != nil {
			return hash, err
		}
		return hash, nil
	}

	l.weights.Add(sb.PrevRepresentative, sb.PrevBalance)
	info := ledgertypes.AccountInfo{
		Head:              b.Previous,
		OpenBlock:         sb.OpenBlock,
		Balance:           sb.PrevBalance,
		ModifiedTimestamp: sb.Timestamp,
		BlockCount:        sb.Height - 1,
		Representative:    sb.PrevRepresentative,
		Epoch:             sb.PrevEpoch,
	}
	if err := txn.Put(store.TableAccounts, accountKey(account), info.MarshalBinary()); err != nil {
		return hash, err
	}
	return hash, nil
}

// sendDestination returns the pending key's destination and the send
// hash itself, for both legacy send and state-send variants.
func (l *Ledger) sendDestination(b *ledgertypes.Block) (ledgertypes.Account, ledgertypes.Hash, error) {
	switch b.Kind {
	case ledgertypes.KindSend:
		return b.Destination, b.Hash(), nil
	case ledgertypes.KindState:
		var destination ledgertypes.Account
		copy(destination[:], b.Link[:])
		return destination, b.Hash(), nil
	default:
		return ledgertypes.Account{}, ledgertypes.Hash{}, fmt.Errorf("ledger: block kind %v is not a send", b.Kind)
	}
}

// receiveSourceHash returns the hash of the send block a receive/open
// block consumed, for both legacy and state variants.
func (l *Ledger) receiveSourceHash(b *ledgertypes.Block) (ledgertypes.Hash, error) {
	switch b.Kind {
	case ledgertypes.KindReceive, ledgertypes.KindOpen:
		return b.Source, nil
	case ledgertypes.KindState:
		return b.Link, nil
	default:
		return ledgertypes.Hash{}, fmt.Errorf("ledger: block kind %v is not a receive", b.Kind)
	}
}

func prevEpochOf(prev resolvedInfo) uint8 {
	if prev.isOpen {
		return 0
	}
	return prev.info.Epoch
}
