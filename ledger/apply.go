package ledger

import (
	"time"

	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
)

// apply performs the actual writes for a classification of ResultProgress
// (spec.md §4.2 step 7): persist the block with its sideband, update
// accounts/pending/frontiers, and adjust rep weights.
func (l *Ledger) apply(txn store.Txn, account ledgertypes.Account, prev resolvedInfo, b *ledgertypes.Block, hash ledgertypes.Hash, eff *effect) error {
	now := time.Now().Unix()

	height := uint64(1)
	blockCount := uint64(1)
	openBlock := hash
	if !prev.isOpen {
		height = prev.info.BlockCount + 1
		blockCount = prev.info.BlockCount + 1
		openBlock = prev.info.OpenBlock
	}

	prevBalance := ledgertypes.Amount{}
	var prevRepresentative ledgertypes.Account
	if !prev.isOpen {
		prevBalance = prev.info.Balance
		prevRepresentative = prev.info.Representative
	}

	b.Sideband = ledgertypes.Sideband{
		Account:            account,
		Height:             height,
		Timestamp:          now,
		Epoch:              eff.epoch,
		IsSend:             eff.createsPendingFor != nil,
		IsReceive:          eff.consumesPending != nil,
		IsEpoch:            eff.createsPendingFor == nil && eff.consumesPending == nil && eff.epoch != prevEpochOf(prev),
		OpenBlock:          openBlock,
		PrevBalance:        prevBalance,
		PrevRepresentative: prevRepresentative,
		PrevEpoch:          prevEpochOf(prev),
	}

	data, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	if err := txn.Put(store.TableBlocks, hashKey(hash), data); err != nil {
		return err
	}
	if err := txn.Put(store.TableFrontiers, hashKey(hash), accountKey(account)); err != nil {
		return err
	}

	if !prev.isOpen && !b.Previous.IsZero() {
		prevData, _, err := txn.Get(store.TableBlocks, hashKey(b.Previous))
		if err != nil {
			return err
		}
		var prevBlock ledgertypes.Block
		if err := prevBlock.UnmarshalBinary(prevData); err != nil {
			return err
		}
		prevBlock.Sideband.Successor = hash
		prevData2, err := prevBlock.MarshalBinary()
		if err != nil {
			return err
		}
		if err := txn.Put(store.TableBlocks, hashKey(b.Previous), prevData2); err != nil {
			return err
		}
	}

	info := ledgertypes.AccountInfo{
		Head:              hash,
		OpenBlock:         openBlock,
		Balance:           eff.newBalance,
		ModifiedTimestamp: now,
		BlockCount:        blockCount,
		Representative:    eff.representative,
		Epoch:             eff.epoch,
	}
	if err := txn.Put(store.TableAccounts, accountKey(account), info.MarshalBinary()); err != nil {
		return err
	}

	if eff.createsPendingFor != nil {
		pv := ledgertypes.PendingValue{Source: account, Amount: eff.pendingAmount, Epoch: eff.epoch}
		if err := txn.Put(store.TablePending, eff.createsPendingFor.MarshalBinary(), pv.MarshalBinary()); err != nil {
			return err
		}
	}
	if eff.consumesPending != nil {
		if err := txn.Delete(store.TablePending, eff.consumesPending.MarshalBinary()); err != nil {
			return err
		}
	}

	// Rep-weight bookkeeping: remove the account's old balance from its
	// old representative, add its new balance to its new representative
	// (spec.md invariant 4, "representative-weight conservation").
	if !prev.isOpen {
		l.weights.Sub(prev.info.Representative, prev.info.Balance)
	}
	l.weights.Add(eff.representative, eff.newBalance)

	return nil
}
