package ledger

import (
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
)

// AccountInfo returns the account's current chain metadata (spec.md §4.2
// "account_info").
func (l *Ledger) AccountInfo(txn store.Txn, account ledgertypes.Account) (ledgertypes.AccountInfo, bool, error) {
	data, ok, err := txn.Get(store.TableAccounts, accountKey(account))
	if err != nil || !ok {
		return ledgertypes.AccountInfo{}, false, err
	}
	var info ledgertypes.AccountInfo
	if err := info.UnmarshalBinary(data); err != nil {
		return ledgertypes.AccountInfo{}, false, err
	}
	return info, true, nil
}

// Balance returns the account's current balance, or the zero Amount if
// the account has never been opened.
func (l *Ledger) Balance(txn store.Txn, account ledgertypes.Account) (ledgertypes.Amount, error) {
	info, ok, err := l.AccountInfo(txn, account)
	if err != nil || !ok {
		return ledgertypes.Amount{}, err
	}
	return info.Balance, nil
}

// Weight returns a representative's delegated weight from the in-memory
// cache the ledger keeps current on every mutation (spec.md §4.2
// "weight").
func (l *Ledger) Weight(rep ledgertypes.Account) ledgertypes.Amount {
	return l.weights.Weight(rep)
}

// BlockGet returns the full stored block (including sideband) for hash.
func (l *Ledger) BlockGet(txn store.Txn, hash ledgertypes.Hash) (*ledgertypes.Block, bool, error) {
	data, ok, err := txn.Get(store.TableBlocks, hashKey(hash))
	if err != nil || !ok {
		return nil, false, err
	}
	var b ledgertypes.Block
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

// Successor returns the hash of the block that immediately follows hash
// on its chain, if any.
func (l *Ledger) Successor(txn store.Txn, hash ledgertypes.Hash) (ledgertypes.Hash, bool, error) {
	b, ok, err := l.BlockGet(txn, hash)
	if err != nil || !ok {
		return ledgertypes.Hash{}, false, err
	}
	if b.Sideband.Successor.IsZero() {
		return ledgertypes.Hash{}, false, nil
	}
	return b.Sideband.Successor, true, nil
}

// Latest returns an account's frontier (head) hash.
func (l *Ledger) Latest(txn store.Txn, account ledgertypes.Account) (ledgertypes.Hash, bool, error) {
	info, ok, err := l.AccountInfo(txn, account)
	if err != nil || !ok {
		return ledgertypes.Hash{}, false, err
	}
	return info.Head, true, nil
}

// AccountOf returns the account a block hash belongs to, via the
// frontiers reverse-lookup table (spec.md §4.2 "account(hash)").
func (l *Ledger) AccountOf(txn store.Txn, hash ledgertypes.Hash) (ledgertypes.Account, bool, error) {
	data, ok, err := txn.Get(store.TableFrontiers, hashKey(hash))
	if err != nil || !ok {
		return ledgertypes.Account{}, false, err
	}
	var account ledgertypes.Account
	copy(account[:], data)
	return account, true, nil
}

// Representative returns the representative in effect when hash was
// applied (the owning account's representative as of that block).
func (l *Ledger) Representative(txn store.Txn, hash ledgertypes.Hash) (ledgertypes.Account, bool, error) {
	b, ok, err := l.BlockGet(txn, hash)
	if err != nil || !ok {
		return ledgertypes.Account{}, false, err
	}
	account, ok, err := l.AccountOf(txn, hash)
	if err != nil || !ok {
		return ledgertypes.Account{}, false, err
	}
	info, ok, err := l.AccountInfo(txn, account)
	if err != nil || !ok {
		return ledgertypes.Account{}, false, err
	}
	if info.Head == hash {
		return info.Representative, true, nil
	}
	// Not the frontier: the representative in effect at that point is
	// this block's own Representative field, for state/change/open kinds; legacy
	// send/receive blocks don't change representative, so the frontier's
	// current value is not reliable for historical lookups of those. This
	// is an accepted limitation for non-frontier legacy blocks.
	switch b.Kind {
	case ledgertypes.KindOpen, ledgertypes.KindChange:
		return b.Representative, true, nil
	case ledgertypes.KindState:
		return b.Representative, true, nil
	default:
		return ledgertypes.Account{}, false, nil
	}
}

// PendingInfo returns a single pending entry by its key.
func (l *Ledger) PendingInfo(txn store.Txn, key ledgertypes.PendingKey) (ledgertypes.PendingValue, bool, error) {
	data, ok, err := txn.Get(store.TablePending, key.MarshalBinary())
	if err != nil || !ok {
		return ledgertypes.PendingValue{}, false, err
	}
	var pv ledgertypes.PendingValue
	if err := pv.UnmarshalBinary(data); err != nil {
		return ledgertypes.PendingValue{}, false, err
	}
	return pv, true, nil
}

// AccountReceivable enumerates every pending entry destined for account
// (spec.md §4.2 "account_receivable"), using the pending table's
// destination-major key ordering to scan a single contiguous range.
func (l *Ledger) AccountReceivable(txn store.Txn, account ledgertypes.Account) ([]ledgertypes.PendingKey, []ledgertypes.PendingValue, error) {
	prefix := account[:]
	cur := txn.Cursor(store.TablePending, prefix)
	defer cur.Close()

	var keys []ledgertypes.PendingKey
	var values []ledgertypes.PendingValue
	for cur.Next() {
		k := cur.Key()
		if len(k) < ledgertypes.AccountSize || string(k[:ledgertypes.AccountSize]) != string(prefix) {
			break
		}
		key, err := ledgertypes.PendingKeyFromBytes(k)
		if err != nil {
			return nil, nil, err
		}
		var pv ledgertypes.PendingValue
		if err := pv.UnmarshalBinary(cur.Value()); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, pv)
	}
	return keys, values, nil
}

// BlockOrPrunedExists reports whether hash is either a fully-stored block
// or a remembered-but-pruned hash (spec.md §4.2
// "block_or_pruned_exists").
func (l *Ledger) BlockOrPrunedExists(txn store.Txn, hash ledgertypes.Hash) (bool, error) {
	if _, ok, err := txn.Get(store.TableBlocks, hashKey(hash)); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	_, ok, err := txn.Get(store.TablePruned, hashKey(hash))
	return ok, err
}

// BlockConfirmed reports whether hash is at or below its account's
// confirmation height.
func (l *Ledger) BlockConfirmed(txn store.Txn, hash ledgertypes.Hash) (bool, error) {
	b, ok, err := l.BlockGet(txn, hash)
	if err != nil || !ok {
		return false, err
	}
	chData, ok, err := txn.Get(store.TableConfirmationHeight, accountKey(b.Sideband.Account))
	if err != nil || !ok {
		return false, err
	}
	var ch ledgertypes.ConfirmationHeightInfo
	if err := ch.UnmarshalBinary(chData); err != nil {
		return false, err
	}
	return b.Sideband.Height <= ch.Height, nil
}
