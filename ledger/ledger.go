// Package ledger implements the central account-chain state machine
// (spec.md §4.2): classifying and applying candidate blocks inside a
// store transaction, and answering every query the rest of the node uses
// to read ledger state. Nothing here schedules work or talks to peers;
// Ledger is a pure function of (transaction, block) -> classification.
package ledger

import (
	"fmt"

	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/repweight"
	"github.com/nanocurrency/nanogod/store"
)

// EpochSpec binds one epoch ordinal to its well-known link marker and the
// single account permitted to originate blocks at that epoch (spec.md §3
// "Epoch... Only a configured epoch signer account may originate epoch
// blocks").
type EpochSpec struct {
	Link   ledgertypes.Hash
	Signer ledgertypes.Account
}

// GenesisSpec describes the single open block that seeds a fresh ledger.
type GenesisSpec struct {
	Account        ledgertypes.Account
	Representative ledgertypes.Account
	Balance        ledgertypes.Amount
	Block          ledgertypes.Block // unsigned fields pre-filled; Hash/Signature set by caller
}

// Ledger is stateless aside from immutable network configuration and the
// in-memory rep-weight cache it keeps current; all durable state lives in
// Store.
type Ledger struct {
	weights *repweight.Table
	genesis GenesisSpec
	epochs  map[uint8]EpochSpec
}

func New(weights *repweight.Table, genesis GenesisSpec, epochs map[uint8]EpochSpec) *Ledger {
	return &Ledger{weights: weights, genesis: genesis, epochs: epochs}
}

// EpochLink returns the well-known marker hash for epoch, if configured.
func (l *Ledger) EpochLink(epoch uint8) (ledgertypes.Hash, bool) {
	spec, ok := l.epochs[epoch]
	return spec.Link, ok
}

// EpochSigner returns the account permitted to originate an epoch block
// whose link field is link.
func (l *Ledger) EpochSigner(link ledgertypes.Hash) (ledgertypes.Account, bool) {
	for _, spec := range l.epochs {
		if spec.Link == link {
			return spec.Signer, true
		}
	}
	return ledgertypes.Account{}, false
}

// IsEpochLink reports whether link names any configured epoch marker.
func (l *Ledger) IsEpochLink(link ledgertypes.Hash) bool {
	_, ok := l.EpochSigner(link)
	return ok
}

func accountKey(a ledgertypes.Account) []byte { return a[:] }
func hashKey(h ledgertypes.Hash) []byte       { return h[:] }

// InitGenesis writes the genesis open block and seeds account/rep-weight
// state, if the accounts table is empty. Safe to call on every startup;
// a no-op once the genesis account exists.
func (l *Ledger) InitGenesis(txn store.Txn) error {
	_, ok, err := txn.Get(store.TableAccounts, accountKey(l.genesis.Account))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	b := l.genesis.Block
	hash := b.Hash()

	info := ledgertypes.AccountInfo{
		Head:              hash,
		OpenBlock:         hash,
		Balance:           l.genesis.Balance,
		ModifiedTimestamp: b.Sideband.Timestamp,
		BlockCount:        1,
		Representative:    l.genesis.Representative,
		Epoch:             0,
	}
	if err := txn.Put(store.TableAccounts, accountKey(l.genesis.Account), info.MarshalBinary()); err != nil {
		return err
	}
	sb := ledgertypes.Sideband{
		Account:   l.genesis.Account,
		Height:    1,
		Timestamp: b.Sideband.Timestamp,
	}
	b.Sideband = sb
	data, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	if err := txn.Put(store.TableBlocks, hashKey(hash), data); err != nil {
		return err
	}
	if err := txn.Put(store.TableFrontiers, hashKey(hash), accountKey(l.genesis.Account)); err != nil {
		return err
	}
	// Genesis is axiomatically confirmed: it is the root of trust, not a
	// block any election or vote ever needs to settle (spec.md §4.9
	// "confirmation height is seeded for genesis at startup").
	chInfo := ledgertypes.ConfirmationHeightInfo{Height: 1, Frontier: hash}
	if err := txn.Put(store.TableConfirmationHeight, accountKey(l.genesis.Account), chInfo.MarshalBinary()); err != nil {
		return err
	}
	l.weights.Add(l.genesis.Representative, l.genesis.Balance)
	return nil
}

// Process is the state-machine entry point (spec.md §4.2 "process(block)").
// It mutates txn and the in-memory weight table only when it returns
// ResultProgress.
func (l *Ledger) Process(txn store.Txn, b *ledgertypes.Block) (ledgertypes.ProcessResult, error) {
	hash := b.Hash()

	if _, exists, err := txn.Get(store.TableBlocks, hashKey(hash)); err != nil {
		return ledgertypes.ResultInvalid, err
	} else if exists {
		return ledgertypes.ResultOld, nil
	}

	account, info, havePrev, err := l.resolveAccount(txn, b)
	if err != nil {
		return ledgertypes.ResultInvalid, err
	}
	if !havePrev {
		return ledgertypes.ResultGapPrevious, nil
	}

	// account is the chain owner in every case: b.Account for true opens
	// and state blocks, or the account recovered from the previous
	// block's frontier entry for legacy send/receive/change blocks (which
	// don't carry the account explicitly). An epoch block is the one
	// exception: it targets account but is signed by the configured epoch
	// signer, never by account's own key (spec.md §4.2 step 3, §8
	// scenario 3).
	if !b.VerifySignature(l.signingAccount(account, info, b)) {
		return ledgertypes.ResultBadSignature, nil
	}

	if account == ledgertypes.BurnAccount && b.Previous.IsZero() {
		return ledgertypes.ResultOpenedBurnAccount, nil
	}

	// Fork detection: the predecessor (if any) must not already have a
	// different successor recorded.
	if !b.Previous.IsZero() {
		prevData, ok, err := txn.Get(store.TableBlocks, hashKey(b.Previous))
		if err != nil {
			return ledgertypes.ResultInvalid, err
		}
		if !ok {
			return ledgertypes.ResultGapPrevious, nil
		}
		var prev ledgertypes.Block
		if err := prev.UnmarshalBinary(prevData); err != nil {
			return ledgertypes.ResultInvalid, err
		}
		if !prev.Sideband.Successor.IsZero() && prev.Sideband.Successor != hash {
			return ledgertypes.ResultFork, nil
		}
	}

	classification, eff, err := l.classify(txn, account, info, b)
	if err != nil || classification != ledgertypes.ResultProgress {
		return classification, err
	}

	if err := l.apply(txn, account, info, b, hash, eff); err != nil {
		return ledgertypes.ResultInvalid, err
	}
	return ledgertypes.ResultProgress, nil
}

// signingAccount reports the account whose key must have produced b's
// signature. For every block but one this is account, the chain owner.
// The exception is an epoch block: balance held flat and Link naming a
// registered epoch marker, which is authorized by that epoch's signer
// acting on account, not by account itself (spec.md §4.2 step 3, §8
// scenario 3; grounded on nano's epoch_open, signed by epoch_signer over
// a target account it does not own).
func (l *Ledger) signingAccount(account ledgertypes.Account, info resolvedInfo, b *ledgertypes.Block) ledgertypes.Account {
	if b.Kind != ledgertypes.KindState || !l.IsEpochLink(b.Link) {
		return account
	}
	balanceHeld := b.BalanceAfter.IsZero()
	if !info.isOpen {
		balanceHeld = b.BalanceAfter.Cmp(info.info.Balance) == 0
	}
	if !balanceHeld {
		return account
	}
	if signer, ok := l.EpochSigner(b.Link); ok {
		return signer
	}
	return account
}

// resolvedInfo bundles an account's current info together with a flag for
// whether this is a true open (no prior AccountInfo).
type resolvedInfo struct {
	info   ledgertypes.AccountInfo
	isOpen bool
}

// resolveAccount derives which account b belongs to and loads its current
// AccountInfo (zero-value if this is an open). havePrev is false exactly
// when the referenced previous block does not exist (gap_previous).
func (l *Ledger) resolveAccount(txn store.Txn, b *ledgertypes.Block) (ledgertypes.Account, resolvedInfo, bool, error) {
	if b.Previous.IsZero() {
		return b.Account, resolvedInfo{isOpen: true}, true, nil
	}
	prevAccountBytes, ok, err := txn.Get(store.TableFrontiers, hashKey(b.Previous))
	if err != nil {
		return ledgertypes.Account{}, resolvedInfo{}, false, err
	}
	if !ok {
		return ledgertypes.Account{}, resolvedInfo{}, false, nil
	}
	var account ledgertypes.Account
	copy(account[:], prevAccountBytes)

	infoBytes, ok, err := txn.Get(store.TableAccounts, accountKey(account))
	if err != nil {
		return ledgertypes.Account{}, resolvedInfo{}, false, err
	}
	if !ok {
		return ledgertypes.Account{}, resolvedInfo{}, false, fmt.Errorf("ledger: frontier %s has no account info", b.Previous)
	}
	var info ledgertypes.AccountInfo
	if err := info.UnmarshalBinary(infoBytes); err != nil {
		return ledgertypes.Account{}, resolvedInfo{}, false, err
	}
	return account, resolvedInfo{info: info, isOpen: false}, true, nil
}
