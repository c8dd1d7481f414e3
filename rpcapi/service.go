// Package rpcapi exposes the read-only ledger query surface and the
// process/rollback operations spec.md §6 lists as "the Ledger API
// consumed by the wallet and RPC" as plain Go methods on Service, the
// way the teacher's datx.PublicEthereumAPI wraps a *datx.Ethereum and
// hands the RPC server something to reflect over (see
// _examples/DATxChain-Protocol-DATx/datx/api.go). There is no JSON-RPC
// dispatcher or HTTP listener here: that transport is explicitly out of
// scope, so Service is the whole surface a dispatcher would sit on top
// of, and is also what wireapi.Handler and tests call directly.
package rpcapi

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/store"
	"github.com/nanocurrency/nanogod/work"
)

// Service is the read/write ledger surface handed to wallet and RPC
// callers. Every method manages its own transaction; callers never see
// a store.Txn.
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
}

// New builds a Service over an already-opened store and ledger.
func New(s store.Store, l *ledger.Ledger) *Service {
	return &Service{store: s, ledger: l}
}

func (s *Service) read(ctx context.Context, fn func(store.Txn) error) error {
	txn, err := s.store.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer txn.Discard()
	return fn(txn)
}

func (s *Service) write(ctx context.Context, fn func(store.Txn) error) error {
	txn, err := s.store.Begin(ctx, true)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		txn.Discard()
		return err
	}
	return txn.Commit()
}

// Process applies b through the ledger directly (spec.md §6
// `process(block)`), independent of the block processor's queues and
// fork/gap handling — callers wanting that behavior go through
// blockprocessor.Processor.Enqueue instead; this is the raw ledger
// operation the wallet and a synchronous RPC caller use.
func (s *Service) Process(ctx context.Context, b *ledgertypes.Block) (ledgertypes.ProcessResult, error) {
	var result ledgertypes.ProcessResult
	err := s.write(ctx, func(txn store.Txn) error {
		var err error
		result, err = s.ledger.Process(txn, b)
		return err
	})
	return result, err
}

// Rollback undoes target and everything applied after it on its account
// (spec.md §6 `rollback(hash)`), refusing to touch anything at or below
// the account's current confirmation height.
func (s *Service) Rollback(ctx context.Context, target ledgertypes.Hash) ([]ledgertypes.Hash, error) {
	var hashes []ledgertypes.Hash
	err := s.write(ctx, func(txn store.Txn) error {
		account, ok, err := s.ledger.AccountOf(txn, target)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("rpcapi: rollback: %s: no such block", target)
		}
		confirmed, err := confirmationHeight(txn, account)
		if err != nil {
			return err
		}
		hashes, err = s.ledger.Rollback(txn, target, confirmed)
		return err
	})
	return hashes, err
}

// confirmationHeight reads an account's confirmation-height record
// directly, mirroring confheight's own internal lookup of the same
// table (spec.md §4.7); a missing record means never confirmed.
func confirmationHeight(txn store.Txn, account ledgertypes.Account) (ledgertypes.ConfirmationHeightInfo, error) {
	data, ok, err := txn.Get(store.TableConfirmationHeight, account[:])
	if err != nil || !ok {
		return ledgertypes.ConfirmationHeightInfo{}, err
	}
	var ch ledgertypes.ConfirmationHeightInfo
	if err := ch.UnmarshalBinary(data); err != nil {
		return ledgertypes.ConfirmationHeightInfo{}, err
	}
	return ch, nil
}

// AccountInfo returns account's chain metadata (spec.md §6
// `account_info`).
func (s *Service) AccountInfo(ctx context.Context, account ledgertypes.Account) (ledgertypes.AccountInfo, bool, error) {
	var (
		info ledgertypes.AccountInfo
		ok   bool
	)
	err := s.read(ctx, func(txn store.Txn) error {
		var err error
		info, ok, err = s.ledger.AccountInfo(txn, account)
		return err
	})
	return info, ok, err
}

// AccountReceivable lists account's pending (unreceived) send entries
// with amount at least minAmount (spec.md §6 `account_receivable`); a
// zero minAmount returns every pending entry.
func (s *Service) AccountReceivable(ctx context.Context, account ledgertypes.Account, minAmount ledgertypes.Amount) ([]ledgertypes.PendingKey, []ledgertypes.PendingValue, error) {
	var (
		keys   []ledgertypes.PendingKey
		values []ledgertypes.PendingValue
	)
	err := s.read(ctx, func(txn store.Txn) error {
		allKeys, allValues, err := s.ledger.AccountReceivable(txn, account)
		if err != nil {
			return err
		}
		for i, v := range allValues {
			if v.Amount.Cmp(minAmount) < 0 {
				continue
			}
			keys = append(keys, allKeys[i])
			values = append(values, v)
		}
		return nil
	})
	return keys, values, err
}

// BlockGet fetches a block by hash (spec.md §6 `block_get`).
func (s *Service) BlockGet(ctx context.Context, hash ledgertypes.Hash) (*ledgertypes.Block, bool, error) {
	var (
		b  *ledgertypes.Block
		ok bool
	)
	err := s.read(ctx, func(txn store.Txn) error {
		var err error
		b, ok, err = s.ledger.BlockGet(txn, hash)
		return err
	})
	return b, ok, err
}

// BlockOrPrunedExists reports whether hash is either a live block or a
// pruned-but-remembered one (spec.md §6 `block_or_pruned_exists`).
func (s *Service) BlockOrPrunedExists(ctx context.Context, hash ledgertypes.Hash) (bool, error) {
	var exists bool
	err := s.read(ctx, func(txn store.Txn) error {
		var err error
		exists, err = s.ledger.BlockOrPrunedExists(txn, hash)
		return err
	})
	return exists, err
}

// Latest returns account's frontier hash (spec.md §6 `latest`).
func (s *Service) Latest(ctx context.Context, account ledgertypes.Account) (ledgertypes.Hash, bool, error) {
	var (
		hash ledgertypes.Hash
		ok   bool
	)
	err := s.read(ctx, func(txn store.Txn) error {
		var err error
		hash, ok, err = s.ledger.Latest(txn, account)
		return err
	})
	return hash, ok, err
}

// Successor returns the block applied immediately after hash on its
// account, if any (spec.md §6 `successor`).
func (s *Service) Successor(ctx context.Context, hash ledgertypes.Hash) (ledgertypes.Hash, bool, error) {
	var (
		successor ledgertypes.Hash
		ok        bool
	)
	err := s.read(ctx, func(txn store.Txn) error {
		var err error
		successor, ok, err = s.ledger.Successor(txn, hash)
		return err
	})
	return successor, ok, err
}

// Representative returns the representative in effect for hash's
// account at the time hash applied (spec.md §6 `representative(hash)`).
func (s *Service) Representative(ctx context.Context, hash ledgertypes.Hash) (ledgertypes.Account, bool, error) {
	var (
		rep ledgertypes.Account
		ok  bool
	)
	err := s.read(ctx, func(txn store.Txn) error {
		var err error
		rep, ok, err = s.ledger.Representative(txn, hash)
		return err
	})
	return rep, ok, err
}

// EpochSigner returns the account authorized to sign the epoch whose
// link value is link (spec.md §6 `epoch_signer(link)`). No transaction
// is needed: epoch links are fixed at construction, not stored state.
func (s *Service) EpochSigner(link ledgertypes.Hash) (ledgertypes.Account, bool) {
	return s.ledger.EpochSigner(link)
}

// Weight returns rep's currently cached voting weight (spec.md §6
// `weight`). No transaction is needed: the ledger keeps this in memory,
// updated as part of every Process call.
func (s *Service) Weight(rep ledgertypes.Account) ledgertypes.Amount {
	return s.ledger.Weight(rep)
}

// BlockConfirmed reports whether hash's height is at or below its
// account's confirmation height (spec.md §6 `block_confirmed`).
func (s *Service) BlockConfirmed(ctx context.Context, hash ledgertypes.Hash) (bool, error) {
	var confirmed bool
	err := s.read(ctx, func(txn store.Txn) error {
		var err error
		confirmed, err = s.ledger.BlockConfirmed(txn, hash)
		return err
	})
	return confirmed, err
}

// IsEpochLink reports whether link names one of the ledger's configured
// epochs (spec.md §6 `is_epoch_link`).
func (s *Service) IsEpochLink(link ledgertypes.Hash) bool {
	return s.ledger.IsEpochLink(link)
}

// BuildStateBlock produces a correctly-typed, signed, worked state
// block continuing account's chain (or opening it, if account has no
// frontier yet) with the given representative, resulting balance and
// link, the wallet-side block-construction helper spec.md §6 describes
// ("given a previous-hash and intended balance/destination/
// representative, produce a correctly-typed state block and request
// work for the appropriate root"). The caller supplies details so the
// right work threshold tier applies (spec.md §4.3, SPEC_FULL.md §5).
func (s *Service) BuildStateBlock(ctx context.Context, account, representative ledgertypes.Account, balanceAfter ledgertypes.Amount, link ledgertypes.Hash, priv ed25519.PrivateKey, validator *work.Validator, details work.Details) (*ledgertypes.Block, error) {
	previous, _, err := s.Latest(ctx, account)
	if err != nil {
		return nil, err
	}

	b := &ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        account,
		Previous:       previous,
		Representative: representative,
		BalanceAfter:   balanceAfter,
		Link:           link,
	}
	b.Work = validator.FindWork(b.Root(), details)
	b.Sign(priv)
	return b, nil
}
