// Package ledgertypes defines the account-chain data model shared by every
// component of the ledger: accounts, block variants, the per-block sideband,
// pending entries, account metadata and the block-processing result
// taxonomy. Nothing in this package touches storage or consensus; it is the
// vocabulary the rest of the node speaks.
package ledgertypes

import (
	"encoding/hex"
	"fmt"
)

// HashSize and AccountSize are both 256-bit, matching the node's BLAKE2b
// hash width and Ed25519 public key width.
const (
	HashSize    = 32
	AccountSize = 32
	SigSize     = 64
)

// Hash is a block hash or any other 256-bit digest (epoch markers, work
// roots).
type Hash [HashSize]byte

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// HashFromHex parses a hex-encoded hash, as found in a genesis/epoch
// config file.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("ledgertypes: invalid hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("ledgertypes: hash %q is %d bytes, want %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// Account is a 256-bit Ed25519 public key identifying the owner of a chain.
type Account [AccountSize]byte

func (a Account) IsZero() bool { return a == Account{} }

func (a Account) String() string { return hex.EncodeToString(a[:]) }

// AccountFromHex parses a hex-encoded public key, as found in a
// genesis/epoch config file.
func AccountFromHex(s string) (Account, error) {
	var a Account
	b, err := hex.DecodeString(s)
	if err != nil {
		return Account{}, fmt.Errorf("ledgertypes: invalid account %q: %w", s, err)
	}
	if len(b) != AccountSize {
		return Account{}, fmt.Errorf("ledgertypes: account %q is %d bytes, want %d", s, len(b), AccountSize)
	}
	copy(a[:], b)
	return a, nil
}

// BurnAccount is the all-zero sentinel account. Sends to it are
// permanently unspendable; it can never be opened (ProcessResult
// OpenedBurnAccount, spec.md §3 invariant list, §7 error taxonomy).
var BurnAccount = Account{}

// Signature is a raw Ed25519 signature over a block's hash.
type Signature [SigSize]byte

// BlockKind discriminates the five block variants sharing the Block
// struct below. This is the "tagged variant with a BlockKind
// discriminant" called for in spec.md §9 DESIGN NOTES in place of a
// class hierarchy.
type BlockKind uint8

const (
	KindInvalid BlockKind = iota
	KindOpen
	KindSend
	KindReceive
	KindChange
	KindState
)

func (k BlockKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	case KindChange:
		return "change"
	case KindState:
		return "state"
	default:
		return "invalid"
	}
}

// StateSubtype is the semantic meaning of a state block, inferred by the
// ledger from the balance delta and link field (spec.md §3 "state
// (universal)").
type StateSubtype uint8

const (
	SubtypeInvalid StateSubtype = iota
	SubtypeSend
	SubtypeReceive
	SubtypeOpen
	SubtypeChange
	SubtypeEpoch
)

func (s StateSubtype) String() string {
	switch s {
	case SubtypeSend:
		return "send"
	case SubtypeReceive:
		return "receive"
	case SubtypeOpen:
		return "open"
	case SubtypeChange:
		return "change"
	case SubtypeEpoch:
		return "epoch"
	default:
		return "invalid"
	}
}

// Block is the tagged union of the five on-wire block variants. Only the
// fields relevant to Kind are meaningful; Hash() and the codec know which
// fields to read for each kind. A single struct (rather than five types
// behind an interface) keeps construction, pooling and storage simple and
// matches how the original node's "state block" subsumes the legacy
// variants in practice.
type Block struct {
	Kind BlockKind

	// open: Source, Representative, Account
	// send: Previous, Destination, BalanceAfter
	// receive: Previous, Source
	// change: Previous, Representative
	// state: Account, Previous, Representative, BalanceAfter, Link
	Account        Account
	Previous       Hash
	Representative Account
	BalanceAfter   Amount
	Destination    Account
	Source         Hash
	Link           Hash

	Signature Signature
	Work      uint64

	// Sideband is populated once the block has been applied by the
	// ledger; zero-value before that.
	Sideband Sideband
}

// Sideband is per-block metadata stored alongside the block body, never
// transmitted as part of the signed payload (spec.md §3 "Every persisted
// block carries a sideband"). The Prev* fields and OpenBlock record the
// account's state immediately before this block applied, so rollback can
// restore it directly instead of replaying the chain from genesis.
type Sideband struct {
	Account            Account
	Height             uint64
	Successor          Hash
	Timestamp          int64
	Epoch              uint8
	IsSend             bool
	IsReceive          bool
	IsEpoch            bool
	OpenBlock          Hash
	PrevBalance        Amount
	PrevRepresentative Account
	PrevEpoch          uint8
}

// Root is the work-validation root: the account for a true open block
// (one with no previous), otherwise Previous (spec.md §4.3).
func (b *Block) Root() Hash {
	if b.Previous.IsZero() {
		return Hash(b.Account)
	}
	return b.Previous
}

// SignerAccount is the account whose key must have produced Signature.
// For open/state blocks this is the Account field; for send/receive/change
// it is resolved by the ledger from the previous block's frontiers-table
// entry (hash -> account), since
// those legacy variants don't carry the account explicitly.
func (b *Block) SignerAccount() (Account, bool) {
	switch b.Kind {
	case KindOpen, KindState:
		return b.Account, true
	default:
		return Account{}, false
	}
}

// PendingKey identifies a pending (unreceived send) entry.
type PendingKey struct {
	Destination Account
	Hash        Hash
}

// PendingValue is the value half of a pending entry.
type PendingValue struct {
	Source Account
	Amount Amount
	Epoch  uint8
}

// AccountInfo is the per-account chain metadata the ledger maintains.
type AccountInfo struct {
	Head              Hash
	OpenBlock         Hash
	Balance           Amount
	ModifiedTimestamp int64
	BlockCount        uint64
	Representative    Account
	Epoch             uint8
}

// ConfirmationHeightInfo records how far into an account's chain
// cementation has progressed.
type ConfirmationHeightInfo struct {
	Height   uint64
	Frontier Hash
}

// ProcessResult is the ledger's block classification taxonomy (spec.md §3
// "Lifecycle", §7 "Error Handling Design"). It is returned rather than a
// plain error because the block processor's dispatch logic (spec.md §4.4)
// branches on the exact classification, not merely success/failure.
type ProcessResult uint8

const (
	ResultInvalid ProcessResult = iota
	ResultProgress
	ResultOld
	ResultFork
	ResultGapPrevious
	ResultGapSource
	ResultBadSignature
	ResultNegativeSpend
	ResultBalanceMismatch
	ResultUnreceivable
	ResultBlockPosition
	ResultGapEpochOpenPending
	ResultInsufficientWork
	ResultOpenedBurnAccount
	ResultRepresentativeMismatch
)

func (r ProcessResult) String() string {
	switch r {
	case ResultProgress:
		return "progress"
	case ResultOld:
		return "old"
	case ResultFork:
		return "fork"
	case ResultGapPrevious:
		return "gap_previous"
	case ResultGapSource:
		return "gap_source"
	case ResultBadSignature:
		return "bad_signature"
	case ResultNegativeSpend:
		return "negative_spend"
	case ResultBalanceMismatch:
		return "balance_mismatch"
	case ResultUnreceivable:
		return "unreceivable"
	case ResultBlockPosition:
		return "block_position"
	case ResultGapEpochOpenPending:
		return "gap_epoch_open_pending"
	case ResultInsufficientWork:
		return "insufficient_work"
	case ResultOpenedBurnAccount:
		return "opened_burn_account"
	case ResultRepresentativeMismatch:
		return "representative_mismatch"
	default:
		return "invalid"
	}
}

// IsTerminalDrop reports whether the processor should simply drop the
// block (no unchecked insertion, no election) after this classification.
func (r ProcessResult) IsTerminalDrop() bool {
	switch r {
	case ResultOld, ResultBadSignature, ResultNegativeSpend, ResultBalanceMismatch,
		ResultUnreceivable, ResultBlockPosition, ResultGapEpochOpenPending,
		ResultInsufficientWork, ResultOpenedBurnAccount, ResultRepresentativeMismatch:
		return true
	default:
		return false
	}
}

// IsGap reports whether the block should be staged in the unchecked
// buffer.
func (r ProcessResult) IsGap() bool {
	return r == ResultGapPrevious || r == ResultGapSource
}

func (b *Block) String() string {
	return fmt.Sprintf("%s{hash omitted, account=%s}", b.Kind, b.Account)
}
