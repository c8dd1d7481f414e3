// Package wireapi defines the message shapes spec.md §6 lists under
// "wire messages accepted by the block processor" as plain Go types —
// publish, confirm_req, confirm_ack, bulk_pull, frontier_req and
// bulk_pull_account — with no frame codec or transport attached
// (SPEC_FULL.md §4.12: the wire protocol itself is an external
// collaborator, out of scope here). Handler supplies the minimal
// in-memory server-side behavior for each message, enough to drive the
// ledger/election pipeline end-to-end in tests, the way the teacher's
// eth/protocols/eth package pairs wire packet types with a handler that
// answers them.
package wireapi

import (
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/vote"
)

// Publish enqueues block for standard processing (spec.md §6
// `publish(block)`).
type Publish struct {
	Block *ledgertypes.Block
}

// ConfirmReq asks for a vote covering one or more (hash, root) pairs
// (spec.md §6 `confirm_req(hash, root | [(hash,root)])`).
type ConfirmReq struct {
	Requests []vote.RootHash
}

// ConfirmAck carries a vote to be dispatched to the vote processor
// (spec.md §6 `confirm_ack(vote)`).
type ConfirmAck struct {
	Vote *ledgertypes.Vote
}

// BulkPull asks the server to enumerate blocks walking backward from
// Start toward End (or account origin if End is the zero hash), capped
// at Count when CountPresent is set (spec.md §6 `bulk_pull(start, end,
// count_present, count)`).
type BulkPull struct {
	Start        ledgertypes.Hash
	End          ledgertypes.Hash
	CountPresent bool
	Count        uint32
}

// FrontierReq asks the server to enumerate (account, frontier_hash)
// pairs in account order starting at Start, capped at Count, optionally
// filtered to confirmed frontiers or to accounts modified within Age of
// the request (spec.md §6 `frontier_req(start, age, count,
// only_confirmed?)`). Age of zero means unfiltered.
type FrontierReq struct {
	Start         ledgertypes.Account
	Age           uint32
	Count         uint32
	OnlyConfirmed bool
}

// FrontierEntry is one response entry to a FrontierReq.
type FrontierEntry struct {
	Account  ledgertypes.Account
	Frontier ledgertypes.Hash
}

// BulkPullAccountFlags selects how much detail bulk_pull_account returns
// per pending entry.
type BulkPullAccountFlags uint8

const (
	// BulkPullAccountFlagPendingHashAndAmount returns each entry's hash
	// and amount but not its source address.
	BulkPullAccountFlagPendingHashAndAmount BulkPullAccountFlags = iota
	// BulkPullAccountFlagPendingAddressOnly returns only the distinct
	// source addresses, deduplicated (spec.md §6 "optionally returning
	// only the distinct source addresses").
	BulkPullAccountFlagPendingAddressOnly
	// BulkPullAccountFlagPendingHashAmountAndAddress returns every field.
	BulkPullAccountFlagPendingHashAmountAndAddress
)

// BulkPullAccount asks the server to enumerate Account's pending entries
// of at least MinimumAmount (spec.md §6 `bulk_pull_account(account,
// min_amount, flags)`).
type BulkPullAccount struct {
	Account       ledgertypes.Account
	MinimumAmount ledgertypes.Amount
	Flags         BulkPullAccountFlags
}

// PendingEntry is one response entry to a BulkPullAccount. Hash and
// Amount are zeroed when Flags requests address-only output; Source is
// zeroed when Flags requests hash and amount only.
type PendingEntry struct {
	Hash   ledgertypes.Hash
	Source ledgertypes.Account
	Amount ledgertypes.Amount
}
