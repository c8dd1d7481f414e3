package wireapi

import (
	"context"
	"errors"
	"time"

	"github.com/nanocurrency/nanogod/blockprocessor"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/rpcapi"
	"github.com/nanocurrency/nanogod/store"
	"github.com/nanocurrency/nanogod/vote"
)

// ErrNoLocalRepresentative is returned by HandleConfirmReq when Handler
// was not given a representative account to generate votes from.
var ErrNoLocalRepresentative = errors.New("wireapi: no local representative configured")

// Handler answers each wire message with the minimal in-memory behavior
// spec.md §6 describes, standing in for the real wire codec and
// transport this repository never builds (SPEC_FULL.md §4.12).
type Handler struct {
	blockProcessor *blockprocessor.Processor
	vote           *vote.Processor
	rpc            *rpcapi.Service
	store          store.Store
	representative ledgertypes.Account
}

// NewHandler builds a Handler. representative may be the zero account
// if this node generates no votes of its own; HandleConfirmReq then
// always fails with ErrNoLocalRepresentative.
func NewHandler(bp *blockprocessor.Processor, vp *vote.Processor, rpc *rpcapi.Service, s store.Store, representative ledgertypes.Account) *Handler {
	return &Handler{blockProcessor: bp, vote: vp, rpc: rpc, store: s, representative: representative}
}

// HandlePublish enqueues m.Block as standard-priority work (spec.md §6
// `publish`), reporting whether the queue accepted it.
func (h *Handler) HandlePublish(m Publish) bool {
	return h.blockProcessor.Enqueue(blockprocessor.SourceStandard, m.Block)
}

// HandleConfirmReq answers m with a cached or freshly generated vote
// over its requested hashes (spec.md §6 `confirm_req`). A single-pair
// request prefers a cached signature over regenerating one, per
// vote.Processor.CachedOrGenerate's contract.
func (h *Handler) HandleConfirmReq(m ConfirmReq) (ConfirmAck, error) {
	if h.representative.IsZero() {
		return ConfirmAck{}, ErrNoLocalRepresentative
	}
	var (
		v   *ledgertypes.Vote
		err error
	)
	if len(m.Requests) == 1 {
		v, err = h.vote.CachedOrGenerate(h.representative, m.Requests[0])
	} else {
		v, err = h.vote.Generate(h.representative, m.Requests)
	}
	if err != nil {
		return ConfirmAck{}, err
	}
	return ConfirmAck{Vote: v}, nil
}

// HandleConfirmAck dispatches m's vote to the vote processor (spec.md §6
// `confirm_ack`).
func (h *Handler) HandleConfirmAck(ctx context.Context, m ConfirmAck, now time.Time) error {
	return h.vote.ProcessVote(ctx, m.Vote, now)
}

// HandleBulkPull walks m.Start's chain backward via each block's
// Previous pointer until it reaches m.End, the account's open block, or
// m.Count blocks have been collected (spec.md §6 `bulk_pull`), returning
// them in the same most-recent-first order the walk visits them.
func (h *Handler) HandleBulkPull(ctx context.Context, m BulkPull) ([]*ledgertypes.Block, error) {
	var out []*ledgertypes.Block
	cur := m.Start
	for {
		if m.CountPresent && uint32(len(out)) >= m.Count {
			break
		}
		b, ok, err := h.rpc.BlockGet(ctx, cur)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, b)
		if cur == m.End || b.Previous.IsZero() {
			break
		}
		cur = b.Previous
	}
	return out, nil
}

// HandleFrontierReq enumerates accounts in key order starting at
// m.Start, up to m.Count entries, optionally filtered to frontiers
// modified within m.Age of now or to confirmed frontiers only (spec.md
// §6 `frontier_req`).
func (h *Handler) HandleFrontierReq(ctx context.Context, m FrontierReq, now time.Time) ([]FrontierEntry, error) {
	txn, err := h.store.Begin(ctx, false)
	if err != nil {
		return nil, err
	}
	defer txn.Discard()

	var out []FrontierEntry
	cur := txn.Cursor(store.TableAccounts, m.Start[:])
	defer cur.Close()

	for cur.Next() {
		if m.Count > 0 && uint32(len(out)) >= m.Count {
			break
		}
		var account ledgertypes.Account
		copy(account[:], cur.Key())

		var info ledgertypes.AccountInfo
		if err := info.UnmarshalBinary(cur.Value()); err != nil {
			return out, err
		}

		if m.Age > 0 && now.Unix()-info.ModifiedTimestamp > int64(m.Age) {
			continue
		}
		if m.OnlyConfirmed {
			confirmed, err := h.rpc.BlockConfirmed(ctx, info.Head)
			if err != nil {
				return out, err
			}
			if !confirmed {
				continue
			}
		}

		out = append(out, FrontierEntry{Account: account, Frontier: info.Head})
	}
	return out, nil
}

// HandleBulkPullAccount enumerates m.Account's pending entries of at
// least m.MinimumAmount (spec.md §6 `bulk_pull_account`). When m.Flags
// is BulkPullAccountFlagPendingAddressOnly, entries are deduplicated by
// source address and carry only that field.
func (h *Handler) HandleBulkPullAccount(ctx context.Context, m BulkPullAccount) ([]PendingEntry, error) {
	keys, values, err := h.rpc.AccountReceivable(ctx, m.Account, m.MinimumAmount)
	if err != nil {
		return nil, err
	}

	if m.Flags != BulkPullAccountFlagPendingAddressOnly {
		out := make([]PendingEntry, len(keys))
		for i := range keys {
			out[i] = PendingEntry{Hash: keys[i].Hash, Amount: values[i].Amount}
			if m.Flags == BulkPullAccountFlagPendingHashAmountAndAddress {
				out[i].Source = values[i].Source
			}
		}
		return out, nil
	}

	seen := make(map[ledgertypes.Account]bool, len(values))
	var out []PendingEntry
	for _, v := range values {
		if seen[v.Source] {
			continue
		}
		seen[v.Source] = true
		out = append(out, PendingEntry{Source: v.Source})
	}
	return out, nil
}
