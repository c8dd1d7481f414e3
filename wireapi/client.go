package wireapi

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

// BulkPullAttempt identifies one bootstrap pull of an account's chain.
// Carrying a per-attempt ID (spec.md §5 "Bootstrap pulls carry
// per-attempt IDs so that a restart does not duplicate work") lets a
// restarted bootstrap recognize and discard a stale in-flight attempt's
// results instead of double-applying them.
type BulkPullAttempt struct {
	ID      uuid.UUID
	Account ledgertypes.Account
}

// BulkPullClient is the minimal in-memory bootstrap client stub
// SPEC_FULL.md §4.12 calls for: enough to pull an account's chain
// through a Handler and retry on transient failure, not a real network
// bootstrap implementation.
type BulkPullClient struct {
	handler *Handler
	backoff func() backoff.BackOff
}

// NewBulkPullClient builds a client pulling through h, retrying each
// attempt with a fresh exponential backoff.
func NewBulkPullClient(h *Handler) *BulkPullClient {
	return &BulkPullClient{handler: h, backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() }}
}

// SetBackoff overrides the retry policy, e.g. to a zero-delay backoff in
// tests that want to exercise retry without waiting in real time.
func (c *BulkPullClient) SetBackoff(factory func() backoff.BackOff) {
	c.backoff = factory
}

// PullAccount starts a new attempt and bulk-pulls account's full chain
// from its current frontier back to its open block, retrying the pull
// itself (not the frontier lookup) on error.
func (c *BulkPullClient) PullAccount(ctx context.Context, account ledgertypes.Account) (BulkPullAttempt, []*ledgertypes.Block, error) {
	attempt := BulkPullAttempt{ID: uuid.New(), Account: account}

	latest, ok, err := c.handler.rpc.Latest(ctx, account)
	if err != nil {
		return attempt, nil, err
	}
	if !ok {
		return attempt, nil, nil
	}

	var blocks []*ledgertypes.Block
	op := func() error {
		var err error
		blocks, err = c.handler.HandleBulkPull(ctx, BulkPull{Start: latest})
		return err
	}
	if err := backoff.Retry(op, c.backoff()); err != nil {
		return attempt, nil, err
	}
	return attempt, blocks, nil
}
