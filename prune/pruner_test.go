package prune

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/repweight"
	"github.com/nanocurrency/nanogod/store"
	"github.com/nanocurrency/nanogod/store/leveldbstore"
)

type fixture struct {
	t       *testing.T
	s       store.Store
	ledger  *ledger.Ledger
	account ledgertypes.Account
	priv    ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := leveldbstore.Open(filepath.Join(dir, "db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var account ledgertypes.Account
	copy(account[:], pub)
	weights := repweight.NewTable()

	genesisBlock := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: account, Representative: account,
		BalanceAfter: ledgertypes.AmountFromUint64(1_000_000),
	}
	genesisBlock.Sign(priv)

	l := ledger.New(weights, ledger.GenesisSpec{
		Account: account, Representative: account,
		Balance: ledgertypes.AmountFromUint64(1_000_000), Block: genesisBlock,
	}, map[uint8]ledger.EpochSpec{})

	txn, err := s.Begin(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, l.InitGenesis(txn))
	require.NoError(t, txn.Commit())

	return &fixture{t: t, s: s, ledger: l, account: account, priv: priv}
}

func (f *fixture) genesisHash() ledgertypes.Hash {
	b := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.account, Representative: f.account,
		BalanceAfter: ledgertypes.AmountFromUint64(1_000_000),
	}
	return b.Hash()
}

// chain applies n additional state blocks after the genesis (heights
// 2..n+1), each sending 1 unit, and returns their hashes in height order.
func (f *fixture) chain(n int) []ledgertypes.Hash {
	f.t.Helper()
	hashes := make([]ledgertypes.Hash, 0, n)
	prev := f.genesisHash()
	balance := uint64(1_000_000)
	for i := 0; i < n; i++ {
		balance--
		b := &ledgertypes.Block{
			Kind: ledgertypes.KindState, Account: f.account, Previous: prev,
			Representative: f.account, BalanceAfter: ledgertypes.AmountFromUint64(balance),
		}
		b.Sign(f.priv)
		txn, err := f.s.Begin(context.Background(), true)
		require.NoError(f.t, err)
		result, err := f.ledger.Process(txn, b)
		require.NoError(f.t, err)
		require.Equal(f.t, ledgertypes.ResultProgress, result)
		require.NoError(f.t, txn.Commit())
		hash := b.Hash()
		hashes = append(hashes, hash)
		prev = hash
	}
	return hashes
}

// confirm seeds confirmation_height directly, skipping the confheight
// processor since these tests only need the resulting state.
func (f *fixture) confirm(height uint64, frontier ledgertypes.Hash) {
	f.t.Helper()
	txn, err := f.s.Begin(context.Background(), true)
	require.NoError(f.t, err)
	info := ledgertypes.ConfirmationHeightInfo{Height: height, Frontier: frontier}
	require.NoError(f.t, txn.Put(store.TableConfirmationHeight, f.account[:], info.MarshalBinary()))
	require.NoError(f.t, txn.Commit())
}

func (f *fixture) blockExists(hash ledgertypes.Hash) bool {
	f.t.Helper()
	txn, err := f.s.Begin(context.Background(), false)
	require.NoError(f.t, err)
	defer txn.Discard()
	_, ok, err := f.ledger.BlockGet(txn, hash)
	require.NoError(f.t, err)
	return ok
}

func (f *fixture) isPruned(hash ledgertypes.Hash) bool {
	f.t.Helper()
	txn, err := f.s.Begin(context.Background(), false)
	require.NoError(f.t, err)
	defer txn.Discard()
	_, ok, err := txn.Get(store.TablePruned, hash[:])
	require.NoError(f.t, err)
	return ok
}

func TestSweepSkipsAccountsShallowerThanDepth(t *testing.T) {
	f := newFixture(t)
	hashes := f.chain(3)
	f.confirm(4, hashes[2]) // genesis(1) + 3 blocks = height 4

	p := New(f.s, f.ledger, Config{Depth: 10, MinAge: 0})
	n, err := p.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.True(t, f.blockExists(f.genesisHash()))
}

func TestSweepSkipsAccountsNotOldEnough(t *testing.T) {
	f := newFixture(t)
	hashes := f.chain(6)
	f.confirm(7, hashes[5])

	p := New(f.s, f.ledger, Config{Depth: 2, MinAge: 365 * 24 * time.Hour})
	n, err := p.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSweepPrunesPrefixAndNeverTouchesFrontier(t *testing.T) {
	f := newFixture(t)
	hashes := f.chain(6) // heights 2..7
	frontier := hashes[5]
	f.confirm(7, frontier)

	p := New(f.s, f.ledger, Config{Depth: 5, MinAge: 0, MaxBlocksPerAccount: 100})
	n, err := p.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, n, "boundary = 7-5 = 2: genesis (height 1) and the first block (height 2) are prunable")

	require.False(t, f.blockExists(f.genesisHash()))
	require.True(t, f.isPruned(f.genesisHash()))
	require.False(t, f.blockExists(hashes[0]))
	require.True(t, f.isPruned(hashes[0]))

	for _, h := range hashes[1:] {
		require.True(t, f.blockExists(h), "heights above the boundary must survive")
	}
	require.True(t, f.blockExists(frontier), "the confirmed frontier is never pruned")
	require.Equal(t, uint64(2), p.Pruned())
}

func TestSweepClearsSurvivingPredecessorSuccessorWhenBatchCapped(t *testing.T) {
	f := newFixture(t)
	hashes := f.chain(6) // heights 2..7
	frontier := hashes[5]
	f.confirm(7, frontier)

	// First pass: prune heights 1-2 in full.
	p1 := New(f.s, f.ledger, Config{Depth: 5, MinAge: 0, MaxBlocksPerAccount: 100})
	n1, err := p1.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, n1)

	// Second pass: boundary becomes height 6 (depth 1), but the batch cap
	// of 2 stops after heights 6 and 5, leaving height 4 (already
	// surviving from pass one) as the new dangling predecessor.
	p2 := New(f.s, f.ledger, Config{Depth: 1, MinAge: 0, MaxBlocksPerAccount: 2})
	n2, err := p2.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, n2)

	require.False(t, f.blockExists(hashes[4])) // height 6
	require.False(t, f.blockExists(hashes[3])) // height 5
	require.True(t, f.blockExists(hashes[2]))  // height 4, survives but now dangling
	require.True(t, f.blockExists(frontier))   // height 7, frontier

	txn, err := f.s.Begin(context.Background(), false)
	require.NoError(t, err)
	defer txn.Discard()
	survivor, ok, err := f.ledger.BlockGet(txn, hashes[2])
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, survivor.Sideband.Successor.IsZero(), "the successor pointer into the just-pruned block must be cleared")
}

func TestPruneAccountIsNoOpOnceChainFullyPruned(t *testing.T) {
	f := newFixture(t)
	hashes := f.chain(2)
	f.confirm(3, hashes[1])

	p := New(f.s, f.ledger, Config{Depth: 1, MinAge: 0, MaxBlocksPerAccount: 100})
	n1, err := p.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, n1)

	n2, err := p.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, n2, "a second sweep over an already-pruned prefix finds nothing new")
}
