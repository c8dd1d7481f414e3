package ledger

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/repweight"
	"github.com/nanocurrency/nanogod/store"
	"github.com/nanocurrency/nanogod/store/leveldbstore"
)

type keypair struct {
	account ledgertypes.Account
	priv    ed25519.PrivateKey
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var account ledgertypes.Account
	copy(account[:], pub)
	return keypair{account: account, priv: priv}
}

// fixture wires a fresh store + ledger seeded with a genesis account
// holding 1,000,000 raw, self-representing.
type fixture struct {
	t       *testing.T
	s       store.Store
	weights *repweight.Table
	ledger  *Ledger
	genesis keypair
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := leveldbstore.Open(filepath.Join(dir, "db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	genesis := newKeypair(t)
	weights := repweight.NewTable()

	genesisBlock := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        genesis.account,
		Representative: genesis.account,
		BalanceAfter:   ledgertypes.AmountFromUint64(1_000_000),
	}
	genesisBlock.Sign(genesis.priv)

	l := New(weights, GenesisSpec{
		Account:        genesis.account,
		Representative: genesis.account,
		Balance:        ledgertypes.AmountFromUint64(1_000_000),
		Block:          genesisBlock,
	}, map[uint8]EpochSpec{
		1: {Link: ledgertypes.Hash{0xe1}, Signer: genesis.account},
	})

	txn, err := s.Begin(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, l.InitGenesis(txn))
	require.NoError(t, txn.Commit())

	return &fixture{t: t, s: s, weights: weights, ledger: l, genesis: genesis}
}

func (f *fixture) writeTxn() store.Txn {
	txn, err := f.s.Begin(context.Background(), true)
	require.NoError(f.t, err)
	return txn
}

func TestOpenSendReceiveChangeHappyPath(t *testing.T) {
	f := newFixture(t)
	a := newKeypair(t)
	b := newKeypair(t)

	genesisHash := f.genesisHash()

	// Genesis sends 100 to A.
	send1 := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        f.genesis.account,
		Previous:       genesisHash,
		Representative: f.genesis.account,
		BalanceAfter:   ledgertypes.AmountFromUint64(999_900),
		Link:           ledgertypes.Hash(a.account),
	}
	send1.Sign(f.genesis.priv)
	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &send1)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())
	send1Hash := send1.Hash()

	// A opens with the pending amount.
	open1 := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        a.account,
		Representative: a.account,
		BalanceAfter:   ledgertypes.AmountFromUint64(100),
		Link:           send1Hash,
	}
	open1.Sign(a.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &open1)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())
	open1Hash := open1.Hash()

	// A sends 40 to B.
	send2 := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        a.account,
		Previous:       open1Hash,
		Representative: a.account,
		BalanceAfter:   ledgertypes.AmountFromUint64(60),
		Link:           ledgertypes.Hash(b.account),
	}
	send2.Sign(a.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &send2)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())
	send2Hash := send2.Hash()

	// B opens with the received 40.
	open2 := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        b.account,
		Representative: b.account,
		BalanceAfter:   ledgertypes.AmountFromUint64(40),
		Link:           send2Hash,
	}
	open2.Sign(b.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &open2)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())

	txn = f.writeTxn()
	balA, err := f.ledger.Balance(txn, a.account)
	require.NoError(t, err)
	require.Equal(t, 0, balA.Cmp(ledgertypes.AmountFromUint64(60)))
	balB, err := f.ledger.Balance(txn, b.account)
	require.NoError(t, err)
	require.Equal(t, 0, balB.Cmp(ledgertypes.AmountFromUint64(40)))
	txn.Discard()

	// Representative-weight conservation (spec.md invariant 4).
	total := f.weights.Weight(f.genesis.account)
	total, ok := total.Add(f.weights.Weight(a.account))
	require.True(t, ok)
	total, ok = total.Add(f.weights.Weight(b.account))
	require.True(t, ok)
	require.Equal(t, 0, total.Cmp(ledgertypes.AmountFromUint64(1_000_000)))

	// A changes representative to genesis.
	change := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        a.account,
		Previous:       send2Hash,
		Representative: f.genesis.account,
		BalanceAfter:   ledgertypes.AmountFromUint64(60),
		Link:           ledgertypes.Hash{},
	}
	change.Sign(a.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &change)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())

	require.True(t, f.weights.Weight(a.account).IsZero())
	require.Equal(t, 0, f.weights.Weight(f.genesis.account).Cmp(ledgertypes.AmountFromUint64(999_900+60)))
}

func (f *fixture) genesisHash() ledgertypes.Hash {
	b := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        f.genesis.account,
		Representative: f.genesis.account,
		BalanceAfter:   ledgertypes.AmountFromUint64(1_000_000),
	}
	return b.Hash()
}

func TestOldBlockIsDropped(t *testing.T) {
	f := newFixture(t)
	a := newKeypair(t)
	genesisHash := f.genesisHash()

	send := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(999_900),
		Link: ledgertypes.Hash(a.account),
	}
	send.Sign(f.genesis.priv)

	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &send)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())

	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &send)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultOld, res)
	txn.Discard()
}

func TestGapPreviousAndGapSource(t *testing.T) {
	f := newFixture(t)
	a := newKeypair(t)

	orphan := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: ledgertypes.Hash{0xff},
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(1),
	}
	orphan.Sign(f.genesis.priv)
	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &orphan)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultGapPrevious, res)
	txn.Discard()

	open := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: a.account, Representative: a.account,
		BalanceAfter: ledgertypes.AmountFromUint64(1), Link: ledgertypes.Hash{0xab},
	}
	open.Sign(a.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &open)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultGapSource, res)
	txn.Discard()
}

func TestNegativeSpendRejected(t *testing.T) {
	f := newFixture(t)
	genesisHash := f.genesisHash()

	send := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(2_000_000),
	}
	send.Sign(f.genesis.priv)
	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &send)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultNegativeSpend, res)
	txn.Discard()
}

func TestForkDetected(t *testing.T) {
	f := newFixture(t)
	a := newKeypair(t)
	genesisHash := f.genesisHash()

	send1 := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(999_900),
		Link: ledgertypes.Hash(a.account),
	}
	send1.Sign(f.genesis.priv)
	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &send1)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())

	send1Fork := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(999_800),
		Link: ledgertypes.Hash(a.account),
	}
	send1Fork.Sign(f.genesis.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &send1Fork)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultFork, res)
	txn.Discard()
}

func TestRollbackUnconsumedSend(t *testing.T) {
	f := newFixture(t)
	c := newKeypair(t)
	genesisHash := f.genesisHash()

	send := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(999_900),
		Link: ledgertypes.Hash(c.account),
	}
	send.Sign(f.genesis.priv)
	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &send)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())
	sendHash := send.Hash()

	txn = f.writeTxn()
	rolledBack, err := f.ledger.Rollback(txn, sendHash, ledgertypes.ConfirmationHeightInfo{})
	require.NoError(t, err)
	require.Equal(t, []ledgertypes.Hash{sendHash}, rolledBack)
	require.NoError(t, txn.Commit())

	txn = f.writeTxn()
	_, exists, err := f.ledger.BlockGet(txn, sendHash)
	require.NoError(t, err)
	require.False(t, exists)
	balG, err := f.ledger.Balance(txn, f.genesis.account)
	require.NoError(t, err)
	require.Equal(t, 0, balG.Cmp(ledgertypes.AmountFromUint64(1_000_000)))
	txn.Discard()

	require.Equal(t, 0, f.weights.Weight(f.genesis.account).Cmp(ledgertypes.AmountFromUint64(1_000_000)))
}

func TestRollbackConsumedSendFails(t *testing.T) {
	f := newFixture(t)
	a := newKeypair(t)
	genesisHash := f.genesisHash()

	send := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(999_900),
		Link: ledgertypes.Hash(a.account),
	}
	send.Sign(f.genesis.priv)
	txn := f.writeTxn()
	_, err := f.ledger.Process(txn, &send)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	sendHash := send.Hash()

	open := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: a.account, Representative: a.account,
		BalanceAfter: ledgertypes.AmountFromUint64(100), Link: sendHash,
	}
	open.Sign(a.priv)
	txn = f.writeTxn()
	_, err = f.ledger.Process(txn, &open)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = f.writeTxn()
	_, err = f.ledger.Rollback(txn, sendHash, ledgertypes.ConfirmationHeightInfo{})
	require.ErrorIs(t, err, ErrPendingAlreadyConsumed)
	txn.Discard()
}

func TestCementedBlockCannotBeRolledBack(t *testing.T) {
	f := newFixture(t)
	genesisHash := f.genesisHash()

	send := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(999_900),
	}
	send.Sign(f.genesis.priv)
	txn := f.writeTxn()
	_, err := f.ledger.Process(txn, &send)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	sendHash := send.Hash()

	txn = f.writeTxn()
	_, err = f.ledger.Rollback(txn, sendHash, ledgertypes.ConfirmationHeightInfo{Height: 2})
	require.ErrorIs(t, err, ErrCementedRollback)
	txn.Discard()
}

// TestEpochUpgradeAppliesForNonSignerAccount covers spec.md §8 scenario 3:
// an epoch block targets an account other than the configured epoch
// signer, but is itself signed by that signer's key. The fixture's epoch
// signer is the genesis account (see newFixture), so A here is a
// deliberately distinct target.
func TestEpochUpgradeAppliesForNonSignerAccount(t *testing.T) {
	f := newFixture(t)
	a := newKeypair(t)
	genesisHash := f.genesisHash()

	send := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: f.genesis.account, Previous: genesisHash,
		Representative: f.genesis.account, BalanceAfter: ledgertypes.AmountFromUint64(999_900),
		Link: ledgertypes.Hash(a.account),
	}
	send.Sign(f.genesis.priv)
	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &send)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())
	sendHash := send.Hash()

	open := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: a.account, Representative: a.account,
		BalanceAfter: ledgertypes.AmountFromUint64(100), Link: sendHash,
	}
	open.Sign(a.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &open)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())
	openHash := open.Hash()

	// The epoch block targets A's chain (Account/Previous both A's) but
	// is signed by the genesis key, the registered v1 signer, not by A.
	epoch := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: a.account, Previous: openHash,
		Representative: a.account, BalanceAfter: ledgertypes.AmountFromUint64(100),
		Link: ledgertypes.Hash{0xe1},
	}
	epoch.Sign(f.genesis.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &epoch)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())

	txn = f.writeTxn()
	info, ok, err := f.ledger.AccountInfo(txn, a.account)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(1), info.Epoch)
	require.Equal(t, 0, info.Balance.Cmp(ledgertypes.AmountFromUint64(100)))
	txn.Discard()

	// A subsequent ordinary send signed by A itself (not the epoch
	// signer) still succeeds once the upgrade has landed.
	send2 := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: a.account, Previous: epoch.Hash(),
		Representative: a.account, BalanceAfter: ledgertypes.AmountFromUint64(60),
		Link: ledgertypes.Hash(f.genesis.account),
	}
	send2.Sign(a.priv)
	txn = f.writeTxn()
	res, err = f.ledger.Process(txn, &send2)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())
}

// TestEpochOpenAppliesForNonSignerAccount covers the epoch_open form: an
// account's very first block is an epoch upgrade rather than a receive,
// balance 0, carrying no representative, signed by the epoch signer over
// a target account it doesn't own.
func TestEpochOpenAppliesForNonSignerAccount(t *testing.T) {
	f := newFixture(t)
	a := newKeypair(t)

	open := ledgertypes.Block{
		Kind: ledgertypes.KindState, Account: a.account,
		BalanceAfter: ledgertypes.Amount{}, Link: ledgertypes.Hash{0xe1},
	}
	open.Sign(f.genesis.priv)
	txn := f.writeTxn()
	res, err := f.ledger.Process(txn, &open)
	require.NoError(t, err)
	require.Equal(t, ledgertypes.ResultProgress, res)
	require.NoError(t, txn.Commit())

	txn = f.writeTxn()
	info, ok, err := f.ledger.AccountInfo(txn, a.account)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(1), info.Epoch)
	require.True(t, info.Balance.IsZero())
	txn.Discard()
}
