package node

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanocurrency/nanogod/blockprocessor"
	"github.com/nanocurrency/nanogod/confheight"
	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/work"
)

func newTestNode(t *testing.T) (*Node, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var genesisAccount ledgertypes.Account
	copy(genesisAccount[:], pub)

	genesisBlock := ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        genesisAccount,
		Representative: genesisAccount,
		BalanceAfter:   ledgertypes.AmountFromUint64(1_000_000),
	}
	genesisBlock.Sign(priv)

	cfg := Config{
		DataDir: filepath.Join(t.TempDir(), "db"),
		Genesis: ledger.GenesisSpec{
			Account:        genesisAccount,
			Representative: genesisAccount,
			Balance:        ledgertypes.AmountFromUint64(1_000_000),
			Block:          genesisBlock,
		},
		WorkThresholds:     work.TestThresholds,
		BlockProcessor:     blockprocessor.Config{PriorityCapacity: 16, ForcedCapacity: 16, StandardCapacity: 16, BatchSize: 16},
		ConfirmationHeight: confheight.Config{QueueCapacity: 16, MaxBlocksPerBatch: 16},
	}
	n, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { n.Stop() })

	require.NoError(t, n.Start(context.Background()))
	return n, priv
}

func TestNewSeedsGenesisAndWiresSubsystems(t *testing.T) {
	n, _ := newTestNode(t)

	require.NotNil(t, n.Store())
	require.NotNil(t, n.Ledger())
	require.NotNil(t, n.BlockProcessor())
	require.NotNil(t, n.Election())
	require.NotNil(t, n.Vote())
	require.NotNil(t, n.ConfirmationHeight())
	require.NotNil(t, n.Pruner())
	require.NotNil(t, n.Observer())
}

func TestEndToEndSendConfirmsAndCements(t *testing.T) {
	n, genesisPriv := newTestNode(t)
	ctx := context.Background()

	genesis := n.cfg.Genesis
	send := &ledgertypes.Block{
		Kind:           ledgertypes.KindState,
		Account:        genesis.Account,
		Previous:       genesis.Block.Hash(),
		Representative: genesis.Account,
		BalanceAfter:   ledgertypes.AmountFromUint64(999_000),
	}
	send.Work = work.NewValidator(work.TestThresholds).FindWork(send.Root(), work.Details{})
	send.Sign(genesisPriv)

	require.True(t, n.BlockProcessor().Enqueue(blockprocessor.SourcePriority, send))
	n.BlockProcessor().ProcessAll(ctx)

	require.Equal(t, 1, n.Election().Active(), "a fresh send block should open exactly one election")

	sendHash := send.Hash()
	v := &ledgertypes.Vote{Representative: genesis.Account, Sequence: 1, Hashes: []ledgertypes.Hash{sendHash}}
	v.Sign(genesisPriv)
	require.NoError(t, n.Vote().ProcessVote(ctx, v, time.Now()))

	require.Equal(t, 0, n.Election().Active(), "genesis alone holds all weight, so its own vote confirms immediately")

	n.ConfirmationHeight().ProcessAll(ctx)
	require.Equal(t, uint64(1), n.ConfirmationHeight().Cemented())
}
