package repweight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

func TestTableAddSubRoundTrip(t *testing.T) {
	table := NewTable()
	repA := ledgertypes.Account{1}
	amt := ledgertypes.AmountFromUint64(1000)

	table.Add(repA, amt)
	require.Equal(t, 0, table.Weight(repA).Cmp(amt))

	table.Sub(repA, amt)
	require.True(t, table.Weight(repA).IsZero())
}

func TestTableUnderflowPanics(t *testing.T) {
	table := NewTable()
	repA := ledgertypes.Account{2}
	require.Panics(t, func() {
		table.Sub(repA, ledgertypes.AmountFromUint64(1))
	})
}

func TestPrincipalsThreshold(t *testing.T) {
	table := NewTable()
	big := ledgertypes.Account{1}
	small := ledgertypes.Account{2}
	table.Add(big, ledgertypes.AmountFromUint64(1_000_000))
	table.Add(small, ledgertypes.AmountFromUint64(10))

	minWeight := ledgertypes.AmountFromUint64(1000)
	principals := table.Principals(minWeight)
	require.Len(t, principals, 1)
	require.Equal(t, big, principals[0])
}

func TestOnlineRepsStakeAndPrune(t *testing.T) {
	table := NewTable()
	repA := ledgertypes.Account{1}
	repB := ledgertypes.Account{2}
	table.Add(repA, ledgertypes.AmountFromUint64(100))
	table.Add(repB, ledgertypes.AmountFromUint64(200))

	online := NewOnlineReps(table, ledgertypes.Amount{})
	online.window = time.Minute

	base := time.Unix(1_700_000_000, 0)
	online.Observe(repA, base)
	online.Observe(repB, base)

	stake := online.OnlineStake(base)
	require.Equal(t, 0, stake.Cmp(ledgertypes.AmountFromUint64(300)))

	later := base.Add(2 * time.Minute)
	stakeAfterPrune := online.OnlineStake(later)
	require.True(t, stakeAfterPrune.IsZero())
}

func TestTrendedStakeMedian(t *testing.T) {
	table := NewTable()
	rep := ledgertypes.Account{1}
	online := NewOnlineReps(table, ledgertypes.Amount{})

	table.Add(rep, ledgertypes.AmountFromUint64(100))
	online.Observe(rep, time.Unix(1, 0))
	online.Sample(time.Unix(1, 0))

	table.Sub(rep, ledgertypes.AmountFromUint64(50))
	online.Sample(time.Unix(2, 0))

	trended := online.TrendedStake()
	require.False(t, trended.IsZero())
}

func TestQuorumThresholdFloorsOnConfiguredMinimum(t *testing.T) {
	table := NewTable()
	minimum := ledgertypes.AmountFromUint64(1_000_000)
	online := NewOnlineReps(table, minimum)

	// No samples taken yet, so trended stake is zero; the configured
	// minimum must still set the floor rather than quorum collapsing to
	// zero.
	threshold := online.QuorumThreshold(time.Unix(1, 0), 67, 100)
	require.Equal(t, 0, threshold.Cmp(minimum.Mul(ledgertypes.AmountFromUint64(67)).DivUint64(100)))

	// A huge burst of live (un-sampled) online stake must not raise the
	// threshold; only a trended sample can.
	rep := ledgertypes.Account{9}
	table.Add(rep, ledgertypes.AmountFromUint64(500_000_000))
	online.Observe(rep, time.Unix(1, 0))
	require.Equal(t, 0, online.QuorumThreshold(time.Unix(1, 0), 67, 100).Cmp(threshold))

	online.Sample(time.Unix(1, 0))
	raised := online.QuorumThreshold(time.Unix(1, 0), 67, 100)
	require.Equal(t, 1, raised.Cmp(threshold))
}
