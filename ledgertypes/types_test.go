package ledgertypes

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockRoundTripPreservesHash(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var acc Account
	copy(acc[:], pub)

	b := &Block{
		Kind:           KindState,
		Account:        acc,
		Previous:       Hash{1, 2, 3},
		Representative: acc,
		BalanceAfter:   AmountFromUint64(100),
		Link:           Hash{9, 9, 9},
		Work:           42,
		Sideband: Sideband{
			Account:   acc,
			Height:    5,
			Timestamp: 1234,
			Epoch:     1,
			IsSend:    true,
		},
	}
	b.Sign(priv)
	wantHash := b.Hash()
	require.True(t, b.VerifySignature(acc))

	data, err := b.MarshalBinary()
	require.NoError(t, err)

	var got Block
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, wantHash, got.Hash())
	require.Equal(t, b.Sideband, got.Sideband)
	require.True(t, got.VerifySignature(acc))
}

func TestBlockKindsHashIndependently(t *testing.T) {
	open := &Block{Kind: KindOpen, Source: Hash{1}, Representative: Account{2}, Account: Account{3}}
	send := &Block{Kind: KindSend, Previous: Hash{1}, Destination: Account{2}, BalanceAfter: AmountFromUint64(5)}
	if open.Hash() == send.Hash() {
		t.Fatalf("expected distinct kinds to hash differently")
	}
}

func TestAmountArithmetic(t *testing.T) {
	a := AmountFromUint64(10)
	b := AmountFromUint64(3)

	sum, ok := a.Add(b)
	require.True(t, ok)
	require.Equal(t, AmountFromUint64(13), sum)

	diff, ok := a.Sub(b)
	require.True(t, ok)
	require.Equal(t, AmountFromUint64(7), diff)

	_, ok = b.Sub(a)
	require.False(t, ok, "subtracting a larger amount must fail, not wrap")
}

func TestAmountBytes16RoundTrip(t *testing.T) {
	a := AmountFromUint64(123456789)
	got := AmountFromBytes16(a.Bytes16())
	require.Equal(t, 0, a.Cmp(got))
}
