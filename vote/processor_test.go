package vote

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanocurrency/nanogod/election"
	"github.com/nanocurrency/nanogod/ledgertypes"
)

func newAccount(t *testing.T) (ledgertypes.Account, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var a ledgertypes.Account
	copy(a[:], pub)
	return a, priv
}

func testHash(b byte) ledgertypes.Hash {
	var h ledgertypes.Hash
	h[0] = b
	return h
}

// fakeElectionFeed lets tests control exactly which hashes look
// claimed/unclaimed and records every vote handed to IngestVote.
type fakeElectionFeed struct {
	claimed  map[ledgertypes.Hash]bool
	ingested []*ledgertypes.Vote
}

func (f *fakeElectionFeed) IngestVote(ctx context.Context, v *ledgertypes.Vote, now time.Time) {
	f.ingested = append(f.ingested, v)
}

func (f *fakeElectionFeed) ElectionFor(hash ledgertypes.Hash) (*election.Election, bool) {
	if f.claimed[hash] {
		return &election.Election{}, true
	}
	return nil, false
}

func TestProcessVoteRejectsBadSignature(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	rep, _ := newAccount(t)
	v := &ledgertypes.Vote{Representative: rep, Sequence: 1, Hashes: []ledgertypes.Hash{testHash(1)}}
	// Never signed: signature is all-zero and must fail verification.

	err = p.ProcessVote(context.Background(), v, time.Now())
	require.ErrorIs(t, err, ErrBadSignature)
	require.Empty(t, feed.ingested)
}

func TestProcessVoteStashesUnclaimedHashes(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{testHash(1): true}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	rep, priv := newAccount(t)
	v := &ledgertypes.Vote{Representative: rep, Sequence: 1, Hashes: []ledgertypes.Hash{testHash(1), testHash(2)}}
	v.Sign(priv)

	require.NoError(t, p.ProcessVote(context.Background(), v, time.Now()))
	require.Len(t, feed.ingested, 1, "a validly-signed vote is always forwarded once, regardless of per-hash claim status")

	votes, ok := p.unclaimed.Get(testHash(1))
	require.False(t, ok, "hash 1 is claimed and must not be stashed")
	_ = votes

	stashed, ok := p.unclaimed.Get(testHash(2))
	require.True(t, ok, "hash 2 is unclaimed and must be stashed")
	require.Len(t, stashed, 1)
	require.Same(t, v, stashed[0])
}

func TestReplayUnclaimedForwardsAndClears(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	rep, priv := newAccount(t)
	v := &ledgertypes.Vote{Representative: rep, Sequence: 1, Hashes: []ledgertypes.Hash{testHash(3)}}
	v.Sign(priv)
	require.NoError(t, p.ProcessVote(context.Background(), v, time.Now()))
	require.Len(t, feed.ingested, 1)

	p.ReplayUnclaimed(context.Background(), testHash(3), time.Now())
	require.Len(t, feed.ingested, 2, "replay forwards the stashed vote a second time")

	_, ok := p.unclaimed.Get(testHash(3))
	require.False(t, ok, "replay must clear the stash")
}

func TestGenerateProducesIncreasingSequenceAndCaches(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	rep, priv := newAccount(t)
	p.AddRepresentative(rep, priv)

	pair1 := RootHash{Root: testHash(1), Hash: testHash(1)}
	pair2 := RootHash{Root: testHash(1), Hash: testHash(2)}

	v1, err := p.Generate(rep, []RootHash{pair1, pair2})
	require.NoError(t, err)
	require.True(t, v1.VerifySignature())
	require.Equal(t, uint64(1), v1.Sequence)

	cached, ok := p.Cached(pair1)
	require.True(t, ok)
	require.Same(t, v1, cached)

	v2, err := p.Generate(rep, []RootHash{pair1})
	require.NoError(t, err)
	require.Equal(t, uint64(2), v2.Sequence, "sequence must increase across calls")
}

func TestGenerateTruncatesAboveCap(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	rep, priv := newAccount(t)
	p.AddRepresentative(rep, priv)

	pairs := make([]RootHash, MaxHashesPerVote+5)
	for i := range pairs {
		pairs[i] = RootHash{Root: testHash(1), Hash: testHash(byte(i + 1))}
	}

	v, err := p.Generate(rep, pairs)
	require.NoError(t, err)
	require.Len(t, v.Hashes, MaxHashesPerVote)
}

func TestGenerateFinalUsesReservedSequence(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	rep, priv := newAccount(t)
	p.AddRepresentative(rep, priv)

	pair := RootHash{Root: testHash(1), Hash: testHash(1)}
	v, err := p.GenerateFinal(rep, pair)
	require.NoError(t, err)
	require.True(t, v.IsFinal())
	require.True(t, v.VerifySignature())
}

func TestGenerateUnknownRepresentativeErrors(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	stranger, _ := newAccount(t)
	_, err = p.Generate(stranger, []RootHash{{Root: testHash(1), Hash: testHash(1)}})
	require.Error(t, err)
}

func TestCachedOrGenerateReusesExisting(t *testing.T) {
	feed := &fakeElectionFeed{claimed: map[ledgertypes.Hash]bool{}}
	p, err := New(feed, 0)
	require.NoError(t, err)

	rep, priv := newAccount(t)
	p.AddRepresentative(rep, priv)
	pair := RootHash{Root: testHash(1), Hash: testHash(1)}

	first, err := p.CachedOrGenerate(rep, pair)
	require.NoError(t, err)
	second, err := p.CachedOrGenerate(rep, pair)
	require.NoError(t, err)
	require.Same(t, first, second)
}
