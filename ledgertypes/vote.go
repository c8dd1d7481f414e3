package ledgertypes

import (
	"crypto/ed25519"
	"encoding/binary"
)

// FinalVoteSequence is the reserved sequence value marking a vote as
// final: an irrevocable commitment a representative will never
// contradict, used as rollback protection (spec.md §4.6 "a special
// reserved maximum value denotes a final vote").
const FinalVoteSequence = ^uint64(0)

// Vote is a representative's endorsement of one or more candidate
// hashes sharing a common root, batched to amortize signature cost
// (spec.md §4.6 "Generation is aggregated ... up to a size cap").
type Vote struct {
	Representative Account
	Sequence       uint64
	Hashes         []Hash
	Signature      Signature
}

// IsFinal reports whether this vote carries the reserved final-vote
// sequence number.
func (v *Vote) IsFinal() bool { return v.Sequence == FinalVoteSequence }

// SigningPayload serializes (sequence, hash_list), the exact payload
// Sign and VerifySignature cover (spec.md §4.6 "verify signature over
// (sequence, hash_list)").
func (v *Vote) SigningPayload() []byte {
	buf := make([]byte, 8+len(v.Hashes)*HashSize)
	binary.BigEndian.PutUint64(buf[:8], v.Sequence)
	for i, h := range v.Hashes {
		copy(buf[8+i*HashSize:8+(i+1)*HashSize], h[:])
	}
	return buf
}

// Sign produces v.Signature in place using priv, and returns it.
func (v *Vote) Sign(priv ed25519.PrivateKey) Signature {
	sig := ed25519.Sign(priv, v.SigningPayload())
	copy(v.Signature[:], sig)
	return v.Signature
}

// VerifySignature checks v.Signature against v.Representative's public
// key over v.SigningPayload().
func (v *Vote) VerifySignature() bool {
	return ed25519.Verify(ed25519.PublicKey(v.Representative[:]), v.SigningPayload(), v.Signature[:])
}
