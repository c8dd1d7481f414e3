package ledgertypes

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// statePreamble is hashed ahead of every state block's fields, the way the
// original node reserves a 32-byte preamble (0-padded, type byte in the
// last position) to keep state-block hashes out of the legacy-block hash
// space.
var statePreamble = func() Hash {
	var h Hash
	h[31] = 0x06
	return h
}()

// Hash computes the block's canonical hash: BLAKE2b-256 over the
// kind-specific field layout (spec.md §3 "a canonical byte serialization").
func (b *Block) Hash() Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // blake2b.New256 only errors on a non-nil key of bad length
	}
	switch b.Kind {
	case KindOpen:
		h.Write(b.Source[:])
		h.Write(b.Representative[:])
		h.Write(b.Account[:])
	case KindSend:
		h.Write(b.Previous[:])
		h.Write(b.Destination[:])
		bal := b.BalanceAfter.Bytes16()
		h.Write(bal[:])
	case KindReceive:
		h.Write(b.Previous[:])
		h.Write(b.Source[:])
	case KindChange:
		h.Write(b.Previous[:])
		h.Write(b.Representative[:])
	case KindState:
		h.Write(statePreamble[:])
		h.Write(b.Account[:])
		h.Write(b.Previous[:])
		h.Write(b.Representative[:])
		bal := b.BalanceAfter.Bytes16()
		h.Write(bal[:])
		h.Write(b.Link[:])
	default:
		panic("ledgertypes: Hash called on block with invalid Kind")
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// WorkDigest computes the BLAKE2b-512 proof-of-work digest over a root and
// nonce, interpreted by the work package as a little-endian uint64 (spec.md
// §4.3, SPEC_FULL.md §5).
func WorkDigest(root Hash, nonce uint64) uint64 {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic(err)
	}
	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], nonce)
	h.Write(nonceBytes[:])
	h.Write(root[:])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}
