package ledgertypes

import "crypto/ed25519"

// VerifySignature checks b.Signature against signer's Ed25519 public key
// over b.Hash(). Nano's actual signature scheme is Ed25519; the standard
// library implementation is used directly (see DESIGN.md) since no pack
// dependency supplies Ed25519 as a standalone library, and the corpus
// itself reaches for the standard library at the analogous crypto/ecdsa
// layer.
func (b *Block) VerifySignature(signer Account) bool {
	h := b.Hash()
	return ed25519.Verify(ed25519.PublicKey(signer[:]), h[:], b.Signature[:])
}

// Sign produces b.Signature in place using priv, and returns it. Exposed
// for tests and for the thin wallet-side block-construction helper in
// SPEC_FULL.md §6; the wallet itself (key custody) is out of scope.
func (b *Block) Sign(priv ed25519.PrivateKey) Signature {
	h := b.Hash()
	sig := ed25519.Sign(priv, h[:])
	copy(b.Signature[:], sig)
	return b.Signature
}
