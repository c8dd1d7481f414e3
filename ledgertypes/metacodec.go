package ledgertypes

import (
	"encoding/binary"
	"fmt"
)

// MarshalBinary encodes AccountInfo for the accounts table: head, open
// block, balance, modified timestamp, block count, representative, epoch.
func (a AccountInfo) MarshalBinary() []byte {
	buf := make([]byte, 0, HashSize*2+16+8+8+AccountSize+1)
	buf = append(buf, a.Head[:]...)
	buf = append(buf, a.OpenBlock[:]...)
	bal := a.Balance.Bytes16()
	buf = append(buf, bal[:]...)
	var ts, bc [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(a.ModifiedTimestamp))
	binary.BigEndian.PutUint64(bc[:], a.BlockCount)
	buf = append(buf, ts[:]...)
	buf = append(buf, bc[:]...)
	buf = append(buf, a.Representative[:]...)
	buf = append(buf, a.Epoch)
	return buf
}

func (a *AccountInfo) UnmarshalBinary(data []byte) error {
	const want = HashSize*2 + 16 + 8 + 8 + AccountSize + 1
	if len(data) != want {
		return fmt.Errorf("ledgertypes: account info length %d, want %d", len(data), want)
	}
	p := data
	copy(a.Head[:], p[0:32])
	copy(a.OpenBlock[:], p[32:64])
	var bal [16]byte
	copy(bal[:], p[64:80])
	a.Balance = AmountFromBytes16(bal)
	a.ModifiedTimestamp = int64(binary.BigEndian.Uint64(p[80:88]))
	a.BlockCount = binary.BigEndian.Uint64(p[88:96])
	copy(a.Representative[:], p[96:128])
	a.Epoch = p[128]
	return nil
}

// MarshalBinary encodes PendingValue for the pending table.
func (v PendingValue) MarshalBinary() []byte {
	buf := make([]byte, 0, AccountSize+16+1)
	buf = append(buf, v.Source[:]...)
	bal := v.Amount.Bytes16()
	buf = append(buf, bal[:]...)
	buf = append(buf, v.Epoch)
	return buf
}

func (v *PendingValue) UnmarshalBinary(data []byte) error {
	const want = AccountSize + 16 + 1
	if len(data) != want {
		return fmt.Errorf("ledgertypes: pending value length %d, want %d", len(data), want)
	}
	copy(v.Source[:], data[0:32])
	var bal [16]byte
	copy(bal[:], data[32:48])
	v.Amount = AmountFromBytes16(bal)
	v.Epoch = data[48]
	return nil
}

// MarshalBinary encodes a PendingKey (destination || hash) for use as a
// store key, preserving destination-major ordering so a cursor can
// enumerate one account's receivables contiguously.
func (k PendingKey) MarshalBinary() []byte {
	buf := make([]byte, 0, AccountSize+HashSize)
	buf = append(buf, k.Destination[:]...)
	buf = append(buf, k.Hash[:]...)
	return buf
}

func PendingKeyFromBytes(data []byte) (PendingKey, error) {
	if len(data) != AccountSize+HashSize {
		return PendingKey{}, fmt.Errorf("ledgertypes: pending key length %d, want %d", len(data), AccountSize+HashSize)
	}
	var k PendingKey
	copy(k.Destination[:], data[0:32])
	copy(k.Hash[:], data[32:64])
	return k, nil
}

// MarshalBinary encodes ConfirmationHeightInfo for the confirmation_height
// table.
func (c ConfirmationHeightInfo) MarshalBinary() []byte {
	buf := make([]byte, 0, 8+HashSize)
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], c.Height)
	buf = append(buf, h[:]...)
	buf = append(buf, c.Frontier[:]...)
	return buf
}

func (c *ConfirmationHeightInfo) UnmarshalBinary(data []byte) error {
	const want = 8 + HashSize
	if len(data) != want {
		return fmt.Errorf("ledgertypes: confirmation height info length %d, want %d", len(data), want)
	}
	c.Height = binary.BigEndian.Uint64(data[0:8])
	copy(c.Frontier[:], data[8:40])
	return nil
}
