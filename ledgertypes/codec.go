package ledgertypes

import (
	"encoding/binary"
	"fmt"
)

// MarshalBinary serializes the block as: one-byte type tag, then the
// type-specific fields in canonical order, then the signature, the work
// nonce, and finally the sideband (spec.md §6 "Persisted state layout").
// This is a literal fixed-width wire format rather than a generic schema,
// so it is hand-rolled on encoding/binary (see DESIGN.md) instead of
// reaching for the teacher's rlp package.
func (b *Block) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, byte(b.Kind))

	switch b.Kind {
	case KindOpen:
		buf = append(buf, b.Source[:]...)
		buf = append(buf, b.Representative[:]...)
		buf = append(buf, b.Account[:]...)
	case KindSend:
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Destination[:]...)
		bal := b.BalanceAfter.Bytes16()
		buf = append(buf, bal[:]...)
	case KindReceive:
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Source[:]...)
	case KindChange:
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Representative[:]...)
	case KindState:
		buf = append(buf, b.Account[:]...)
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Representative[:]...)
		bal := b.BalanceAfter.Bytes16()
		buf = append(buf, bal[:]...)
		buf = append(buf, b.Link[:]...)
	default:
		return nil, fmt.Errorf("ledgertypes: cannot marshal block of kind %v", b.Kind)
	}

	buf = append(buf, b.Signature[:]...)
	var workBytes [8]byte
	binary.BigEndian.PutUint64(workBytes[:], b.Work)
	buf = append(buf, workBytes[:]...)

	buf = appendSideband(buf, b.Sideband)
	return buf, nil
}

func appendSideband(buf []byte, sb Sideband) []byte {
	buf = append(buf, sb.Account[:]...)
	var heightBytes, tsBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], sb.Height)
	buf = append(buf, heightBytes[:]...)
	buf = append(buf, sb.Successor[:]...)
	binary.BigEndian.PutUint64(tsBytes[:], uint64(sb.Timestamp))
	buf = append(buf, tsBytes[:]...)
	buf = append(buf, sb.Epoch)
	var flags byte
	if sb.IsSend {
		flags |= 1
	}
	if sb.IsReceive {
		flags |= 2
	}
	if sb.IsEpoch {
		flags |= 4
	}
	buf = append(buf, flags)
	buf = append(buf, sb.OpenBlock[:]...)
	prevBal := sb.PrevBalance.Bytes16()
	buf = append(buf, prevBal[:]...)
	buf = append(buf, sb.PrevRepresentative[:]...)
	buf = append(buf, sb.PrevEpoch)
	return buf
}

// fieldLen returns the number of kind-specific field bytes preceding the
// signature, for UnmarshalBinary's fixed offsets.
func fieldLen(kind BlockKind) (int, error) {
	switch kind {
	case KindOpen:
		return HashSize + AccountSize + AccountSize, nil
	case KindSend:
		return HashSize + AccountSize + 16, nil
	case KindReceive:
		return HashSize + HashSize, nil
	case KindChange:
		return HashSize + AccountSize, nil
	case KindState:
		return AccountSize + HashSize + AccountSize + 16 + HashSize, nil
	default:
		return 0, fmt.Errorf("ledgertypes: unknown block kind %d", kind)
	}
}

const sidebandLen = AccountSize + 8 + HashSize + 8 + 1 + 1 + HashSize + 16 + AccountSize + 1

// UnmarshalBinary parses a block previously produced by MarshalBinary.
func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("ledgertypes: empty block data")
	}
	kind := BlockKind(data[0])
	flen, err := fieldLen(kind)
	if err != nil {
		return err
	}
	want := 1 + flen + SigSize + 8 + sidebandLen
	if len(data) != want {
		return fmt.Errorf("ledgertypes: block data length %d, want %d", len(data), want)
	}
	b.Kind = kind
	p := data[1:]

	switch kind {
	case KindOpen:
		copy(b.Source[:], p[0:32])
		copy(b.Representative[:], p[32:64])
		copy(b.Account[:], p[64:96])
	case KindSend:
		copy(b.Previous[:], p[0:32])
		copy(b.Destination[:], p[32:64])
		var bal [16]byte
		copy(bal[:], p[64:80])
		b.BalanceAfter = AmountFromBytes16(bal)
	case KindReceive:
		copy(b.Previous[:], p[0:32])
		copy(b.Source[:], p[32:64])
	case KindChange:
		copy(b.Previous[:], p[0:32])
		copy(b.Representative[:], p[32:64])
	case KindState:
		copy(b.Account[:], p[0:32])
		copy(b.Previous[:], p[32:64])
		copy(b.Representative[:], p[64:96])
		var bal [16]byte
		copy(bal[:], p[96:112])
		b.BalanceAfter = AmountFromBytes16(bal)
		copy(b.Link[:], p[112:144])
	}
	p = p[flen:]
	copy(b.Signature[:], p[0:SigSize])
	p = p[SigSize:]
	b.Work = binary.BigEndian.Uint64(p[0:8])
	p = p[8:]

	sb, err := parseSideband(p)
	if err != nil {
		return err
	}
	b.Sideband = sb
	return nil
}

func parseSideband(p []byte) (Sideband, error) {
	if len(p) != sidebandLen {
		return Sideband{}, fmt.Errorf("ledgertypes: sideband length %d, want %d", len(p), sidebandLen)
	}
	var sb Sideband
	copy(sb.Account[:], p[0:32])
	sb.Height = binary.BigEndian.Uint64(p[32:40])
	copy(sb.Successor[:], p[40:72])
	sb.Timestamp = int64(binary.BigEndian.Uint64(p[72:80]))
	sb.Epoch = p[80]
	flags := p[81]
	sb.IsSend = flags&1 != 0
	sb.IsReceive = flags&2 != 0
	sb.IsEpoch = flags&4 != 0
	copy(sb.OpenBlock[:], p[82:114])
	var prevBal [16]byte
	copy(prevBal[:], p[114:130])
	sb.PrevBalance = AmountFromBytes16(prevBal)
	copy(sb.PrevRepresentative[:], p[130:162])
	sb.PrevEpoch = p[162]
	return sb, nil
}
