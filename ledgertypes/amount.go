package ledgertypes

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is a non-negative balance or weight value. Nano balances are
// 128-bit, but no pack library offers a native uint128, so Amount is
// backed by holiman/uint256.Int (256-bit headroom) with Is128Bit checked
// on every mutation that crosses a ledger boundary (see DESIGN.md).
type Amount struct {
	v uint256.Int
}

// max128 is 2^128 - 1.
var max128 = func() uint256.Int {
	var v uint256.Int
	v.SetAllOne()
	v.Rsh(&v, 128)
	return v
}()

func AmountFromUint64(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

func (a Amount) Is128Bit() bool {
	return a.v.Cmp(&max128) <= 0
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Add(b Amount) (Amount, bool) {
	var out Amount
	overflow := out.v.AddOverflow(&a.v, &b.v)
	if overflow || !out.Is128Bit() {
		return Amount{}, false
	}
	return out, true
}

// Sub returns a-b and false if the result would be negative (the
// negative_spend classification, spec.md §8 "Applying a send that would
// make balance negative").
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.v.Cmp(&b.v) < 0 {
		return Amount{}, false
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, true
}

func (a Amount) Bytes16() [16]byte {
	var out [16]byte
	b := a.v.Bytes32()
	copy(out[:], b[16:])
	return out
}

func AmountFromBytes16(b [16]byte) Amount {
	var full [32]byte
	copy(full[16:], b[:])
	var a Amount
	a.v.SetBytes(full[:])
	return a
}

// Mul returns a*b truncated to 256 bits (used for quorum-fraction scaling,
// where operands are small and overflow is not a realistic concern).
func (a Amount) Mul(b Amount) Amount {
	var out Amount
	out.v.Mul(&a.v, &b.v)
	return out
}

// DivUint64 returns a/d (integer division); d=0 returns the zero Amount.
func (a Amount) DivUint64(d uint64) Amount {
	if d == 0 {
		return Amount{}
	}
	var out Amount
	var divisor uint256.Int
	divisor.SetUint64(d)
	out.v.Div(&a.v, &divisor)
	return out
}

// AmountFromDecimal parses a base-10 string (as found in a genesis/epoch
// config file) into an Amount, rejecting values outside the 128-bit
// range the ledger itself enforces on every balance.
func AmountFromDecimal(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("ledgertypes: invalid amount %q: %w", s, err)
	}
	a := Amount{v: *v}
	if !a.Is128Bit() {
		return Amount{}, fmt.Errorf("ledgertypes: amount %q exceeds 128 bits", s)
	}
	return a, nil
}

func (a Amount) String() string { return a.v.Dec() }

func (a Amount) GoString() string { return fmt.Sprintf("Amount(%s)", a.v.Dec()) }
