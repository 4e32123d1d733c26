package models

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// AmountBits is the width of every balance, price and limit.
const AmountBits = 128

// ErrAmountRange is returned when a value does not fit in 128 unsigned bits.
var ErrAmountRange = errors.New("amount out of range")

// Amount is an unsigned 128-bit quantity. The zero value is 0.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// ParseAmount parses a base-10 string.
func ParseAmount(s string) (Amount, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return AmountFromBig(b)
}

// AmountFromBig converts b, rejecting negatives and values wider than 128 bits.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 || b.BitLen() > AmountBits {
		return Amount{}, fmt.Errorf("%w: %s", ErrAmountRange, b.String())
	}
	var a Amount
	a.v.SetFromBig(b)
	return a, nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b and whether the sum overflowed 128 bits.
func (a Amount) Add(b Amount) (Amount, bool) {
	var out Amount
	out.v.Add(&a.v, &b.v)
	if out.v.BitLen() > AmountBits {
		return Amount{}, true
	}
	return out, false
}

// Sub returns a-b and whether it underflowed.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.v.Lt(&b.v) {
		return Amount{}, true
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, false
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// IsZero reports whether a is 0.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Big returns a as a big.Int.
func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

// Bytes16 returns the big-endian encoding of a.
func (a Amount) Bytes16() [16]byte {
	full := a.v.Bytes32()
	var out [16]byte
	copy(out[:], full[16:])
	return out
}

// AmountFromBytes16 decodes the output of Bytes16.
func AmountFromBytes16(b []byte) (Amount, error) {
	if len(b) != 16 {
		return Amount{}, fmt.Errorf("amount encoding must be 16 bytes, got %d", len(b))
	}
	var a Amount
	a.v.SetBytes(b)
	return a, nil
}

func (a Amount) String() string {
	return a.v.ToBig().String()
}

// MarshalText encodes a in base 10.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a base-10 amount.
func (a *Amount) UnmarshalText(b []byte) error {
	parsed, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
