// Package bignum provides a non-negative arbitrary-precision integer used for
// all channel balance math.
package bignum

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
)

var (
	// ErrInvalidNumber is returned when a string is not a non-negative base-10 integer literal.
	ErrInvalidNumber = errors.New("invalid non-negative decimal integer")
	// ErrDivisionByZero is returned by FloorDiv when the divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// BigNumber is an immutable non-negative integer of arbitrary width.
// The zero value is 0.
type BigNumber struct {
	v *big.Int
}

// Zero returns 0.
func Zero() BigNumber {
	return BigNumber{}
}

// FromUint64 builds a BigNumber from a machine integer.
func FromUint64(n uint64) BigNumber {
	return BigNumber{v: new(big.Int).SetUint64(n)}
}

// FromBig copies x into a BigNumber. Negative values are rejected.
func FromBig(x *big.Int) (BigNumber, error) {
	if x == nil {
		return Zero(), nil
	}
	if x.Sign() < 0 {
		return Zero(), fmt.Errorf("%w: %s", ErrInvalidNumber, x.String())
	}
	return BigNumber{v: new(big.Int).Set(x)}, nil
}

// Parse reads a base-10 literal made only of ASCII digits. Leading zeros are
// accepted and dropped; signs, whitespace and separators are not.
func Parse(s string) (BigNumber, error) {
	if s == "" {
		return Zero(), fmt.Errorf("%w: empty string", ErrInvalidNumber)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Zero(), fmt.Errorf("%w: %q", ErrInvalidNumber, s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Zero(), fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return BigNumber{v: v}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) BigNumber {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

func (n BigNumber) int() *big.Int {
	if n.v == nil {
		return new(big.Int)
	}
	return n.v
}

// Big returns a copy of the underlying integer.
func (n BigNumber) Big() *big.Int {
	return new(big.Int).Set(n.int())
}

// Add returns n + m.
func (n BigNumber) Add(m BigNumber) BigNumber {
	return BigNumber{v: new(big.Int).Add(n.int(), m.int())}
}

// Sum adds all values; the empty sum is 0.
func Sum(values ...BigNumber) BigNumber {
	total := new(big.Int)
	for _, v := range values {
		total.Add(total, v.int())
	}
	return BigNumber{v: total}
}

// Mul returns n * scalar.
func (n BigNumber) Mul(scalar uint64) BigNumber {
	return BigNumber{v: new(big.Int).Mul(n.int(), new(big.Int).SetUint64(scalar))}
}

// FloorDiv returns floor(n / d). Both operands are non-negative so this is
// also truncation toward zero.
func (n BigNumber) FloorDiv(d BigNumber) (BigNumber, error) {
	if d.IsZero() {
		return Zero(), ErrDivisionByZero
	}
	return BigNumber{v: new(big.Int).Quo(n.int(), d.int())}, nil
}

// Cmp compares n and m and returns -1, 0 or +1.
func (n BigNumber) Cmp(m BigNumber) int {
	return n.int().Cmp(m.int())
}

// IsZero reports whether n == 0.
func (n BigNumber) IsZero() bool {
	return n.v == nil || n.v.Sign() == 0
}

// ToApproximateFloat converts n to the nearest float64. ok is false when n is
// beyond the float64 range.
func (n BigNumber) ToApproximateFloat() (f float64, ok bool) {
	f, _ = new(big.Float).SetInt(n.int()).Float64()
	if math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// String returns the canonical decimal representation without leading zeros.
func (n BigNumber) String() string {
	return n.int().String()
}

// MarshalJSON encodes the value as a JSON string, matching the remote listing.
func (n BigNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

// UnmarshalJSON accepts a JSON string holding a decimal literal, or a bare
// integer JSON number.
func (n *BigNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: null", ErrInvalidNumber)
	}
	literal := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &literal); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidNumber, err)
		}
	}
	parsed, err := Parse(literal)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
