// Package types provides common types used across the token ledger.
package types

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// Amount represents a non-negative token quantity in the smallest token unit.
// All arithmetic is checked — an operation that would leave the 0..MaxAmount
// domain reports failure instead of wrapping.
//
// The domain ceiling is 2^128-1, which comfortably covers supplies of 10^18
// base units and beyond.
type Amount struct {
	v big.Int
}

// maxAmount is 2^128 - 1, the largest representable Amount.
var maxAmount = func() *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), 128)
	return m.Sub(m, big.NewInt(1))
}()

// MaxAmount returns the largest representable Amount (2^128 - 1).
func MaxAmount() Amount {
	var a Amount
	a.v.Set(maxAmount)
	return a
}

// ZeroAmount returns the zero Amount.
func ZeroAmount() Amount { return Amount{} }

// NewAmount creates an Amount from a uint64.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// ParseAmount parses a base-10 string into an Amount.
// The string must be a non-negative integer within the Amount domain.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if _, ok := a.v.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("types: parse amount %q: not a base-10 integer", s)
	}
	if a.v.Sign() < 0 {
		return Amount{}, fmt.Errorf("types: parse amount %q: negative", s)
	}
	if a.v.Cmp(maxAmount) > 0 {
		return Amount{}, fmt.Errorf("types: parse amount %q: exceeds maximum", s)
	}
	return a, nil
}

// MustParseAmount is like ParseAmount but panics on error.
// Use for hardcoded amount literals.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Arithmetic operations

// Add returns a+b. The second result is false if the sum would exceed
// MaxAmount, in which case the Amount result is the zero value.
func (a Amount) Add(b Amount) (Amount, bool) {
	var r Amount
	r.v.Add(&a.v, &b.v)
	if r.v.Cmp(maxAmount) > 0 {
		return Amount{}, false
	}
	return r, true
}

// Sub returns a-b. The second result is false if b > a, in which case the
// Amount result is the zero value.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.v.Cmp(&b.v) < 0 {
		return Amount{}, false
	}
	var r Amount
	r.v.Sub(&a.v, &b.v)
	return r, true
}

// MulPow10 returns a * 10^exp, used for decimal-unit conversion.
// The second result is false on overflow.
func (a Amount) MulPow10(exp uint8) (Amount, bool) {
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	var r Amount
	r.v.Mul(&a.v, pow)
	if r.v.Cmp(maxAmount) > 0 {
		return Amount{}, false
	}
	return r, true
}

// Comparison methods

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(b Amount) bool { return a.v.Cmp(&b.v) == 0 }

// LessThan returns true if a < b.
func (a Amount) LessThan(b Amount) bool { return a.v.Cmp(&b.v) < 0 }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.v.Sign() == 0 }

// BigInt returns a copy of the amount as a *big.Int.
func (a Amount) BigInt() *big.Int { return new(big.Int).Set(&a.v) }

// Uint64 returns the amount as a uint64 if it fits; the second result
// reports whether it did.
func (a Amount) Uint64() (uint64, bool) {
	if !a.v.IsUint64() {
		return 0, false
	}
	return a.v.Uint64(), true
}

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.String() }

// MarshalText implements encoding.TextMarshaler.
// Amounts marshal as base-10 strings so that JSON consumers never round
// them through float64.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Amount{}
		return nil
	}
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer for database storage. Amounts are stored
// as base-10 text to preserve the full domain in every backend.
func (a Amount) Value() (driver.Value, error) {
	return a.v.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("types: cannot scan negative %d into Amount", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	case nil:
		*a = Amount{}
		return nil
	default:
		return fmt.Errorf("types: cannot scan %T into Amount", src)
	}
}

// Sum adds multiple amounts with overflow checking.
// The second result is false if any intermediate sum overflows.
func Sum(values ...Amount) (Amount, bool) {
	var total Amount
	for _, v := range values {
		next, ok := total.Add(v)
		if !ok {
			return Amount{}, false
		}
		total = next
	}
	return total, true
}
