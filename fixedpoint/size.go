package fixedpoint

import "github.com/holiman/uint256"

// Size is a 256-bit unsigned integer in base-asset units. It wraps
// holiman/uint256.Int (the same U256 type go-ethereum uses) rather than
// reimplementing big-integer arithmetic. uint256's Add/Sub wrap modulo
// 2^256 like the EVM does; the engine's size arithmetic needs saturating
// semantics instead, so every operation here checks for overflow/underflow
// itself before delegating to the library.
type Size struct {
	v uint256.Int
}

// ZeroSize is the additive identity.
func ZeroSize() Size { return Size{} }

// SizeFromUint64 builds a Size from a plain uint64 count of base units.
func SizeFromUint64(n uint64) Size {
	var s Size
	s.v.SetUint64(n)
	return s
}

// IsZero reports whether the size is zero.
func (s Size) IsZero() bool { return s.v.IsZero() }

// Cmp compares s to o: -1, 0, or 1.
func (s Size) Cmp(o Size) int { return s.v.Cmp(&o.v) }

// LessThan reports whether s < o.
func (s Size) LessThan(o Size) bool { return s.v.Lt(&o.v) }

// GreaterThan reports whether s > o.
func (s Size) GreaterThan(o Size) bool { return s.v.Gt(&o.v) }

// AddSat returns s+o, saturating at the maximum uint256 value on overflow.
func (s Size) AddSat(o Size) Size {
	var result, tmp uint256.Int
	_, overflow := result.AddOverflow(&s.v, &o.v)
	if overflow {
		tmp.SetAllOne()
		return Size{v: tmp}
	}
	return Size{v: result}
}

// SubSat returns s-o, saturating at zero on underflow.
func (s Size) SubSat(o Size) Size {
	if s.v.Lt(&o.v) {
		return ZeroSize()
	}
	var result uint256.Int
	result.Sub(&s.v, &o.v)
	return Size{v: result}
}

// MinSize returns the smaller of two sizes.
func MinSize(a, b Size) Size {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Uint64 returns the size truncated to a uint64 (for callers that know the
// value is small enough, e.g. test fixtures and logging).
func (s Size) Uint64() uint64 {
	return s.v.Uint64()
}

// String renders the size in base-10.
func (s Size) String() string {
	return s.v.Dec()
}

// MarshalJSON renders the size as a base-10 string, since a uint256 value
// can exceed the range JSON numbers safely round-trip through.
func (s Size) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.v.Dec() + `"`), nil
}

// UnmarshalJSON parses a base-10 string back into a Size.
func (s *Size) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	v, err := uint256.FromDecimal(str)
	if err != nil {
		return err
	}
	s.v = *v
	return nil
}
