// Package constexpr evaluates C integer constant expressions: enumerator
// values, array bounds and #if conditions.
package constexpr

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

var (
	// ErrUnresolved is returned when an expression names an identifier
	// the context does not know. It is a result, not a parse failure.
	ErrUnresolved = errors.New("unresolved identifier")

	// ErrDivideByZero is returned for x/0 and x%0
	ErrDivideByZero = errors.New("division by zero")

	// ErrNotInteger is returned for floating or string operands
	ErrNotInteger = errors.New("not an integer constant")
)

// OverflowError reports a signed result outside the 64-bit range or a
// literal wider than 64 bits.
type OverflowError struct {
	Op   string
	Expr string
}

func (e *OverflowError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("integer overflow in %s (%s)", e.Op, e.Expr)
	}
	return "integer overflow in " + e.Op
}

// Rank is the integer conversion rank of a value
type Rank int

const (
	RankInt Rank = iota
	RankLong
	RankLongLong
)

func (r Rank) bits() uint {
	if r == RankInt {
		return 32
	}
	return 64
}

// Value is an integer constant with its C type classification. Bits holds
// the two's complement representation.
type Value struct {
	Bits     uint64
	Unsigned bool
	Rank     Rank
}

// Int makes a signed int-ranked value, widening the rank if needed.
func Int(v int64) Value {
	r := RankInt
	if v > math.MaxInt32 || v < math.MinInt32 {
		r = RankLong
	}
	return Value{Bits: uint64(v), Rank: r}
}

// Uint makes an unsigned long value
func Uint(v uint64) Value {
	return Value{Bits: v, Unsigned: true, Rank: RankLong}
}

func boolValue(b bool) Value {
	if b {
		return Value{Bits: 1}
	}
	return Value{}
}

// Int64 returns the value as a signed integer
func (v Value) Int64() int64 { return int64(v.Bits) }

// Uint64 returns the value as an unsigned integer
func (v Value) Uint64() uint64 { return v.Bits }

// IsZero reports whether the value is zero
func (v Value) IsZero() bool { return v.Bits == 0 }

// Big returns the mathematical value
func (v Value) Big() *big.Int {
	if v.Unsigned {
		return new(big.Int).SetUint64(v.Bits)
	}
	return big.NewInt(int64(v.Bits))
}

func (v Value) String() string {
	if v.Unsigned {
		return strconv.FormatUint(v.Bits, 10)
	}
	return strconv.FormatInt(int64(v.Bits), 10)
}

// class is the type of an arithmetic result
type class struct {
	unsigned bool
	rank     Rank
}

func (v Value) class() class { return class{v.Unsigned, v.Rank} }

// common applies the usual arithmetic conversions for LP64.
func common(a, b class) class {
	r := a.rank
	if b.rank > r {
		r = b.rank
	}
	if a.unsigned == b.unsigned {
		return class{a.unsigned, r}
	}
	s, u := a, b
	if a.unsigned {
		s, u = b, a
	}
	if u.rank >= s.rank {
		return class{true, r}
	}
	// a 64-bit signed type holds every 32-bit unsigned value
	if s.rank.bits() > u.rank.bits() {
		return class{false, r}
	}
	return class{true, r}
}

var (
	minInt64 = big.NewInt(math.MinInt64)
	maxInt64 = big.NewInt(math.MaxInt64)
	maxInt32 = big.NewInt(math.MaxInt32)
	minInt32 = big.NewInt(math.MinInt32)
)

// fit converts an exact result into the class c. Unsigned results wrap
// modulo 2^width; signed results outside 64 bits are an OverflowError.
func fit(x *big.Int, c class, op string) (Value, error) {
	if c.unsigned {
		mask := new(big.Int).Lsh(big.NewInt(1), c.rank.bits())
		mask.Sub(mask, big.NewInt(1))
		w := new(big.Int).And(x, mask)
		return Value{Bits: w.Uint64(), Unsigned: true, Rank: c.rank}, nil
	}
	if x.Cmp(minInt64) < 0 || x.Cmp(maxInt64) > 0 {
		return Value{}, &OverflowError{Op: op}
	}
	r := c.rank
	if r == RankInt && (x.Cmp(maxInt32) > 0 || x.Cmp(minInt32) < 0) {
		r = RankLong
	}
	return Value{Bits: uint64(x.Int64()), Rank: r}, nil
}

// convert re-expresses v in class c, as an implicit conversion would.
func convert(v Value, c class) Value {
	out, _ := fit(v.Big(), class{true, c.rank}, "")
	if !c.unsigned {
		out.Unsigned = false
		if c.rank == RankInt {
			out.Bits = uint64(int64(int32(uint32(out.Bits))))
		}
	}
	return out
}
