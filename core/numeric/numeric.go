// Package numeric provides exact rational arithmetic and saturating/rounding
// integer helpers used by the repetition-vector nullspace computation and by
// rate arithmetic throughout the engine.
package numeric

import (
	"errors"
	"fmt"
)

// ErrDivisionByZero is returned when a rational division or construction
// would require a zero denominator.
var ErrDivisionByZero = errors.New("numeric: division by zero")

// Rational is an exact fraction over int64, always stored in reduced form:
// gcd-normalized, denominator strictly positive, zero represented as 0/1.
type Rational struct {
	Num int64
	Den int64
}

// NewRational builds a reduced-form rational from num/den.
func NewRational(num, den int64) (Rational, error) {
	if den == 0 {
		return Rational{}, fmt.Errorf("rational %d/%d: %w", num, den, ErrDivisionByZero)
	}
	return reduce(num, den), nil
}

// FromInt lifts an integer into the rational field.
func FromInt(v int64) Rational {
	return Rational{Num: v, Den: 1}
}

func reduce(num, den int64) Rational {
	if num == 0 {
		return Rational{Num: 0, Den: 1}
	}
	if den < 0 {
		num, den = -num, -den
	}
	g := gcdInt64(abs64(num), den)
	if g == 0 {
		g = 1
	}
	return Rational{Num: num / g, Den: den / g}
}

// IsZero reports whether r is the additive identity.
func (r Rational) IsZero() bool {
	return r.Num == 0
}

// Add returns r + other, in reduced form.
func (r Rational) Add(other Rational) Rational {
	return reduce(r.Num*other.Den+other.Num*r.Den, r.Den*other.Den)
}

// Sub returns r - other, in reduced form.
func (r Rational) Sub(other Rational) Rational {
	return reduce(r.Num*other.Den-other.Num*r.Den, r.Den*other.Den)
}

// Mul returns r * other, in reduced form.
func (r Rational) Mul(other Rational) Rational {
	return reduce(r.Num*other.Num, r.Den*other.Den)
}

// Div returns r / other. Fails with ErrDivisionByZero when other is 0/_.
func (r Rational) Div(other Rational) (Rational, error) {
	if other.Num == 0 {
		return Rational{}, ErrDivisionByZero
	}
	return reduce(r.Num*other.Den, r.Den*other.Num), nil
}

// Abs returns the absolute value of r.
func (r Rational) Abs() Rational {
	if r.Num < 0 {
		return Rational{Num: -r.Num, Den: r.Den}
	}
	return r
}

// Neg returns -r.
func (r Rational) Neg() Rational {
	return Rational{Num: -r.Num, Den: r.Den}
}

// Cmp returns -1, 0, or 1 according to whether r is less than, equal to, or
// greater than other.
func (r Rational) Cmp(other Rational) int {
	lhs := r.Num * other.Den
	rhs := other.Num * r.Den
	switch {
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	default:
		return 0
	}
}

// Float64 converts r to the nearest float64.
func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

// TruncInt64 converts r to an int64, truncating toward zero.
func (r Rational) TruncInt64() int64 {
	return r.Num / r.Den
}

// String renders r as "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// SaturatingAdd adds a and b, clamping to math.MaxInt64/math.MinInt64 on
// overflow instead of wrapping.
func SaturatingAdd(a, b int64) int64 {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return maxInt64
		}
		return minInt64
	}
	return sum
}

const (
	maxInt64 = int64(1<<63 - 1)
	minInt64 = -maxInt64 - 1
)

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// GCD returns the greatest common divisor of a and b (both taken as
// non-negative); GCD(0, 0) = 0.
func GCD(a, b int64) int64 {
	return gcdInt64(abs64(a), abs64(b))
}

func gcdInt64(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the least common multiple of a and b (both taken as
// non-negative); LCM(0, _) = 0.
func LCM(a, b int64) int64 {
	a, b = abs64(a), abs64(b)
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcdInt64(a, b) * b
}

// CeilDivSigned returns ceil(a/b) honoring the mathematical sign convention
// regardless of the host's truncating integer division.
func CeilDivSigned(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	q := a / b
	r := a % b
	if r != 0 && (r > 0) == (b > 0) {
		q++
	}
	return q, nil
}

// FloorDivSigned returns floor(a/b) honoring the mathematical sign convention
// regardless of the host's truncating integer division.
func FloorDivSigned(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	q := a / b
	r := a % b
	if r != 0 && (r > 0) != (b > 0) {
		q--
	}
	return q, nil
}

// CeilDivUnsigned returns ceil(a/b) for unsigned operands.
func CeilDivUnsigned(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return (a + b - 1) / b, nil
}

// FloorDivUnsigned returns floor(a/b) for unsigned operands.
func FloorDivUnsigned(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}
