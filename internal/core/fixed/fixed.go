// Package fixed implements Q32.32 fixed-point numbers. Every value the
// simulation derives (averages, rates) goes through here so results are
// bit-identical on every machine.
package fixed

import (
	"math"
	"math/bits"
	"strconv"
)

const (
	Shift = 32
	Scale = 1 << Shift
	Mask  = Scale - 1
)

// Fixed is a signed Q32.32 number.
type Fixed int64

const (
	Zero Fixed = 0
	One  Fixed = Scale
	Half Fixed = Scale >> 1
	Max  Fixed = math.MaxInt64
	Min  Fixed = math.MinInt64
)

func FromInt(i int) Fixed     { return Fixed(int64(i) << Shift) }
func FromInt64(i int64) Fixed { return Fixed(i << Shift) }

// FromFraction returns num/den. A zero denominator yields Zero.
func FromFraction(num, den int64) Fixed {
	if den == 0 {
		return Zero
	}
	return Div(FromInt64(num), FromInt64(den))
}

// FromFloat is for tests and config parsing only; simulation code must not
// round-trip through floats.
func FromFloat(f float64) Fixed { return Fixed(f * Scale) }

// Int truncates toward negative infinity.
func (f Fixed) Int() int64 { return int64(f) >> Shift }

// Float is for presentation only.
func (f Fixed) Float() float64 { return float64(f) / Scale }

func (f Fixed) Add(g Fixed) Fixed { return f + g }
func (f Fixed) Sub(g Fixed) Fixed { return f - g }
func (f Fixed) Mul(g Fixed) Fixed { return Mul(f, g) }
func (f Fixed) Div(g Fixed) Fixed { return Div(f, g) }

func (f Fixed) Abs() Fixed {
	if f < 0 {
		return -f
	}
	return f
}

func (f Fixed) String() string {
	return strconv.FormatFloat(f.Float(), 'f', 4, 64)
}

// Mul multiplies through a 128-bit intermediate.
func Mul(a, b Fixed) Fixed {
	if a == 0 || b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	ua, ub := magnitude(a), magnitude(b)

	hi, lo := bits.Mul64(ua, ub)
	// Q64.64 -> Q32.32
	if hi>>31 != 0 {
		return saturate(negative)
	}
	result := int64((hi << 32) | (lo >> 32))
	if negative {
		return Fixed(-result)
	}
	return Fixed(result)
}

// Div divides with saturation on overflow. Division by zero yields Zero.
func Div(a, b Fixed) Fixed {
	if b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	ua, ub := magnitude(a), magnitude(b)

	// a << 32 as 128-bit
	hi := ua >> 32
	lo := ua << 32
	if hi >= ub {
		return saturate(negative)
	}

	quo, _ := bits.Div64(hi, lo, ub)
	if quo > math.MaxInt64 {
		return saturate(negative)
	}
	if negative {
		return Fixed(-int64(quo))
	}
	return Fixed(quo)
}

// RunningMean folds sample into mean, where n is the sample count including
// sample. Incremental form keeps the accumulator bounded.
func RunningMean(mean, sample Fixed, n uint64) Fixed {
	if n <= 1 {
		return sample
	}
	// dividing a Q32.32 value by a plain integer stays in Q32.32
	delta := sample - mean
	return mean + delta/Fixed(n)
}

func magnitude(f Fixed) uint64 {
	if f < 0 {
		return uint64(-int64(f))
	}
	return uint64(f)
}

func saturate(negative bool) Fixed {
	if negative {
		return Min
	}
	return Max
}
