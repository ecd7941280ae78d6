// Package money provides integer minor-unit currency arithmetic.
// All financial computation in keelbooks goes through this package —
// no floating point representation of currency exists anywhere.
package money

import (
	"errors"
	"fmt"
)

// Money is an amount in minor currency units (cents).
type Money int64

// Zero is the zero amount.
const Zero Money = 0

var (
	ErrNegativeAmount = errors.New("amount cannot be negative")
	ErrZeroBase       = errors.New("proration base cannot be zero")
	ErrShareExceeds   = errors.New("proration share cannot exceed base")
)

// FromCents constructs a Money value from a cent count.
func FromCents(cents int64) Money { return Money(cents) }

// Cents returns the raw minor-unit count.
func (m Money) Cents() int64 { return int64(m) }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m < 0 }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m > 0 }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m == 0 }

// Add returns m + other.
func (m Money) Add(other Money) Money { return m + other }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return m - other }

// Min returns the smaller of m and other.
func (m Money) Min(other Money) Money {
	if m < other {
		return m
	}
	return other
}

// String formats the amount as a decimal with two fraction digits.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Sum totals a slice of amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// Percent computes amount * bps / 10000 using floor division.
// The remainder stays with the base amount; callers that need the
// complement must subtract rather than compute it independently.
func Percent(amount Money, bps int64) (Money, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	if bps < 0 {
		return 0, fmt.Errorf("basis points cannot be negative: %d", bps)
	}
	return Money(int64(amount) * bps / 10000), nil
}

// Split allocates amount across a two-sided ratio share:base.
// Returns (floor(amount*share/base), amount-floor(amount*share/base)).
// The two results always sum to amount exactly, which independent
// per-side rounding would not guarantee.
func Split(amount, share, base Money) (Money, Money, error) {
	if amount.IsNegative() || share.IsNegative() {
		return 0, 0, ErrNegativeAmount
	}
	if base <= 0 {
		return 0, 0, ErrZeroBase
	}
	if share > base {
		return 0, 0, ErrShareExceeds
	}
	first := Money(int64(amount) * int64(share) / int64(base))
	return first, amount - first, nil
}

// Prorate allocates amount across shares in proportion to each share's
// weight within their total. Every slot gets floor(amount*share/total);
// the whole rounding remainder is assigned to the first slot, so the
// results always sum to amount exactly. Callers order shares by intent
// (conventionally largest first).
func Prorate(amount Money, shares []Money) ([]Money, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if len(shares) == 0 {
		return nil, errors.New("prorate requires at least one share")
	}
	var total Money
	for _, s := range shares {
		if s.IsNegative() {
			return nil, ErrNegativeAmount
		}
		total += s
	}
	if total <= 0 {
		return nil, ErrZeroBase
	}
	out := make([]Money, len(shares))
	var allocated Money
	for i, s := range shares {
		out[i] = Money(int64(amount) * int64(s) / int64(total))
		allocated += out[i]
	}
	out[0] += amount - allocated
	return out, nil
}
