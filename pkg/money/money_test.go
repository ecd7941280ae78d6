package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	assert.Equal(t, Money(600), Sum(100, 200, 300))
	assert.Equal(t, Zero, Sum())
	assert.Equal(t, Money(-50), Sum(100, -150))
}

func TestString(t *testing.T) {
	assert.Equal(t, "10.00", Money(1000).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "-1.23", Money(-123).String())
}

func TestPercent_FloorDivision(t *testing.T) {
	// 19% of 99 cents = 18.81 → floors to 18
	got, err := Percent(99, 1900)
	require.NoError(t, err)
	assert.Equal(t, Money(18), got)
}

func TestPercent_NegativeAmount(t *testing.T) {
	_, err := Percent(-1, 1000)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestSplit_ExactSum(t *testing.T) {
	first, second, err := Split(3000, 6000, 6000)
	require.NoError(t, err)
	assert.Equal(t, Money(3000), first)
	assert.Equal(t, Zero, second)
}

func TestSplit_RemainderGoesToSecond(t *testing.T) {
	// 100 * 1 / 3 = 33 floor; remainder 67 goes to the other side
	first, second, err := Split(100, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, Money(33), first)
	assert.Equal(t, Money(67), second)
	assert.Equal(t, Money(100), first+second)
}

func TestSplit_ZeroShare(t *testing.T) {
	first, second, err := Split(500, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, Zero, first)
	assert.Equal(t, Money(500), second)
}

func TestSplit_ShareExceedsBase(t *testing.T) {
	_, _, err := Split(100, 200, 100)
	assert.ErrorIs(t, err, ErrShareExceeds)
}

func TestSplit_ZeroBase(t *testing.T) {
	_, _, err := Split(100, 0, 0)
	assert.ErrorIs(t, err, ErrZeroBase)
}

// Exhaustive small-range check that the two shares always sum exactly
// to the refunded amount regardless of ratio.
func TestSplit_NoRoundingGap(t *testing.T) {
	for base := Money(1); base <= 40; base++ {
		for share := Zero; share <= base; share++ {
			for amount := Zero; amount <= base; amount++ {
				first, second, err := Split(amount, share, base)
				require.NoError(t, err)
				assert.Equal(t, amount, first+second,
					"amount=%d share=%d base=%d", amount, share, base)
				assert.False(t, first.IsNegative())
				assert.False(t, second.IsNegative())
			}
		}
	}
}

func TestProrate_SumsExactly(t *testing.T) {
	out, err := Prorate(100, []Money{3, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, Money(100), Sum(out...))
	// floor gives 33 to each, remainder 1 goes to the first slot
	assert.Equal(t, []Money{34, 33, 33}, out)
}

func TestProrate_SingleShare(t *testing.T) {
	out, err := Prorate(777, []Money{5})
	require.NoError(t, err)
	assert.Equal(t, []Money{777}, out)
}

func TestProrate_ZeroTotal(t *testing.T) {
	_, err := Prorate(100, []Money{0, 0})
	assert.ErrorIs(t, err, ErrZeroBase)
}

func TestProrate_NegativeShare(t *testing.T) {
	_, err := Prorate(100, []Money{10, -1})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}
