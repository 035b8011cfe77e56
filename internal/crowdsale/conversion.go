package crowdsale

import "math/bits"

// MaxTokenDecimals is the largest decimal precision whose scale fits in
// uint64.
const MaxTokenDecimals = 19

var pow10 = func() [MaxTokenDecimals + 1]uint64 {
	var p [MaxTokenDecimals + 1]uint64
	p[0] = 1
	for i := 1; i <= MaxTokenDecimals; i++ {
		p[i] = p[i-1] * 10
	}
	return p
}()

// Allocation converts a contribution to token base units.
//
// price is quoted in native base units per whole token, so the native
// currency's precision cancels out and only the token's precision scales
// the result:
//
//	allocation = contribution * 10^tokenDecimals / price
//
// The product is computed in 128 bits and the quotient truncates. A
// quotient that does not fit uint64 is ArithmeticOverflow; a non-zero
// contribution that truncates to zero is ArithmeticUnderflow.
func Allocation(contribution, price uint64, tokenDecimals uint8) (uint64, error) {
	if price == 0 {
		return 0, ErrInvalidParameters
	}
	if tokenDecimals > MaxTokenDecimals {
		return 0, ErrArithmeticOverflow
	}

	hi, lo := bits.Mul64(contribution, pow10[tokenDecimals])
	if hi >= price {
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, price)
	if q == 0 && contribution > 0 {
		return 0, ErrArithmeticUnderflow
	}
	return q, nil
}

// Cost is the inverse of Allocation: the smallest contribution that buys at
// least allocation token base units.
func Cost(allocation, price uint64, tokenDecimals uint8) (uint64, error) {
	if price == 0 {
		return 0, ErrInvalidParameters
	}
	if tokenDecimals > MaxTokenDecimals {
		return 0, ErrArithmeticOverflow
	}

	scale := pow10[tokenDecimals]
	hi, lo := bits.Mul64(allocation, price)
	if hi >= scale {
		return 0, ErrArithmeticOverflow
	}
	q, rem := bits.Div64(hi, lo, scale)
	if rem != 0 {
		if q == ^uint64(0) {
			return 0, ErrArithmeticOverflow
		}
		q++
	}
	return q, nil
}
