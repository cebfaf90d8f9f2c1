// Package overrep finds attribute values that are statistically
// over-represented in a subset of problems compared to a superset,
// using a two-sided Fisher exact test.
package overrep

import (
	"math"
)

// relErr is the relative tolerance used to decide whether a table is at
// least as extreme as the observed one.
const relErr = 1 + 1e-7

// FisherExact runs a two-sided Fisher exact test on the 2x2 table
//
//	[[a, b],
//	 [c, d]]
//
// and returns the sample odds ratio a*d / (b*c) and the p-value. The odds
// ratio is +Inf when b*c == 0 < a*d and NaN when both products are zero.
// Negative cells yield NaN for both values.
func FisherExact(a, b, c, d int) (oddsRatio, pValue float64) {
	if a < 0 || b < 0 || c < 0 || d < 0 {
		return math.NaN(), math.NaN()
	}

	ad := float64(a) * float64(d)
	bc := float64(b) * float64(c)
	switch {
	case bc == 0 && ad == 0:
		oddsRatio = math.NaN()
	case bc == 0:
		oddsRatio = math.Inf(1)
	default:
		oddsRatio = ad / bc
	}

	n := a + b + c + d
	if n == 0 {
		return oddsRatio, 1
	}

	row := a + b // first row total
	col := a + c // first column total
	lo := max(0, row+col-n)
	hi := min(row, col)

	observed := hypergeomLogPMF(a, n, col, row)
	threshold := observed + math.Log(relErr)

	p := 0.0
	for x := lo; x <= hi; x++ {
		lp := hypergeomLogPMF(x, n, col, row)
		if lp <= threshold {
			p += math.Exp(lp)
		}
	}
	return oddsRatio, math.Min(1, math.Max(0, p))
}

// hypergeomLogPMF is log P(X = x) for X drawing `draws` items from a
// population of n containing k successes.
func hypergeomLogPMF(x, n, k, draws int) float64 {
	return logChoose(k, x) + logChoose(n-k, draws-x) - logChoose(n, draws)
}

func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1)
}

func lgamma(n int) float64 {
	v, _ := math.Lgamma(float64(n))
	return v
}
