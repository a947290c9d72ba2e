package checkout

import "github.com/shopspring/decimal"

// DefaultGSTRate is the GST percentage applied when the caller supplies none.
var DefaultGSTRate = decimal.NewFromInt(9)

var hundred = decimal.NewFromInt(100)

// CalculateGSTBreakdown splits a tax-inclusive amount at the given percentage
// rate. Amounts are rounded to cents, half away from zero. Zero and negative
// amounts are not rejected.
func CalculateGSTBreakdown(inclusive, rate decimal.Decimal) GSTBreakdown {
	inclusive = inclusive.Round(2)
	divisor := decimal.NewFromInt(1).Add(rate.Div(hundred))
	exclusive := inclusive.DivRound(divisor, 8).Round(2)
	return GSTBreakdown{
		Inclusive: inclusive,
		Exclusive: exclusive,
		GST:       inclusive.Sub(exclusive).Round(2),
		GSTRate:   rate,
	}
}

// ZeroRatedBreakdown is the breakdown for transfer lines, which carry no GST.
func ZeroRatedBreakdown(inclusive decimal.Decimal) GSTBreakdown {
	return CalculateGSTBreakdown(inclusive, decimal.Zero)
}
