package model

import "github.com/shopspring/decimal"

// Zero is decimal zero.
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// RoundHalfUp rounds to the given number of minor-unit places, halves
// away from zero. All monetary amounts handled here are non-negative,
// so this is the half-up rounding the authority specifies.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// Percentage computes amount * (percent/100) without rounding; callers
// round at the currency's precision.
func Percentage(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// TaxOn computes the tax charged on a net amount at an integer percent
// rate, rounded at the given precision.
func TaxOn(net decimal.Decimal, ratePercent int, places int32) decimal.Decimal {
	if ratePercent == 0 {
		return Zero
	}
	rate := decimal.NewFromInt(int64(ratePercent))
	return RoundHalfUp(net.Mul(rate).Div(hundred), places)
}

// MinorUnit returns the smallest representable amount at the given
// precision, used as the tolerance for discount reconciliation.
func MinorUnit(places int32) decimal.Decimal {
	return decimal.New(1, -places)
}

// WithinMinorUnit reports whether two amounts differ by at most one
// minor unit at the given precision.
func WithinMinorUnit(a, b decimal.Decimal, places int32) bool {
	return a.Sub(b).Abs().LessThanOrEqual(MinorUnit(places))
}
