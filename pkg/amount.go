package pkg

import "github.com/shopspring/decimal"

// AmountDecimals is the number of fractional digits shown for ledger
// values, which are integers in base units.
const AmountDecimals = 8

// FormatAmount renders a base-unit value as a fixed point coin amount.
func FormatAmount(v decimal.Decimal) string {
	return v.Shift(-AmountDecimals).StringFixed(AmountDecimals)
}

func FormatInt(v int64) string {
	return FormatAmount(decimal.NewFromInt(v))
}
