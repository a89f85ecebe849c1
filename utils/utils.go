package utils

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the canonical number of decimal places for every balance and item value.
const MoneyScale = 2

// NanoPerUnit is the number of smallest ledger units in one currency unit.
const NanoPerUnit = 1_000_000_000

var nanoFactor = decimal.NewFromInt(NanoPerUnit)

// RoundMoney rounds half away from zero to MoneyScale. Money is never negative here,
// so this is round-half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ToNano converts a currency amount to smallest units, truncating anything below one nano.
func ToNano(d decimal.Decimal) int64 {
	return d.Mul(nanoFactor).IntPart()
}

func FromNano(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Div(nanoFactor)
}

// MaxZero floors d at zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
