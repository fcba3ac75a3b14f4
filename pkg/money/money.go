package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Minor-unit exponents that deviate from the common two-decimal case.
var (
	zeroDecimalCurrencies = map[string]struct{}{
		"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
		"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
		"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
	}
	threeDecimalCurrencies = map[string]struct{}{
		"BHD": {}, "IQD": {}, "JOD": {}, "KWD": {}, "LYD": {}, "OMR": {},
		"TND": {},
	}
)

// Exponent returns the number of minor-unit decimal places for a currency.
func Exponent(currency string) int32 {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}

// Round snaps an amount to the currency's minor-unit precision.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Exponent(currency))
}

// ToMinorUnits converts a major-unit amount into the smallest denomination.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return Round(amount, currency).Shift(Exponent(currency)).IntPart()
}

// FromMinorUnits converts a minor-unit count back into major units.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Exponent(currency))
}

// Format renders an amount with the currency code and its configured
// precision, e.g. "NGN 15000.00" or "JPY 1200".
func Format(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	return fmt.Sprintf("%s %s", code, Round(amount, code).StringFixed(Exponent(code)))
}
