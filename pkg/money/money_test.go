package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentByCurrency(t *testing.T) {
	assert.Equal(t, int32(2), Exponent("USD"))
	assert.Equal(t, int32(2), Exponent("ngn"))
	assert.Equal(t, int32(0), Exponent("JPY"))
	assert.Equal(t, int32(0), Exponent("XOF"))
	assert.Equal(t, int32(3), Exponent("KWD"))
	assert.Equal(t, int32(3), Exponent("tnd"))
	assert.Equal(t, int32(2), Exponent("???"))
}

func TestMinorUnitRoundTrip(t *testing.T) {
	cases := []struct {
		currency string
		minor    int64
	}{
		{"USD", 0},
		{"USD", 1},
		{"USD", 1999},
		{"NGN", 1500000},
		{"JPY", 1200},
		{"KWD", 12345},
		{"BHD", 1},
	}
	for _, tc := range cases {
		got := ToMinorUnits(FromMinorUnits(tc.minor, tc.currency), tc.currency)
		require.Equal(t, tc.minor, got, "round trip for %s %d", tc.currency, tc.minor)
	}
}

func TestRoundUsesCurrencyPrecision(t *testing.T) {
	amount := decimal.RequireFromString("19.998")
	assert.Equal(t, "20", Round(amount, "USD").String())
	assert.Equal(t, "20", Round(amount, "JPY").String())
	assert.Equal(t, "19.998", Round(amount, "KWD").String())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "NGN 15000.00", Format(decimal.NewFromInt(15000), "NGN"))
	assert.Equal(t, "JPY 1200", Format(decimal.NewFromInt(1200), "jpy"))
	assert.Equal(t, "KWD 9.500", Format(decimal.RequireFromString("9.5"), "KWD"))
}
