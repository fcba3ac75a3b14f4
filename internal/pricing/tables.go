package pricing

import "github.com/shopspring/decimal"

// countryCurrency maps ISO-3166 alpha-2 codes to their checkout currency.
var countryCurrency = map[string]string{
	"NG": "NGN",
	"GH": "GHS",
	"KE": "KES",
	"ZA": "ZAR",
	"EG": "EGP",
	"RW": "RWF",
	"UG": "UGX",
	"TZ": "TZS",
	"CI": "XOF",
	"SN": "XOF",
	"BF": "XOF",
	"ML": "XOF",
	"TG": "XOF",
	"BJ": "XOF",
	"CM": "XAF",
	"GA": "XAF",
	"US": "USD",
	"CA": "CAD",
	"GB": "GBP",
	"AU": "AUD",
	"NZ": "NZD",
	"JP": "JPY",
	"IN": "INR",
	"BR": "BRL",
	"MX": "MXN",
	"AE": "AED",
	"SA": "SAR",
	"KW": "KWD",
	"BH": "BHD",
	"OM": "OMR",
	"DE": "EUR",
	"FR": "EUR",
	"ES": "EUR",
	"IT": "EUR",
	"NL": "EUR",
	"BE": "EUR",
	"PT": "EUR",
	"IE": "EUR",
	"AT": "EUR",
	"FI": "EUR",
	"GR": "EUR",
}

// europeanCountries routes unmapped European traffic to EUR.
var europeanCountries = map[string]struct{}{
	"AL": {}, "AD": {}, "BA": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {},
	"DK": {}, "EE": {}, "HU": {}, "IS": {}, "LV": {}, "LI": {}, "LT": {},
	"LU": {}, "MT": {}, "MC": {}, "ME": {}, "MK": {}, "NO": {}, "PL": {},
	"RO": {}, "RS": {}, "SK": {}, "SI": {}, "SE": {}, "CH": {}, "UA": {},
	"EU": {},
}

// placeholderCountries are anonymization-network or unknown-origin signals
// emitted by geo lookups; they never map to a real currency.
var placeholderCountries = map[string]struct{}{
	"": {}, "XX": {}, "ZZ": {}, "A1": {}, "A2": {}, "O1": {}, "T1": {},
}

type tierDefaults struct {
	pro      decimal.Decimal
	business decimal.Decimal
}

func prices(pro, business string) tierDefaults {
	return tierDefaults{
		pro:      decimal.RequireFromString(pro),
		business: decimal.RequireFromString(business),
	}
}

// builtinPrices holds the shipped local-currency monthly price list. Admin
// overrides take precedence; currencies absent here fall back to an FX
// derivation or to the base currency.
var builtinPrices = map[string]tierDefaults{
	"USD": prices("9", "29"),
	"EUR": prices("9", "27"),
	"GBP": prices("8", "24"),
	"CAD": prices("12", "39"),
	"AUD": prices("14", "44"),
	"NGN": prices("15000", "45000"),
	"GHS": prices("120", "360"),
	"KES": prices("1200", "3600"),
	"ZAR": prices("170", "510"),
	"EGP": prices("440", "1320"),
	"INR": prices("750", "2250"),
	"JPY": prices("1400", "4200"),
	"KWD": prices("2.8", "8.4"),
	"AED": prices("33", "105"),
}
