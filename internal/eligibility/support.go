package eligibility

import (
	"strings"

	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// providerSupport captures a gateway's static market coverage. A nil
// countries set means the gateway accepts payers from any country.
type providerSupport struct {
	countries  map[string]struct{}
	currencies map[string]struct{}
}

func set(codes ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		out[code] = struct{}{}
	}
	return out
}

var supportTables = map[enums.Provider]providerSupport{
	enums.ProviderPaystack: {
		countries: set("NG", "GH", "ZA", "KE", "CI", "EG", "RW"),
		currencies: set(
			"NGN", "GHS", "ZAR", "KES", "XOF", "EGP", "RWF", "USD",
		),
	},
	enums.ProviderFlutterwave: {
		countries: set(
			"NG", "GH", "KE", "ZA", "UG", "TZ", "RW", "CM", "CI", "SN",
			"BF", "ML", "TG", "BJ", "GA", "EG", "US", "GB",
		),
		currencies: set(
			"NGN", "GHS", "KES", "ZAR", "UGX", "TZS", "RWF", "XOF", "XAF",
			"EGP", "USD", "EUR", "GBP",
		),
	},
	enums.ProviderStripe: {
		countries: nil, // card rails are not payer-country restricted
		currencies: set(
			"USD", "EUR", "GBP", "CAD", "AUD", "NZD", "JPY", "INR", "BRL",
			"MXN", "AED", "SAR", "KWD", "BHD", "OMR", "NGN", "ZAR",
		),
	},
}

// currencyPreferredProvider picks the default gateway for a currency when
// the caller expresses no preference. Anything unlisted falls back to the
// first eligible provider.
var currencyPreferredProvider = map[string]enums.Provider{
	"NGN": enums.ProviderPaystack,
	"GHS": enums.ProviderPaystack,
	"KES": enums.ProviderPaystack,
	"ZAR": enums.ProviderPaystack,
	"EGP": enums.ProviderPaystack,
	"XOF": enums.ProviderPaystack,
	"RWF": enums.ProviderPaystack,
	"UGX": enums.ProviderFlutterwave,
	"TZS": enums.ProviderFlutterwave,
	"XAF": enums.ProviderFlutterwave,
}

// PreferredFor returns the gateway favored for a currency, if any.
func PreferredFor(currency string) (enums.Provider, bool) {
	provider, ok := currencyPreferredProvider[strings.ToUpper(strings.TrimSpace(currency))]
	return provider, ok
}

func supportsCountry(provider enums.Provider, country string) bool {
	support, ok := supportTables[provider]
	if !ok {
		return false
	}
	if support.countries == nil {
		return true
	}
	_, ok = support.countries[country]
	return ok
}

func supportsCurrency(provider enums.Provider, currency string) bool {
	support, ok := supportTables[provider]
	if !ok {
		return false
	}
	_, ok = support.currencies[currency]
	return ok
}
