package enums

import "fmt"

// Provider identifies a supported payment gateway. The set is closed:
// dispatch over providers is always an exhaustive switch, never a lookup
// that can miss.
type Provider string

const (
	ProviderPaystack    Provider = "paystack"
	ProviderFlutterwave Provider = "flutterwave"
	ProviderStripe      Provider = "stripe"
)

var validProviders = []Provider{
	ProviderPaystack,
	ProviderFlutterwave,
	ProviderStripe,
}

// String implements fmt.Stringer.
func (p Provider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Provider.
func (p Provider) IsValid() bool {
	for _, candidate := range validProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvider converts raw input into a Provider.
func ParseProvider(value string) (Provider, error) {
	for _, candidate := range validProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider %q", value)
}

// Providers returns the closed provider set in stable order.
func Providers() []Provider {
	out := make([]Provider, len(validProviders))
	copy(out, validProviders)
	return out
}
