package eligibility

import (
	"context"
	"strings"

	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

// Reasons reported for ineligible providers, in check priority order.
const (
	ReasonNotEnabled          = "provider not enabled"
	ReasonCountryUnsupported  = "country not supported"
	ReasonCurrencyUnsupported = "currency not supported"
)

// CredentialSource yields the decrypted runtime configuration for a
// provider. *settings.Service satisfies it.
type CredentialSource interface {
	Credentials(ctx context.Context, provider enums.Provider) (*settings.Credentials, error)
}

// Result is one provider's eligibility verdict for a (country, currency)
// pair. Allowed is the AND of the component flags; Reason names the first
// failing check and is empty when Allowed is true. The support flags are
// computed from the market tables regardless of enablement, so toggling a
// provider's active flag never changes them.
type Result struct {
	Provider         enums.Provider `json:"provider"`
	Enabled          bool           `json:"enabled"`
	SupportsCountry  bool           `json:"supports_country"`
	SupportsCurrency bool           `json:"supports_currency"`
	Allowed          bool           `json:"allowed"`
	Reason           string         `json:"reason,omitempty"`
}

// Engine decides which configured gateways can serve a checkout. A gateway
// qualifies when its credentials are active and complete, its market tables
// cover the payer's country and currency, and any admin country allow-list
// includes the payer.
type Engine struct {
	creds CredentialSource
}

// EngineParams groups dependencies for the eligibility engine.
type EngineParams struct {
	Credentials CredentialSource
}

// NewEngine builds an eligibility engine with the required dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Credentials == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credential source required")
	}
	return &Engine{creds: params.Credentials}, nil
}

// Check evaluates one provider. Every component flag is computed so the
// verdict explains itself even when an earlier check already failed; the
// reason reports the first failure in enablement, country, currency order.
func (e *Engine) Check(ctx context.Context, provider enums.Provider, country, currency string) Result {
	country = strings.ToUpper(strings.TrimSpace(country))
	currency = strings.ToUpper(strings.TrimSpace(currency))

	result := Result{
		Provider:         provider,
		SupportsCountry:  supportsCountry(provider, country),
		SupportsCurrency: supportsCurrency(provider, currency),
	}

	creds, err := e.creds.Credentials(ctx, provider)
	if err == nil && creds != nil && creds.Active {
		if ok, _ := settings.RequiredFieldsPresent(provider, creds); ok {
			result.Enabled = true
		}
		if !allowListPermits(creds.CountryAllowList, country) {
			result.SupportsCountry = false
		}
	}

	switch {
	case !result.Enabled:
		result.Reason = ReasonNotEnabled
	case !result.SupportsCountry:
		result.Reason = ReasonCountryUnsupported
	case !result.SupportsCurrency:
		result.Reason = ReasonCurrencyUnsupported
	default:
		result.Allowed = true
	}
	return result
}

// Evaluate checks every known provider in declaration order.
func (e *Engine) Evaluate(ctx context.Context, country, currency string) []Result {
	providers := enums.Providers()
	results := make([]Result, 0, len(providers))
	for _, provider := range providers {
		results = append(results, e.Check(ctx, provider, country, currency))
	}
	return results
}

// Eligible returns the providers able to serve the checkout, in the stable
// declaration order used for default selection.
func (e *Engine) Eligible(ctx context.Context, country, currency string) []enums.Provider {
	var out []enums.Provider
	for _, result := range e.Evaluate(ctx, country, currency) {
		if result.Allowed {
			out = append(out, result.Provider)
		}
	}
	return out
}

// allowListPermits narrows a gateway's coverage to the admin-configured
// country list. An empty list leaves the static tables untouched.
func allowListPermits(allowList []string, country string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, allowed := range allowList {
		if allowed == country {
			return true
		}
	}
	return false
}
