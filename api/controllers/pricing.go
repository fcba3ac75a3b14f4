package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/qrmint/qrmint-backend/api/responses"
	"github.com/qrmint/qrmint-backend/internal/eligibility"
	"github.com/qrmint/qrmint-backend/internal/pricing"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
)

// PricingResolver localizes plan pricing. *pricing.Service satisfies it.
type PricingResolver interface {
	Resolve(ctx context.Context, country, currencyOverride string) (*pricing.Quote, error)
}

// ProviderEvaluator reports gateway eligibility for a market.
// *eligibility.Engine satisfies it.
type ProviderEvaluator interface {
	Evaluate(ctx context.Context, country, currency string) []eligibility.Result
}

type providerStatusResponse struct {
	Provider         string `json:"provider"`
	Enabled          bool   `json:"enabled"`
	SupportsCountry  bool   `json:"supports_country"`
	SupportsCurrency bool   `json:"supports_currency"`
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
}

type pricingQuoteResponse struct {
	Quote       *pricing.Quote           `json:"quote"`
	Providers   []providerStatusResponse `json:"providers"`
	Recommended string                   `json:"recommended_provider,omitempty"`
}

// PricingQuote resolves localized pricing for a country plus the set of
// gateways that could serve a checkout there. Public, no auth.
func PricingQuote(svc PricingResolver, engine ProviderEvaluator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}

		country := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country")))
		if country == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "country query parameter is required"))
			return
		}
		currency := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))

		quote, err := svc.Resolve(r.Context(), country, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, buildPricingQuoteResponse(r.Context(), engine, quote))
	}
}

func buildPricingQuoteResponse(ctx context.Context, engine ProviderEvaluator, quote *pricing.Quote) pricingQuoteResponse {
	results := engine.Evaluate(ctx, quote.Country, quote.Currency)

	out := pricingQuoteResponse{Quote: quote, Providers: make([]providerStatusResponse, 0, len(results))}
	for _, res := range results {
		out.Providers = append(out.Providers, providerStatusResponse{
			Provider:         res.Provider.String(),
			Enabled:          res.Enabled,
			SupportsCountry:  res.SupportsCountry,
			SupportsCurrency: res.SupportsCurrency,
			Allowed:          res.Allowed,
			Reason:           res.Reason,
		})
		if out.Recommended == "" && res.Allowed {
			out.Recommended = res.Provider.String()
		}
	}
	if preferred, ok := eligibility.PreferredFor(quote.Currency); ok {
		for _, res := range results {
			if res.Provider == preferred && res.Allowed {
				out.Recommended = preferred.String()
			}
		}
	}
	return out
}
