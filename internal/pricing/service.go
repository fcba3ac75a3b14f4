package pricing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/money"
)

// TierPricing carries the resolved price points for one tier.
type TierPricing struct {
	Monthly          decimal.Decimal `json:"monthly"`
	MonthlyFormatted string          `json:"monthly_formatted"`
	Yearly           decimal.Decimal `json:"yearly"`
	YearlyFormatted  string          `json:"yearly_formatted"`
	Trial            decimal.Decimal `json:"trial"`
	TrialFormatted   string          `json:"trial_formatted"`
	BaseMonthly      decimal.Decimal `json:"base_monthly"`
}

// Quote is the full pricing answer for one country/currency request.
type Quote struct {
	Country  string      `json:"country"`
	Currency string      `json:"currency"`
	Pro      TierPricing `json:"pro"`
	Business TierPricing `json:"business"`
}

// Service resolves currencies and prices. Derived prices (yearly, trial)
// are pure transforms of the monthly price.
type Service struct {
	repo             settings.Repository
	baseCurrency     string
	trialFraction    decimal.Decimal
	yearlyMultiplier decimal.Decimal
}

// ServiceParams groups dependencies for the pricing service.
type ServiceParams struct {
	Repo    settings.Repository
	Billing config.BillingConfig
}

// NewService builds a pricing service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings repo required")
	}
	base := strings.ToUpper(strings.TrimSpace(params.Billing.BaseCurrency))
	if base == "" {
		base = "USD"
	}
	fraction, err := decimal.NewFromString(params.Billing.TrialPriceFraction)
	if err != nil || fraction.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invalid trial price fraction")
	}
	multiplier := params.Billing.YearlyMultiplier
	if multiplier <= 0 {
		multiplier = 10
	}
	return &Service{
		repo:             params.Repo,
		baseCurrency:     base,
		trialFraction:    fraction,
		yearlyMultiplier: decimal.NewFromInt(int64(multiplier)),
	}, nil
}

// CurrencyForCountry maps a country signal to a checkout currency.
// Placeholder codes from anonymization networks resolve to the base
// currency, as does anything unrecognized.
func (s *Service) CurrencyForCountry(country string) string {
	code := strings.ToUpper(strings.TrimSpace(country))
	if _, ok := placeholderCountries[code]; ok {
		return s.baseCurrency
	}
	if currency, ok := countryCurrency[code]; ok {
		return currency
	}
	if _, ok := europeanCountries[code]; ok {
		return "EUR"
	}
	return s.baseCurrency
}

// Resolve prices both paid tiers for the request's country/currency. When
// neither a local price nor an FX rate exists for the selected currency, the
// whole quote falls back to the base currency rather than showing base
// amounts under a foreign symbol.
func (s *Service) Resolve(ctx context.Context, country, currencyOverride string) (*Quote, error) {
	currency := strings.ToUpper(strings.TrimSpace(currencyOverride))
	if currency == "" {
		currency = s.CurrencyForCountry(country)
	}

	override, err := s.repo.FindPriceOverride(ctx, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price override")
	}

	pro, proOK := s.monthlyPrice(enums.PlanTierPro, currency, override)
	business, businessOK := s.monthlyPrice(enums.PlanTierBusiness, currency, override)
	if !proOK || !businessOK {
		currency = s.baseCurrency
		pro, _ = s.monthlyPrice(enums.PlanTierPro, currency, nil)
		business, _ = s.monthlyPrice(enums.PlanTierBusiness, currency, nil)
	}

	basePro, _ := s.monthlyPrice(enums.PlanTierPro, s.baseCurrency, nil)
	baseBusiness, _ := s.monthlyPrice(enums.PlanTierBusiness, s.baseCurrency, nil)

	return &Quote{
		Country:  strings.ToUpper(strings.TrimSpace(country)),
		Currency: currency,
		Pro:      s.tierPricing(pro, basePro, currency),
		Business: s.tierPricing(business, baseBusiness, currency),
	}, nil
}

// Amount returns the expected charge for (plan, currency, interval). It is
// the single price authority: the broker quotes with it and reconciliation
// re-checks verified amounts against it.
func (s *Service) Amount(ctx context.Context, plan enums.PlanTier, currency string, interval enums.BillingInterval) (decimal.Decimal, error) {
	if !plan.IsPaid() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "plan is not purchasable")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))

	override, err := s.repo.FindPriceOverride(ctx, currency)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price override")
	}

	monthly, ok := s.monthlyPrice(plan, currency, override)
	if !ok {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "no price configured for currency "+currency)
	}

	switch interval {
	case enums.BillingIntervalYearly:
		return money.Round(monthly.Mul(s.yearlyMultiplier), currency), nil
	case enums.BillingIntervalTrial:
		return money.Round(monthly.Mul(s.trialFraction), currency), nil
	default:
		return monthly, nil
	}
}

// monthlyPrice resolves one tier's monthly price in order: admin override,
// shipped default, FX derivation from the base price.
func (s *Service) monthlyPrice(plan enums.PlanTier, currency string, override *models.PriceOverride) (decimal.Decimal, bool) {
	if override != nil {
		if amount, ok := overrideAmount(plan, override); ok {
			return money.Round(amount, currency), true
		}
	}
	if defaults, ok := builtinPrices[currency]; ok {
		return money.Round(tierAmount(plan, defaults), currency), true
	}
	if override != nil && override.FxRate.Valid {
		base, ok := builtinPrices[s.baseCurrency]
		if ok {
			derived := tierAmount(plan, base).Mul(override.FxRate.Decimal)
			return money.Round(derived, currency), true
		}
	}
	return decimal.Zero, false
}

func (s *Service) tierPricing(monthly, baseMonthly decimal.Decimal, currency string) TierPricing {
	yearly := money.Round(monthly.Mul(s.yearlyMultiplier), currency)
	trial := money.Round(monthly.Mul(s.trialFraction), currency)
	return TierPricing{
		Monthly:          monthly,
		MonthlyFormatted: money.Format(monthly, currency),
		Yearly:           yearly,
		YearlyFormatted:  money.Format(yearly, currency),
		Trial:            trial,
		TrialFormatted:   money.Format(trial, currency),
		BaseMonthly:      baseMonthly,
	}
}

func overrideAmount(plan enums.PlanTier, override *models.PriceOverride) (decimal.Decimal, bool) {
	switch plan {
	case enums.PlanTierPro:
		if override.ProPrice.Valid {
			return override.ProPrice.Decimal, true
		}
	case enums.PlanTierBusiness:
		if override.BusinessPrice.Valid {
			return override.BusinessPrice.Decimal, true
		}
	}
	return decimal.Zero, false
}

func tierAmount(plan enums.PlanTier, defaults tierDefaults) decimal.Decimal {
	if plan == enums.PlanTierBusiness {
		return defaults.business
	}
	return defaults.pro
}
