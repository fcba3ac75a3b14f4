package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
)

type overrideRepo struct {
	overrides map[string]*models.PriceOverride
}

func (r *overrideRepo) WithTx(tx *gorm.DB) settings.Repository { return r }

func (r *overrideRepo) FindByProvider(ctx context.Context, provider enums.Provider) (*models.PaymentSetting, error) {
	return nil, nil
}

func (r *overrideRepo) Upsert(ctx context.Context, setting *models.PaymentSetting) error {
	return nil
}

func (r *overrideRepo) FindPriceOverride(ctx context.Context, currency string) (*models.PriceOverride, error) {
	return r.overrides[currency], nil
}

func (r *overrideRepo) UpsertPriceOverride(ctx context.Context, override *models.PriceOverride) error {
	r.overrides[override.Currency] = override
	return nil
}

func newPricingService(t *testing.T, overrides map[string]*models.PriceOverride) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo: &overrideRepo{overrides: overrides},
		Billing: config.BillingConfig{
			BaseCurrency:       "USD",
			TrialPriceFraction: "0.1",
			YearlyMultiplier:   10,
		},
	})
	require.NoError(t, err)
	return svc
}

func TestCurrencyForCountry(t *testing.T) {
	svc := newPricingService(t, nil)

	assert.Equal(t, "NGN", svc.CurrencyForCountry("NG"))
	assert.Equal(t, "NGN", svc.CurrencyForCountry(" ng "))
	assert.Equal(t, "XOF", svc.CurrencyForCountry("SN"))
	assert.Equal(t, "EUR", svc.CurrencyForCountry("PL"))
	assert.Equal(t, "USD", svc.CurrencyForCountry("T1"))
	assert.Equal(t, "USD", svc.CurrencyForCountry(""))
	assert.Equal(t, "USD", svc.CurrencyForCountry("QQ"))
}

func TestResolveNigeriaUsesLocalPrice(t *testing.T) {
	svc := newPricingService(t, nil)

	quote, err := svc.Resolve(context.Background(), "NG", "")
	require.NoError(t, err)
	assert.Equal(t, "NGN", quote.Currency)
	assert.True(t, quote.Pro.Monthly.Equal(decimal.NewFromInt(15000)), "got %s", quote.Pro.Monthly)
	assert.Equal(t, "NGN 15000.00", quote.Pro.MonthlyFormatted)
	assert.True(t, quote.Pro.Yearly.Equal(decimal.NewFromInt(150000)))
	assert.True(t, quote.Pro.Trial.Equal(decimal.NewFromInt(1500)))
	assert.True(t, quote.Pro.BaseMonthly.Equal(decimal.NewFromInt(9)))
}

func TestResolveAdminOverrideBeatsBuiltin(t *testing.T) {
	svc := newPricingService(t, map[string]*models.PriceOverride{
		"NGN": {
			Currency: "NGN",
			ProPrice: decimal.NewNullDecimal(decimal.NewFromInt(18000)),
		},
	})

	quote, err := svc.Resolve(context.Background(), "NG", "")
	require.NoError(t, err)
	assert.True(t, quote.Pro.Monthly.Equal(decimal.NewFromInt(18000)))
	// business has no override, so the shipped default applies
	assert.True(t, quote.Business.Monthly.Equal(decimal.NewFromInt(45000)))
}

func TestResolveFxDerivation(t *testing.T) {
	svc := newPricingService(t, map[string]*models.PriceOverride{
		"TZS": {
			Currency: "TZS",
			FxRate:   decimal.NewNullDecimal(decimal.RequireFromString("2500")),
		},
	})

	quote, err := svc.Resolve(context.Background(), "TZ", "")
	require.NoError(t, err)
	assert.Equal(t, "TZS", quote.Currency)
	assert.True(t, quote.Pro.Monthly.Equal(decimal.NewFromInt(22500)), "got %s", quote.Pro.Monthly)
}

func TestResolveFallsBackToBaseCurrencyEntirely(t *testing.T) {
	svc := newPricingService(t, nil)

	// UGX has no built-in price list and no override: the quote flips to
	// USD instead of showing USD numbers under a UGX label.
	quote, err := svc.Resolve(context.Background(), "UG", "")
	require.NoError(t, err)
	assert.Equal(t, "USD", quote.Currency)
	assert.True(t, quote.Pro.Monthly.Equal(decimal.NewFromInt(9)))
}

func TestResolveCurrencyOverrideWins(t *testing.T) {
	svc := newPricingService(t, nil)

	quote, err := svc.Resolve(context.Background(), "US", "gbp")
	require.NoError(t, err)
	assert.Equal(t, "GBP", quote.Currency)
	assert.True(t, quote.Pro.Monthly.Equal(decimal.NewFromInt(8)))
}

func TestAmountByInterval(t *testing.T) {
	svc := newPricingService(t, nil)
	ctx := context.Background()

	monthly, err := svc.Amount(ctx, enums.PlanTierPro, "USD", enums.BillingIntervalMonthly)
	require.NoError(t, err)
	assert.True(t, monthly.Equal(decimal.NewFromInt(9)))

	yearly, err := svc.Amount(ctx, enums.PlanTierPro, "USD", enums.BillingIntervalYearly)
	require.NoError(t, err)
	assert.True(t, yearly.Equal(decimal.NewFromInt(90)))

	trial, err := svc.Amount(ctx, enums.PlanTierPro, "USD", enums.BillingIntervalTrial)
	require.NoError(t, err)
	assert.True(t, trial.Equal(decimal.RequireFromString("0.9")))
}

func TestAmountRejectsFreePlan(t *testing.T) {
	svc := newPricingService(t, nil)
	_, err := svc.Amount(context.Background(), enums.PlanTierFree, "USD", enums.BillingIntervalMonthly)
	require.Error(t, err)
}

func TestAmountZeroDecimalCurrencyRounds(t *testing.T) {
	svc := newPricingService(t, nil)
	trial, err := svc.Amount(context.Background(), enums.PlanTierPro, "JPY", enums.BillingIntervalTrial)
	require.NoError(t, err)
	assert.True(t, trial.Equal(decimal.NewFromInt(140)), "got %s", trial)
}
