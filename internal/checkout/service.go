package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/internal/eligibility"
	"github.com/qrmint/qrmint-backend/internal/pricing"
	"github.com/qrmint/qrmint-backend/internal/providers"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
	"github.com/qrmint/qrmint-backend/pkg/metrics"
)

// AdapterRegistry dispatches to one gateway adapter per provider.
// *providers.Registry satisfies it.
type AdapterRegistry interface {
	ForProvider(provider enums.Provider) (providers.Adapter, error)
}

// SessionInput is a checkout-creation request after transport decoding.
type SessionInput struct {
	Plan           string
	Interval       string
	Currency       string
	Country        string
	Email          string
	Provider       string
	PaymentMethod  string
	IdempotencyKey string
	SuccessURL     string
	CancelURL      string
	UserID         *uuid.UUID
}

// sessionMeta is the per-session detail stored on the transaction row so an
// idempotent replay can reconstruct the original result.
type sessionMeta struct {
	TestMode    bool   `json:"test_mode"`
	ProviderRef string `json:"provider_ref,omitempty"`
}

// Service is the checkout session broker: it prices the request, picks an
// eligible gateway, guarantees idempotent session creation and persists the
// transaction through its lifecycle.
type Service struct {
	repo        Repository
	pricing     *pricing.Service
	eligibility *eligibility.Engine
	adapters    AdapterRegistry
	creds       eligibility.CredentialSource
	logg        *logger.Logger
	metrics     *metrics.BillingMetrics

	graceWindow time.Duration
	successURL  string
	cancelURL   string
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Repo        Repository
	Pricing     *pricing.Service
	Eligibility *eligibility.Engine
	Adapters    AdapterRegistry
	Credentials eligibility.CredentialSource
	Logger      *logger.Logger
	Metrics     *metrics.BillingMetrics
	Billing     config.BillingConfig
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout repo required")
	}
	if params.Pricing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pricing service required")
	}
	if params.Eligibility == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "eligibility engine required")
	}
	if params.Adapters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "adapter registry required")
	}
	if params.Credentials == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credential source required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	grace := params.Billing.SessionGraceWindow
	if grace <= 0 {
		grace = 45 * time.Second
	}
	return &Service{
		repo:        params.Repo,
		pricing:     params.Pricing,
		eligibility: params.Eligibility,
		adapters:    params.Adapters,
		creds:       params.Credentials,
		logg:        params.Logger,
		metrics:     params.Metrics,
		graceWindow: grace,
		successURL:  params.Billing.SuccessURL,
		cancelURL:   params.Billing.CancelURL,
	}, nil
}

// CreateSession brokers one hosted-checkout session. Repeated calls with
// the same idempotency key, plan and user converge on the same reference
// and URL without a second gateway call.
func (s *Service) CreateSession(ctx context.Context, input SessionInput) (*providers.SessionResult, error) {
	plan, err := enums.ParsePaidPlanTier(strings.ToLower(strings.TrimSpace(input.Plan)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan must be a purchasable tier")
	}
	interval := enums.BillingIntervalMonthly
	if raw := strings.ToLower(strings.TrimSpace(input.Interval)); raw != "" {
		interval, err = enums.ParseBillingInterval(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown billing interval")
		}
	}
	method := enums.PaymentMethodCard
	if raw := strings.ToLower(strings.TrimSpace(input.PaymentMethod)); raw != "" {
		method, err = enums.ParsePaymentMethod(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
		}
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	country := strings.ToUpper(strings.TrimSpace(input.Country))
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.pricing.CurrencyForCountry(country)
	}

	amount, err := s.pricing.Amount(ctx, plan, currency, interval)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price resolves to zero for "+currency)
	}

	provider, err := s.selectProvider(ctx, input.Provider, country, currency)
	if err != nil {
		return nil, err
	}

	// defense in depth: the caller may have named a provider directly,
	// bypassing the eligibility listing
	if check := s.eligibility.Check(ctx, provider, country, currency); !check.Allowed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, provider.String()+": "+check.Reason)
	}
	if !methodSupported(provider, method) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, provider.String()+" does not support "+method.String())
	}

	reference := s.reference(input, plan)
	ctx = s.logg.WithProvider(ctx, provider.String())
	ctx = s.logg.WithReference(ctx, reference)

	existing, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if existing != nil {
		if result, done := s.replaySession(existing); done {
			s.metrics.IncSession(existing.Gateway.String(), "reused")
			return result, nil
		}
		if existing.Status == enums.TransactionStatusPending && time.Since(existing.CreatedAt) < s.graceWindow {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout already in progress")
		}
	} else {
		txn := &models.Transaction{
			Reference:     reference,
			UserID:        input.UserID,
			Email:         email,
			Amount:        amount,
			Currency:      currency,
			Status:        enums.TransactionStatusPending,
			Gateway:       provider,
			PaymentMethod: method,
			Plan:          plan,
			Interval:      interval,
		}
		if err := s.repo.Create(ctx, txn); err != nil {
			// concurrent identical call won the insert
			raced, findErr := s.repo.FindByReference(ctx, reference)
			if findErr != nil || raced == nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve transaction")
			}
			if result, done := s.replaySession(raced); done {
				s.metrics.IncSession(raced.Gateway.String(), "reused")
				return result, nil
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout already in progress")
		}
	}

	creds, err := s.creds.Credentials(ctx, provider)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.ForProvider(provider)
	if err != nil {
		return nil, err
	}

	params := providers.SessionParams{
		Reference:     reference,
		Plan:          plan,
		Interval:      interval,
		Amount:        amount,
		Currency:      currency,
		Country:       country,
		Email:         email,
		UserID:        input.UserID,
		PaymentMethod: method,
		SuccessURL:    firstNonEmpty(input.SuccessURL, s.successURL),
		CancelURL:     firstNonEmpty(input.CancelURL, s.cancelURL),
	}
	result, err := adapter.CreateSession(ctx, creds, params)
	if err != nil {
		if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
			// definitive gateway rejection; free the reference so an
			// immediate retry is not blocked by the grace window
			if ferr := s.repo.MarkFailed(ctx, reference); ferr != nil {
				s.logg.Error(ctx, "mark transaction failed", ferr)
			}
		}
		// on an ambiguous dependency failure the pending row stays and
		// ages out past the grace window
		s.logg.Error(ctx, "gateway session creation failed", err)
		s.metrics.IncSession(provider.String(), "gateway_error")
		return nil, err
	}

	meta, err := json.Marshal(sessionMeta{TestMode: result.TestMode, ProviderRef: result.ProviderRef})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session metadata")
	}
	if err := s.repo.SetSessionResult(ctx, reference, result.URL, result.ProviderRef, meta); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist session result")
	}

	s.logg.Info(ctx, "checkout session created")
	s.metrics.IncSession(provider.String(), "created")
	return result, nil
}

// selectProvider applies the broker's selection order: explicit caller
// choice, then the currency's preferred gateway, then the first eligible.
func (s *Service) selectProvider(ctx context.Context, explicit, country, currency string) (enums.Provider, error) {
	eligible := s.eligibility.Eligible(ctx, country, currency)

	if raw := strings.ToLower(strings.TrimSpace(explicit)); raw != "" {
		provider, err := enums.ParseProvider(raw)
		if err != nil {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown provider")
		}
		for _, candidate := range eligible {
			if candidate == provider {
				return provider, nil
			}
		}
		check := s.eligibility.Check(ctx, provider, country, currency)
		return "", pkgerrors.New(pkgerrors.CodeValidation, provider.String()+": "+check.Reason)
	}

	if len(eligible) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "no eligible payment provider for "+country+"/"+currency)
	}
	if preferred, ok := eligibility.PreferredFor(currency); ok {
		for _, candidate := range eligible {
			if candidate == preferred {
				return preferred, nil
			}
		}
	}
	return eligible[0], nil
}

// replaySession rebuilds the original session result from a transaction
// row that already carries a checkout URL.
func (s *Service) replaySession(txn *models.Transaction) (*providers.SessionResult, bool) {
	if txn.CheckoutURL == nil || *txn.CheckoutURL == "" {
		return nil, false
	}
	var meta sessionMeta
	if len(txn.Metadata) > 0 {
		_ = json.Unmarshal(txn.Metadata, &meta)
	}
	result := &providers.SessionResult{
		Provider:    txn.Gateway,
		Reference:   txn.Reference,
		URL:         *txn.CheckoutURL,
		TestMode:    meta.TestMode,
		ProviderRef: meta.ProviderRef,
	}
	if result.ProviderRef == "" && txn.GatewayRef != nil {
		result.ProviderRef = *txn.GatewayRef
	}
	return result, true
}

// reference derives the transaction reference. With an idempotency key the
// reference is a pure function of (key, plan, subject); without one each
// call stands alone.
func (s *Service) reference(input SessionInput, plan enums.PlanTier) string {
	subject := "guest:" + strings.ToLower(strings.TrimSpace(input.Email))
	if input.UserID != nil {
		subject = input.UserID.String()
	}
	var seed string
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		seed = key + "|" + plan.String() + "|" + subject
	} else {
		seed = plan.String() + "|" + subject + "|" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	sum := sha256.Sum256([]byte(seed))
	return "qr_" + hex.EncodeToString(sum[:])[:24]
}

func methodSupported(provider enums.Provider, method enums.PaymentMethod) bool {
	switch provider {
	case enums.ProviderStripe:
		return method == enums.PaymentMethodCard
	case enums.ProviderPaystack, enums.ProviderFlutterwave:
		return method.IsValid()
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
