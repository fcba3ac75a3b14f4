package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/internal/users"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

// SessionParams is the broker's generic hosted-checkout request.
type SessionParams struct {
	Reference     string
	Plan          enums.PlanTier
	Interval      enums.BillingInterval
	Amount        decimal.Decimal
	Currency      string
	Country       string
	Email         string
	UserID        *uuid.UUID
	PaymentMethod enums.PaymentMethod
	SuccessURL    string
	CancelURL     string
}

// SessionResult is the normalized answer from a gateway's initialize call.
type SessionResult struct {
	Provider    enums.Provider `json:"provider"`
	Reference   string         `json:"reference"`
	URL         string         `json:"url"`
	TestMode    bool           `json:"test_mode"`
	ProviderRef string         `json:"provider_ref,omitempty"`
}

// Metadata travels to the gateway on session creation and comes back on
// verification. Reconciliation trusts ONLY these verified fields, never
// anything from a redirect query string or webhook body.
type Metadata struct {
	UserID        string `json:"user_id,omitempty"`
	Plan          string `json:"plan"`
	Interval      string `json:"interval"`
	Email         string `json:"email"`
	Provider      string `json:"provider"`
	PaymentMethod string `json:"payment_method"`
	Currency      string `json:"currency"`
	Country       string `json:"country"`
	Reference     string `json:"reference"`
}

// VerifiedTransaction is a gateway's own account of a charge, fetched via
// its verification API.
type VerifiedTransaction struct {
	Provider   enums.Provider
	GatewayRef string
	Succeeded  bool
	Amount     decimal.Decimal
	Currency   string
	PaidAt     *time.Time
	Metadata   Metadata
}

// Adapter translates the broker's generic requests into one gateway's API.
// Credentials arrive per call so rotated secrets take effect without any
// client rebuild.
type Adapter interface {
	CreateSession(ctx context.Context, creds *settings.Credentials, params SessionParams) (*SessionResult, error)
	VerifyTransaction(ctx context.Context, creds *settings.Credentials, gatewayRef string) (*VerifiedTransaction, error)
}

// Registry owns one adapter per gateway and dispatches over the closed
// provider set.
type Registry struct {
	paystack    *PaystackAdapter
	flutterwave *FlutterwaveAdapter
	stripe      *StripeAdapter
}

// RegistryParams groups dependencies for the adapter registry.
type RegistryParams struct {
	Users   users.Repository
	Timeout time.Duration
}

// NewRegistry builds the adapter set with a shared outbound HTTP client.
func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return &Registry{
		paystack:    NewPaystackAdapter(client),
		flutterwave: NewFlutterwaveAdapter(client),
		stripe:      NewStripeAdapter(client, params.Users),
	}, nil
}

// sessionMetadata builds the reconciliation payload attached to every
// gateway session.
func sessionMetadata(provider enums.Provider, params SessionParams) Metadata {
	meta := Metadata{
		Plan:          params.Plan.String(),
		Interval:      params.Interval.String(),
		Email:         params.Email,
		Provider:      provider.String(),
		PaymentMethod: params.PaymentMethod.String(),
		Currency:      params.Currency,
		Country:       params.Country,
		Reference:     params.Reference,
	}
	if params.UserID != nil {
		meta.UserID = params.UserID.String()
	}
	return meta
}

// ForProvider returns the adapter for a gateway. The switch is exhaustive
// over the closed enum; anything else fails fast instead of no-opping.
func (r *Registry) ForProvider(provider enums.Provider) (Adapter, error) {
	switch provider {
	case enums.ProviderPaystack:
		return r.paystack, nil
	case enums.ProviderFlutterwave:
		return r.flutterwave, nil
	case enums.ProviderStripe:
		return r.stripe, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider "+provider.String()+" not integrated")
	}
}
