package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/internal/users"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/money"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeAdapter drives Stripe Checkout through the form-encoded REST API.
// Stripe models a persistent customer, so the adapter reuses the customer
// id stored on the user record before creating a new one.
type StripeAdapter struct {
	client  *http.Client
	users   users.Repository
	baseURL string
}

// NewStripeAdapter builds a Stripe adapter over the shared HTTP client.
func NewStripeAdapter(client *http.Client, usersRepo users.Repository) *StripeAdapter {
	return &StripeAdapter{client: client, users: usersRepo, baseURL: stripeBaseURL}
}

type stripeCustomer struct {
	ID string `json:"id"`
}

type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Livemode      bool              `json:"livemode"`
	Created       int64             `json:"created"`
	Metadata      map[string]string `json:"metadata"`
}

func (a *StripeAdapter) CreateSession(ctx context.Context, creds *settings.Credentials, params SessionParams) (*SessionResult, error) {
	secret := creds.Field("secret_key")
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe secret key not configured")
	}

	customerID, err := a.findOrCreateCustomer(ctx, secret, params)
	if err != nil {
		return nil, err
	}

	meta := sessionMetadata(enums.ProviderStripe, params)
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", params.Reference)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(money.ToMinorUnits(params.Amount, params.Currency), 10))
	form.Set("line_items[0][price_data][product_data][name]", planLabel(params.Plan, params.Interval))
	if customerID != "" {
		form.Set("customer", customerID)
	} else {
		form.Set("customer_email", params.Email)
	}
	for key, value := range map[string]string{
		"user_id":        meta.UserID,
		"plan":           meta.Plan,
		"interval":       meta.Interval,
		"email":          meta.Email,
		"provider":       meta.Provider,
		"payment_method": meta.PaymentMethod,
		"currency":       meta.Currency,
		"country":        meta.Country,
		"reference":      meta.Reference,
	} {
		if value != "" {
			form.Set("metadata["+key+"]", value)
		}
	}

	var session stripeCheckoutSession
	if err := postForm(ctx, a.client, a.baseURL+"/checkout/sessions", secret, form, &session); err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no checkout url")
	}

	return &SessionResult{
		Provider:    enums.ProviderStripe,
		Reference:   params.Reference,
		URL:         session.URL,
		TestMode:    !session.Livemode,
		ProviderRef: session.ID,
	}, nil
}

// VerifyTransaction resolves a checkout session id into verified charge
// state. Stripe reports paid sessions via payment_status.
func (a *StripeAdapter) VerifyTransaction(ctx context.Context, creds *settings.Credentials, gatewayRef string) (*VerifiedTransaction, error) {
	secret := creds.Field("secret_key")
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe secret key not configured")
	}

	var session stripeCheckoutSession
	if err := getJSON(ctx, a.client, a.baseURL+"/checkout/sessions/"+gatewayRef, secret, &session); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(session.Currency)
	verified := &VerifiedTransaction{
		Provider:   enums.ProviderStripe,
		GatewayRef: session.ID,
		Succeeded:  session.PaymentStatus == "paid",
		Amount:     money.FromMinorUnits(session.AmountTotal, currency),
		Currency:   currency,
		Metadata: Metadata{
			UserID:        session.Metadata["user_id"],
			Plan:          session.Metadata["plan"],
			Interval:      session.Metadata["interval"],
			Email:         session.Metadata["email"],
			Provider:      session.Metadata["provider"],
			PaymentMethod: session.Metadata["payment_method"],
			Currency:      session.Metadata["currency"],
			Country:       session.Metadata["country"],
			Reference:     session.Metadata["reference"],
		},
	}
	if session.Created > 0 {
		paidAt := time.Unix(session.Created, 0).UTC()
		verified.PaidAt = &paidAt
	}
	return verified, nil
}

func (a *StripeAdapter) findOrCreateCustomer(ctx context.Context, secret string, params SessionParams) (string, error) {
	if params.UserID == nil {
		return "", nil
	}

	existing, err := a.users.GatewayCustomerID(ctx, *params.UserID, enums.ProviderStripe)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stripe customer mapping")
	}
	if existing != "" {
		return existing, nil
	}

	form := url.Values{}
	form.Set("email", params.Email)
	form.Set("metadata[user_id]", params.UserID.String())

	var customer stripeCustomer
	if err := postForm(ctx, a.client, a.baseURL+"/customers", secret, form, &customer); err != nil {
		return "", err
	}
	if customer.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no customer id")
	}
	if err := a.users.SetGatewayCustomerID(ctx, *params.UserID, enums.ProviderStripe, customer.ID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store stripe customer mapping")
	}
	return customer.ID, nil
}

func planLabel(plan enums.PlanTier, interval enums.BillingInterval) string {
	label := strings.ToUpper(plan.String()[:1]) + plan.String()[1:] + " plan"
	switch interval {
	case enums.BillingIntervalYearly:
		return label + " (yearly)"
	case enums.BillingIntervalTrial:
		return label + " (trial)"
	default:
		return label + " (monthly)"
	}
}
