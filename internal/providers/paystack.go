package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/money"
)

const paystackBaseURL = "https://api.paystack.co"

// PaystackAdapter drives Paystack's transaction API. Amounts cross the wire
// in the currency's minor units.
type PaystackAdapter struct {
	client  *http.Client
	baseURL string
}

// NewPaystackAdapter builds a Paystack adapter over the shared HTTP client.
func NewPaystackAdapter(client *http.Client) *PaystackAdapter {
	return &PaystackAdapter{client: client, baseURL: paystackBaseURL}
}

type paystackInitRequest struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Reference   string   `json:"reference"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

type paystackInitResponse struct {
	Status bool   `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type paystackVerifyResponse struct {
	Status bool   `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		ID       int64    `json:"id"`
		Status   string   `json:"status"`
		Amount   int64    `json:"amount"`
		Currency string   `json:"currency"`
		PaidAt   string   `json:"paid_at"`
		Metadata Metadata `json:"metadata"`
	} `json:"data"`
}

func (a *PaystackAdapter) CreateSession(ctx context.Context, creds *settings.Credentials, params SessionParams) (*SessionResult, error) {
	secret := creds.Field("secret_key")
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paystack secret key not configured")
	}

	payload := paystackInitRequest{
		Email:       params.Email,
		Amount:      money.ToMinorUnits(params.Amount, params.Currency),
		Currency:    params.Currency,
		Reference:   params.Reference,
		CallbackURL: params.SuccessURL,
		Metadata:    sessionMetadata(enums.ProviderPaystack, params),
	}
	if channel := paystackChannel(params.PaymentMethod); channel != "" {
		payload.Channels = []string{channel}
	}

	var resp paystackInitResponse
	if err := postJSON(ctx, a.client, a.baseURL+"/transaction/initialize", secret, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack initialize rejected: "+resp.Msg)
	}

	return &SessionResult{
		Provider:    enums.ProviderPaystack,
		Reference:   params.Reference,
		URL:         resp.Data.AuthorizationURL,
		TestMode:    strings.HasPrefix(secret, "sk_test_"),
		ProviderRef: resp.Data.Reference,
	}, nil
}

func (a *PaystackAdapter) VerifyTransaction(ctx context.Context, creds *settings.Credentials, gatewayRef string) (*VerifiedTransaction, error) {
	secret := creds.Field("secret_key")
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paystack secret key not configured")
	}

	var resp paystackVerifyResponse
	if err := getJSON(ctx, a.client, a.baseURL+"/transaction/verify/"+gatewayRef, secret, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack verify rejected: "+resp.Msg)
	}

	currency := strings.ToUpper(resp.Data.Currency)
	verified := &VerifiedTransaction{
		Provider:   enums.ProviderPaystack,
		GatewayRef: gatewayRef,
		Succeeded:  resp.Data.Status == "success",
		Amount:     money.FromMinorUnits(resp.Data.Amount, currency),
		Currency:   currency,
		Metadata:   resp.Data.Metadata,
	}
	if resp.Data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, resp.Data.PaidAt); err == nil {
			verified.PaidAt = &paidAt
		}
	}
	return verified, nil
}

func paystackChannel(method enums.PaymentMethod) string {
	switch method {
	case enums.PaymentMethodCard:
		return "card"
	case enums.PaymentMethodBankTransfer:
		return "bank_transfer"
	case enums.PaymentMethodMobileMoney:
		return "mobile_money"
	case enums.PaymentMethodUSSD:
		return "ussd"
	default:
		return ""
	}
}
