package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

const flutterwaveBaseURL = "https://api.flutterwave.com/v3"

// FlutterwaveAdapter drives Flutterwave's v3 payments API. Amounts cross
// the wire in major units.
type FlutterwaveAdapter struct {
	client  *http.Client
	baseURL string
}

// NewFlutterwaveAdapter builds a Flutterwave adapter over the shared HTTP
// client.
func NewFlutterwaveAdapter(client *http.Client) *FlutterwaveAdapter {
	return &FlutterwaveAdapter{client: client, baseURL: flutterwaveBaseURL}
}

type flutterwaveCustomer struct {
	Email string `json:"email"`
}

type flutterwavePaymentRequest struct {
	TxRef          string              `json:"tx_ref"`
	Amount         string              `json:"amount"`
	Currency       string              `json:"currency"`
	RedirectURL    string              `json:"redirect_url"`
	PaymentOptions string              `json:"payment_options,omitempty"`
	Customer       flutterwaveCustomer `json:"customer"`
	Meta           Metadata            `json:"meta"`
}

type flutterwavePaymentResponse struct {
	Status string `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		Link string `json:"link"`
	} `json:"data"`
}

type flutterwaveVerifyResponse struct {
	Status string `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		ID       int64           `json:"id"`
		TxRef    string          `json:"tx_ref"`
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Meta     Metadata        `json:"meta"`
	} `json:"data"`
}

func (a *FlutterwaveAdapter) CreateSession(ctx context.Context, creds *settings.Credentials, params SessionParams) (*SessionResult, error) {
	secret := creds.Field("secret_key")
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "flutterwave secret key not configured")
	}

	payload := flutterwavePaymentRequest{
		TxRef:          params.Reference,
		Amount:         params.Amount.String(),
		Currency:       params.Currency,
		RedirectURL:    params.SuccessURL,
		PaymentOptions: flutterwaveOption(params.PaymentMethod),
		Customer:       flutterwaveCustomer{Email: params.Email},
		Meta:           sessionMetadata(enums.ProviderFlutterwave, params),
	}

	var resp flutterwavePaymentResponse
	if err := postJSON(ctx, a.client, a.baseURL+"/payments", secret, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" || resp.Data.Link == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "flutterwave payment rejected: "+resp.Msg)
	}

	return &SessionResult{
		Provider:  enums.ProviderFlutterwave,
		Reference: params.Reference,
		URL:       resp.Data.Link,
		TestMode:  strings.Contains(secret, "_TEST"),
	}, nil
}

// VerifyTransaction resolves a Flutterwave transaction id (numeric, from
// the redirect or webhook) into verified charge state.
func (a *FlutterwaveAdapter) VerifyTransaction(ctx context.Context, creds *settings.Credentials, gatewayRef string) (*VerifiedTransaction, error) {
	secret := creds.Field("secret_key")
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "flutterwave secret key not configured")
	}

	var resp flutterwaveVerifyResponse
	if err := getJSON(ctx, a.client, a.baseURL+"/transactions/"+gatewayRef+"/verify", secret, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "flutterwave verify rejected: "+resp.Msg)
	}

	return &VerifiedTransaction{
		Provider:   enums.ProviderFlutterwave,
		GatewayRef: gatewayRef,
		Succeeded:  resp.Data.Status == "successful",
		Amount:     resp.Data.Amount,
		Currency:   strings.ToUpper(resp.Data.Currency),
		Metadata:   resp.Data.Meta,
	}, nil
}

func flutterwaveOption(method enums.PaymentMethod) string {
	switch method {
	case enums.PaymentMethodCard:
		return "card"
	case enums.PaymentMethodBankTransfer:
		return "banktransfer"
	case enums.PaymentMethodMobileMoney:
		return "mobilemoney"
	case enums.PaymentMethodUSSD:
		return "ussd"
	default:
		return ""
	}
}
