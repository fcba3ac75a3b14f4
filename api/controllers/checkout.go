package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/api/middleware"
	"github.com/qrmint/qrmint-backend/api/responses"
	"github.com/qrmint/qrmint-backend/api/validators"
	"github.com/qrmint/qrmint-backend/internal/checkout"
	"github.com/qrmint/qrmint-backend/internal/providers"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
)

// CheckoutService brokers hosted-checkout sessions. *checkout.Service
// satisfies it.
type CheckoutService interface {
	CreateSession(ctx context.Context, input checkout.SessionInput) (*providers.SessionResult, error)
}

type createCheckoutRequest struct {
	Plan           string `json:"plan" validate:"required,oneof=pro business"`
	Interval       string `json:"interval" validate:"omitempty,oneof=monthly yearly trial"`
	Email          string `json:"email" validate:"required,email"`
	Country        string `json:"country" validate:"required,len=2"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
	Provider       string `json:"provider" validate:"omitempty,oneof=paystack flutterwave stripe"`
	PaymentMethod  string `json:"payment_method" validate:"omitempty,oneof=card bank_transfer mobile_money ussd"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=128"`
	SuccessURL     string `json:"success_url" validate:"omitempty,url"`
	CancelURL      string `json:"cancel_url" validate:"omitempty,url"`
}

type checkoutSessionResponse struct {
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
	URL       string `json:"url"`
	TestMode  bool   `json:"test_mode"`
}

// CreateCheckoutSession brokers a hosted-checkout session. Authenticated
// callers are bound to their own subscription; guests check out by email.
func CreateCheckoutSession(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var req createCheckoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.SessionInput{
			Plan:           req.Plan,
			Interval:       req.Interval,
			Currency:       req.Currency,
			Country:        req.Country,
			Email:          req.Email,
			Provider:       req.Provider,
			PaymentMethod:  req.PaymentMethod,
			IdempotencyKey: firstNonEmpty(r.Header.Get("Idempotency-Key"), req.IdempotencyKey),
			SuccessURL:     req.SuccessURL,
			CancelURL:      req.CancelURL,
		}
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user identity"))
				return
			}
			input.UserID = &userID
		}

		result, err := svc.CreateSession(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, buildCheckoutSessionResponse(result))
	}
}

func buildCheckoutSessionResponse(result *providers.SessionResult) checkoutSessionResponse {
	return checkoutSessionResponse{
		Provider:  result.Provider.String(),
		Reference: result.Reference,
		URL:       result.URL,
		TestMode:  result.TestMode,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
