package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/api/middleware"
	"github.com/qrmint/qrmint-backend/api/responses"
	"github.com/qrmint/qrmint-backend/api/validators"
	"github.com/qrmint/qrmint-backend/internal/reconcile"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
)

// ReconcileService re-verifies payments with the gateway.
// *reconcile.Service satisfies it.
type ReconcileService interface {
	Reconcile(ctx context.Context, provider enums.Provider, gatewayRef string, expectedUserID *uuid.UUID) (*reconcile.Outcome, error)
}

type confirmPaymentRequest struct {
	Provider  string `json:"provider" validate:"required,oneof=paystack flutterwave stripe"`
	Reference string `json:"reference" validate:"required,max=256"`
}

// ConfirmPayment re-verifies a client-reported payment with the gateway and
// applies the entitlement when it checks out. The caller's identity must
// match the transaction's owner; the client payload is never trusted.
func ConfirmPayment(svc ReconcileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		var req confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := enums.ParseProvider(req.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user identity"))
			return
		}

		outcome, err := svc.Reconcile(r.Context(), provider, req.Reference, &userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, outcome)
	}
}
