// Package webhooks exposes the gateway callback endpoints. Every handler
// verifies the delivery signature against the raw body before any parsing,
// deduplicates deliveries, and re-verifies the charge with the gateway
// before granting entitlements. The payload itself is never trusted.
package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/api/responses"
	"github.com/qrmint/qrmint-backend/internal/reconcile"
	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/internal/webhooks"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
	"github.com/qrmint/qrmint-backend/pkg/metrics"
)

// Reconciler re-verifies a gateway charge and applies entitlement state.
// *reconcile.Service satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context, provider enums.Provider, gatewayRef string, expectedUserID *uuid.UUID) (*reconcile.Outcome, error)
}

// CredentialSource yields the decrypted runtime configuration used to check
// delivery signatures.
type CredentialSource interface {
	Credentials(ctx context.Context, provider enums.Provider) (*settings.Credentials, error)
}

// DeliveryGuard deduplicates webhook deliveries. *webhooks.EventGuard
// satisfies it.
type DeliveryGuard interface {
	FirstDelivery(ctx context.Context, provider enums.Provider, eventID string) bool
	Release(ctx context.Context, provider enums.Provider, eventID string)
}

// Params groups the collaborators shared by every webhook handler.
type Params struct {
	Reconciler  Reconciler
	Credentials CredentialSource
	Guard       DeliveryGuard
	Metrics     *metrics.BillingMetrics
	Logger      *logger.Logger
}

// parsedEvent is the provider-agnostic view of one delivery.
type parsedEvent struct {
	EventID    string
	GatewayRef string
	Relevant   bool
}

// handle runs the shared webhook flow: signature check on the raw body,
// event parsing, delivery dedupe, then reconciliation. Once a delivery is
// structurally accepted it is always acknowledged with 200, whatever
// reconciliation did; a transient dependency failure releases the dedupe
// guard so a gateway redelivery gets another attempt.
func handle(params Params, provider enums.Provider, headerName, secretField string, parse func([]byte) (parsedEvent, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logg := params.Logger
		if logg != nil {
			ctx = logg.WithProvider(ctx, provider.String())
		}

		if params.Reconciler == nil || params.Credentials == nil || params.Guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(headerName)
		if strings.TrimSpace(signature) == "" {
			params.Metrics.IncWebhook(provider.String(), "missing_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, headerName+" header missing"))
			return
		}

		creds, err := params.Credentials.Credentials(ctx, provider)
		if err != nil || creds.Field(secretField) == "" {
			params.Metrics.IncWebhook(provider.String(), "not_configured")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signing not configured"))
			return
		}

		if !webhooks.Verify(provider, signature, payload, creds.Field(secretField)) {
			params.Metrics.IncWebhook(provider.String(), "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		event, err := parse(payload)
		if err != nil {
			params.Metrics.IncWebhook(provider.String(), "malformed")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		if !event.Relevant {
			params.Metrics.IncWebhook(provider.String(), "ignored")
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		if !params.Guard.FirstDelivery(ctx, provider, event.EventID) {
			params.Metrics.IncWebhook(provider.String(), "duplicate")
			responses.WriteSuccess(w, map[string]string{"status": "received"})
			return
		}

		if _, err := params.Reconciler.Reconcile(ctx, provider, event.GatewayRef, nil); err != nil {
			// Acknowledge so the gateway stops retrying, but grant nothing.
			if logg != nil {
				logg.Warn(ctx, "webhook event rejected: "+err.Error())
			}
			if pkgerrors.As(err).Code() == pkgerrors.CodeDependency {
				// could not verify; let a redelivery try again
				params.Guard.Release(ctx, provider, event.EventID)
				params.Metrics.IncWebhook(provider.String(), "dependency_error")
			} else {
				params.Metrics.IncWebhook(provider.String(), "rejected")
			}
			responses.WriteSuccess(w, map[string]string{"status": "received"})
			return
		}

		params.Metrics.IncWebhook(provider.String(), "processed")
		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}
