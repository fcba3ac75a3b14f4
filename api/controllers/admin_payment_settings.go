package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/qrmint/qrmint-backend/api/responses"
	"github.com/qrmint/qrmint-backend/api/validators"
	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
)

type upsertPaymentSettingRequest struct {
	Active           bool              `json:"active"`
	Fields           map[string]string `json:"fields" validate:"required"`
	CountryAllowList *string           `json:"country_allow_list" validate:"omitempty,max=512"`
}

// UpsertPaymentSetting stores gateway credentials for a provider. Secret
// fields are encrypted at rest; submitting the mask token leaves the stored
// secret untouched.
func UpsertPaymentSetting(svc *settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		provider, err := enums.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider"))
			return
		}

		var req upsertPaymentSettingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Upsert(r.Context(), settings.UpsertInput{
			Provider:         provider,
			Active:           req.Active,
			Fields:           req.Fields,
			CountryAllowList: req.CountryAllowList,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		masked, err := svc.Masked(r.Context(), provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, masked)
	}
}

// GetPaymentSetting returns the masked read model for a provider. Stored
// secrets are never decrypted for reads.
func GetPaymentSetting(svc *settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		provider, err := enums.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider"))
			return
		}

		masked, err := svc.Masked(r.Context(), provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, masked)
	}
}

type upsertPriceOverrideRequest struct {
	ProPrice      *decimal.Decimal `json:"pro_price"`
	BusinessPrice *decimal.Decimal `json:"business_price"`
	FxRate        *decimal.Decimal `json:"fx_rate"`
}

// UpsertPriceOverride pins local-currency prices or an FX rate for one
// currency, overriding the built-in price table.
func UpsertPriceOverride(svc *settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		var req upsertPriceOverrideRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency := chi.URLParam(r, "currency")
		if err := svc.SetPriceOverride(r.Context(), settings.PriceOverrideInput{
			Currency:      currency,
			ProPrice:      req.ProPrice,
			BusinessPrice: req.BusinessPrice,
			FxRate:        req.FxRate,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		override, err := svc.PriceOverride(r.Context(), currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, override)
	}
}
