package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/api/middleware"
	"github.com/qrmint/qrmint-backend/internal/reconcile"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

type stubReconcileService struct {
	provider   enums.Provider
	gatewayRef string
	userID     *uuid.UUID
	outcome    *reconcile.Outcome
	err        error
}

func (s *stubReconcileService) Reconcile(ctx context.Context, provider enums.Provider, gatewayRef string, expectedUserID *uuid.UUID) (*reconcile.Outcome, error) {
	s.provider = provider
	s.gatewayRef = gatewayRef
	s.userID = expectedUserID
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

func TestConfirmPaymentRequiresAuthenticatedUser(t *testing.T) {
	handler := ConfirmPayment(&stubReconcileService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/confirm", strings.NewReader(`{"provider":"paystack","reference":"qr_abc"}`))
	resp := httptest.NewRecorder()
	handler(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user context, got %d", resp.Code)
	}
}

func TestConfirmPaymentPassesCallerIdentity(t *testing.T) {
	service := &stubReconcileService{outcome: &reconcile.Outcome{Reference: "qr_abc", Plan: enums.PlanTierPro, Applied: true}}
	handler := ConfirmPayment(service, nil)

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/confirm", strings.NewReader(`{"provider":"paystack","reference":"qr_abc"}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	resp := httptest.NewRecorder()
	handler(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.provider != enums.ProviderPaystack || service.gatewayRef != "qr_abc" {
		t.Fatalf("unexpected reconcile call: %s %s", service.provider, service.gatewayRef)
	}
	if service.userID == nil || *service.userID != userID {
		t.Fatalf("expected caller identity forwarded, got %v", service.userID)
	}
}

func TestConfirmPaymentRejectsUnknownProvider(t *testing.T) {
	handler := ConfirmPayment(&stubReconcileService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/confirm", strings.NewReader(`{"provider":"square","reference":"qr_abc"}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.New().String()))
	resp := httptest.NewRecorder()
	handler(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown provider, got %d", resp.Code)
	}
}

func TestConfirmPaymentOwnershipMismatchSurfaces(t *testing.T) {
	service := &stubReconcileService{err: pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to another account")}
	handler := ConfirmPayment(service, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/confirm", strings.NewReader(`{"provider":"stripe","reference":"cs_123"}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.New().String()))
	resp := httptest.NewRecorder()
	handler(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}
