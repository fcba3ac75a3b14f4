package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/internal/reconcile"
	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

type stubReconciler struct {
	calls      int
	gatewayRef string
	userID     *uuid.UUID
	err        error
}

func (s *stubReconciler) Reconcile(ctx context.Context, provider enums.Provider, gatewayRef string, expectedUserID *uuid.UUID) (*reconcile.Outcome, error) {
	s.calls++
	s.gatewayRef = gatewayRef
	s.userID = expectedUserID
	if s.err != nil {
		return nil, s.err
	}
	return &reconcile.Outcome{Reference: "qr_abc", Applied: true}, nil
}

type stubCredentials struct {
	fields map[string]string
	err    error
}

func (s *stubCredentials) Credentials(ctx context.Context, provider enums.Provider) (*settings.Credentials, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &settings.Credentials{Provider: provider, Active: true, Fields: s.fields}, nil
}

type stubGuard struct {
	seen     map[string]bool
	released []string
}

func newStubGuard() *stubGuard { return &stubGuard{seen: map[string]bool{}} }

func (s *stubGuard) FirstDelivery(ctx context.Context, provider enums.Provider, eventID string) bool {
	key := provider.String() + ":" + eventID
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	return true
}

func (s *stubGuard) Release(ctx context.Context, provider enums.Provider, eventID string) {
	delete(s.seen, provider.String()+":"+eventID)
	s.released = append(s.released, eventID)
}

func paystackSignature(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

const paystackSecret = "sk_test_whsec"

func paystackFixture() (Params, *stubReconciler, *stubGuard) {
	reconciler := &stubReconciler{}
	guard := newStubGuard()
	params := Params{
		Reconciler:  reconciler,
		Credentials: &stubCredentials{fields: map[string]string{"secret_key": paystackSecret}},
		Guard:       guard,
	}
	return params, reconciler, guard
}

func postPaystack(handler http.HandlerFunc, body string, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", strings.NewReader(body))
	if sign {
		req.Header.Set("x-paystack-signature", paystackSignature(paystackSecret, []byte(body)))
	}
	resp := httptest.NewRecorder()
	handler(resp, req)
	return resp
}

func TestPaystackWebhookRejectsMissingSignature(t *testing.T) {
	params, reconciler, _ := paystackFixture()
	resp := postPaystack(PaystackWebhook(params), `{"event":"charge.success"}`, false)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", resp.Code)
	}
	if reconciler.calls != 0 {
		t.Fatalf("reconciler must not run on rejected delivery")
	}
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	params, reconciler, _ := paystackFixture()
	handler := PaystackWebhook(params)

	body := `{"event":"charge.success","data":{"id":42,"reference":"qr_abc"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", paystackSignature("wrong-secret", []byte(body)))
	resp := httptest.NewRecorder()
	handler(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", resp.Code)
	}
	if reconciler.calls != 0 {
		t.Fatalf("reconciler must not run on forged delivery")
	}
}

func TestPaystackWebhookRejectsWhenSecretUnconfigured(t *testing.T) {
	params, reconciler, _ := paystackFixture()
	params.Credentials = &stubCredentials{err: pkgerrors.New(pkgerrors.CodeNotFound, "payment setting not found")}
	resp := postPaystack(PaystackWebhook(params), `{"event":"charge.success"}`, true)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected hard rejection without signing secret, got %d", resp.Code)
	}
	if reconciler.calls != 0 {
		t.Fatalf("reconciler must not run without a verifiable signature")
	}
}

func TestPaystackWebhookReconcilesVerifiedCharge(t *testing.T) {
	params, reconciler, _ := paystackFixture()
	body := `{"event":"charge.success","data":{"id":42,"reference":"qr_abc"}}`
	resp := postPaystack(PaystackWebhook(params), body, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if reconciler.calls != 1 || reconciler.gatewayRef != "qr_abc" {
		t.Fatalf("expected one reconcile for qr_abc, got %d calls for %q", reconciler.calls, reconciler.gatewayRef)
	}
	if reconciler.userID != nil {
		t.Fatalf("webhook path must not assert a caller identity")
	}
}

func TestPaystackWebhookDeduplicatesDeliveries(t *testing.T) {
	params, reconciler, _ := paystackFixture()
	handler := PaystackWebhook(params)
	body := `{"event":"charge.success","data":{"id":42,"reference":"qr_abc"}}`

	first := postPaystack(handler, body, true)
	second := postPaystack(handler, body, true)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected both deliveries acknowledged, got %d and %d", first.Code, second.Code)
	}
	if reconciler.calls != 1 {
		t.Fatalf("expected a single reconcile across redeliveries, got %d", reconciler.calls)
	}
}

func TestPaystackWebhookIgnoresOtherEvents(t *testing.T) {
	params, reconciler, _ := paystackFixture()
	resp := postPaystack(PaystackWebhook(params), `{"event":"subscription.disable","data":{"id":7}}`, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored event, got %d", resp.Code)
	}
	if reconciler.calls != 0 {
		t.Fatalf("ignored events must not reconcile")
	}
}

func TestPaystackWebhookAcknowledgesBusinessRejection(t *testing.T) {
	params, reconciler, guard := paystackFixture()
	reconciler.err = pkgerrors.New(pkgerrors.CodeValidation, "amount mismatch")
	body := `{"event":"charge.success","data":{"id":42,"reference":"qr_abc"}}`
	resp := postPaystack(PaystackWebhook(params), body, true)

	// Acknowledged so the gateway stops retrying, but nothing was granted.
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 acknowledgement, got %d", resp.Code)
	}
	if len(guard.released) != 0 {
		t.Fatalf("business rejections keep the delivery marked")
	}
}

func TestPaystackWebhookAcknowledgesDependencyFailures(t *testing.T) {
	params, reconciler, guard := paystackFixture()
	reconciler.err = pkgerrors.New(pkgerrors.CodeDependency, "gateway timeout")
	body := `{"event":"charge.success","data":{"id":42,"reference":"qr_abc"}}`
	resp := postPaystack(PaystackWebhook(params), body, true)

	// Still a 200: a verify timeout means "no value granted", never a
	// hard failure back to the gateway.
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 acknowledgement, got %d", resp.Code)
	}
	if len(guard.released) != 1 {
		t.Fatalf("expected guard release so a redelivery can run, got %v", guard.released)
	}
}

func TestStripeEventParsing(t *testing.T) {
	event, err := parseStripeEvent([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !event.Relevant || event.GatewayRef != "cs_123" || event.EventID != "evt_1" {
		t.Fatalf("unexpected parse result: %+v", event)
	}

	ignored, err := parseStripeEvent([]byte(`{"id":"evt_2","type":"invoice.paid"}`))
	if err != nil || ignored.Relevant {
		t.Fatalf("expected invoice.paid ignored, got %+v err %v", ignored, err)
	}
}

func TestFlutterwaveEventParsing(t *testing.T) {
	event, err := parseFlutterwaveEvent([]byte(`{"event":"charge.completed","data":{"id":4094,"tx_ref":"qr_abc","status":"successful"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !event.Relevant || event.GatewayRef != "4094" {
		t.Fatalf("unexpected parse result: %+v", event)
	}

	if _, err := parseFlutterwaveEvent([]byte(`{"event":"charge.completed","data":{}}`)); err == nil {
		t.Fatalf("expected error for missing transaction id")
	}
}
