package routes

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrmint/qrmint-backend/internal/checkout"
	"github.com/qrmint/qrmint-backend/internal/eligibility"
	"github.com/qrmint/qrmint-backend/internal/pricing"
	"github.com/qrmint/qrmint-backend/internal/providers"
	"github.com/qrmint/qrmint-backend/internal/reconcile"
	"github.com/qrmint/qrmint-backend/internal/settings"
	pkgAuth "github.com/qrmint/qrmint-backend/pkg/auth"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/crypto"
	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	"github.com/qrmint/qrmint-backend/pkg/logger"
	"github.com/qrmint/qrmint-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubPricing struct{}

func (stubPricing) Resolve(ctx context.Context, country, currencyOverride string) (*pricing.Quote, error) {
	return &pricing.Quote{Country: country, Currency: "NGN"}, nil
}

type stubEligibility struct{}

func (stubEligibility) Evaluate(ctx context.Context, country, currency string) []eligibility.Result {
	return []eligibility.Result{{Provider: enums.ProviderPaystack, Enabled: true, SupportsCountry: true, SupportsCurrency: true, Allowed: true}}
}

type stubCheckout struct{}

func (stubCheckout) CreateSession(ctx context.Context, input checkout.SessionInput) (*providers.SessionResult, error) {
	return &providers.SessionResult{Provider: enums.ProviderPaystack, Reference: "qr_route", URL: "https://pay"}, nil
}

type stubReconcile struct {
	gatewayRef string
}

func (s *stubReconcile) Reconcile(ctx context.Context, provider enums.Provider, gatewayRef string, expectedUserID *uuid.UUID) (*reconcile.Outcome, error) {
	s.gatewayRef = gatewayRef
	return &reconcile.Outcome{Reference: gatewayRef, Applied: true}, nil
}

type memSettingsRepo struct {
	rows map[enums.Provider]*models.PaymentSetting
}

func (r *memSettingsRepo) WithTx(tx *gorm.DB) settings.Repository { return r }

func (r *memSettingsRepo) FindByProvider(ctx context.Context, provider enums.Provider) (*models.PaymentSetting, error) {
	return r.rows[provider], nil
}

func (r *memSettingsRepo) Upsert(ctx context.Context, setting *models.PaymentSetting) error {
	r.rows[setting.Provider] = setting
	return nil
}

func (r *memSettingsRepo) FindPriceOverride(ctx context.Context, currency string) (*models.PriceOverride, error) {
	return nil, nil
}

func (r *memSettingsRepo) UpsertPriceOverride(ctx context.Context, override *models.PriceOverride) error {
	return nil
}

type memGuard struct{ seen map[string]bool }

func (g *memGuard) FirstDelivery(ctx context.Context, provider enums.Provider, eventID string) bool {
	key := provider.String() + ":" + eventID
	if g.seen[key] {
		return false
	}
	g.seen[key] = true
	return true
}

func (g *memGuard) Release(ctx context.Context, provider enums.Provider, eventID string) {
	delete(g.seen, provider.String()+":"+eventID)
}

const testPaystackSecret = "sk_test_router"

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "qrmint-test"},
		WebhookRateLimit: config.WebhookRateLimitConfig{
			Window:  time.Minute,
			IPLimit: 1000,
		},
	}
}

func testRouter(t *testing.T) (http.Handler, *stubReconcile) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	chain, err := crypto.NewKeychain([]string{"router-test-key"})
	if err != nil {
		t.Fatalf("keychain: %v", err)
	}
	settingsService, err := settings.NewService(settings.ServiceParams{
		Repo:     &memSettingsRepo{rows: map[enums.Provider]*models.PaymentSetting{}},
		Keychain: chain,
	})
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}
	if err := settingsService.Upsert(context.Background(), settings.UpsertInput{
		Provider: enums.ProviderPaystack,
		Active:   true,
		Fields: map[string]string{
			"secret_key": testPaystackSecret,
			"public_key": "pk_test_router",
		},
	}); err != nil {
		t.Fatalf("seed paystack setting: %v", err)
	}

	reconciler := &stubReconcile{}
	router := NewRouter(Deps{
		Config:      testConfig(),
		Logger:      logg,
		DB:          stubPinger{},
		Redis:       &redis.Client{},
		Pricing:     stubPricing{},
		Eligibility: stubEligibility{},
		Checkout:    stubCheckout{},
		Reconcile:   reconciler,
		Settings:    settingsService,
		Guard:       &memGuard{seen: map[string]bool{}},
	})
	return router, reconciler
}

func mintToken(t *testing.T, cfg config.JWTConfig, role pkgAuth.Role) string {
	t.Helper()
	claims := pkgAuth.AccessTokenClaims{
		UserID: uuid.New(),
		Email:  "ada@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestRouterHealthLive(t *testing.T) {
	router, _ := testRouter(t)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRouterPricingIsPublic(t *testing.T) {
	router, _ := testRouter(t)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/billing/pricing?country=NG", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRouterCheckoutAllowsGuests(t *testing.T) {
	router, _ := testRouter(t)
	body := `{"plan":"pro","email":"ada@example.com","country":"NG"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRouterCheckoutRejectsInvalidToken(t *testing.T) {
	router, _ := testRouter(t)
	body := `{"plan":"pro","email":"ada@example.com","country":"NG"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected presented-but-invalid token rejected, got %d", resp.Code)
	}
}

func TestRouterConfirmRequiresAuth(t *testing.T) {
	router, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/confirm", strings.NewReader(`{"provider":"paystack","reference":"qr_abc"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRouterConfirmWithUserToken(t *testing.T) {
	router, reconciler := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/confirm", strings.NewReader(`{"provider":"paystack","reference":"qr_abc"}`))
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testConfig().JWT, pkgAuth.RoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if reconciler.gatewayRef != "qr_abc" {
		t.Fatalf("expected reconcile for qr_abc, got %q", reconciler.gatewayRef)
	}
}

func TestRouterAdminSettingsRequireAdminRole(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payment-settings/paystack", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testConfig().JWT, pkgAuth.RoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.Code)
	}
}

func TestRouterAdminSettingsMaskSecrets(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payment-settings/paystack", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testConfig().JWT, pkgAuth.RoleAdmin))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data settings.MaskedSetting `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Fields["secret_key"] != settings.MaskToken {
		t.Fatalf("expected masked secret, got %q", envelope.Data.Fields["secret_key"])
	}
	if body := resp.Body.String(); strings.Contains(body, testPaystackSecret) {
		t.Fatalf("secret leaked in admin read")
	}
}

func TestRouterPaystackWebhookVerifiesAgainstStoredSecret(t *testing.T) {
	router, reconciler := testRouter(t)

	body := `{"event":"charge.success","data":{"id":9,"reference":"qr_hook"}}`
	mac := hmac.New(sha512.New, []byte(testPaystackSecret))
	mac.Write([]byte(body))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", hex.EncodeToString(mac.Sum(nil)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if reconciler.gatewayRef != "qr_hook" {
		t.Fatalf("expected reconcile for qr_hook, got %q", reconciler.gatewayRef)
	}
}

func TestRouterWebhookRejectsMissingSignature(t *testing.T) {
	router, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
