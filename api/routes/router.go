package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qrmint/qrmint-backend/api/controllers"
	webhookcontrollers "github.com/qrmint/qrmint-backend/api/controllers/webhooks"
	"github.com/qrmint/qrmint-backend/api/middleware"
	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/db"
	"github.com/qrmint/qrmint-backend/pkg/logger"
	"github.com/qrmint/qrmint-backend/pkg/metrics"
	"github.com/qrmint/qrmint-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      db.Pinger
	Redis   *redis.Client
	Metrics *metrics.BillingMetrics

	Pricing     controllers.PricingResolver
	Eligibility controllers.ProviderEvaluator
	Checkout    controllers.CheckoutService
	Reconcile   controllers.ReconcileService
	Settings    *settings.Service
	Guard       webhookcontrollers.DeliveryGuard

	MetricsHandler http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	webhookParams := webhookcontrollers.Params{
		Reconciler:  deps.Reconcile,
		Credentials: deps.Settings,
		Guard:       deps.Guard,
		Metrics:     deps.Metrics,
		Logger:      logg,
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(cfg.WebhookRateLimit, deps.Redis, logg))
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(webhookParams))
		r.Post("/flutterwave", webhookcontrollers.FlutterwaveWebhook(webhookParams))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookParams))
	})

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Get("/pricing", controllers.PricingQuote(deps.Pricing, deps.Eligibility, logg))
		r.With(middleware.OptionalAuth(cfg.JWT, logg)).Post("/checkout", controllers.CreateCheckoutSession(deps.Checkout, logg))
		r.With(middleware.Auth(cfg.JWT, logg)).Post("/confirm", controllers.ConfirmPayment(deps.Reconcile, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Route("/payment-settings", func(r chi.Router) {
			r.Get("/{provider}", controllers.GetPaymentSetting(deps.Settings, logg))
			r.Put("/{provider}", controllers.UpsertPaymentSetting(deps.Settings, logg))
		})
		r.Put("/price-overrides/{currency}", controllers.UpsertPriceOverride(deps.Settings, logg))
	})

	return r
}
