package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qrmint/qrmint-backend/api/routes"
	"github.com/qrmint/qrmint-backend/internal/checkout"
	"github.com/qrmint/qrmint-backend/internal/eligibility"
	"github.com/qrmint/qrmint-backend/internal/pricing"
	"github.com/qrmint/qrmint-backend/internal/providers"
	"github.com/qrmint/qrmint-backend/internal/reconcile"
	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/internal/subscriptions"
	"github.com/qrmint/qrmint-backend/internal/users"
	"github.com/qrmint/qrmint-backend/internal/webhooks"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/crypto"
	"github.com/qrmint/qrmint-backend/pkg/db"
	"github.com/qrmint/qrmint-backend/pkg/logger"
	"github.com/qrmint/qrmint-backend/pkg/metrics"
	"github.com/qrmint/qrmint-backend/pkg/migrate"
	"github.com/qrmint/qrmint-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	billingMetrics := metrics.NewBillingMetrics(registry)

	keychain, err := crypto.NewKeychain(cfg.Crypto.KeyList())
	if err != nil {
		logg.Error(context.Background(), "failed to build credential keychain", err)
		os.Exit(1)
	}

	settingsRepo := settings.NewRepository(dbClient.DB())
	settingsService, err := settings.NewService(settings.ServiceParams{
		Repo:     settingsRepo,
		Keychain: keychain,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	pricingService, err := pricing.NewService(pricing.ServiceParams{
		Repo:    settingsRepo,
		Billing: cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}

	engine, err := eligibility.NewEngine(eligibility.EngineParams{Credentials: settingsService})
	if err != nil {
		logg.Error(context.Background(), "failed to create eligibility engine", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	adapterRegistry, err := providers.NewRegistry(providers.RegistryParams{
		Users:   usersRepo,
		Timeout: cfg.Billing.GatewayTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway adapters", err)
		os.Exit(1)
	}

	transactionsRepo := checkout.NewRepository(dbClient.DB())
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:        transactionsRepo,
		Pricing:     pricingService,
		Eligibility: engine,
		Adapters:    adapterRegistry,
		Credentials: settingsService,
		Logger:      logg,
		Metrics:     billingMetrics,
		Billing:     cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Transactions:  transactionsRepo,
		Subscriptions: subscriptions.NewRepository(dbClient.DB()),
		Users:         usersRepo,
		Pricing:       pricingService,
		Adapters:      adapterRegistry,
		Credentials:   settingsService,
		Tx:            dbClient,
		Logger:        logg,
		Metrics:       billingMetrics,
		Billing:       cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Metrics:        billingMetrics,
		Pricing:        pricingService,
		Eligibility:    engine,
		Checkout:       checkoutService,
		Reconcile:      reconcileService,
		Settings:       settingsService,
		Guard:          webhooks.NewEventGuard(redisClient),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stop:
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}
