package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/misterfood-backend/api/controllers"
	"github.com/angelmondragon/misterfood-backend/api/routes"
	checkoutsvc "github.com/angelmondragon/misterfood-backend/internal/checkout"
	"github.com/angelmondragon/misterfood-backend/internal/deliveries"
	"github.com/angelmondragon/misterfood-backend/internal/eligibility"
	"github.com/angelmondragon/misterfood-backend/internal/merchants"
	"github.com/angelmondragon/misterfood-backend/internal/notifications"
	"github.com/angelmondragon/misterfood-backend/internal/orders"
	"github.com/angelmondragon/misterfood-backend/internal/webhooks"
	stripewebhook "github.com/angelmondragon/misterfood-backend/internal/webhooks/stripe"
	uberwebhook "github.com/angelmondragon/misterfood-backend/internal/webhooks/uber"
	"github.com/angelmondragon/misterfood-backend/pkg/config"
	"github.com/angelmondragon/misterfood-backend/pkg/db"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/metrics"
	"github.com/angelmondragon/misterfood-backend/pkg/migrate"
	"github.com/angelmondragon/misterfood-backend/pkg/ratelimit"
	"github.com/angelmondragon/misterfood-backend/pkg/redis"
	stripeclient "github.com/angelmondragon/misterfood-backend/pkg/stripe"
	"github.com/angelmondragon/misterfood-backend/pkg/uber"
)

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisPinger controllers.Pinger
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		redisPinger = redisClient
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orderMetrics := metrics.NewOrderFlowMetrics(registry)

	limiter := newLimiter(cfg.RateLimit, redisClient)

	stripeClient, err := stripeclient.NewClient(ctx, cfg.Stripe, logg)
	requireResource(ctx, logg, "stripe client", err)

	gateway, err := uber.NewGateway(cfg.Uber, uber.WithMetrics(orderMetrics))
	requireResource(ctx, logg, "delivery gateway", err)
	if !cfg.Uber.HasCredentials() {
		logg.Warn(ctx, "uber credentials missing, delivery gateway running in mock mode")
	}

	evaluator, err := eligibility.NewEvaluator(cfg.Delivery)
	requireResource(ctx, logg, "delivery eligibility", err)

	location, err := time.LoadLocation(strings.TrimSpace(cfg.Delivery.Timezone))
	if err != nil {
		logg.Warn(logg.WithField(ctx, "timezone", cfg.Delivery.Timezone), "unknown business timezone, using UTC")
		location = time.UTC
	}

	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	merchantsRepo := merchants.NewRepository(conn)
	deliveriesRepo := deliveries.NewRepository(conn)
	ledger := webhooks.NewLedger(conn)

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Orders:             ordersRepo,
		Merchants:          merchantsRepo,
		Payments:           stripeClient,
		Metrics:            orderMetrics,
		Logger:             logg,
		ReplayWaitAttempts: cfg.Checkout.ReplayWaitAttempts,
		ReplayWaitInterval: cfg.Checkout.ReplayWaitInterval,
	})
	requireResource(ctx, logg, "checkout service", err)

	merchantService, err := merchants.NewService(merchants.ServiceParams{
		Repo:      merchantsRepo,
		Accounts:  stripeClient,
		PublicURL: cfg.App.BaseURL(),
		Path:      cfg.Stripe.OnboardingPath,
		Logger:    logg,
	})
	requireResource(ctx, logg, "merchant service", err)

	deliveryService, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:        deliveriesRepo,
		Orders:      ordersRepo,
		Gateway:     gateway,
		Eligibility: evaluator,
		Logger:      logg,
	})
	requireResource(ctx, logg, "delivery service", err)

	dispatcher, err := notifications.NewDispatcherFromConfig(cfg.Notify, notifications.NewRepository(conn), location, orderMetrics, logg)
	requireResource(ctx, logg, "notification dispatcher", err)

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:            ordersRepo,
		Ledger:            ledger,
		Verifier:          stripeClient,
		Notifier:          dispatcher,
		TransactionRunner: dbClient,
		Metrics:           orderMetrics,
		Logger:            logg,
		SlowLatency:       cfg.Webhooks.SlowLatency,
	})
	requireResource(ctx, logg, "stripe webhook service", err)

	uberWebhookService, err := uberwebhook.NewService(uberwebhook.ServiceParams{
		Deliveries:        deliveriesRepo,
		Orders:            ordersRepo,
		Ledger:            ledger,
		TransactionRunner: dbClient,
		Secret:            cfg.Uber.WebhookSecret,
		Metrics:           orderMetrics,
		Logger:            logg,
	})
	requireResource(ctx, logg, "uber webhook service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
		"rate_store": cfg.RateLimit.Store,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisPinger,
			registry,
			orderMetrics,
			limiter,
			checkoutService,
			merchantService,
			deliveryService,
			stripeWebhookService,
			uberWebhookService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}

func newLimiter(cfg config.RateLimitConfig, redisClient *redis.Client) ratelimit.Limiter {
	if strings.EqualFold(cfg.Store, config.RateLimitStoreRedis) && redisClient != nil {
		return ratelimit.NewShared(redisClient, cfg.Limit, cfg.Window)
	}
	return ratelimit.NewMemory(cfg.Limit, cfg.Window)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "resource", resource), "failed to bootstrap "+resource, err)
	os.Exit(1)
}
