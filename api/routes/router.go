package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/misterfood-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/misterfood-backend/api/controllers/webhooks"
	"github.com/angelmondragon/misterfood-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/misterfood-backend/internal/checkout"
	"github.com/angelmondragon/misterfood-backend/internal/deliveries"
	"github.com/angelmondragon/misterfood-backend/internal/merchants"
	"github.com/angelmondragon/misterfood-backend/pkg/config"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/metrics"
	"github.com/angelmondragon/misterfood-backend/pkg/ratelimit"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	redisPinger controllers.Pinger,
	gatherer prometheus.Gatherer,
	orderMetrics *metrics.OrderFlowMetrics,
	limiter ratelimit.Limiter,
	checkoutService checkoutsvc.Service,
	merchantService merchants.Service,
	deliveryService deliveries.Service,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	uberWebhookService webhookcontrollers.UberWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg, orderMetrics),
		middleware.RequestID(logg),
		middleware.Logging(logg, orderMetrics),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbPinger, redisPinger))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// provider callbacks read the raw body and are not rate limited
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, logg))
		r.Post("/uber", webhookcontrollers.UberWebhook(uberWebhookService, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit("public", limiter, logg))

		r.Post("/api/v1/checkout", controllers.Checkout(checkoutService, logg))
		r.Post("/api/v1/merchants/{merchantId}/onboarding", controllers.MerchantOnboarding(merchantService, logg))

		r.Route("/api/v1/deliveries", func(r chi.Router) {
			r.Post("/quote", controllers.DeliveryQuote(deliveryService, logg))
			r.Post("/", controllers.DeliveryCreate(deliveryService, logg))
			r.Get("/{deliveryId}", controllers.DeliveryStatus(deliveryService, logg))
			r.Post("/{deliveryId}/cancel", controllers.DeliveryCancel(deliveryService, logg))
		})
	})

	return r
}
