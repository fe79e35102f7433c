package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagestack/bookstore-backend/api/controllers"
	webhookcontrollers "github.com/pagestack/bookstore-backend/api/controllers/webhooks"
	"github.com/pagestack/bookstore-backend/api/middleware"
	"github.com/pagestack/bookstore-backend/internal/inventory"
	"github.com/pagestack/bookstore-backend/internal/orders"
	"github.com/pagestack/bookstore-backend/internal/payments"
	stripewebhook "github.com/pagestack/bookstore-backend/internal/webhooks/stripe"
	"github.com/pagestack/bookstore-backend/pkg/config"
	"github.com/pagestack/bookstore-backend/pkg/db"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	"github.com/pagestack/bookstore-backend/pkg/logger"
	"github.com/pagestack/bookstore-backend/pkg/metrics"
	"github.com/pagestack/bookstore-backend/pkg/redis"
	"github.com/pagestack/bookstore-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	inventorySvc inventory.Service,
	ordersSvc orders.Service,
	paymentsSvc payments.Service,
	paymentMetrics *metrics.PaymentMetrics,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Get("/api/v1/products/{productId}", controllers.ProductDetail(inventorySvc, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersSvc, logg))
			r.Get("/", controllers.ListOrders(ordersSvc, logg))
			r.With(middleware.RequireRole(string(enums.UserRoleAdmin), logg)).
				Get("/revenue", controllers.OrderRevenue(ordersSvc, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersSvc, logg))
			r.Patch("/{orderId}", controllers.UpdateOrderQuantity(ordersSvc, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersSvc, logg))
		})

		r.Post("/payments/checkout-session", controllers.CreateCheckoutSession(paymentsSvc, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
			r.Post("/payments/{paymentId}/refund", controllers.IssueRefund(paymentsSvc, paymentMetrics, logg))
			r.Post("/products", controllers.CreateProduct(inventorySvc, logg))
		})
	})

	return r
}
