package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/whatsapp-commerce/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-commerce/internal/http/middleware"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// PaymentWebhook is the Paystack notification endpoint.
type PaymentWebhook interface {
	Handle(w http.ResponseWriter, r *http.Request)
}

// OperatorStream upgrades operator dashboards to a live event feed.
type OperatorStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WhatsAppWebhook    *handlers.WhatsAppWebhookHandler
	PaystackWebhook    PaymentWebhook
	AdminTenants       *handlers.AdminTenantHandler
	AdminOrders        *handlers.AdminOrdersHandler
	Operator           OperatorStream
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP limit on webhook routes; zero disables it.
	WebhookRateLimit  int
	WebhookRateWindow time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks", func(webhooks chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateWindow))
		}
		if cfg.WhatsAppWebhook != nil {
			webhooks.Get("/whatsapp", cfg.WhatsAppWebhook.Verify)
			webhooks.Post("/whatsapp", cfg.WhatsAppWebhook.Receive)
		}
		if cfg.PaystackWebhook != nil {
			webhooks.Post("/paystack", cfg.PaystackWebhook.Handle)
		}
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.Operator != nil {
			admin.Get("/operator/ws", cfg.Operator.ServeWS)
		}
		if cfg.AdminTenants != nil {
			admin.Get("/config/schema", cfg.AdminTenants.ConfigSchema)
		}
		admin.Route("/tenants/{tenantID}", func(t chi.Router) {
			if cfg.AdminTenants != nil {
				t.Get("/config", cfg.AdminTenants.GetConfig)
				t.Put("/config", cfg.AdminTenants.PutConfig)
				t.Post("/catalog/refresh", cfg.AdminTenants.RefreshCatalog)
			}
			if cfg.AdminOrders != nil {
				t.Get("/orders", cfg.AdminOrders.List)
				t.Get("/orders/{orderID}", cfg.AdminOrders.Get)
				t.Patch("/orders/{orderID}/fulfillment", cfg.AdminOrders.UpdateFulfillment)
			}
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
