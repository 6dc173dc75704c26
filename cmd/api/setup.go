package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-commerce/internal/api/router"
	"github.com/wolfman30/whatsapp-commerce/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/http/handlers"
	"github.com/wolfman30/whatsapp-commerce/internal/jobs"
	observemetrics "github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/operator"
	"github.com/wolfman30/whatsapp-commerce/internal/payments"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

func setupMetrics() (http.Handler, *observemetrics.CommerceMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observemetrics.NewCommerceMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics
}

func buildRouterConfig(
	cfg *appconfig.Config,
	commerce *bootstrap.Commerce,
	publisher *jobs.Publisher,
	hub *operator.Hub,
	metricsHandler http.Handler,
	metrics *observemetrics.CommerceMetrics,
	logger *logging.Logger,
) *router.Config {
	whatsappWebhook := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		Verifier:    commerce.WhatsApp,
		Queue:       publisher,
		Logger:      logger,
		Metrics:     metrics,
	})
	paystackWebhook := payments.NewPaystackWebhookHandler(commerce.Paystack, commerce.Processed, publisher, metrics, logger)

	var adminTenants *handlers.AdminTenantHandler
	if commerce.Tenants.Cache != nil {
		adminTenants = handlers.NewAdminTenantHandler(commerce.Tenants.Configs, commerce.Tenants.Cache, logger)
	} else {
		adminTenants = handlers.NewAdminTenantHandler(commerce.Tenants.Configs, nil, logger)
	}

	return &router.Config{
		Logger:             logger,
		WhatsAppWebhook:    whatsappWebhook,
		PaystackWebhook:    paystackWebhook,
		AdminTenants:       adminTenants,
		AdminOrders:        handlers.NewAdminOrdersHandler(commerce.Orders, logger),
		Operator:           hub,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateWindow:  cfg.WebhookRateWindow,
	}
}
