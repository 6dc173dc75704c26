package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/whatsapp-commerce/internal/orders"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

type tenantConfigStore interface {
	Get(ctx context.Context, tenantID string) (*tenant.Config, error)
	Set(ctx context.Context, cfg *tenant.Config) error
}

type catalogInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

type orderAdmin interface {
	List(ctx context.Context, tenantID string, f orders.ListFilter) ([]*orders.Order, error)
	Get(ctx context.Context, tenantID, orderID string) (*orders.Order, error)
	UpdateFulfillment(ctx context.Context, tenantID, orderID, status, tracking string) (*orders.Order, error)
}

// AdminTenantHandler serves tenant sales policy and catalog cache endpoints.
type AdminTenantHandler struct {
	configs tenantConfigStore
	catalog catalogInvalidator
	logger  *logging.Logger
}

func NewAdminTenantHandler(configs tenantConfigStore, catalog catalogInvalidator, logger *logging.Logger) *AdminTenantHandler {
	if configs == nil {
		panic("handlers: tenant config store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminTenantHandler{configs: configs, catalog: catalog, logger: logger}
}

// GetConfig handles GET /admin/tenants/{tenantID}/config.
func (h *AdminTenantHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := scopedTenant(w, r)
	if !ok {
		return
	}
	cfg, err := h.configs.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to load tenant config", "error", err, "tenant_id", tenantID)
		jsonError(w, "failed to load config", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutConfig handles PUT /admin/tenants/{tenantID}/config. The body's version
// must match the stored version unless it is zero.
func (h *AdminTenantHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := scopedTenant(w, r)
	if !ok {
		return
	}
	var cfg tenant.Config
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&cfg); err != nil {
		jsonError(w, "invalid json", http.StatusBadRequest)
		return
	}
	cfg.TenantID = tenantID
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := h.configs.Set(r.Context(), &cfg)
	switch {
	case errors.Is(err, tenant.ErrVersionConflict):
		jsonError(w, "config was modified, reload and retry", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("failed to save tenant config", "error", err, "tenant_id", tenantID)
		jsonError(w, "failed to save config", http.StatusInternalServerError)
		return
	}
	h.logger.Info("tenant config updated", "tenant_id", tenantID, "version", cfg.Version)
	writeJSON(w, http.StatusOK, cfg)
}

// ConfigSchema handles GET /admin/config/schema.
func (h *AdminTenantHandler) ConfigSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := tenant.ConfigSchema()
	if err != nil {
		h.logger.Error("failed to build config schema", "error", err)
		jsonError(w, "schema unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(schema)
}

// RefreshCatalog handles POST /admin/tenants/{tenantID}/catalog/refresh.
func (h *AdminTenantHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := scopedTenant(w, r)
	if !ok {
		return
	}
	if h.catalog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "refreshed": false})
		return
	}
	if err := h.catalog.Invalidate(r.Context(), tenantID); err != nil {
		h.logger.Error("failed to invalidate catalog cache", "error", err, "tenant_id", tenantID)
		jsonError(w, "failed to refresh catalog", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "refreshed": true})
}

// AdminOrdersHandler exposes a tenant's orders to operators.
type AdminOrdersHandler struct {
	orders orderAdmin
	logger *logging.Logger
}

func NewAdminOrdersHandler(svc orderAdmin, logger *logging.Logger) *AdminOrdersHandler {
	if svc == nil {
		panic("handlers: orders service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminOrdersHandler{orders: svc, logger: logger}
}

// ListOrdersResponse is the paginated orders listing.
type ListOrdersResponse struct {
	Orders []*orders.Order `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// List handles GET /admin/tenants/{tenantID}/orders.
func (h *AdminOrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := scopedTenant(w, r)
	if !ok {
		return
	}
	filter := orders.ListFilter{
		PaymentStatus:     r.URL.Query().Get("payment_status"),
		FulfillmentStatus: r.URL.Query().Get("fulfillment_status"),
		Limit:             queryInt(r, "limit", 20),
		Offset:            queryInt(r, "offset", 0),
	}
	list, err := h.orders.List(r.Context(), tenantID, filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "tenant_id", tenantID)
		jsonError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	writeJSON(w, http.StatusOK, ListOrdersResponse{Orders: list, Limit: filter.Limit, Offset: filter.Offset})
}

// Get handles GET /admin/tenants/{tenantID}/orders/{orderID}.
func (h *AdminOrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := scopedTenant(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Get(r.Context(), tenantID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(w, err, tenantID)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type fulfillmentRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
}

// UpdateFulfillment handles PATCH /admin/tenants/{tenantID}/orders/{orderID}/fulfillment.
// The customer is told about the change on WhatsApp.
func (h *AdminOrdersHandler) UpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := scopedTenant(w, r)
	if !ok {
		return
	}
	var req fulfillmentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		jsonError(w, "invalid json", http.StatusBadRequest)
		return
	}
	order, err := h.orders.UpdateFulfillment(r.Context(), tenantID, chi.URLParam(r, "orderID"), req.Status, req.TrackingNumber)
	if err != nil {
		h.writeOrderError(w, err, tenantID)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *AdminOrdersHandler) writeOrderError(w http.ResponseWriter, err error, tenantID string) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		jsonError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, orders.ErrInvalidFulfillment):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, orders.ErrAlreadyDelivered):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("order admin request failed", "error", err, "tenant_id", tenantID)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
