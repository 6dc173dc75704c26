package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	httpmiddleware "github.com/wolfman30/whatsapp-commerce/internal/http/middleware"
	"github.com/wolfman30/whatsapp-commerce/internal/orders"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

type stubOrders struct {
	list       []*orders.Order
	lastFilter orders.ListFilter
	order      *orders.Order
	err        error
	updated    struct{ status, tracking string }
}

func (s *stubOrders) List(_ context.Context, _ string, f orders.ListFilter) ([]*orders.Order, error) {
	s.lastFilter = f
	return s.list, s.err
}

func (s *stubOrders) Get(_ context.Context, _ string, _ string) (*orders.Order, error) {
	return s.order, s.err
}

func (s *stubOrders) UpdateFulfillment(_ context.Context, _, _, status, tracking string) (*orders.Order, error) {
	s.updated.status = status
	s.updated.tracking = tracking
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

type stubInvalidator struct {
	tenants []string
}

func (s *stubInvalidator) Invalidate(_ context.Context, tenantID string) error {
	s.tenants = append(s.tenants, tenantID)
	return nil
}

func adminRouter(claims httpmiddleware.AdminClaims, tenants *AdminTenantHandler, ords *AdminOrdersHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(httpmiddleware.WithAdminClaims(req.Context(), claims)))
		})
	})
	r.Get("/admin/config/schema", tenants.ConfigSchema)
	r.Route("/admin/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/config", tenants.GetConfig)
		r.Put("/config", tenants.PutConfig)
		r.Post("/catalog/refresh", tenants.RefreshCatalog)
		if ords != nil {
			r.Get("/orders", ords.List)
			r.Get("/orders/{orderID}", ords.Get)
			r.Patch("/orders/{orderID}/fulfillment", ords.UpdateFulfillment)
		}
	})
	return r
}

func TestAdminConfigGetReturnsDefaults(t *testing.T) {
	h := NewAdminTenantHandler(tenant.NewMemoryConfigStore(), nil, logging.Default())
	router := adminRouter(httpmiddleware.AdminClaims{}, h, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants/shop-1/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cfg tenant.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.TenantID != "shop-1" || cfg.AgentName != tenant.DefaultAgentName {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestAdminConfigPutBumpsVersionAndDetectsConflict(t *testing.T) {
	store := tenant.NewMemoryConfigStore()
	h := NewAdminTenantHandler(store, nil, logging.Default())
	router := adminRouter(httpmiddleware.AdminClaims{TenantID: "shop-1"}, h, nil)

	body := `{"agent_name":"Tolu","max_discount_percent":15,"delivery_areas":[{"name":"Lekki","fee":"2000"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/tenants/shop-1/config", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	saved, _ := store.Get(context.Background(), "shop-1")
	if saved.Version != 1 || saved.AgentName != "Tolu" {
		t.Fatalf("unexpected saved config: %+v", saved)
	}
	if !saved.DeliveryFeeFor("lekki").Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected Lekki fee 2000, got %s", saved.DeliveryFeeFor("lekki"))
	}

	stale := `{"version":7,"agent_name":"Bisi"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/tenants/shop-1/config", strings.NewReader(stale)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAdminConfigPutRejectsInvalidPolicy(t *testing.T) {
	h := NewAdminTenantHandler(tenant.NewMemoryConfigStore(), nil, logging.Default())
	router := adminRouter(httpmiddleware.AdminClaims{}, h, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/tenants/shop-1/config", strings.NewReader(`{"max_discount_percent":150}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminScopedTokenCannotReachOtherTenant(t *testing.T) {
	h := NewAdminTenantHandler(tenant.NewMemoryConfigStore(), nil, logging.Default())
	router := adminRouter(httpmiddleware.AdminClaims{TenantID: "shop-1"}, h, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants/shop-2/config", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAdminConfigSchema(t *testing.T) {
	h := NewAdminTenantHandler(tenant.NewMemoryConfigStore(), nil, logging.Default())
	router := adminRouter(httpmiddleware.AdminClaims{}, h, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/config/schema", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "max_discount_percent") {
		t.Fatalf("schema missing fields: %s", rec.Body.String())
	}
}

func TestAdminRefreshCatalog(t *testing.T) {
	inv := &stubInvalidator{}
	h := NewAdminTenantHandler(tenant.NewMemoryConfigStore(), inv, logging.Default())
	router := adminRouter(httpmiddleware.AdminClaims{}, h, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/tenants/shop-1/catalog/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(inv.tenants) != 1 || inv.tenants[0] != "shop-1" {
		t.Fatalf("expected cache invalidated for shop-1, got %v", inv.tenants)
	}
}

func TestAdminOrdersListPassesFilters(t *testing.T) {
	svc := &stubOrders{list: []*orders.Order{{ID: "o-1", TenantID: "shop-1"}}}
	router := adminRouter(httpmiddleware.AdminClaims{},
		NewAdminTenantHandler(tenant.NewMemoryConfigStore(), nil, nil),
		NewAdminOrdersHandler(svc, logging.Default()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants/shop-1/orders?payment_status=paid&limit=5&offset=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastFilter.PaymentStatus != "paid" || svc.lastFilter.Limit != 5 || svc.lastFilter.Offset != 10 {
		t.Fatalf("unexpected filter: %+v", svc.lastFilter)
	}
	var resp ListOrdersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].ID != "o-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAdminOrdersErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{orders.ErrNotFound, http.StatusNotFound},
		{orders.ErrInvalidFulfillment, http.StatusBadRequest},
		{orders.ErrAlreadyDelivered, http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &stubOrders{err: tc.err}
		router := adminRouter(httpmiddleware.AdminClaims{},
			NewAdminTenantHandler(tenant.NewMemoryConfigStore(), nil, nil),
			NewAdminOrdersHandler(svc, nil))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/admin/tenants/shop-1/orders/o-1/fulfillment",
			strings.NewReader(`{"status":"cancelled"}`)))
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}
}

func TestAdminOrdersUpdateFulfillment(t *testing.T) {
	svc := &stubOrders{order: &orders.Order{ID: "o-1", FulfillmentStatus: orders.FulfillmentShipped}}
	router := adminRouter(httpmiddleware.AdminClaims{},
		NewAdminTenantHandler(tenant.NewMemoryConfigStore(), nil, nil),
		NewAdminOrdersHandler(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/admin/tenants/shop-1/orders/o-1/fulfillment",
		strings.NewReader(`{"status":"shipped","tracking_number":"GIG-42"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.updated.status != "shipped" || svc.updated.tracking != "GIG-42" {
		t.Fatalf("unexpected update call: %+v", svc.updated)
	}
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonError(rec, "oops", http.StatusTeapot)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode json response: %v", err)
	}
	if body["error"] != "oops" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}
