package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/whatsapp-commerce/internal/http/middleware"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// scopedTenant returns the {tenantID} path parameter when the caller's admin
// token covers it. It writes the error response otherwise.
func scopedTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		jsonError(w, "tenant id required", http.StatusBadRequest)
		return "", false
	}
	claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context())
	if !ok {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if !claims.CanAccess(tenantID) {
		jsonError(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return tenantID, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
