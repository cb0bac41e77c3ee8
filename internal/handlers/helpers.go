package handlers

import (
	"encoding/json"
	"net/http"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// WriteData writes a standard success JSON response with a data block.
func WriteData(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// TenantID extracts the caller's tenant from the request. Tenant identity
// arrives on a trusted header set by the edge proxy.
func TenantID(r *http.Request) string {
	return r.Header.Get("X-Tenant-ID")
}

// RequireTenant extracts the tenant or writes a 400.
func RequireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := TenantID(r)
	if tenant == "" {
		WriteError(w, http.StatusBadRequest, "missing_tenant")
		return "", false
	}
	return tenant, true
}
