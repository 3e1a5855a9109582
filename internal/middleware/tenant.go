package middleware

import (
	"context"
	"net/http"
)

type tenantCtxKey struct{}

// WithTenantID returns a copy of ctx carrying the resolved tenant ID.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantIDFromContext returns the tenant ID resolved by Auth or Guest.
// There is no fallback tenant: ok is false when nothing resolved one.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	tid, ok := ctx.Value(tenantCtxKey{}).(string)
	if !ok || tid == "" {
		return "", false
	}
	return tid, true
}

// RequireTenant rejects requests that reach it without a resolved tenant.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := TenantIDFromContext(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "tenant required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
