package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/tenant"
)

type sessionCtxKey struct{}

// TokenVerifier validates a host access token.
type TokenVerifier interface {
	VerifyToken(token string) (*tenant.Session, error)
}

// GuestResolver maps a party handle plus guest access code to a tenant ID.
type GuestResolver interface {
	ResolveGuest(ctx context.Context, handle, pin, bypass string) (string, error)
}

const headerPartyPin = "X-Party-Pin"

// Auth returns middleware that requires a valid host bearer token and puts
// the token's tenant into the request context. Websocket upgrades may pass
// the token as ?token= since browsers cannot set headers on them.
func Auth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "authorization required")
				return
			}

			sess, err := v.VerifyToken(token)
			if err != nil || sess.TenantID == "" {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := WithTenantID(r.Context(), sess.TenantID)
			ctx = context.WithValue(ctx, sessionCtxKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the host session set by Auth, or nil.
func SessionFromContext(ctx context.Context) *tenant.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*tenant.Session)
	return s
}

// Guest returns middleware for public party routes. The {handle} URL param
// plus a PIN (header or ?pin=) or bypass token (?bypass=) must resolve to a tenant.
func Guest(res GuestResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle := chi.URLParam(r, "handle")
			pin := r.Header.Get(headerPartyPin)
			if pin == "" {
				pin = r.URL.Query().Get("pin")
			}
			bypass := r.URL.Query().Get("bypass")

			tid, err := res.ResolveGuest(r.Context(), handle, pin, bypass)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrNotFound):
				writeJSONError(w, http.StatusNotFound, "party not found")
				return
			case errors.Is(err, domain.ErrUnauthorized):
				writeJSONError(w, http.StatusUnauthorized, "invalid party code")
				return
			default:
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), tid)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || token == "" {
			return "", false
		}
		return token, true
	}
	if strings.HasPrefix(r.URL.Path, "/ws") {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, true
		}
	}
	return "", false
}
