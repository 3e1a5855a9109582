package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/requestline/internal/middleware"
	"github.com/Strob0t/requestline/internal/port/cache"
)

// RouteDeps holds the cross-cutting pieces the route groups need.
type RouteDeps struct {
	Verifier       middleware.TokenVerifier
	Guests         middleware.GuestResolver
	Idempotency    cache.Cache // nil disables idempotent replay
	IdempotencyTTL time.Duration
	// GuestLimiter throttles public party routes per tenant and IP. Optional.
	GuestLimiter *middleware.RateLimiter
	// MCP is mounted at /mcp behind host auth when set.
	MCP http.Handler
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, deps RouteDeps) {
	hostAuth := middleware.Auth(deps.Verifier)
	guest := middleware.Guest(deps.Guests)
	guestLimit := func(next http.Handler) http.Handler { return next }
	if deps.GuestLimiter != nil {
		guestLimit = deps.GuestLimiter.Handler
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Host session
		r.Post("/auth/signup", h.Signup)
		r.Post("/auth/login", h.Login)

		// Guests
		r.Route("/parties/{handle}", func(r chi.Router) {
			r.Use(guest, guestLimit)
			r.Get("/snapshot", h.GetSnapshot)
			r.Get("/search", h.Search)
			r.Post("/requests", h.SubmitRequest)
		})

		// Host
		r.Group(func(r chi.Router) {
			r.Use(hostAuth)
			if deps.Idempotency != nil {
				r.Use(middleware.Idempotency(deps.Idempotency, deps.IdempotencyTTL))
			}

			r.Post("/auth/logout", h.Logout)

			r.Get("/event", h.GetEvent)
			r.Put("/event/status", h.SetEventStatus)
			r.Put("/event/pages/{page}", h.SetPageEnabled)
			r.Post("/event/access-codes", h.RotateAccessCodes)

			r.Get("/requests", h.ListRequests)
			r.Post("/requests/{id}/approve", h.ApproveRequest)
			r.Post("/requests/{id}/reject", h.RejectRequest)
			r.Post("/requests/{id}/retry", h.RetryRequest)
			r.Post("/requests/{id}/played", h.MarkPlayed)

			r.Get("/snapshot", h.GetSnapshot)
			r.Post("/playback/{control}", h.PlaybackControl)
			r.Put("/provider", h.ConnectProvider)
		})
	})

	r.With(hostAuth).Get("/ws", h.Subscribe)
	r.With(guest).Get("/ws/parties/{handle}", h.Subscribe)

	if deps.MCP != nil {
		r.With(hostAuth).Handle("/mcp", deps.MCP)
	}
}

// RouterConfig holds server-wide middleware settings.
type RouterConfig struct {
	CORSOrigin  string
	ServiceName string
	// IPLimiter throttles every request per client IP. Optional.
	IPLimiter *middleware.RateLimiter
	// Trace wraps requests in spans. Optional.
	Trace func(http.Handler) http.Handler
}

// NewRouter builds the server's root handler.
func NewRouter(h *Handlers, cfg RouterConfig, deps RouteDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	if cfg.CORSOrigin != "" {
		r.Use(CORS(cfg.CORSOrigin))
	}
	if cfg.Trace != nil {
		r.Use(cfg.Trace)
	}
	if cfg.IPLimiter != nil {
		r.Use(cfg.IPLimiter.Handler)
	}
	MountRoutes(r, h, deps)
	return r
}
