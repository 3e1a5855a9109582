package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Strob0t/requestline/internal/config"
	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/service"
)

// Retrier re-runs a request's failed side effects.
type Retrier interface {
	Retry(ctx context.Context, tenantID, requestID string) (*service.Result, error)
}

// Server processes retry tasks.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer creates a worker with the given concurrency.
func NewServer(cfg config.Redis, concurrency int, r Retrier) *Server {
	srv := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
	})
	return &Server{srv: srv, mux: NewMux(r)}
}

// NewMux registers the task handlers.
func NewMux(r Retrier) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRequestRetry, retryHandler(r))
	return mux
}

// Start begins processing in the background.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

// Shutdown waits for in-flight tasks and stops the worker.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

func retryHandler(r Retrier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		p, err := decodeRetry(t.Payload())
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		res, err := r.Retry(ctx, p.TenantID, p.RequestID)
		switch {
		case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrNotFound):
			slog.Info("retry task skipped", "tenant_id", p.TenantID, "request_id", p.RequestID, "error", err)
			return nil
		case err != nil:
			return err
		}
		slog.Info("retry task done", "tenant_id", p.TenantID, "request_id", p.RequestID,
			"status", res.Request.Status, "error", res.Request.LastError)
		return nil
	}
}
