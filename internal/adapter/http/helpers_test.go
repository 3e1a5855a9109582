package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/service"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"transition", domain.ErrInvalidTransition, http.StatusConflict},
		{"offline", domain.ErrEventOffline, http.StatusConflict},
		{"processed", domain.ErrAlreadyProcessed, http.StatusConflict},
		{"duplicate", domain.ErrDuplicateRequest, http.StatusConflict},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"rate limit error", &service.RateLimitError{RetryAfter: time.Second, Reason: "hourly"}, http.StatusTooManyRequests},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"track", domain.ErrTrackNotFound, http.StatusUnprocessableEntity},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"closed", domain.ErrRequestsClosed, http.StatusForbidden},
		{"queue failed", domain.ErrQueueFailed, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err, "missing")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestTrimSentinel(t *testing.T) {
	err := fmt.Errorf("set status: %w", fmt.Errorf("%w: nickname too long", domain.ErrValidation))
	if got := trimSentinel(err, domain.ErrValidation); got != "nickname too long" {
		t.Errorf("got %q", got)
	}
	if got := trimSentinel(domain.ErrValidation, domain.ErrValidation); got != domain.ErrValidation.Error() {
		t.Errorf("bare sentinel: got %q", got)
	}
}
