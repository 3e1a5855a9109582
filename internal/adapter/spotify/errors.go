package spotify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/requestline/internal/domain"
)

// APIError is a non-2xx response from the Web API. It wraps domain.ErrAdapter.
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify api %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return domain.ErrAdapter }

func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		e.Message = envelope.Error.Message
	} else {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		e.Message = string(body)
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// IsBreakerFailure reports whether err says the provider itself is unhealthy.
// Client errors such as an unknown track or a missing device are the
// tenant's problem and must not open the circuit.
func IsBreakerFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, errNotConnected)
}
