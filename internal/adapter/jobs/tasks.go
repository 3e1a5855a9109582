// Package jobs runs explicit side-effect retries through an asynq queue.
package jobs

import (
	"encoding/json"
	"fmt"
)

// TypeRequestRetry re-runs the failed side effects of one request.
const TypeRequestRetry = "request:retry"

// RetryPayload identifies the request to retry. The tenant is always explicit.
type RetryPayload struct {
	TenantID  string `json:"tenant_id"`
	RequestID string `json:"request_id"`
}

func decodeRetry(data []byte) (RetryPayload, error) {
	var p RetryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", TypeRequestRetry, err)
	}
	if p.TenantID == "" || p.RequestID == "" {
		return p, fmt.Errorf("decode %s payload: tenant_id and request_id are required", TypeRequestRetry)
	}
	return p, nil
}
