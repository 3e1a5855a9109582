package messagequeue

import (
	"encoding/json"
	"fmt"

	"github.com/Strob0t/requestline/internal/domain/change"
)

// DecodeChange validates data received on subject and returns the change event.
// The payload tenant must equal the tenant encoded in the subject, so a message
// can never be delivered to another tenant's subscribers.
func DecodeChange(subject string, data []byte) (change.Event, error) {
	tenantID, ok := TenantFromSubject(subject)
	if !ok {
		return change.Event{}, fmt.Errorf("not a tenant change subject: %s", subject)
	}
	if !json.Valid(data) {
		return change.Event{}, fmt.Errorf("invalid JSON on subject %s", subject)
	}
	var ev change.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return change.Event{}, fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if ev.TenantID != tenantID {
		return change.Event{}, fmt.Errorf("tenant mismatch on %s: payload has %q", subject, ev.TenantID)
	}
	if ev.Kind == "" {
		return change.Event{}, fmt.Errorf("missing kind on %s", subject)
	}
	return ev, nil
}
