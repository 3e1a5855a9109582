// Package broadcast defines the port for pushing tenant-scoped change events to subscribers.
package broadcast

import (
	"context"

	"github.com/Strob0t/requestline/internal/domain/change"
)

// Publisher fans a change out to the subscribers of ev.TenantID only.
// Delivery is best-effort; subscribers also poll the snapshot.
type Publisher interface {
	Publish(ctx context.Context, ev change.Event) error
}

// Deliverer hands a change to locally connected subscribers.
type Deliverer interface {
	Deliver(ev change.Event)
}
