package worldstate

import "context"

// Sink delivers one event to an external destination. Delivery is
// best-effort: the service commits dedup markers before calling Send, so a
// failed delivery is logged and lost rather than retried.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string
	// Send delivers one event. It must respect ctx cancellation.
	Send(ctx context.Context, ev Event) error
}
