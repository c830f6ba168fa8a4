// Package eventstream publishes job lifecycle events (job created/deleted,
// embedding written, message archived) to an external broker so operators
// can wire alerting or auditing off vectorize without polling its tables.
package eventstream

import "context"

// Publisher publishes lifecycle events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
