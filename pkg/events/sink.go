package events

import "context"

// Sink is an append-only audit trail. Append must serialize concurrent
// writers so records never interleave; there is no way to rewrite or
// remove an event once appended.
type Sink interface {
	// Append writes one event
	Append(ctx context.Context, e *Event) error

	// ReadRecent returns up to limit of the most recent valid events in
	// chronological order, silently skipping records that fail to parse
	ReadRecent(ctx context.Context, limit int) ([]Event, error)

	// Close releases the sink's resources
	Close() error
}
