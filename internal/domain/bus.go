package domain

import "context"

// SignalBus publishes signal snapshots for external consumers. Publish is
// fire-and-forget pub/sub; StreamAppend adds to a capped, ordered stream so
// late subscribers can replay recent history.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
