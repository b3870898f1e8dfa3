package deadletter

import "context"

// Sink persists dead-letter records. Implementations are best effort: the
// orchestrator logs and swallows Persist errors, so a sink should handle its
// own idempotency and return quickly rather than retry.
type Sink interface {
	Persist(ctx context.Context, dl DeadLetter) error
}

// NoopSink discards all records. Used in tests and when persistence is
// disabled.
type NoopSink struct{}

// Persist implements Sink with no-op behavior.
func (NoopSink) Persist(_ context.Context, _ DeadLetter) error {
	return nil
}
