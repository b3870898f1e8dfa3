// Package orchestrator implements the signal distribution orchestrator: a
// single-process, fully synchronous bus that validates, deduplicates,
// value-gates, and capability-routes signals between producers and
// consumers, recording every outcome in a dead-letter list and an audit
// trail.
//
// Dispatch has no queueing and no suspension points: handlers run inline on
// the caller's goroutine, in consumer registration order, and ordering
// across callers is exactly their call order. All mutable state lives behind
// one mutex; fan-out works on a snapshot of the registry so an in-flight
// dispatch keeps a consistent view while consumers are registered or
// removed. The mutex is released around handler invocations, so a handler
// may itself dispatch follow-up signals.
package orchestrator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/planlens/planlens/config"
	"github.com/planlens/planlens/deadletter"
	"github.com/planlens/planlens/signal"
)

// Orchestrator routes signals to registered consumers according to its
// routing rules. Rules and the dead-letter sink are injected at construction
// and immutable afterwards; there is no package-level state.
type Orchestrator struct {
	rules       config.Rules
	dedupWindow time.Duration
	sink        deadletter.Sink
	logger      *slog.Logger

	mu          sync.Mutex
	order       []string
	consumers   map[string]*consumerEntry
	dedup       map[string]time.Time
	deadLetters []deadletter.DeadLetter
	audit       []AuditEntry
	counters    counters
}

// counters are the orchestrator's running totals, guarded by the mutex.
type counters struct {
	dispatched     int64
	delivered      int64
	rejected       int64
	deduplicated   int64
	deadLettered   int64
	consumerErrors int64
}

// New creates an orchestrator from injected rules and a dead-letter sink.
// A nil sink disables persistence; a nil logger uses slog.Default.
func New(rules config.Rules, sink deadletter.Sink, logger *slog.Logger) *Orchestrator {
	if sink == nil {
		sink = deadletter.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	window := time.Duration(rules.Deduplication.WindowSeconds) * time.Second
	if rules.Deduplication.WindowSeconds == 0 {
		window = time.Duration(config.DefaultDedupWindowSecs) * time.Second
	}

	return &Orchestrator{
		rules:       rules,
		dedupWindow: window,
		sink:        sink,
		logger:      logger,
		consumers:   make(map[string]*consumerEntry),
		dedup:       make(map[string]time.Time),
	}
}

// Rules returns the orchestrator's routing rules.
func (o *Orchestrator) Rules() config.Rules {
	return o.rules
}

// RegisterConsumer adds a consumer to the registry, enabled. Re-registering
// an existing id silently replaces the prior consumer while preserving its
// position in the fan-out order. Malformed registrations fail fast.
func (o *Orchestrator) RegisterConsumer(c Consumer) error {
	if err := c.validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.consumers[c.ID]; exists {
		o.logger.Info("Replacing registered consumer", slog.String("consumer_id", c.ID))
	} else {
		o.order = append(o.order, c.ID)
	}
	o.consumers[c.ID] = &consumerEntry{consumer: c, enabled: true}
	return nil
}

// UnregisterConsumer removes a consumer. Returns false if the id is unknown.
func (o *Orchestrator) UnregisterConsumer(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.consumers[id]; !exists {
		return false
	}
	delete(o.consumers, id)
	if i := slices.Index(o.order, id); i >= 0 {
		o.order = slices.Delete(o.order, i, i+1)
	}
	return true
}

// SetConsumerEnabled toggles a consumer without losing its counters.
// Returns false if the id is unknown.
func (o *Orchestrator) SetConsumerEnabled(id string, enabled bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, exists := o.consumers[id]
	if !exists {
		return false
	}
	entry.enabled = enabled
	return true
}

// Consumers returns a snapshot of the registry in fan-out order.
func (o *Orchestrator) Consumers() []ConsumerInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]ConsumerInfo, 0, len(o.order))
	for _, id := range o.order {
		entry := o.consumers[id]
		out = append(out, ConsumerInfo{
			ID:           entry.consumer.ID,
			Scopes:       entry.consumer.Scopes,
			Capabilities: entry.consumer.Capabilities,
			Enabled:      entry.enabled,
			Processed:    entry.processed,
			Errors:       entry.errors,
		})
	}
	return out
}

// snapshotConsumers returns the registry entries in registration order, so
// fan-out sees a consistent set even if the registry changes mid-dispatch.
func (o *Orchestrator) snapshotConsumers() []*consumerEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := make([]*consumerEntry, 0, len(o.order))
	for _, id := range o.order {
		entries = append(entries, o.consumers[id])
	}
	return entries
}

// DeadLetters returns a copy of the in-memory dead-letter list, optionally
// filtered by reason (empty reason returns everything).
func (o *Orchestrator) DeadLetters(reason deadletter.Reason) []deadletter.DeadLetter {
	o.mu.Lock()
	defer o.mu.Unlock()

	if reason == "" {
		out := make([]deadletter.DeadLetter, len(o.deadLetters))
		copy(out, o.deadLetters)
		return out
	}

	var out []deadletter.DeadLetter
	for _, dl := range o.deadLetters {
		if dl.Reason == reason {
			out = append(out, dl)
		}
	}
	return out
}

// recordDeadLetter appends a dead letter to the in-memory list and persists
// it best effort: a sink failure is logged and swallowed so dead-lettering
// never itself fails.
func (o *Orchestrator) recordDeadLetter(ctx context.Context, sig *signal.Signal, reason deadletter.Reason, detail string) deadletter.DeadLetter {
	dl := deadletter.New(sig, reason, detail)

	o.mu.Lock()
	o.deadLetters = append(o.deadLetters, dl)
	o.counters.deadLettered++
	o.mu.Unlock()

	if o.rules.DeadLetter.Enabled {
		if err := o.sink.Persist(ctx, dl); err != nil {
			o.logger.Warn("Failed to persist dead letter",
				slog.String("dead_letter_id", dl.ID),
				slog.String("signal_id", sig.ID),
				slog.String("reason", string(reason)),
				slog.String("error", err.Error()))
		}
	}
	return dl
}
