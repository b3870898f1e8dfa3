package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/planlens/planlens/deadletter"
	"github.com/planlens/planlens/signal"
)

// Dispatch routes one signal through the validation pipeline and fans it out
// to every matching enabled consumer. The pipeline order is fixed:
// structural validation, phase/type allow-list, deduplication, value gate,
// fan-out. Every outcome is returned as data in the receipt; business-rule
// failures are recorded, never raised.
func (o *Orchestrator) Dispatch(ctx context.Context, sig *signal.Signal) Receipt {
	o.mu.Lock()
	o.counters.dispatched++
	o.mu.Unlock()
	o.recordAudit(AuditDispatched, sig, "", "")

	// Gate: structural validation.
	if ok, errs := sig.Validate(); !ok {
		detail := strings.Join(errs, "; ")
		return o.reject(ctx, sig, deadletter.ReasonValidationFailed, detail)
	}

	// Gate: phase/type allow-list.
	if allowed, detail := o.typeAllowed(sig); !allowed {
		return o.reject(ctx, sig, deadletter.ReasonInvalidScope, detail)
	}

	// Gate: deduplication. Only successful deliveries populate the cache, so
	// a replayed dead letter is never mistaken for a duplicate of itself.
	hash, err := sig.ContentHash()
	if err != nil {
		return o.reject(ctx, sig, deadletter.ReasonValidationFailed,
			fmt.Sprintf("payload not hashable: %v", err))
	}

	o.mu.Lock()
	if cachedAt, ok := o.dedup[hash]; ok {
		if time.Since(cachedAt) < o.dedupWindow {
			o.counters.deduplicated++
			o.mu.Unlock()
			o.recordAudit(AuditDeduplicated, sig, "", "content hash "+hash)
			o.logger.Debug("Signal deduplicated",
				slog.String("signal_id", sig.ID),
				slog.String("content_hash", hash))
			return Receipt{SignalID: sig.ID, Status: StatusDeduplicated}
		}
		// Stale entry: evict and continue.
		delete(o.dedup, hash)
	}
	o.mu.Unlock()

	// Gate: value. Enrichment signals are exempt.
	if !sig.Enrichment && sig.EmpiricalAvailability < o.rules.EmpiricalAvailabilityMin {
		detail := fmt.Sprintf("empirical_availability %.3f below threshold %.3f",
			sig.EmpiricalAvailability, o.rules.EmpiricalAvailabilityMin)
		return o.reject(ctx, sig, deadletter.ReasonLowValue, detail)
	}

	// Fan-out over a snapshot, in registration order, no priority. A failing
	// handler is isolated: it dead-letters, counts, and fan-out continues.
	deliveredTo := o.fanOut(ctx, sig)

	if len(deliveredTo) == 0 {
		detail := "no enabled consumer matched scope and capabilities"
		o.recordDeadLetter(ctx, sig, deadletter.ReasonNoConsumer, detail)
		o.recordAudit(AuditDeadLettered, sig, "", detail)
		o.logger.Warn("Signal had no acceptors",
			slog.String("signal_id", sig.ID),
			slog.String("signal_type", sig.Type.String()),
			slog.String("scope", sig.Scope.String()))
		return Receipt{
			SignalID: sig.ID,
			Status:   StatusDeadLettered,
			Reason:   deadletter.ReasonNoConsumer,
			Detail:   detail,
		}
	}

	o.mu.Lock()
	o.dedup[hash] = time.Now()
	o.counters.delivered++
	o.mu.Unlock()

	o.logger.Debug("Signal delivered",
		slog.String("signal_id", sig.ID),
		slog.Int("consumers", len(deliveredTo)))

	return Receipt{SignalID: sig.ID, Status: StatusDelivered, DeliveredTo: deliveredTo}
}

// reject records a pre-fan-out rejection: one dead letter, one REJECTED
// audit entry, reject counter.
func (o *Orchestrator) reject(ctx context.Context, sig *signal.Signal, reason deadletter.Reason, detail string) Receipt {
	o.recordDeadLetter(ctx, sig, reason, detail)
	o.recordAudit(AuditRejected, sig, "", detail)

	o.mu.Lock()
	o.counters.rejected++
	o.mu.Unlock()

	o.logger.Debug("Signal rejected",
		slog.String("signal_id", sig.ID),
		slog.String("reason", string(reason)),
		slog.String("detail", detail))

	return Receipt{SignalID: sig.ID, Status: StatusRejected, Reason: reason, Detail: detail}
}

// typeAllowed checks the phase routing allow-list. A phase with no explicit
// list accepts every type.
func (o *Orchestrator) typeAllowed(sig *signal.Signal) (bool, string) {
	types, ok := o.rules.PhaseRouting[sig.Scope.Phase]
	if !ok {
		return true, ""
	}
	if slices.Contains(types, sig.Type) {
		return true, ""
	}
	return false, fmt.Sprintf("signal type %s not permitted for %s", sig.Type, sig.Scope.Phase)
}

// fanOut invokes each matching enabled consumer synchronously and returns
// the ids that accepted. The mutex is not held across handler calls, so
// handlers may dispatch follow-up signals.
func (o *Orchestrator) fanOut(ctx context.Context, sig *signal.Signal) []string {
	var deliveredTo []string

	for _, entry := range o.snapshotConsumers() {
		o.mu.Lock()
		enabled := entry.enabled
		consumer := entry.consumer
		o.mu.Unlock()

		if !enabled {
			continue
		}
		if ok, _ := consumer.CanHandle(sig); !ok {
			continue
		}

		if err := invokeHandler(ctx, consumer.Handler, sig); err != nil {
			o.mu.Lock()
			entry.errors++
			o.counters.consumerErrors++
			o.mu.Unlock()

			detail := fmt.Sprintf("consumer %s: %v", consumer.ID, err)
			o.recordDeadLetter(ctx, sig, deadletter.ReasonHandlerError, detail)
			o.recordAudit(AuditDeadLettered, sig, consumer.ID, detail)
			o.logger.Warn("Consumer handler failed",
				slog.String("signal_id", sig.ID),
				slog.String("consumer_id", consumer.ID),
				slog.String("error", err.Error()))
			continue
		}

		o.mu.Lock()
		entry.processed++
		o.mu.Unlock()

		deliveredTo = append(deliveredTo, consumer.ID)
		o.recordAudit(AuditDelivered, sig, consumer.ID, "")
	}

	return deliveredTo
}

// invokeHandler calls a handler, converting a panic into an error so a
// faulty consumer cannot abort the fan-out.
func invokeHandler(ctx context.Context, h Handler, sig *signal.Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, sig)
}

// ReplayDeadLetter removes the dead letter with the given id from the
// in-memory list and re-dispatches its signal. If conditions are unchanged
// the signal fails the same gate and a fresh dead letter is recorded.
func (o *Orchestrator) ReplayDeadLetter(ctx context.Context, id string) (Receipt, error) {
	o.mu.Lock()
	idx := -1
	for i, dl := range o.deadLetters {
		if dl.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return Receipt{}, fmt.Errorf("dead letter %s not found", id)
	}
	dl := o.deadLetters[idx]
	o.deadLetters = slices.Delete(o.deadLetters, idx, idx+1)
	o.mu.Unlock()

	o.logger.Info("Replaying dead letter",
		slog.String("dead_letter_id", dl.ID),
		slog.String("signal_id", dl.Signal.ID),
		slog.String("reason", string(dl.Reason)))

	return o.Dispatch(ctx, dl.Signal), nil
}
