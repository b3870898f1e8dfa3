package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/planlens/planlens/signal"
)

// AuditAction categorizes an audit trail entry.
type AuditAction string

const (
	AuditDispatched   AuditAction = "DISPATCHED"
	AuditDelivered    AuditAction = "DELIVERED"
	AuditRejected     AuditAction = "REJECTED"
	AuditDeduplicated AuditAction = "DEDUPLICATED"
	AuditDeadLettered AuditAction = "DEAD_LETTERED"
)

// AuditEntry records one routing event. The trail is append-only; one entry
// per event, so a fan-out to three consumers produces three DELIVERED
// entries.
type AuditEntry struct {
	ID         string      `json:"id"`
	Action     AuditAction `json:"action"`
	SignalID   string      `json:"signal_id"`
	SignalType signal.Type `json:"signal_type"`
	ConsumerID string      `json:"consumer_id,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// recordAudit appends an entry to the audit trail.
func (o *Orchestrator) recordAudit(action AuditAction, sig *signal.Signal, consumerID, detail string) {
	entry := AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		SignalID:   sig.ID,
		SignalType: sig.Type,
		ConsumerID: consumerID,
		Detail:     detail,
		Timestamp:  time.Now().UTC(),
	}

	o.mu.Lock()
	o.audit = append(o.audit, entry)
	o.mu.Unlock()
}

// AuditLog returns a copy of the audit trail, optionally filtered to one
// signal id (empty id returns everything).
func (o *Orchestrator) AuditLog(signalID string) []AuditEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	if signalID == "" {
		out := make([]AuditEntry, len(o.audit))
		copy(out, o.audit)
		return out
	}

	var out []AuditEntry
	for _, entry := range o.audit {
		if entry.SignalID == signalID {
			out = append(out, entry)
		}
	}
	return out
}

// ClearAuditLog discards the audit trail. This is the only deletion path.
func (o *Orchestrator) ClearAuditLog() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audit = nil
}
