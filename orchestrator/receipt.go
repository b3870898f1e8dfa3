package orchestrator

import "github.com/planlens/planlens/deadletter"

// Status is the tagged outcome of a dispatch.
type Status string

const (
	// StatusDelivered means at least one consumer accepted the signal.
	StatusDelivered Status = "DELIVERED"

	// StatusDeduplicated means an identical-content signal was delivered
	// inside the dedup window; not an error, no dead letter.
	StatusDeduplicated Status = "DEDUPLICATED"

	// StatusRejected means a gate refused the signal before fan-out.
	StatusRejected Status = "REJECTED"

	// StatusDeadLettered means the signal passed all gates but no consumer
	// accepted it.
	StatusDeadLettered Status = "DEAD_LETTERED"
)

// Receipt is the delivery outcome returned by Dispatch. The signal itself
// stays immutable; the outcome, reason, and accepting consumers live here,
// with the dead-letter and audit trails holding the durable copies.
type Receipt struct {
	SignalID    string            `json:"signal_id"`
	Status      Status            `json:"status"`
	Reason      deadletter.Reason `json:"reason,omitempty"`
	Detail      string            `json:"detail,omitempty"`
	DeliveredTo []string          `json:"delivered_to,omitempty"`
}

// Delivered reports whether the signal reached at least one consumer.
func (r Receipt) Delivered() bool {
	return r.Status == StatusDelivered
}
