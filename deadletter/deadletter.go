// Package deadletter defines the dead-letter record produced for rejected or
// undeliverable signals, and the injectable sinks that persist them.
// Persistence is best effort: the dispatch path records the dead letter in
// memory first, and a sink failure is logged and swallowed so dead-lettering
// can never itself fail.
package deadletter

import (
	"time"

	"github.com/google/uuid"

	"github.com/planlens/planlens/signal"
)

// Reason categorizes why a signal was dead-lettered.
type Reason string

const (
	// ReasonValidationFailed marks signals that failed structural validation.
	ReasonValidationFailed Reason = "VALIDATION_FAILED"

	// ReasonInvalidScope marks signals whose type is not allowed for their phase.
	ReasonInvalidScope Reason = "INVALID_SCOPE"

	// ReasonLowValue marks non-enrichment signals below the value threshold.
	ReasonLowValue Reason = "LOW_VALUE"

	// ReasonNoConsumer marks signals no registered consumer accepted.
	ReasonNoConsumer Reason = "NO_CONSUMER"

	// ReasonHandlerError marks a consumer handler failure; one record per
	// failing consumer.
	ReasonHandlerError Reason = "HANDLER_ERROR"
)

// IsValid checks if the reason is a known reason code.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonValidationFailed, ReasonInvalidScope, ReasonLowValue,
		ReasonNoConsumer, ReasonHandlerError:
		return true
	}
	return false
}

// DeadLetter records one undeliverable or rejected signal. The embedded
// signal serializes in its full wire form (content hash included), so each
// record is independently persistable and replayable.
type DeadLetter struct {
	ID        string         `json:"id"`
	Signal    *signal.Signal `json:"signal"`
	Reason    Reason         `json:"reason"`
	Detail    string         `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New creates a dead-letter record for a signal with a fresh id and timestamp.
func New(sig *signal.Signal, reason Reason, detail string) DeadLetter {
	return DeadLetter{
		ID:        uuid.New().String(),
		Signal:    sig,
		Reason:    reason,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}
