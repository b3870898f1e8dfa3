package orchestrator

import (
	"fmt"

	"github.com/planlens/planlens/config"
	"github.com/planlens/planlens/signal"
)

// Gate identifies one of the diagnostic validation gates.
type Gate string

const (
	// GateScopeAlignment checks scope membership and the phase allow-list.
	GateScopeAlignment Gate = "scope_alignment"

	// GateValueAdd checks the empirical availability score.
	GateValueAdd Gate = "value_add"

	// GateCapability checks that some registered consumer would accept the
	// signal.
	GateCapability Gate = "capability"

	// GateIrrigationChannel checks post-dispatch delivery evidence.
	GateIrrigationChannel Gate = "irrigation_channel"
)

// Severity grades a gate issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// GateIssue is one problem found by a gate.
type GateIssue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidateAllGates runs the enabled diagnostic gates against a signal and
// returns the issues per gate. It is a pre-flight and post-mortem tool, not
// the enforcement path: Dispatch applies its own checks regardless.
//
// The value gate deliberately diverges from Dispatch here: a below-threshold
// availability on a non-enrichment signal is a warning, because pre-flight
// tooling inspects signals that Dispatch would refuse. Dispatch itself
// rejects them hard.
//
// The irrigation-channel gate runs only post-dispatch: pass the receipt
// returned by Dispatch, or nil to skip it.
func (o *Orchestrator) ValidateAllGates(sig *signal.Signal, post *Receipt) map[Gate][]GateIssue {
	gates := o.rules.GateRules
	result := make(map[Gate][]GateIssue)

	if config.GateEnabled(gates.ScopeAlignment) {
		result[GateScopeAlignment] = o.checkScopeAlignment(sig)
	}
	if config.GateEnabled(gates.ValueAdd) {
		result[GateValueAdd] = o.checkValueAdd(sig)
	}
	if config.GateEnabled(gates.Capability) {
		result[GateCapability] = o.checkCapability(sig)
	}
	if post != nil && config.GateEnabled(gates.IrrigationChannel) {
		result[GateIrrigationChannel] = o.checkIrrigationChannel(sig, post)
	}

	return result
}

// checkScopeAlignment verifies scope membership in the closed sets and the
// phase's type allow-list. All findings are hard errors.
func (o *Orchestrator) checkScopeAlignment(sig *signal.Signal) []GateIssue {
	var issues []GateIssue

	if err := sig.Scope.Validate(); err != nil {
		issues = append(issues, GateIssue{SeverityError, err.Error()})
	}
	if !sig.Type.IsValid() {
		issues = append(issues, GateIssue{SeverityError, fmt.Sprintf("unknown signal type: %q", sig.Type)})
	} else if allowed, detail := o.typeAllowed(sig); !allowed {
		issues = append(issues, GateIssue{SeverityError, detail})
	}

	return issues
}

// checkValueAdd verifies the availability score. Out-of-range is a hard
// error; below-threshold on a non-enrichment signal is a warning (Dispatch
// rejects it).
func (o *Orchestrator) checkValueAdd(sig *signal.Signal) []GateIssue {
	var issues []GateIssue

	if sig.EmpiricalAvailability < 0 || sig.EmpiricalAvailability > 1 {
		issues = append(issues, GateIssue{SeverityError,
			fmt.Sprintf("empirical_availability %.3f outside [0,1]", sig.EmpiricalAvailability)})
		return issues
	}

	if !sig.Enrichment && sig.EmpiricalAvailability < o.rules.EmpiricalAvailabilityMin {
		issues = append(issues, GateIssue{SeverityWarning,
			fmt.Sprintf("empirical_availability %.3f below threshold %.3f (dispatch would reject)",
				sig.EmpiricalAvailability, o.rules.EmpiricalAvailabilityMin)})
	}

	return issues
}

// checkCapability verifies that at least one enabled registered consumer
// would accept the signal. A miss is a warning only: consumers may register
// later.
func (o *Orchestrator) checkCapability(sig *signal.Signal) []GateIssue {
	for _, entry := range o.snapshotConsumers() {
		o.mu.Lock()
		enabled := entry.enabled
		consumer := entry.consumer
		o.mu.Unlock()

		if !enabled {
			continue
		}
		if ok, _ := consumer.CanHandle(sig); ok {
			return nil
		}
	}

	return []GateIssue{{SeverityWarning, "no enabled consumer would accept this signal"}}
}

// checkIrrigationChannel verifies post-dispatch delivery evidence: the
// receipt shows a routed, delivered signal, and the audit trail holds at
// least one entry for it. A missing audit entry is an error; the rest are
// warnings.
func (o *Orchestrator) checkIrrigationChannel(sig *signal.Signal, post *Receipt) []GateIssue {
	var issues []GateIssue

	if !post.Delivered() {
		issues = append(issues, GateIssue{SeverityWarning,
			fmt.Sprintf("signal was not routed: %s", post.Status)})
	}
	if len(post.DeliveredTo) == 0 {
		issues = append(issues, GateIssue{SeverityWarning, "delivered_to is empty"})
	}
	if len(o.AuditLog(sig.ID)) == 0 {
		issues = append(issues, GateIssue{SeverityError, "no audit entry exists for signal"})
	}

	return issues
}
