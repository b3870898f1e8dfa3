// Package signal defines the message model for the signal distribution
// orchestrator: the Signal value, its routing Scope, and its Provenance.
// Signals carry one unit of information extracted from a planning document
// and are immutable after construction; delivery state lives in the
// orchestrator's receipt, never in the signal itself.
package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of information a signal carries. The set is
// closed: phase routing allow-lists reference these values.
type Type string

const (
	// TypeBaselineFact is a factual statement about current conditions.
	TypeBaselineFact Type = "baseline_fact"

	// TypeQuantitativeTarget is a measurable goal with value and horizon.
	TypeQuantitativeTarget Type = "quantitative_target"

	// TypePolicyCommitment is a stated commitment to act.
	TypePolicyCommitment Type = "policy_commitment"

	// TypeSpatialReference ties a statement to a geographic area.
	TypeSpatialReference Type = "spatial_reference"

	// TypeInstitutionalArrangement names a responsible body or mechanism.
	TypeInstitutionalArrangement Type = "institutional_arrangement"

	// TypeFinancingProvision is a budget line or funding source.
	TypeFinancingProvision Type = "financing_provision"

	// TypeMonitoringIndicator is a metric used to track progress.
	TypeMonitoringIndicator Type = "monitoring_indicator"

	// TypeCrossReference links evidence across policy areas.
	TypeCrossReference Type = "cross_reference"

	// TypeEnrichmentNote is derived value-add produced by a pipeline phase.
	TypeEnrichmentNote Type = "enrichment_note"
)

// IsValid checks if a type string is a known signal type.
func (t Type) IsValid() bool {
	switch t {
	case TypeBaselineFact, TypeQuantitativeTarget, TypePolicyCommitment,
		TypeSpatialReference, TypeInstitutionalArrangement,
		TypeFinancingProvision, TypeMonitoringIndicator,
		TypeCrossReference, TypeEnrichmentNote:
		return true
	}
	return false
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// ParseType converts a string to a Type, returning empty for invalid values.
func ParseType(s string) Type {
	t := Type(s)
	if t.IsValid() {
		return t
	}
	return ""
}

// Provenance records where a signal came from. It is purely descriptive and
// never drives routing.
type Provenance struct {
	Extractor         string    `json:"extractor"`
	SourceFile        string    `json:"source_file"`
	SourceLocation    string    `json:"source_location,omitempty"`
	ExtractionPattern string    `json:"extraction_pattern,omitempty"`
	ParentSignalID    string    `json:"parent_signal_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Signal is one immutable unit of extracted information flowing between
// pipeline stages. Identity and timestamp are assigned by New; every other
// field is fixed by the producer at construction time.
// Serialization goes through the wire codec in codec.go, which recomputes
// the content hash on every encode.
type Signal struct {
	ID                    string
	Type                  Type
	Scope                 Scope
	Payload               any
	Provenance            Provenance
	CapabilitiesRequired  []string
	EmpiricalAvailability float64
	Enrichment            bool
	Timestamp             time.Time
}

// Draft holds the producer-supplied fields of a signal.
type Draft struct {
	Type                  Type
	Scope                 Scope
	Payload               any
	Provenance            Provenance
	CapabilitiesRequired  []string
	EmpiricalAvailability float64
	Enrichment            bool
}

// New builds a Signal from a draft, assigning identity and timestamp.
// It does not validate; callers check Validate before dispatching, and the
// orchestrator enforces it regardless.
func New(d Draft) *Signal {
	now := time.Now().UTC()
	prov := d.Provenance
	if prov.CreatedAt.IsZero() {
		prov.CreatedAt = now
	}
	return &Signal{
		ID:                    uuid.New().String(),
		Type:                  d.Type,
		Scope:                 d.Scope,
		Payload:               d.Payload,
		Provenance:            prov,
		CapabilitiesRequired:  d.CapabilitiesRequired,
		EmpiricalAvailability: d.EmpiricalAvailability,
		Enrichment:            d.Enrichment,
		Timestamp:             now,
	}
}

// Validate checks structural well-formedness. It returns false and the full
// list of problems rather than stopping at the first; it never panics.
func (s *Signal) Validate() (bool, []string) {
	var errs []string

	if s.ID == "" {
		errs = append(errs, "signal_id is empty")
	}
	if !s.Type.IsValid() {
		errs = append(errs, fmt.Sprintf("unknown signal type: %q", s.Type))
	}
	if err := s.Scope.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if s.Payload == nil {
		errs = append(errs, "payload is null")
	}
	if len(s.CapabilitiesRequired) == 0 {
		errs = append(errs, "capabilities_required is empty")
	}
	if s.EmpiricalAvailability < 0 || s.EmpiricalAvailability > 1 {
		errs = append(errs, fmt.Sprintf("empirical_availability %.3f outside [0,1]", s.EmpiricalAvailability))
	}

	return len(errs) == 0, errs
}
