package signal

import "fmt"

// Phase identifies a pipeline phase. Signals are addressed to concrete
// phases; subscriptions may use PhaseAll as a wildcard.
type Phase string

const (
	Phase00 Phase = "phase_00"
	Phase01 Phase = "phase_01"
	Phase02 Phase = "phase_02"
	Phase03 Phase = "phase_03"
	Phase04 Phase = "phase_04"
	Phase05 Phase = "phase_05"
	Phase06 Phase = "phase_06"
	Phase07 Phase = "phase_07"
	Phase08 Phase = "phase_08"
	Phase09 Phase = "phase_09"

	// PhaseAll matches any phase when used on the subscription side.
	PhaseAll Phase = "ALL"
)

// IsValid checks if the phase is a member of the closed set.
func (p Phase) IsValid() bool {
	switch p {
	case Phase00, Phase01, Phase02, Phase03, Phase04,
		Phase05, Phase06, Phase07, Phase08, Phase09, PhaseAll:
		return true
	}
	return false
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// PolicyArea identifies one of the questionnaire's policy areas.
type PolicyArea string

const (
	PA01 PolicyArea = "PA01"
	PA02 PolicyArea = "PA02"
	PA03 PolicyArea = "PA03"
	PA04 PolicyArea = "PA04"
	PA05 PolicyArea = "PA05"
	PA06 PolicyArea = "PA06"
	PA07 PolicyArea = "PA07"
	PA08 PolicyArea = "PA08"
	PA09 PolicyArea = "PA09"
	PA10 PolicyArea = "PA10"

	// PolicyAreaAll matches any policy area when used on the subscription side.
	PolicyAreaAll PolicyArea = "ALL"

	// PolicyAreaCrossCutting marks signals that span policy areas.
	PolicyAreaCrossCutting PolicyArea = "CROSS_CUTTING"
)

// IsValid checks if the policy area is a member of the closed set.
func (a PolicyArea) IsValid() bool {
	switch a {
	case PA01, PA02, PA03, PA04, PA05, PA06, PA07, PA08, PA09, PA10,
		PolicyAreaAll, PolicyAreaCrossCutting:
		return true
	}
	return false
}

// String returns the string representation of the policy area.
func (a PolicyArea) String() string {
	return string(a)
}

// SlotAll matches any slot, on either side of a match.
const SlotAll = "ALL"

// Scope is the three-axis routing coordinate for a signal: which pipeline
// phase it belongs to, which policy area it concerns, and which
// questionnaire slot (dimension/question) it answers.
type Scope struct {
	Phase      Phase      `json:"phase" yaml:"phase"`
	PolicyArea PolicyArea `json:"policy_area" yaml:"policy_area"`
	Slot       string     `json:"slot" yaml:"slot"`
}

// NewScope creates a Scope, rejecting values outside the closed phase and
// policy-area sets immediately rather than at dispatch time.
func NewScope(phase Phase, area PolicyArea, slot string) (Scope, error) {
	if !phase.IsValid() {
		return Scope{}, fmt.Errorf("invalid phase: %q", phase)
	}
	if !area.IsValid() {
		return Scope{}, fmt.Errorf("invalid policy area: %q", area)
	}
	if slot == "" {
		return Scope{}, fmt.Errorf("slot must not be empty")
	}
	return Scope{Phase: phase, PolicyArea: area, Slot: slot}, nil
}

// MustScope creates a Scope, panicking on invalid values.
// Use for known-good coordinates.
func MustScope(phase Phase, area PolicyArea, slot string) Scope {
	s, err := NewScope(phase, area, slot)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that all three axes are well-formed.
func (s Scope) Validate() error {
	if !s.Phase.IsValid() {
		return fmt.Errorf("invalid phase: %q", s.Phase)
	}
	if !s.PolicyArea.IsValid() {
		return fmt.Errorf("invalid policy area: %q", s.PolicyArea)
	}
	if s.Slot == "" {
		return fmt.Errorf("slot must not be empty")
	}
	return nil
}

// Matches reports whether this scope falls within other, where other is a
// subscription scope. Phase and policy area wildcard only on the
// subscription side; slot wildcards on either side, so an enrichment signal
// addressed to slot ALL reaches consumers subscribed to concrete slots.
func (s Scope) Matches(other Scope) bool {
	if s.Phase != other.Phase && other.Phase != PhaseAll {
		return false
	}
	if s.PolicyArea != other.PolicyArea && other.PolicyArea != PolicyAreaAll {
		return false
	}
	if s.Slot != other.Slot && s.Slot != SlotAll && other.Slot != SlotAll {
		return false
	}
	return true
}

// String returns the scope as phase/policy_area/slot.
func (s Scope) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Phase, s.PolicyArea, s.Slot)
}
