package signal

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireSignal is the serialized form of a Signal. The content hash travels on
// the wire but is recomputed at encode time, never stored on the Signal.
type wireSignal struct {
	ID                    string          `json:"signal_id"`
	Type                  Type            `json:"signal_type"`
	Scope                 Scope           `json:"scope"`
	Payload               json.RawMessage `json:"payload"`
	Provenance            Provenance      `json:"provenance"`
	CapabilitiesRequired  []string        `json:"capabilities_required"`
	EmpiricalAvailability float64         `json:"empirical_availability"`
	Enrichment            bool            `json:"enrichment"`
	Timestamp             time.Time       `json:"timestamp"`
	ContentHash           string          `json:"content_hash"`
}

// MarshalJSON implements json.Marshaler, emitting the wire form with the
// content hash recomputed from the current content.
func (s *Signal) MarshalJSON() ([]byte, error) {
	hash, err := s.ContentHash()
	if err != nil {
		return nil, fmt.Errorf("compute content hash: %w", err)
	}

	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return json.Marshal(wireSignal{
		ID:                    s.ID,
		Type:                  s.Type,
		Scope:                 s.Scope,
		Payload:               payload,
		Provenance:            s.Provenance,
		CapabilitiesRequired:  s.CapabilitiesRequired,
		EmpiricalAvailability: s.EmpiricalAvailability,
		Enrichment:            s.Enrichment,
		Timestamp:             s.Timestamp,
		ContentHash:           hash,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The embedded content hash is
// informational and not trusted; consumers recompute it when they need it.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var w wireSignal
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal signal: %w", err)
	}

	var payload any
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	s.ID = w.ID
	s.Type = w.Type
	s.Scope = w.Scope
	s.Payload = payload
	s.Provenance = w.Provenance
	s.CapabilitiesRequired = w.CapabilitiesRequired
	s.EmpiricalAvailability = w.EmpiricalAvailability
	s.Enrichment = w.Enrichment
	s.Timestamp = w.Timestamp
	return nil
}

// Encode serializes the signal to its wire form.
func (s *Signal) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a signal from its wire form.
func Decode(data []byte) (*Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
