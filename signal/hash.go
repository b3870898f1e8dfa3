package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashableSignal is the canonical form digested by ContentHash. Field order
// is fixed; only content-bearing fields participate, so two signals with the
// same type, scope, and payload hash identically regardless of producer,
// capabilities, value score, or time.
type hashableSignal struct {
	Type    Type            `json:"type"`
	Scope   Scope           `json:"scope"`
	Payload json.RawMessage `json:"payload"`
}

// ContentHash returns the hex SHA-256 digest of the signal's canonical
// content. This is the deduplication key. The digest is deterministic:
// payloads are normalized through a marshal/unmarshal round trip so map key
// order cannot leak into the hash.
func (s *Signal) ContentHash() (string, error) {
	payload, err := canonicalJSON(s.Payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	data, err := json.Marshal(hashableSignal{
		Type:    s.Type,
		Scope:   s.Scope,
		Payload: payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal hashable form: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON normalizes an arbitrary JSON-serializable value into a
// deterministic encoding. encoding/json emits map keys in sorted order, so
// round-tripping through untyped values yields a stable byte form.
func canonicalJSON(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, err
	}

	return json.Marshal(norm)
}
