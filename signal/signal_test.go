package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDraft() Draft {
	return Draft{
		Type:  TypeQuantitativeTarget,
		Scope: MustScope(Phase02, PA03, "D1-Q4"),
		Payload: map[string]any{
			"statement": "reduce transport emissions 40% by 2035",
			"value":     40.0,
			"horizon":   2035,
		},
		Provenance: Provenance{
			Extractor:  "regex-targets",
			SourceFile: "plans/metro-2040.pdf",
		},
		CapabilitiesRequired:  []string{"scoring"},
		EmpiricalAvailability: 0.8,
	}
}

func TestNewAssignsIdentity(t *testing.T) {
	a := New(testDraft())
	b := New(testDraft())

	require.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())
	assert.False(t, a.Provenance.CreatedAt.IsZero())
}

func TestSignalValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ok, errs := New(testDraft()).Validate()
		assert.True(t, ok)
		assert.Empty(t, errs)
	})

	t.Run("collects all problems", func(t *testing.T) {
		d := testDraft()
		d.Payload = nil
		d.CapabilitiesRequired = nil
		d.EmpiricalAvailability = 1.5
		ok, errs := New(d).Validate()

		assert.False(t, ok)
		require.Len(t, errs, 3)
	})

	t.Run("unknown type", func(t *testing.T) {
		d := testDraft()
		d.Type = "headline"
		ok, errs := New(d).Validate()

		assert.False(t, ok)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "headline")
	})
}

func TestContentHashIdempotent(t *testing.T) {
	s := New(testDraft())

	h1, err := s.ContentHash()
	require.NoError(t, err)
	h2, err := s.ContentHash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestContentHashIgnoresNonContentFields(t *testing.T) {
	a := New(testDraft())

	d := testDraft()
	d.Provenance = Provenance{Extractor: "someone-else", SourceFile: "other.pdf"}
	d.CapabilitiesRequired = []string{"scoring", "aggregation"}
	d.EmpiricalAvailability = 0.2
	b := New(d)
	b.Timestamp = b.Timestamp.Add(time.Hour)

	ha, err := a.ContentHash()
	require.NoError(t, err)
	hb, err := b.ContentHash()
	require.NoError(t, err)

	// Same type, scope, and payload: indistinguishable regardless of
	// producer, capabilities, value score, or time.
	assert.Equal(t, ha, hb)
}

func TestContentHashSensitiveToContent(t *testing.T) {
	a := New(testDraft())

	d := testDraft()
	d.Payload = map[string]any{"statement": "different"}
	b := New(d)

	ha, _ := a.ContentHash()
	hb, _ := b.ContentHash()
	assert.NotEqual(t, ha, hb)

	d = testDraft()
	d.Scope = MustScope(Phase02, PA04, "D1-Q4")
	c := New(d)
	hc, _ := c.ContentHash()
	assert.NotEqual(t, ha, hc)
}

func TestWireRoundTrip(t *testing.T) {
	s := New(testDraft())

	data, err := s.Encode()
	require.NoError(t, err)

	// The hash is computed at encode time and travels on the wire.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	hash, _ := s.ContentHash()
	assert.Equal(t, hash, raw["content_hash"])

	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Type, got.Type)
	assert.Equal(t, s.Scope, got.Scope)
	assert.Equal(t, s.CapabilitiesRequired, got.CapabilitiesRequired)
	assert.Equal(t, s.EmpiricalAvailability, got.EmpiricalAvailability)
	assert.Equal(t, s.Enrichment, got.Enrichment)
	assert.Equal(t, s.Provenance.Extractor, got.Provenance.Extractor)
	assert.True(t, s.Timestamp.Equal(got.Timestamp))

	// Content is preserved, so the decoded signal hashes identically.
	gotHash, err := got.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, hash, gotHash)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"payload": "ok", "scope": 7}`))
	require.Error(t, err)
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeBaselineFact, ParseType("baseline_fact"))
	assert.Equal(t, Type(""), ParseType("headline"))
}
