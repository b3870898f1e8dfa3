package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlens/planlens/signal"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8410", cfg.Server.Listen)
	assert.Equal(t, DefaultAvailabilityMin, cfg.Rules.EmpiricalAvailabilityMin)
	assert.Equal(t, DefaultDedupWindowSecs, cfg.Rules.Deduplication.WindowSeconds)
	assert.False(t, cfg.Rules.DeadLetter.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"availability above one", func(c *Config) {
			c.Rules.EmpiricalAvailabilityMin = 1.5
		}},
		{"negative dedup window", func(c *Config) {
			c.Rules.Deduplication.WindowSeconds = -1
		}},
		{"unknown phase in routing", func(c *Config) {
			c.Rules.PhaseRouting = map[signal.Phase][]signal.Type{
				"phase_99": {signal.TypeBaselineFact},
			}
		}},
		{"unknown type in routing", func(c *Config) {
			c.Rules.PhaseRouting = map[signal.Phase][]signal.Type{
				signal.Phase01: {"bogus_type"},
			}
		}},
		{"unknown dead-letter backend", func(c *Config) {
			c.Rules.DeadLetter.Backend = "carrier-pigeon"
		}},
		{"consumer without id", func(c *Config) {
			c.Consumers = []ConsumerSpec{{Scopes: []signal.Scope{signal.MustScope(signal.Phase01, signal.PA01, "D1-Q1")}}}
		}},
		{"consumer without scopes", func(c *Config) {
			c.Consumers = []ConsumerSpec{{ID: "c1"}}
		}},
		{"consumer with bad scope", func(c *Config) {
			c.Consumers = []ConsumerSpec{{ID: "c1", Scopes: []signal.Scope{{Phase: "phase_99", PolicyArea: signal.PA01, Slot: "D1-Q1"}}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGateEnabled(t *testing.T) {
	on, off := true, false
	assert.True(t, GateEnabled(nil))
	assert.True(t, GateEnabled(&on))
	assert.False(t, GateEnabled(&off))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planlens.yaml")
	content := `
rules:
  empirical_availability_min: 0.5
  phase_routing:
    phase_02:
      - quantitative_target
      - baseline_fact
  dead_letter:
    enabled: true
    backend: sqlite
    path: dl.db
server:
  listen: ":9999"
consumers:
  - id: indicator-writer
    scopes:
      - phase: phase_02
        policy_area: ALL
        slot: ALL
    capabilities: [indicators]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Rules.EmpiricalAvailabilityMin)
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.True(t, cfg.Rules.DeadLetter.Enabled)
	assert.Equal(t, "sqlite", cfg.Rules.DeadLetter.Backend)
	assert.Equal(t, []signal.Type{signal.TypeQuantitativeTarget, signal.TypeBaselineFact},
		cfg.Rules.PhaseRouting[signal.Phase02])

	// Fields the file does not mention keep their defaults.
	assert.Equal(t, DefaultDedupWindowSecs, cfg.Rules.Deduplication.WindowSeconds)

	require.Len(t, cfg.Consumers, 1)
	assert.Equal(t, "indicator-writer", cfg.Consumers[0].ID)
	assert.Equal(t, signal.PolicyAreaAll, cfg.Consumers[0].Scopes[0].PolicyArea)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: [not, a, map]"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planlens.yaml")

	cfg := DefaultConfig()
	cfg.Server.Listen = ":7777"
	cfg.Rules.DeadLetter.Backend = "nats"
	cfg.Rules.DeadLetter.URL = "nats://localhost:4222"
	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", got.Server.Listen)
	assert.Equal(t, "nats", got.Rules.DeadLetter.Backend)
	assert.Equal(t, "nats://localhost:4222", got.Rules.DeadLetter.URL)
}

func TestMerge(t *testing.T) {
	off := false
	base := DefaultConfig()
	overlay := &Config{
		Rules: Rules{
			EmpiricalAvailabilityMin: 0.6,
			DeadLetter:               DeadLetterConfig{Enabled: true, Backend: "none"},
			GateRules:                GateRules{Capability: &off},
		},
		Server: ServerConfig{Listen: ":9000"},
	}

	base.Merge(overlay)

	assert.Equal(t, 0.6, base.Rules.EmpiricalAvailabilityMin)
	assert.Equal(t, ":9000", base.Server.Listen)
	assert.True(t, base.Rules.DeadLetter.Enabled)
	assert.Equal(t, "none", base.Rules.DeadLetter.Backend)
	assert.False(t, GateEnabled(base.Rules.GateRules.Capability))
	assert.Nil(t, base.Rules.GateRules.ValueAdd)

	// Zero values in the overlay leave the base untouched.
	assert.Equal(t, DefaultDedupWindowSecs, base.Rules.Deduplication.WindowSeconds)

	base.Merge(nil)
	assert.Equal(t, ":9000", base.Server.Listen)
}
