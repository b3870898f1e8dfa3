// Package config provides configuration loading and management for PlanLens.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/planlens/planlens/signal"
)

// Defaults applied when a field is absent or a file fails to load.
const (
	DefaultAvailabilityMin = 0.30
	DefaultDedupWindowSecs = 300
)

// Config represents the complete PlanLens configuration.
type Config struct {
	Rules     Rules          `yaml:"rules"`
	Server    ServerConfig   `yaml:"server"`
	Consumers []ConsumerSpec `yaml:"consumers"`
}

// Rules configures the signal distribution orchestrator. Rules are loaded
// once per orchestrator instance and immutable after construction.
type Rules struct {
	// EmpiricalAvailabilityMin is the value gate threshold for
	// non-enrichment signals.
	EmpiricalAvailabilityMin float64 `yaml:"empirical_availability_min"`

	// PhaseRouting maps a phase to the signal types it accepts.
	// A phase with no entry accepts all types.
	PhaseRouting map[signal.Phase][]signal.Type `yaml:"phase_routing"`

	// DeadLetter configures dead-letter persistence.
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`

	// Deduplication configures the content-hash dedup cache.
	Deduplication DedupConfig `yaml:"deduplication"`

	// GateRules enables or disables individual diagnostic gates.
	GateRules GateRules `yaml:"gate_rules"`

	// CapabilitiesRequired documents, per signal type, the capabilities a
	// producer is expected to require. Informational only; routing uses the
	// capabilities carried on each signal.
	CapabilitiesRequired map[signal.Type][]string `yaml:"capabilities_required"`
}

// DeadLetterConfig configures dead-letter persistence.
type DeadLetterConfig struct {
	// Enabled turns persistence on. The in-memory dead-letter list is kept
	// regardless.
	Enabled bool `yaml:"enabled"`

	// Backend selects the sink implementation: file, sqlite, nats, or none.
	Backend string `yaml:"backend"`

	// Path is the directory (file backend) or database file (sqlite backend).
	Path string `yaml:"path"`

	// URL is the NATS server URL for the nats backend.
	URL string `yaml:"url"`

	// Subject is the NATS subject for the nats backend.
	Subject string `yaml:"subject"`
}

// DedupConfig configures deduplication.
type DedupConfig struct {
	// WindowSeconds is how long an identical-content signal is treated as
	// a duplicate of an earlier successful delivery.
	WindowSeconds int `yaml:"window_seconds"`
}

// GateRules enables individual diagnostic validation gates.
// A nil flag means enabled.
type GateRules struct {
	ScopeAlignment    *bool `yaml:"scope_alignment"`
	ValueAdd          *bool `yaml:"value_add"`
	Capability        *bool `yaml:"capability"`
	IrrigationChannel *bool `yaml:"irrigation_channel"`
}

// GateEnabled interprets a nil flag as enabled.
func GateEnabled(flag *bool) bool {
	return flag == nil || *flag
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`
}

// ConsumerSpec declares a consumer registered at startup by the serve
// command. The built-in handler appends delivered signals to a JSONL file;
// real pipeline phases register programmatically.
type ConsumerSpec struct {
	ID           string         `yaml:"id"`
	Scopes       []signal.Scope `yaml:"scopes"`
	Capabilities []string       `yaml:"capabilities"`
	Output       string         `yaml:"output"`
}

// DefaultConfig returns a Config with documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Rules: DefaultRules(),
		Server: ServerConfig{
			Listen: ":8410",
		},
	}
}

// DefaultRules returns routing rules with documented defaults: value gate at
// 0.30, a five-minute dedup window, dead-letter persistence off, all gates
// enabled, and no phase allow-lists (every phase accepts every type).
func DefaultRules() Rules {
	return Rules{
		EmpiricalAvailabilityMin: DefaultAvailabilityMin,
		Deduplication: DedupConfig{
			WindowSeconds: DefaultDedupWindowSecs,
		},
		DeadLetter: DeadLetterConfig{
			Enabled: false,
			Backend: "file",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	for i, spec := range c.Consumers {
		if spec.ID == "" {
			return fmt.Errorf("consumers[%d]: id is required", i)
		}
		if len(spec.Scopes) == 0 {
			return fmt.Errorf("consumer %q: at least one scope is required", spec.ID)
		}
		for _, sc := range spec.Scopes {
			if err := sc.Validate(); err != nil {
				return fmt.Errorf("consumer %q: %w", spec.ID, err)
			}
		}
	}
	return nil
}

// Validate checks that the routing rules are well-formed.
func (r *Rules) Validate() error {
	if r.EmpiricalAvailabilityMin < 0 || r.EmpiricalAvailabilityMin > 1 {
		return fmt.Errorf("empirical_availability_min must be between 0 and 1, got %v", r.EmpiricalAvailabilityMin)
	}
	if r.Deduplication.WindowSeconds < 0 {
		return fmt.Errorf("deduplication.window_seconds must not be negative, got %d", r.Deduplication.WindowSeconds)
	}
	for phase, types := range r.PhaseRouting {
		if !phase.IsValid() {
			return fmt.Errorf("phase_routing: unknown phase %q", phase)
		}
		for _, t := range types {
			if !t.IsValid() {
				return fmt.Errorf("phase_routing[%s]: unknown signal type %q", phase, t)
			}
		}
	}
	switch r.DeadLetter.Backend {
	case "", "file", "sqlite", "nats", "none":
	default:
		return fmt.Errorf("dead_letter.backend must be file, sqlite, nats, or none, got %q", r.DeadLetter.Backend)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Rules.EmpiricalAvailabilityMin != 0 {
		c.Rules.EmpiricalAvailabilityMin = other.Rules.EmpiricalAvailabilityMin
	}
	if len(other.Rules.PhaseRouting) > 0 {
		c.Rules.PhaseRouting = other.Rules.PhaseRouting
	}
	if other.Rules.Deduplication.WindowSeconds != 0 {
		c.Rules.Deduplication.WindowSeconds = other.Rules.Deduplication.WindowSeconds
	}
	if other.Rules.DeadLetter.Enabled {
		c.Rules.DeadLetter.Enabled = true
	}
	if other.Rules.DeadLetter.Backend != "" {
		c.Rules.DeadLetter.Backend = other.Rules.DeadLetter.Backend
	}
	if other.Rules.DeadLetter.Path != "" {
		c.Rules.DeadLetter.Path = other.Rules.DeadLetter.Path
	}
	if other.Rules.DeadLetter.URL != "" {
		c.Rules.DeadLetter.URL = other.Rules.DeadLetter.URL
	}
	if other.Rules.DeadLetter.Subject != "" {
		c.Rules.DeadLetter.Subject = other.Rules.DeadLetter.Subject
	}
	if other.Rules.GateRules.ScopeAlignment != nil {
		c.Rules.GateRules.ScopeAlignment = other.Rules.GateRules.ScopeAlignment
	}
	if other.Rules.GateRules.ValueAdd != nil {
		c.Rules.GateRules.ValueAdd = other.Rules.GateRules.ValueAdd
	}
	if other.Rules.GateRules.Capability != nil {
		c.Rules.GateRules.Capability = other.Rules.GateRules.Capability
	}
	if other.Rules.GateRules.IrrigationChannel != nil {
		c.Rules.GateRules.IrrigationChannel = other.Rules.GateRules.IrrigationChannel
	}
	if len(other.Rules.CapabilitiesRequired) > 0 {
		c.Rules.CapabilitiesRequired = other.Rules.CapabilitiesRequired
	}

	if other.Server.Listen != "" {
		c.Server.Listen = other.Server.Listen
	}
	if len(other.Consumers) > 0 {
		c.Consumers = other.Consumers
	}
}
