package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlens/planlens/config"
	"github.com/planlens/planlens/signal"
)

func issuesWithSeverity(issues []GateIssue, sev Severity) int {
	n := 0
	for _, i := range issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

func TestValidateAllGatesCleanSignal(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	registerRecorder(t, o, "c1", []string{"X"})

	result := o.ValidateAllGates(testSignal(0.9, false), nil)

	require.Contains(t, result, GateScopeAlignment)
	require.Contains(t, result, GateValueAdd)
	require.Contains(t, result, GateCapability)
	assert.NotContains(t, result, GateIrrigationChannel, "post-dispatch gate needs a receipt")

	for gate, issues := range result {
		assert.Empty(t, issues, "gate %s", gate)
	}
}

func TestGateScopeAlignment(t *testing.T) {
	rules := config.DefaultRules()
	rules.PhaseRouting = map[signal.Phase][]signal.Type{
		signal.Phase01: {signal.TypeBaselineFact},
	}
	o := newTestOrchestrator(t, &rules)

	sig := testSignal(0.9, false) // quantitative_target into phase_01
	result := o.ValidateAllGates(sig, nil)

	issues := result[GateScopeAlignment]
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Contains(t, issues[0].Message, "not permitted")
}

func TestGateValueAddDivergesFromDispatch(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	registerRecorder(t, o, "c1", []string{"X"})

	sig := testSignal(0.1, false)

	// The diagnostic gate only warns about a below-threshold score...
	issues := o.ValidateAllGates(sig, nil)[GateValueAdd]
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)

	// ...while dispatch rejects it hard.
	receipt := o.Dispatch(context.Background(), sig)
	assert.Equal(t, StatusRejected, receipt.Status)
}

func TestGateValueAddOutOfRangeIsError(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	sig := testSignal(0.9, false)
	sig.EmpiricalAvailability = 1.2

	issues := o.ValidateAllGates(sig, nil)[GateValueAdd]
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
}

func TestGateValueAddExemptsEnrichment(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	assert.Empty(t, o.ValidateAllGates(testSignal(0.1, true), nil)[GateValueAdd])
}

func TestGateCapability(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	// No consumers at all: warning only.
	issues := o.ValidateAllGates(testSignal(0.9, false), nil)[GateCapability]
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)

	// A disabled consumer does not count.
	registerRecorder(t, o, "c1", []string{"X"})
	require.True(t, o.SetConsumerEnabled("c1", false))
	issues = o.ValidateAllGates(testSignal(0.9, false), nil)[GateCapability]
	assert.Len(t, issues, 1)

	require.True(t, o.SetConsumerEnabled("c1", true))
	assert.Empty(t, o.ValidateAllGates(testSignal(0.9, false), nil)[GateCapability])
}

func TestGateIrrigationChannel(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	registerRecorder(t, o, "c1", []string{"X"})

	sig := testSignal(0.9, false)
	receipt := o.Dispatch(context.Background(), sig)
	require.True(t, receipt.Delivered())

	assert.Empty(t, o.ValidateAllGates(sig, &receipt)[GateIrrigationChannel])

	// A rejected signal still has audit entries, so only warnings appear.
	rejected := testSignal(0.1, false)
	rejectedReceipt := o.Dispatch(context.Background(), rejected)
	issues := o.ValidateAllGates(rejected, &rejectedReceipt)[GateIrrigationChannel]
	assert.Equal(t, 2, issuesWithSeverity(issues, SeverityWarning))
	assert.Equal(t, 0, issuesWithSeverity(issues, SeverityError))

	// A missing audit trail is the hard error.
	o.ClearAuditLog()
	issues = o.ValidateAllGates(sig, &receipt)[GateIrrigationChannel]
	assert.Equal(t, 1, issuesWithSeverity(issues, SeverityError))
}

func TestGateRulesDisableGates(t *testing.T) {
	off := false
	rules := config.DefaultRules()
	rules.GateRules.ValueAdd = &off
	rules.GateRules.Capability = &off
	o := newTestOrchestrator(t, &rules)

	result := o.ValidateAllGates(testSignal(0.1, false), nil)

	assert.Contains(t, result, GateScopeAlignment)
	assert.NotContains(t, result, GateValueAdd)
	assert.NotContains(t, result, GateCapability)
}
