package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlens/planlens/config"
	"github.com/planlens/planlens/deadletter"
	"github.com/planlens/planlens/orchestrator"
	"github.com/planlens/planlens/signal"
)

func newTestServer(t *testing.T) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(config.DefaultRules(), deadletter.NoopSink{}, logger)
	return New(orch, ":0", logger), orch
}

func registerAcceptAll(t *testing.T, orch *orchestrator.Orchestrator, id string) {
	t.Helper()
	err := orch.RegisterConsumer(orchestrator.Consumer{
		ID:           id,
		Scopes:       []signal.Scope{signal.MustScope(signal.Phase01, signal.PolicyAreaAll, signal.SlotAll)},
		Capabilities: []string{"targets"},
		Handler: orchestrator.HandlerFunc(func(context.Context, *signal.Signal) error {
			return nil
		}),
	})
	require.NoError(t, err)
}

func wireBody(t *testing.T, avail float64) *bytes.Reader {
	t.Helper()
	sig := signal.New(signal.Draft{
		Type:  signal.TypeQuantitativeTarget,
		Scope: signal.MustScope(signal.Phase01, signal.PA03, "D2-Q9"),
		Payload: map[string]any{
			"statement": "expand cycling network to 400km by 2030",
		},
		CapabilitiesRequired:  []string{"targets"},
		EmpiricalAvailability: avail,
	})
	data, err := sig.Encode()
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func doRequest(t *testing.T, s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDispatchEndpoint(t *testing.T) {
	s, orch := newTestServer(t)
	registerAcceptAll(t, orch, "c1")

	rec := doRequest(t, s, http.MethodPost, "/api/signals", wireBody(t, 0.9))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var receipt orchestrator.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, orchestrator.StatusDelivered, receipt.Status)
	assert.Equal(t, []string{"c1"}, receipt.DeliveredTo)
}

func TestDispatchEndpointRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/signals", strings.NewReader("{not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "decode_error", errResp.Error)

	rec = doRequest(t, s, http.MethodGet, "/api/signals", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	s, orch := newTestServer(t)
	registerAcceptAll(t, orch, "c1")

	rec := doRequest(t, s, http.MethodPost, "/api/signals/validate", wireBody(t, 0.1))
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[orchestrator.Gate][]orchestrator.GateIssue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	require.Len(t, result[orchestrator.GateValueAdd], 1)
	assert.Equal(t, orchestrator.SeverityWarning, result[orchestrator.GateValueAdd][0].Severity)

	// Validation never dispatches.
	assert.Equal(t, int64(0), orch.MetricsSnapshot().Dispatched)
}

func TestDeadLetterEndpoints(t *testing.T) {
	s, orch := newTestServer(t)

	// No consumers: the signal dead-letters.
	rec := doRequest(t, s, http.MethodPost, "/api/signals", wireBody(t, 0.9))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/deadletters", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var letters []deadletter.DeadLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &letters))
	require.Len(t, letters, 1)
	assert.Equal(t, deadletter.ReasonNoConsumer, letters[0].Reason)

	rec = doRequest(t, s, http.MethodGet, "/api/deadletters?reason=LOW_VALUE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty []deadletter.DeadLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Empty(t, empty)

	rec = doRequest(t, s, http.MethodGet, "/api/deadletters?reason=NOT_A_REASON", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Replay after registering a consumer delivers the signal.
	registerAcceptAll(t, orch, "c1")
	rec = doRequest(t, s, http.MethodPost, "/api/deadletters/"+letters[0].ID+"/replay", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt orchestrator.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, orchestrator.StatusDelivered, receipt.Status)

	rec = doRequest(t, s, http.MethodPost, "/api/deadletters/"+letters[0].ID+"/replay", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/deadletters/no-replay-suffix", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditEndpoints(t *testing.T) {
	s, orch := newTestServer(t)
	registerAcceptAll(t, orch, "c1")

	rec := doRequest(t, s, http.MethodPost, "/api/signals", wireBody(t, 0.9))
	require.Equal(t, http.StatusOK, rec.Code)
	var receipt orchestrator.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))

	rec = doRequest(t, s, http.MethodGet, "/api/audit?signal_id="+receipt.SignalID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []orchestrator.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)

	rec = doRequest(t, s, http.MethodDelete, "/api/audit", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Empty(t, entries)
}

func TestConsumersEndpoint(t *testing.T) {
	s, orch := newTestServer(t)
	registerAcceptAll(t, orch, "c1")

	rec := doRequest(t, s, http.MethodGet, "/api/consumers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []orchestrator.ConsumerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "c1", infos[0].ID)
	assert.True(t, infos[0].Enabled)
}

func TestHealthEndpoint(t *testing.T) {
	s, orch := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health orchestrator.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, orchestrator.Healthy, health.Status)

	// Every dispatch dead-letters (no consumers), driving the rate past the
	// threshold.
	for i := 0; i < 3; i++ {
		body := wireBody(t, 0.9)
		doRequest(t, s, http.MethodPost, "/api/signals", body)
	}
	require.Equal(t, int64(3), orch.MetricsSnapshot().DeadLettered)

	rec = doRequest(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsAndMetricsEndpoints(t *testing.T) {
	s, orch := newTestServer(t)
	registerAcceptAll(t, orch, "c1")

	doRequest(t, s, http.MethodPost, "/api/signals", wireBody(t, 0.9))

	rec := doRequest(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m orchestrator.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, int64(1), m.Dispatched)
	assert.Equal(t, int64(1), m.Delivered)
	require.Equal(t, m, orch.MetricsSnapshot())

	rec = doRequest(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "planlens_signals_dispatched_total 1")
	assert.Contains(t, body, "planlens_orchestrator_healthy 1")
}
