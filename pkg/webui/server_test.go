package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/pkg/agent"
	"assistant/pkg/config"
	"assistant/pkg/conflict"
	"assistant/pkg/executor"
	"assistant/pkg/interaction"
	"assistant/pkg/oracle"
	"assistant/pkg/scoring"
	"assistant/pkg/source"
)

func testServer(t *testing.T) (*Server, *agent.Driver) {
	t.Helper()

	cfg := config.AgentConfig{
		MonitorInterval:      model.Duration(time.Hour),
		CalendarLookahead:    model.Duration(24 * time.Hour),
		TravelBuffer:         model.Duration(15 * time.Minute),
		ResponseWindow:       model.Duration(50 * time.Millisecond),
		InteractionThreshold: "critical",
		ErrorBackoffBase:     model.Duration(time.Millisecond),
		ErrorBackoffCap:      model.Duration(4 * time.Millisecond),
		ScoringWorkers:       1,
		EmailLookbackOnStart: model.Duration(time.Hour),
	}
	calendar := source.NewScriptedCalendarSource()
	driver := agent.NewDriver(cfg, agent.Collaborators{
		Emails:       source.NewScriptedEmailSource(),
		Calendar:     calendar,
		Engine:       scoring.NewEngine(nil, 1),
		Detector:     conflict.NewDetector(time.Duration(cfg.TravelBuffer)),
		Interactions: interaction.NewManager(nopChannel{}, interaction.NewInterpreter(oracle.NewMockClient("")), time.Duration(cfg.ResponseWindow)),
		Executor:     executor.NewExecutor(calendar, source.NewScriptedSender(), false),
	})
	return NewServer(driver, nil), driver
}

type nopChannel struct{}

func (nopChannel) Deliver(ctx context.Context, prompt string) error { return nil }

func (nopChannel) AwaitReply(ctx context.Context, deadline time.Time) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReflectsDriverState(t *testing.T) {
	srv, driver := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap agent.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.False(t, snap.Running)
	assert.Equal(t, "IDLE", string(snap.State))

	require.NoError(t, driver.Start())
	defer driver.Stop()

	resp2, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&snap))
	assert.True(t, snap.Running)
}

func TestStartStopCommands(t *testing.T) {
	srv, driver := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/commands/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, driver.Running())

	// Second start conflicts.
	resp, err = http.Post(ts.URL+"/api/commands/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/commands/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, driver.Running())
}

func TestForceCheckRequiresRunningAgent(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/commands/force-check", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReplyToUnknownInteractionConflicts(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := strings.NewReader(`{"text": "cancel it"}`)
	resp, err := http.Post(ts.URL+"/api/interactions/no-such-id/reply", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReplyRequiresText(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/interactions/x/reply", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryEndpointsWithoutDatabase(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cycles")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Interactions degrade gracefully: active only, empty history.
	resp, err = http.Get(ts.URL + "/api/interactions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBriefRejectsBadDay(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/brief?day=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	// No database wired, so the 503 wins before day parsing.
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpointServes(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
