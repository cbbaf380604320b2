package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/perpautopilot/internal/alerts"
	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/eventscan"
	"github.com/aristath/perpautopilot/internal/policy"
	"github.com/aristath/perpautopilot/internal/scheduler"
	"github.com/aristath/perpautopilot/internal/store"
	"github.com/aristath/perpautopilot/internal/storetest"
)

type noopJob struct{ ran int }

func (j *noopJob) Name() string { return "noop" }
func (j *noopJob) Run(ctx context.Context) error {
	j.ran++
	return nil
}

func newTestServer(t *testing.T, now time.Time) (*Server, *noopJob) {
	t.Helper()
	db, cleanup := storetest.New(t)
	t.Cleanup(cleanup)

	fixed := clock.NewFixed(now)
	jobRepo := store.NewJobRepository(db.Conn(), zerolog.Nop())
	sched := scheduler.New(jobRepo, fixed, zerolog.Nop(), time.Second)
	job := &noopJob{}
	require.NoError(t, sched.RegisterJob(scheduler.Definition{
		Name: "noop", Kind: store.ScheduleInterval, IntervalMs: 60_000, LeaseMs: 5_000,
	}, job))

	policyRepo := store.NewPolicyRepository(db.Conn(), zerolog.Nop())
	engine := policy.NewEngine(policyRepo, fixed, policy.DefaultConfig())

	alertRepo := store.NewAlertRepository(db.Conn(), zerolog.Nop())
	alertsCfg := alerts.DefaultConfig()
	alertsCfg.ActionableReasons = map[string]bool{"test_reason": true}
	pipeline := alerts.New(alertRepo, alerts.NewLogNotifier(zerolog.Nop()), fixed, alertsCfg, zerolog.Nop())

	coordinator := eventscan.New(eventscan.Config{Enabled: true, CooldownMs: 60_000}, fixed)

	srv := New(Config{
		Port:       0,
		Log:        zerolog.Nop(),
		DevMode:    true,
		Clock:      fixed,
		Scheduler:  sched,
		PolicyRepo: policyRepo,
		Engine:     engine,
		Alerts:     pipeline,
		AlertRepo:  alertRepo,
		EventScan:  coordinator,
		ScanJob:    "noop",
	})
	return srv, job
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListJobs_ReturnsRegisteredJob(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodGet, "/api/jobs/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var jobs []store.JobRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "noop", jobs[0].Name)
}

func TestHandleForceJob_RunsHandlerImmediately(t *testing.T) {
	srv, job := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodPost, "/api/jobs/noop/force", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, job.ran)
}

func TestHandleForceJob_UnknownJobReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodPost, "/api/jobs/does-not-exist/force", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePauseThenResume_RoundTripsObservationWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, now)

	rec := doRequest(t, srv, http.MethodPost, "/api/policy/pause", map[string]interface{}{"duration_minutes": 30, "reason": "manual test"})
	assert.Equal(t, http.StatusOK, rec.Code)

	stateRec := doRequest(t, srv, http.MethodGet, "/api/policy/state", nil)
	require.Equal(t, http.StatusOK, stateRec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(stateRec.Body.Bytes(), &body))
	state := body["state"].(map[string]interface{})
	assert.NotNil(t, state["ObservationOnlyUntil"])

	resumeRec := doRequest(t, srv, http.MethodPost, "/api/policy/resume", nil)
	assert.Equal(t, http.StatusOK, resumeRec.Code)

	stateRec2 := doRequest(t, srv, http.MethodGet, "/api/policy/state", nil)
	var body2 map[string]interface{}
	require.NoError(t, json.Unmarshal(stateRec2.Body.Bytes(), &body2))
	state2 := body2["state"].(map[string]interface{})
	assert.Nil(t, state2["ObservationOnlyUntil"])
}

func TestHandleSetFullAuto_TogglesEngineFlag(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodPost, "/api/autonomy/full-auto", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["full_auto"])
}

func TestHandleSetFullAuto_MalformedBodyReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())
	req := httptest.NewRequest(http.MethodPost, "/api/autonomy/full-auto", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListAlertsAndResolveAndAcknowledge(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())

	decision, err := srv.alerts.Create(alerts.CreateInput{
		Reason: "test_reason", Severity: "warning", Summary: "something happened",
	})
	require.NoError(t, err)
	require.False(t, decision.Suppressed)

	listRec := doRequest(t, srv, http.MethodGet, "/api/alerts/", nil)
	assert.Equal(t, http.StatusOK, listRec.Code)
	var rows []store.AlertRow
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)

	ackRec := doRequest(t, srv, http.MethodPost, "/api/alerts/"+decision.AlertID+"/acknowledge", map[string]string{"by": "operator"})
	assert.Equal(t, http.StatusOK, ackRec.Code)

	require.NoError(t, srv.alerts.Dispatch(context.Background(), decision))
	resolveRec := doRequest(t, srv, http.MethodPost, "/api/alerts/"+decision.AlertID+"/resolve", map[string]string{"detail": "handled"})
	assert.Equal(t, http.StatusOK, resolveRec.Code)
}

func TestHandleResolveAlert_UnknownIDReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodPost, "/api/alerts/does-not-exist/resolve", map[string]string{"detail": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEventNotify_ForcesScanJobWhenAllowed(t *testing.T) {
	srv, job := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodPost, "/api/events/notify", map[string]interface{}{
		"event_key": "news", "item_count": 5, "min_items": 1,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, job.ran)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(eventscan.Allowed), body["decision"])
}

func TestHandleEventNotify_BelowMinItemsDoesNotForceJob(t *testing.T) {
	srv, job := newTestServer(t, time.Now())
	rec := doRequest(t, srv, http.MethodPost, "/api/events/notify", map[string]interface{}{
		"event_key": "news", "item_count": 0, "min_items": 1,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, job.ran)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(eventscan.BelowMinItems), body["decision"])
}

func TestHandleEventNotify_MalformedBodyReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, time.Now())
	req := httptest.NewRequest(http.MethodPost, "/api/events/notify", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
