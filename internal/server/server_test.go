package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabridge/pkg/logger"
	"instabridge/pkg/metrics"
	"instabridge/pkg/settings"
	"instabridge/pkg/state"
)

type fixture struct {
	srv      *Server
	settings *settings.Store
	state    *state.Store
	registry *prom.Registry
}

func newFixture(t *testing.T, creds bool) *fixture {
	dir := t.TempDir()
	log := logger.NewNopLogger()
	f := &fixture{
		settings: settings.NewStore(filepath.Join(dir, "settings.json"), log),
		state:    state.NewStore(filepath.Join(dir, "state.json"), log),
		registry: prom.NewRegistry(),
	}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	f.srv = New(Options{
		Settings:       f.settings,
		State:          f.state,
		Registry:       f.registry,
		FallbackName:   "Mom",
		DataDir:        dir,
		HasCredentials: func() bool { return creds },
		Logger:         log,
		Now:            func() time.Time { return now },
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthDegradedUntilFilesExist(t *testing.T) {
	f := newFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, Version, body["version"])

	require.NoError(t, f.settings.Save(&settings.Document{Schedule: settings.DefaultSchedule()}))
	require.NoError(t, f.state.Save(state.New()))

	rec, body = f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthWithoutCredentials(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.settings.Save(&settings.Document{}))
	require.NoError(t, f.state.Save(state.New()))

	rec, body := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := body["environment"].(map[string]interface{})
	assert.Equal(t, false, env["ig_credentials_set"])
	assert.Equal(t, true, env["wa_contact_set"])
}

func TestGetSettingsSynthesizesDefaultRecipient(t *testing.T) {
	f := newFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	doc := body["settings"].(map[string]interface{})
	recipients := doc["recipients"].([]interface{})
	require.Len(t, recipients, 1)
	r := recipients[0].(map[string]interface{})
	assert.Equal(t, "default", r["id"])
	assert.Equal(t, "Mom", r["wa_contact_name"])
	assert.False(t, f.settings.Exists(), "reading never writes")
}

func TestSaveSettings(t *testing.T) {
	f := newFixture(t, true)
	payload := `{
		"schedule": {"enabled": true, "tz": "Europe/Berlin", "time_hhmm": "7:5"},
		"recipients": [
			{"id": "a", "display_name": "Alice", "wa_phone": "+49 151 234", "enabled": true},
			{"id": "a", "display_name": "Duplicate"}
		]
	}`

	rec, body := f.do(t, http.MethodPost, "/api/settings", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ok"])

	doc, err := f.settings.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "07:05", doc.Schedule.TimeHHMM)
	require.Len(t, doc.Recipients, 1)
	assert.Equal(t, "49151234", doc.Recipients[0].Phone)
}

func TestSaveSettingsRejectsBadPayload(t *testing.T) {
	f := newFixture(t, true)

	rec, body := f.do(t, http.MethodPost, "/api/settings", `[1, 2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "must be an object")

	rec, _ = f.do(t, http.MethodPost, "/api/settings", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, f.settings.Exists())
}

func TestNextRun(t *testing.T) {
	f := newFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/api/scheduler/next-run", "")
	require.Equal(t, http.StatusOK, rec.Code)

	global := body["global_schedule"].(map[string]interface{})
	assert.Equal(t, "Europe/Berlin", global["tz"])
	assert.Equal(t, "19:00", global["time_hhmm"])

	recipients := body["recipients"].([]interface{})
	require.Len(t, recipients, 1)
	r := recipients[0].(map[string]interface{})
	assert.Equal(t, "default", r["recipient_id"])
	assert.Equal(t, "2024-06-03T19:00:00+02:00", r["next_run"])
}

func TestStateSummary(t *testing.T) {
	f := newFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "never", body["last_run"])

	st := state.New()
	st.MarkSent("a", "post:1")
	st.MarkSent("a", "story:2")
	st.MarkSent("b", "post:1")
	st.Finalize(time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), []string{"media/post_1.jpg"}, "New from Instagram:")
	require.NoError(t, f.state.Save(st))

	_, body = f.do(t, http.MethodGet, "/api/state", "")
	assert.Equal(t, float64(2), body["sent_total"])
	assert.Equal(t, map[string]interface{}{"a": float64(2), "b": float64(1)}, body["recipients"])
	assert.Equal(t, "2 hours ago", body["last_run"])
	assert.Equal(t, []interface{}{"media/post_1.jpg"}, body["last_run_files"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)
	rec := metrics.NewPrometheusRecorder(f.registry)
	rec.IncRun(metrics.OutcomeDelivered)

	resp, _ := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `instabridge_runs_total{outcome="delivered"} 1`)
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t, true)
	rec, _ := f.do(t, http.MethodDelete, "/api/settings", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
