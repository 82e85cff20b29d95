package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncRun(OutcomeDelivered)
	pr.IncRun(OutcomeDelivered)
	pr.IncRun(OutcomeNothing)
	pr.ObservePhase("fetch_items", 120*time.Millisecond)
	pr.IncDelivery("alice", true)
	pr.IncDelivery("alice", false)
	pr.IncDownload(true, 2048)
	pr.IncDownload(false, 0)
	pr.IncChannelRestart()
	pr.IncUnfollows(3)
	pr.IncUnfollows(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.runs.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.runs.WithLabelValues("nothing_new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.deliveries.WithLabelValues("alice", "failed")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(pr.downloadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.restarts))
	assert.Equal(t, 3.0, testutil.ToFloat64(pr.unfollows))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncRun(OutcomeDryRun)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `instabridge_runs_total{outcome="dry_run"} 1`)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncRun(OutcomeFailed)
	r.ObservePhase("x", time.Second)
	r.IncDelivery("a", true)
	r.IncDownload(true, 1)
	r.IncChannelRestart()
	r.IncUnfollows(1)
}
