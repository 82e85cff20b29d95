package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "instabridge"

// PrometheusRecorder implements Recorder with Prometheus collectors
type PrometheusRecorder struct {
	runs          *prom.CounterVec
	phaseDuration *prom.HistogramVec
	deliveries    *prom.CounterVec
	downloads     *prom.CounterVec
	downloadBytes prom.Counter
	restarts      prom.Counter
	unfollows     prom.Counter
}

// NewPrometheusRecorder creates the collectors and registers them with reg
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		runs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Relay runs by outcome",
		}, []string{"outcome"}),
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of relay run phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"}),
		deliveries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Item deliveries by recipient and result",
		}, []string{"recipient", "result"}),
		downloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Item downloads by result",
		}, []string{"result"}),
		downloadBytes: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written to the media directory",
		}),
		restarts: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "channel_restarts_total",
			Help:      "Delivery channel restarts after a closed session",
		}),
		unfollows: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "unfollows_total",
			Help:      "Followers lost, as seen by unfollow checks",
		}),
	}
	reg.MustRegister(pr.runs, pr.phaseDuration, pr.deliveries, pr.downloads, pr.downloadBytes, pr.restarts, pr.unfollows)
	return pr
}

func (p *PrometheusRecorder) IncRun(outcome Outcome) {
	p.runs.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObservePhase(phase string, d time.Duration) {
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDelivery(recipientID string, success bool) {
	p.deliveries.WithLabelValues(recipientID, resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncDownload(success bool, bytes int64) {
	p.downloads.WithLabelValues(resultLabel(success)).Inc()
	if bytes > 0 {
		p.downloadBytes.Add(float64(bytes))
	}
}

func (p *PrometheusRecorder) IncChannelRestart() {
	p.restarts.Inc()
}

func (p *PrometheusRecorder) IncUnfollows(n int) {
	if n > 0 {
		p.unfollows.Add(float64(n))
	}
}

// HTTPHandler serves the metrics of reg
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
