package metrics

import "time"

// Outcome labels a finished run
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeNothing   Outcome = "nothing_new"
	OutcomePartial   Outcome = "partial"
	OutcomeDryRun    Outcome = "dry_run"
	OutcomeFailed    Outcome = "failed"
)

// Recorder receives relay observations. Implementations must tolerate being
// called from a nil-configured setup; NoopRecorder is the default.
type Recorder interface {
	IncRun(outcome Outcome)
	ObservePhase(phase string, d time.Duration)
	IncDelivery(recipientID string, success bool)
	IncDownload(success bool, bytes int64)
	IncChannelRestart()
	IncUnfollows(n int)
}

// NoopRecorder discards everything
type NoopRecorder struct{}

func (NoopRecorder) IncRun(Outcome) {}

func (NoopRecorder) ObservePhase(string, time.Duration) {}

func (NoopRecorder) IncDelivery(string, bool) {}

func (NoopRecorder) IncDownload(bool, int64) {}

func (NoopRecorder) IncChannelRestart() {}

func (NoopRecorder) IncUnfollows(int) {}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
