package relay

import (
	"time"

	"instabridge/pkg/metrics"
)

// Report summarizes one run
type Report struct {
	RunID   string
	DryRun  bool
	Outcome metrics.Outcome
	Started time.Time

	Fetched int
	Fresh   int
	// Planned maps recipient id to the item ids it was due to receive
	Planned map[string][]string
	// Downloaded lists the item ids that produced files
	Downloaded []string
	// DownloadErrors maps item id to the reason its download failed
	DownloadErrors map[string]error
	// Delivered maps recipient id to the item ids confirmed delivered
	Delivered map[string][]string
	// Failures maps recipient id to the error that stopped its delivery
	Failures map[string]error

	Files   []string
	Caption string
}

func newReport(runID string, dryRun bool, started time.Time) *Report {
	return &Report{
		RunID:          runID,
		DryRun:         dryRun,
		Started:        started,
		Outcome:        metrics.OutcomeNothing,
		Planned:        make(map[string][]string),
		DownloadErrors: make(map[string]error),
		Delivered:      make(map[string][]string),
		Failures:       make(map[string]error),
	}
}

// DeliveredCount is the number of confirmed item deliveries across recipients
func (r *Report) DeliveredCount() int {
	n := 0
	for _, ids := range r.Delivered {
		n += len(ids)
	}
	return n
}
