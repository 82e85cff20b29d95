package relay

import (
	"github.com/dustin/go-humanize"
)

// CleanupReport describes what a media cleanup removed
type CleanupReport struct {
	Removed int
	Freed   int64
}

// CleanupMedia empties the media directory and clears the last run's file
// list so a later resend does not point at deleted paths. Dedupe sets and
// the last run caption are left alone.
func (o *Orchestrator) CleanupMedia() (*CleanupReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed, freed, err := o.deps.Media.Clean()
	report := &CleanupReport{Removed: removed, Freed: freed}
	if err != nil {
		return report, err
	}

	st := o.deps.State.Load()
	if len(st.LastRunFiles) > 0 {
		st.LastRunFiles = []string{}
		if err := o.deps.State.Save(st); err != nil {
			return report, err
		}
	}

	o.narrator.Success("Cleaned media: %d entries, %s freed; cleared last run files.", removed, humanize.Bytes(uint64(freed)))
	o.logger.InfoWithFields("Media cleaned", map[string]interface{}{
		"removed": removed,
		"freed":   freed,
	})
	return report, nil
}
