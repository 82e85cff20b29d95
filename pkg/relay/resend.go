package relay

import (
	"context"

	"instabridge/pkg/storage"
)

const (
	resendCaption      = "Resend test"
	resendCacheCaption = "Resend test (from media cache)"
)

// ResendReport describes what a resend delivered
type ResendReport struct {
	Files     []string
	Caption   string
	FromCache bool
	Sent      bool
}

// Resend delivers the last run's files to the content contact again.
// When those files are gone it falls back to the newest files of the media
// directory. It neither reads nor writes the dedupe sets and never saves state.
func (o *Orchestrator) Resend(ctx context.Context, maxFiles int) (*ResendReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.deps.State.Load()
	report := &ResendReport{
		Files:   storage.Existing(st.LastRunFiles),
		Caption: st.LastRunCaption,
	}
	if report.Caption == "" {
		report.Caption = resendCaption
	}

	if len(report.Files) == 0 {
		recent, err := o.deps.Media.Recent(DefaultResendMax)
		if err != nil {
			return report, err
		}
		report.Files = recent
		report.Caption = resendCacheCaption
		report.FromCache = true
	}

	if len(report.Files) == 0 {
		o.narrator.Warn("Nothing to resend (no last batch recorded, and %s is empty).", o.deps.Media.Dir())
		return report, nil
	}
	if maxFiles > 0 && len(report.Files) > maxFiles {
		report.Files = report.Files[:maxFiles]
	}

	target := o.opts.ContentContact
	o.narrator.Step("Opening WhatsApp...")
	if err := o.deps.Channel.Open(ctx); err != nil {
		return report, err
	}
	defer o.closeChannel(o.logger)
	o.narrator.Success("WhatsApp ready.")

	if err := o.withRestart(ctx, target, func() error {
		return o.deps.Channel.Address(ctx, target)
	}); err != nil {
		return report, err
	}

	o.narrator.Step("Re-sending last batch (%d file(s))...", len(report.Files))
	if err := o.withRestart(ctx, target, func() error {
		return o.deps.Channel.DeliverBatch(ctx, target, report.Files, report.Caption)
	}); err != nil {
		return report, err
	}

	report.Sent = true
	o.narrator.Success("Done: re-sent last batch (state unchanged).")
	return report, nil
}
