package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"instabridge/internal/downloader"
	"instabridge/pkg/content"
	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/metrics"
	"instabridge/pkg/ratelimit"
	"instabridge/pkg/settings"
	"instabridge/pkg/state"
	"instabridge/pkg/storage"
	"instabridge/pkg/ui"
)

// Run phases, in order
const (
	PhaseInit     = "init"
	PhaseFetch    = "fetch_items"
	PhaseFilter   = "filter_window"
	PhasePlan     = "plan_per_recipient"
	PhaseDownload = "download_unique"
	PhaseDeliver  = "deliver_per_recipient"
	PhaseFinalize = "finalize"
)

const (
	// DefaultMaxPosts caps the posts fetched since the last run
	DefaultMaxPosts = 12
	// DefaultWindow is how old an item may be and still be relayed
	DefaultWindow = 24 * time.Hour
	// DefaultResendMax caps the media cache fallback of a resend
	DefaultResendMax = 12

	captionPreview = 100
)

// Options configures an Orchestrator
type Options struct {
	Username string
	Password string
	// ContentContact seeds the default recipient and receives resends
	ContentContact Target
	MessagePrefix  string
	MaxPostsSince  int
	Window         time.Duration
}

// Deps are the collaborators a run needs
type Deps struct {
	Source   Source
	Channel  Channel
	State    *state.Store
	Settings *settings.Store
	Media    *storage.Manager
}

// RunRequest selects how a single run behaves
type RunRequest struct {
	// RunID tags logs; one is generated when empty
	RunID string
	// Force bypasses the per-recipient dedupe for this run
	Force bool
	// DryRun narrates what would be sent without channel I/O or state changes
	DryRun bool
	// RecipientID restricts the run to one recipient
	RecipientID string
}

// Orchestrator runs the fetch, plan, download and deliver cycle.
// Runs, resends and cleanups on one Orchestrator never overlap.
type Orchestrator struct {
	mu sync.Mutex

	deps     Deps
	opts     Options
	logger   logger.Logger
	narrator ui.Narrator
	metrics  metrics.Recorder
	pacer    ratelimit.Limiter
	now      func() time.Time
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithNarrator sets where progress is narrated
func WithNarrator(n ui.Narrator) Option {
	return func(o *Orchestrator) {
		o.narrator = n
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

// WithDownloadPacer spaces consecutive downloads
func WithDownloadPacer(l ratelimit.Limiter) Option {
	return func(o *Orchestrator) {
		o.pacer = l
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator
func New(deps Deps, opts Options, options ...Option) *Orchestrator {
	if opts.MessagePrefix == "" {
		opts.MessagePrefix = content.DefaultPrefix
	}
	if opts.MaxPostsSince <= 0 {
		opts.MaxPostsSince = DefaultMaxPosts
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	o := &Orchestrator{
		deps:     deps,
		opts:     opts,
		logger:   logger.GetLogger(),
		narrator: ui.Silent{},
		metrics:  metrics.NoopRecorder{},
		pacer:    ratelimit.Unlimited{},
		now:      time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// run carries the working set of one invocation
type run struct {
	req    RunRequest
	log    logger.Logger
	report *Report
	st     *state.DeliveryState
}

// Run performs one relay cycle. Authentication, fetch and channel errors
// abort the run before any state change. Download failures skip the item;
// delivery failures skip the rest of that recipient. Both are recorded in
// the report and the run carries on.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	r := &run{
		req:    req,
		log:    o.logger.WithField("run_id", req.RunID),
		report: newReport(req.RunID, req.DryRun, o.now()),
	}

	report, err := o.execute(ctx, r)
	if err != nil {
		o.metrics.IncRun(metrics.OutcomeFailed)
		r.log.WithError(err).Error("Run failed")
		return report, err
	}
	o.metrics.IncRun(report.Outcome)
	return report, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*Report, error) {
	// INIT
	done := o.phase(r, PhaseInit)
	if r.req.DryRun {
		o.narrator.Warn("DRY RUN MODE: No actual messages will be sent")
	}
	r.st = o.deps.State.Load()
	doc, err := o.deps.Settings.Load(o.opts.ContentContact.Name, o.opts.ContentContact.Phone)
	if err != nil {
		return r.report, err
	}

	o.narrator.Step("Logging into Instagram...")
	if err := o.deps.Source.Authenticate(ctx, o.opts.Username, o.opts.Password); err != nil {
		return r.report, err
	}
	o.narrator.Success("Instagram login OK.")

	if !r.req.DryRun {
		o.narrator.Step("Opening WhatsApp...")
		if err := o.deps.Channel.Open(ctx); err != nil {
			return r.report, err
		}
		defer o.closeChannel(r.log)
		o.narrator.Success("WhatsApp ready.")
	} else {
		o.narrator.Step("Dry run: skipping WhatsApp connection")
	}

	recipients := selectRecipients(doc, r.req.RecipientID)
	done()

	if r.req.RecipientID != "" && len(recipients) == 0 {
		o.narrator.Step("Done: recipient '%s' not found or not enabled.", r.req.RecipientID)
		return r.report, nil
	}
	if len(recipients) == 0 {
		o.narrator.Step("Done: no enabled recipients configured in settings.")
		return r.report, o.markEmptyRun(r)
	}

	// FETCH_ITEMS
	done = o.phase(r, PhaseFetch)
	items, err := o.fetch(ctx, r.st)
	if err != nil {
		return r.report, err
	}
	r.report.Fetched = len(items)
	done()

	// FILTER_WINDOW
	done = o.phase(r, PhaseFilter)
	items = freshItems(items, o.now(), o.opts.Window)
	r.report.Fresh = len(items)
	done()
	if len(items) == 0 {
		o.narrator.Step("Done: nothing new to send.")
		return r.report, o.markEmptyRun(r)
	}

	// PLAN_PER_RECIPIENT
	done = o.phase(r, PhasePlan)
	plans := planDeliveries(recipients, items, r.st, r.req.Force)
	for _, p := range plans {
		for _, it := range p.items {
			r.report.Planned[p.recipient.ID] = append(r.report.Planned[p.recipient.ID], it.ID)
		}
	}
	done()
	if len(plans) == 0 {
		o.narrator.Step("Done: nothing new to send (after filtering/dedupe).")
		return r.report, o.markEmptyRun(r)
	}

	// DOWNLOAD_UNIQUE
	done = o.phase(r, PhaseDownload)
	unique := uniqueItems(plans)
	results, err := o.download(ctx, r, unique)
	if err != nil {
		return r.report, err
	}
	downloaded := downloader.Paths(results)
	r.report.Files = downloader.AllPaths(results)
	done()

	// DELIVER_PER_RECIPIENT
	done = o.phase(r, PhaseDeliver)
	delivered, err := o.deliverAll(ctx, r, plans, downloaded)
	if err != nil {
		return r.report, err
	}
	done()

	if r.req.DryRun {
		r.report.Outcome = metrics.OutcomeDryRun
		o.narrator.Success("Dry run complete: No messages sent, no state updated")
		return r.report, nil
	}

	// FINALIZE
	done = o.phase(r, PhaseFinalize)
	var deliveredItems []*content.Item
	for _, it := range unique {
		if delivered[it.ID] {
			deliveredItems = append(deliveredItems, it)
		}
	}
	r.report.Caption = content.FormatCaption(o.opts.MessagePrefix, deliveredItems)
	r.st.Finalize(o.now(), r.report.Files, r.report.Caption)
	if err := o.deps.State.Save(r.st); err != nil {
		return r.report, err
	}
	done()

	if len(r.report.Failures) > 0 {
		r.report.Outcome = metrics.OutcomePartial
		o.narrator.Warn("Done: sent new items, %d recipient(s) failed.", len(r.report.Failures))
	} else {
		r.report.Outcome = metrics.OutcomeDelivered
		o.narrator.Success("Done: sent new items (no duplicates).")
	}
	return r.report, nil
}

// fetch returns the latest post on the very first run, otherwise the posts
// newer than the last run; active stories are always included.
func (o *Orchestrator) fetch(ctx context.Context, st *state.DeliveryState) ([]*content.Item, error) {
	var items []*content.Item
	if st.LastRunTS == nil {
		post, err := o.deps.Source.FetchLatestPost(ctx)
		if err != nil {
			return nil, err
		}
		if post != nil {
			items = append(items, post)
		}
	} else {
		posts, err := o.deps.Source.FetchPostsSince(ctx, *st.LastRunTS, o.opts.MaxPostsSince)
		if err != nil {
			return nil, err
		}
		items = append(items, posts...)
	}

	stories, err := o.deps.Source.FetchActiveStories(ctx)
	if err != nil {
		return nil, err
	}
	return append(items, stories...), nil
}

func (o *Orchestrator) download(ctx context.Context, r *run, items []*content.Item) ([]downloader.Result, error) {
	q := downloader.NewQueue(o.deps.Media.Dir(), r.log,
		downloader.WithLimiter(o.pacer),
		downloader.WithStart(func(it *content.Item) {
			o.narrator.Step("Downloading %s...", it.ID)
		}),
		downloader.WithNotify(func(res downloader.Result) {
			o.metrics.IncDownload(res.OK(), res.Bytes)
		}),
	)

	results, err := q.Run(ctx, items)
	if err != nil {
		return results, err
	}

	for _, res := range results {
		if res.OK() {
			r.report.Downloaded = append(r.report.Downloaded, res.ItemID)
			continue
		}
		reason := res.Err
		if reason == nil {
			reason = errs.Newf(errs.ErrorTypeDownload, "%s produced no files", res.ItemID)
		}
		r.report.DownloadErrors[res.ItemID] = reason
		o.narrator.Warn("Download failed for %s: %v", res.ItemID, reason)
	}
	return results, nil
}

// deliverAll walks recipients in directory order. It returns the set of item
// ids delivered to at least one recipient.
func (o *Orchestrator) deliverAll(ctx context.Context, r *run, plans []recipientPlan, downloaded map[string][]string) (map[string]bool, error) {
	delivered := make(map[string]bool)

	for _, p := range plans {
		rcpt := p.recipient
		if r.req.DryRun {
			o.narrator.Step("[DRY RUN] Would send to %s (%d item(s))...", rcpt.DisplayName, len(p.items))
			for _, it := range p.items {
				paths := downloaded[it.ID]
				if len(paths) == 0 {
					continue
				}
				caption := content.FormatCaption(o.opts.MessagePrefix, []*content.Item{it})
				o.narrator.Step("  Would send %d file(s) for %s", len(paths), it.ID)
				o.narrator.Step("     Caption: %s", content.Truncate(caption, captionPreview))
			}
			continue
		}

		o.narrator.Step("Sending to %s (%d item(s))...", rcpt.DisplayName, len(p.items))
		ids, err := o.deliverRecipient(ctx, r, p, downloaded)
		for _, id := range ids {
			delivered[id] = true
		}
		if err == nil {
			continue
		}
		if errs.Is(err, errs.ErrorTypeState) || ctx.Err() != nil {
			return delivered, err
		}
		r.report.Failures[rcpt.ID] = err
		o.narrator.Error("Delivery to %s stopped: %v", rcpt.DisplayName, err)
		r.log.WithFields(map[string]interface{}{
			"recipient_id": rcpt.ID,
			"error":        err.Error(),
		}).Warn("Skipping rest of recipient after delivery failure")
	}
	return delivered, nil
}

// deliverRecipient sends one recipient's items in order, persisting state
// after each confirmed delivery. It returns the ids delivered before any error.
func (o *Orchestrator) deliverRecipient(ctx context.Context, r *run, p recipientPlan, downloaded map[string][]string) ([]string, error) {
	rcpt := p.recipient
	target := Target{Name: rcpt.ChatName(), Phone: rcpt.Phone}

	if err := o.withRestart(ctx, target, func() error {
		return o.deps.Channel.Address(ctx, target)
	}); err != nil {
		return nil, err
	}

	var sent []string
	for _, it := range p.items {
		paths := downloaded[it.ID]
		if len(paths) == 0 {
			continue
		}
		caption := content.FormatCaption(o.opts.MessagePrefix, []*content.Item{it})
		o.narrator.Step("Sending %d file(s) for %s...", len(paths), it.ID)

		err := o.withRestart(ctx, target, func() error {
			return o.deps.Channel.DeliverBatch(ctx, target, paths, caption)
		})
		o.metrics.IncDelivery(rcpt.ID, err == nil)
		logger.LogDelivery(r.log, rcpt.ID, it.ID, len(paths), err)
		if err != nil {
			return sent, err
		}

		r.st.MarkSent(rcpt.ID, it.ID)
		if err := o.deps.State.Save(r.st); err != nil {
			return sent, err
		}
		sent = append(sent, it.ID)
		r.report.Delivered[rcpt.ID] = append(r.report.Delivered[rcpt.ID], it.ID)
	}
	return sent, nil
}

// withRestart runs fn and, if the channel session was closed, restarts the
// channel once (close, open, re-address) and runs fn again.
func (o *Orchestrator) withRestart(ctx context.Context, target Target, fn func() error) error {
	err := fn()
	if !errs.Is(err, errs.ErrorTypeSessionClosed) {
		return err
	}

	o.narrator.Warn("WhatsApp session closed, restarting...")
	o.metrics.IncChannelRestart()
	if cerr := o.deps.Channel.Close(); cerr != nil {
		o.logger.WithError(cerr).Warn("Closing dead channel failed")
	}
	if oerr := o.deps.Channel.Open(ctx); oerr != nil {
		return fmt.Errorf("restart after closed session: %w", oerr)
	}
	if aerr := o.deps.Channel.Address(ctx, target); aerr != nil {
		return aerr
	}
	return fn()
}

// markEmptyRun advances LastRunTS for a run that found nothing to deliver
func (o *Orchestrator) markEmptyRun(r *run) error {
	if r.req.DryRun {
		return nil
	}
	r.st.MarkRun(o.now())
	return o.deps.State.Save(r.st)
}

func (o *Orchestrator) closeChannel(log logger.Logger) {
	if err := o.deps.Channel.Close(); err != nil {
		log.WithError(err).Warn("Closing delivery channel failed")
	}
}

// phase logs the start of a phase and returns a func that records its duration
func (o *Orchestrator) phase(r *run, name string) func() {
	start := time.Now()
	logger.LogRunPhase(r.log, name, map[string]interface{}{"dry_run": r.req.DryRun})
	return func() {
		o.metrics.ObservePhase(name, time.Since(start))
	}
}
