package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"instabridge/pkg/logger"
	"instabridge/pkg/relay"
	"instabridge/pkg/retry"
	"instabridge/pkg/settings"
	"instabridge/pkg/ui"
)

const (
	recipientTag = "recipient"
	unfollowTag  = "unfollow"

	// DefaultBackoff is the pause after a failed run
	DefaultBackoff = 60 * time.Second
	// DefaultUnfollowTime is when the weekly unfollow check runs
	DefaultUnfollowTime = "22:00"
)

// Runner performs one relay run
type Runner interface {
	Run(ctx context.Context, req relay.RunRequest) (*relay.Report, error)
}

// Config tunes the daemon
type Config struct {
	// FallbackName and FallbackPhone seed the default recipient
	FallbackName  string
	FallbackPhone string
	// Backoff is slept after a failed job, holding the job's slot
	Backoff time.Duration
	// Debounce collapses bursts of settings file events
	Debounce time.Duration

	UnfollowDay  time.Weekday
	UnfollowTime string
	UnfollowTZ   string
}

// Daemon runs scheduled relays until its context ends
type Daemon struct {
	cfg       Config
	scheduler gocron.Scheduler
	runner    Runner
	settings  *settings.Store
	unfollow  func(ctx context.Context) error
	notifier  *ui.Notifier
	narrator  ui.Narrator
	logger    logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	watcher *settings.Watcher
}

// Option customizes a Daemon
type Option func(*Daemon)

// WithUnfollowCheck registers the weekly unfollow job
func WithUnfollowCheck(fn func(ctx context.Context) error) Option {
	return func(d *Daemon) {
		d.unfollow = fn
	}
}

// WithNotifier reports failed jobs to the person at the machine
func WithNotifier(n *ui.Notifier) Option {
	return func(d *Daemon) {
		d.notifier = n
	}
}

// WithNarrator sets where scheduling progress is narrated
func WithNarrator(n ui.Narrator) Option {
	return func(d *Daemon) {
		d.narrator = n
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(d *Daemon) {
		d.logger = l
	}
}

// NewDaemon creates a daemon whose jobs call runner
func NewDaemon(cfg Config, runner Runner, store *settings.Store, opts ...Option) (*Daemon, error) {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.UnfollowTime == "" {
		cfg.UnfollowTime = DefaultUnfollowTime
	}

	d := &Daemon{
		cfg:      cfg,
		runner:   runner,
		settings: store,
		narrator: ui.Silent{},
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = ui.NewNotifierWithSender(nil, d.narrator)
	}

	s, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{d.logger}))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = s
	return d, nil
}

// Start registers the jobs, starts the scheduler and watches the settings file
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	if err := d.Reload(); err != nil {
		return err
	}
	if d.unfollow != nil {
		if err := d.scheduleUnfollow(); err != nil {
			return err
		}
	}

	w, err := settings.NewWatcher(d.settings.Path(), d.cfg.Debounce, func() {
		if err := d.Reload(); err != nil {
			d.logger.WithError(err).Error("Failed to reload schedule")
		}
	}, d.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Close()
		return err
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()

	d.scheduler.Start()
	d.narrator.Success("Scheduler started.")
	return nil
}

// Run starts the daemon and blocks until ctx is done
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return d.Stop()
}

// Stop shuts the scheduler down, waiting for running jobs
func (d *Daemon) Stop() error {
	d.mu.Lock()
	w := d.watcher
	d.watcher = nil
	d.mu.Unlock()
	if w != nil {
		w.Close()
	}
	return d.scheduler.Shutdown()
}

// Reload replaces the recipient jobs with the ones the settings file asks for
func (d *Daemon) Reload() error {
	doc, err := d.settings.Load(d.cfg.FallbackName, d.cfg.FallbackPhone)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.scheduler.RemoveByTags(recipientTag)

	registered := 0
	for _, r := range doc.Eligible() {
		enabled, tz, hhmm := settings.EffectiveSchedule(r, doc.Schedule)
		if !enabled {
			continue
		}
		spec := CronSpec(tz, hhmm)
		rcpt := r
		_, err := d.scheduler.NewJob(
			gocron.CronJob(spec, false),
			gocron.NewTask(d.runRecipient, rcpt),
			gocron.WithName(rcpt.ID),
			gocron.WithTags(recipientTag),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule recipient %s: %w", rcpt.ID, err)
		}
		registered++
		d.logger.InfoWithFields("Recipient scheduled", map[string]interface{}{
			"recipient_id": rcpt.ID,
			"cron":         spec,
		})
	}

	if registered == 0 {
		d.narrator.Warn("No recipients with enabled schedules.")
	}
	return nil
}

func (d *Daemon) scheduleUnfollow() error {
	_, tz := ResolveLocation(d.cfg.UnfollowTZ)
	spec := fmt.Sprintf("CRON_TZ=%s %s", tz, WeeklyExpr(d.cfg.UnfollowDay, d.cfg.UnfollowTime))
	_, err := d.scheduler.NewJob(
		gocron.CronJob(spec, false),
		gocron.NewTask(d.runUnfollow),
		gocron.WithName("unfollow-check"),
		gocron.WithTags(unfollowTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule unfollow check: %w", err)
	}
	d.logger.InfoWithFields("Unfollow check scheduled", map[string]interface{}{"cron": spec})
	return nil
}

// Job describes a registered job
type Job struct {
	Name    string
	Tags    []string
	NextRun time.Time
}

// Jobs lists the registered jobs
func (d *Daemon) Jobs() []Job {
	var out []Job
	for _, j := range d.scheduler.Jobs() {
		next, _ := j.NextRun()
		out = append(out, Job{Name: j.Name(), Tags: j.Tags(), NextRun: next})
	}
	return out
}

// RunNow triggers the named job immediately
func (d *Daemon) RunNow(name string) error {
	for _, j := range d.scheduler.Jobs() {
		if j.Name() == name {
			return j.RunNow()
		}
	}
	return fmt.Errorf("no job named %q", name)
}

func (d *Daemon) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return context.Background()
	}
	return d.ctx
}

func (d *Daemon) runRecipient(r settings.Recipient) {
	ctx := d.context()
	d.narrator.Step("Running for %s...", r.DisplayName)

	report, err := d.runner.Run(ctx, relay.RunRequest{RecipientID: r.ID})
	if err != nil {
		d.notifier.RunFailed(r.DisplayName, err)
		d.backoff(ctx)
		return
	}
	d.logger.InfoWithFields("Scheduled run finished", map[string]interface{}{
		"recipient_id": r.ID,
		"outcome":      string(report.Outcome),
		"delivered":    report.DeliveredCount(),
	})
}

func (d *Daemon) runUnfollow() {
	ctx := d.context()
	d.narrator.Step("Checking unfollows...")
	if err := d.unfollow(ctx); err != nil {
		d.notifier.RunFailed("unfollow check", err)
		d.backoff(ctx)
	}
}

func (d *Daemon) backoff(ctx context.Context) {
	d.logger.WarnWithFields("Backing off after failed job", map[string]interface{}{
		"backoff": d.cfg.Backoff.String(),
	})
	_ = retry.Wait(ctx, d.cfg.Backoff)
}

// gocronLogger routes scheduler logs into the application logger
type gocronLogger struct {
	l logger.Logger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.DebugWithFields(msg, pairs(args)) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.InfoWithFields(msg, pairs(args)) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.WarnWithFields(msg, pairs(args)) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.ErrorWithFields(msg, pairs(args)) }

func pairs(args []any) map[string]interface{} {
	fields := make(map[string]interface{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return fields
}
