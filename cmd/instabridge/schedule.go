package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"instabridge/internal/server"
	"instabridge/pkg/schedule"
	"instabridge/pkg/ui"
	"instabridge/pkg/unfollow"
)

var (
	scheduleListen string
	skipUnfollow   bool
)

// scheduleCmd runs the scheduling daemon
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run relays on each recipient's daily schedule",
	Long: `Start the scheduler. Every recipient with an enabled schedule gets a
daily job in its own timezone, and the weekly unfollow check runs alongside.
Edits to the settings file are picked up without a restart.`,
	Example: `  # Run the scheduler in the foreground
  instabridge schedule

  # Also serve the dashboard API and metrics
  instabridge schedule --listen 127.0.0.1:8080`,
	RunE: runSchedule,
}

// scheduleNextCmd prints upcoming runs
var scheduleNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next scheduled run per recipient",
	RunE:  runScheduleNext,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleNextCmd)

	scheduleCmd.Flags().StringVar(&scheduleListen, "listen", "", "also serve the dashboard API on this address")
	scheduleCmd.Flags().BoolVar(&skipUnfollow, "no-unfollow", false, "do not schedule the weekly unfollow check")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := loadApp(needAccount)
	if err != nil {
		return err
	}
	orch, ig, wa, err := a.relay()
	if err != nil {
		return err
	}

	opts := []schedule.Option{
		schedule.WithNarrator(a.narrator),
		schedule.WithLogger(a.log.WithField("component", "scheduler")),
	}
	notifier := ui.NewNotifierWithSender(nil, a.narrator)
	if notifications {
		notifier = ui.NewNotifier(a.narrator)
	}
	opts = append(opts, schedule.WithNotifier(notifier))
	if !skipUnfollow {
		checker := unfollow.NewChecker(ig, a.cfg.UnfollowPath(),
			unfollow.WithLogger(a.log.WithField("component", "unfollow")),
			unfollow.WithMetrics(a.recorder),
		)
		opts = append(opts, schedule.WithUnfollowCheck(func(ctx context.Context) error {
			if err := ig.Authenticate(ctx, a.cfg.Instagram.Username, a.cfg.Instagram.Password); err != nil {
				return err
			}
			lost, err := checker.Check(ctx)
			if err != nil {
				return err
			}
			notifier.Unfollows(unfollow.Usernames(lost))
			return unfollow.Notify(ctx, wa, a.reportContact(), lost)
		}))
	}

	daemon, err := schedule.NewDaemon(schedule.Config{
		FallbackName:  a.cfg.WhatsApp.ContentContactName,
		FallbackPhone: a.cfg.WhatsApp.ContentPhone,
		Backoff:       a.cfg.Schedule.FailureBackoff,
		UnfollowDay:   schedule.ParseWeekday(a.cfg.Schedule.UnfollowWeekday),
		UnfollowTime:  a.cfg.Schedule.UnfollowTime,
		UnfollowTZ:    a.cfg.Schedule.DefaultTZ,
	}, orch, a.settings, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if scheduleListen != "" {
		srv := a.server()
		go func() {
			if err := srv.ListenAndServe(ctx, scheduleListen); err != nil {
				a.log.WithError(err).Error("Dashboard server stopped")
			}
		}()
		ui.PrintInfo("Dashboard", "http://"+scheduleListen)
	}

	ui.PrintBanner()
	return daemon.Run(ctx)
}

func runScheduleNext(cmd *cobra.Command, args []string) error {
	a, err := loadApp(needNothing)
	if err != nil {
		return err
	}
	doc, err := a.settings.Load(a.cfg.WhatsApp.ContentContactName, a.cfg.WhatsApp.ContentPhone)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, e := range schedule.Plan(doc, now) {
		when := ui.Dim("disabled")
		if e.Enabled && e.NextRun != nil {
			when = fmt.Sprintf("%s (%s, %s %s)",
				e.NextRun.Format("Mon 02 Jan 15:04 MST"), humanize.Time(*e.NextRun), e.Time, e.TZ)
		}
		ui.PrintInfo(e.RecipientName, when)
	}

	loc, _ := schedule.ResolveLocation(a.cfg.Schedule.DefaultTZ)
	next := schedule.NextWeeklyRun(now.In(loc), schedule.ParseWeekday(a.cfg.Schedule.UnfollowWeekday), a.cfg.Schedule.UnfollowTime)
	ui.PrintInfo("Unfollow check", fmt.Sprintf("%s (%s)", next.Format("Mon 02 Jan 15:04 MST"), humanize.Time(next)))
	return nil
}

func (a *app) server() *server.Server {
	return server.New(server.Options{
		Settings:       a.settings,
		State:          a.states,
		Registry:       a.registry,
		FallbackName:   a.cfg.WhatsApp.ContentContactName,
		FallbackPhone:  a.cfg.WhatsApp.ContentPhone,
		DataDir:        a.cfg.Paths.DataDir,
		HasCredentials: credentialsAvailable(a),
		Logger:         a.log.WithField("component", "server"),
	})
}
