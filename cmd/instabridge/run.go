package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"instabridge/pkg/relay"
	"instabridge/pkg/ui"
)

var (
	resendLast   bool
	maxFiles     int
	forceRun     bool
	dryRun       bool
	recipientID  string
	cleanupMedia bool
)

// runCmd performs a single relay run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relay new posts and stories once",
	Long: `Fetch what is new on the Instagram account and deliver it to every
eligible recipient. Delivery state is saved after each confirmed send,
so an interrupted run never repeats what already went out.`,
	Example: `  # Relay to all recipients
  instabridge run

  # Only one recipient, ignoring what it already received
  instabridge run --recipient default --force

  # Plan without sending; media is still downloaded into the cache
  instabridge run --dry-run

  # Send the previous run's files to the content contact again
  instabridge run --resend-last --max-files 4`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&resendLast, "resend-last", false, "resend the last run's files to the content contact")
	runCmd.Flags().IntVar(&maxFiles, "max-files", 0, "maximum files for --resend-last (0 sends the whole batch)")
	runCmd.Flags().BoolVar(&forceRun, "force", false, "deliver items even if the recipient already has them")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "download media and plan, but send nothing and leave state untouched")
	runCmd.Flags().StringVar(&recipientID, "recipient", "", "only deliver to this recipient id")
	runCmd.Flags().BoolVar(&cleanupMedia, "cleanup-media", false, "remove downloaded media after a successful run")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRelay(cmd *cobra.Command, args []string) error {
	need := needAccount
	if resendLast {
		need = needChannel
	}
	a, err := loadApp(need)
	if err != nil {
		return err
	}
	orch, _, _, err := a.relay()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if resendLast {
		report, err := orch.Resend(ctx, maxFiles)
		if err != nil {
			return err
		}
		if report.FromCache {
			ui.PrintInfo("Source", "media cache")
		}
		ui.PrintInfo("Files", fmt.Sprintf("%d", len(report.Files)))
		return nil
	}

	report, err := orch.Run(ctx, relay.RunRequest{
		RunID:       uuid.NewString(),
		Force:       forceRun,
		DryRun:      dryRun,
		RecipientID: recipientID,
	})
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return err
	}

	if cleanupMedia && !dryRun {
		if _, err := orch.CleanupMedia(); err != nil {
			return err
		}
	}
	return nil
}

func printReport(r *relay.Report) {
	fmt.Println()
	ui.PrintInfo("Run", r.RunID)
	ui.PrintInfo("Outcome", string(r.Outcome))
	ui.PrintInfo("Fetched", fmt.Sprintf("%d (%d fresh)", r.Fetched, r.Fresh))
	ui.PrintInfo("Delivered", humanize.Comma(int64(r.DeliveredCount())))

	ids := make([]string, 0, len(r.Delivered))
	for id := range r.Delivered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %s %s\n", ui.Dim(id+":"), strings.Join(r.Delivered[id], ", "))
	}

	failed := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		ui.PrintWarning("Failed for "+id, r.Failures[id])
	}
}
