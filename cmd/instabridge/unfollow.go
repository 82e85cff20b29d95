package main

import (
	"github.com/spf13/cobra"

	"instabridge/pkg/ui"
	"instabridge/pkg/unfollow"
)

var notifyUnfollows bool

// unfollowCmd groups follower tracking commands
var unfollowCmd = &cobra.Command{
	Use:   "unfollow",
	Short: "Track accounts that stopped following",
}

// unfollowCheckCmd compares followers against the last snapshot
var unfollowCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare current followers with the last snapshot",
	Long: `Fetch the follower list, report accounts missing since the previous
check and store the new snapshot. The first check only records a baseline.`,
	Example: `  # Print lost followers
  instabridge unfollow check

  # Also send the alert to the report contact
  instabridge unfollow check --notify`,
	RunE: runUnfollowCheck,
}

func init() {
	rootCmd.AddCommand(unfollowCmd)
	unfollowCmd.AddCommand(unfollowCheckCmd)

	unfollowCheckCmd.Flags().BoolVar(&notifyUnfollows, "notify", false, "send the alert to the WhatsApp report contact")
}

func runUnfollowCheck(cmd *cobra.Command, args []string) error {
	a, err := loadApp(needAccount)
	if err != nil {
		return err
	}
	ig, err := a.instagram()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := ig.Authenticate(ctx, a.cfg.Instagram.Username, a.cfg.Instagram.Password); err != nil {
		return err
	}
	checker := unfollow.NewChecker(ig, a.cfg.UnfollowPath(),
		unfollow.WithLogger(a.log.WithField("component", "unfollow")),
		unfollow.WithMetrics(a.recorder),
	)
	lost, err := checker.Check(ctx)
	if err != nil {
		return err
	}

	if len(lost) == 0 {
		ui.PrintSuccess("No unfollows since the last check.")
		return nil
	}
	for _, name := range unfollow.Usernames(lost) {
		ui.PrintWarning("Unfollowed: " + name)
	}
	if notifyUnfollows {
		if err := unfollow.Notify(ctx, a.whatsapp(), a.reportContact(), lost); err != nil {
			return err
		}
		ui.PrintSuccess("Alert sent to " + a.reportContact().String())
	}
	return nil
}
