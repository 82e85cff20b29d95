package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"instabridge/pkg/ui"
)

// stateCmd groups delivery state commands
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and maintain the delivery state",
}

// stateShowCmd prints a summary of the state file
var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarize what has been delivered",
	RunE:  runStateShow,
}

// stateResetMediaCmd empties the media cache
var stateResetMediaCmd = &cobra.Command{
	Use:   "reset-media",
	Short: "Delete downloaded media and forget the last run's files",
	Long: `Delete every file in the media directory and clear the last run's file
list. Delivery history is kept, so nothing is sent again.`,
	RunE: runStateResetMedia,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateResetMediaCmd)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(needNothing)
	if err != nil {
		return err
	}
	if !a.states.Exists() {
		ui.PrintWarning("No state file at " + a.states.Path())
		return nil
	}
	st := a.states.Load()

	ui.PrintInfo("State file", a.states.Path())
	ui.PrintInfo("Items sent", humanize.Comma(int64(len(st.SentIDs))))
	for _, id := range st.Recipients() {
		fmt.Printf("  %s %d\n", ui.Dim(id+":"), st.SentCount(id))
	}

	last := "never"
	if t := st.LastRun(); !t.IsZero() {
		last = fmt.Sprintf("%s (%s)", t.Format("2006-01-02 15:04"), humanize.Time(t))
	}
	ui.PrintInfo("Last run", last)
	for _, f := range st.LastRunFiles {
		fmt.Println("  " + ui.Dim(filepath.Base(f)))
	}
	if st.LastRunCaption != "" {
		ui.PrintInfo("Last caption", st.LastRunCaption)
	}
	return nil
}

func runStateResetMedia(cmd *cobra.Command, args []string) error {
	a, err := loadApp(needNothing)
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(nil, nil)
	if err != nil {
		return err
	}
	_, err = orch.CleanupMedia()
	return err
}
