package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	dataDir       string
	bridgeURL     string
	noColor       bool
	notifications bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "instabridge",
	Short: "Relay new Instagram posts and stories to WhatsApp contacts",
	Long: `InstaBridge watches one Instagram account and forwards what is new to
a list of WhatsApp recipients, each with its own content preferences and
daily schedule.

Features:
  - Per-recipient delivery tracking, nothing is sent twice
  - Crash-safe state, persisted after every confirmed delivery
  - Posts, stories and close friends stories gated per recipient
  - Daily schedule per recipient and a weekly unfollow check
  - Credentials in the system keychain or an encrypted file
  - Local dashboard API with Prometheus metrics`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printFailure(err)
		os.Exit(1)
	}
}

func printFailure(err error) {
	ui.PrintError("Error", err)
	if hint := errs.Remediation(err); hint != "" {
		ui.PrintWarning("Hint: " + hint)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .instabridge.yaml or $HOME/.config/instabridge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding state, settings and media")
	rootCmd.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "WhatsApp bridge URL")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications for scheduled failures")

	rootCmd.SetVersionTemplate(`InstaBridge {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
