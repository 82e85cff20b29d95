package main

import (
	"github.com/spf13/cobra"

	"instabridge/pkg/ui"
)

var listenAddr string

// serveCmd serves the dashboard API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the settings dashboard API",
	Long: `Serve the local dashboard API:

  GET  /api/health              readiness of files and credentials
  GET  /api/settings            recipient settings
  POST /api/settings            replace recipient settings
  GET  /api/scheduler/next-run  next run per recipient
  GET  /api/state               delivery state summary
  GET  /metrics                 Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default from config, 127.0.0.1:8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(needNothing)
	if err != nil {
		return err
	}
	addr := a.cfg.Dashboard.Listen
	if listenAddr != "" {
		addr = listenAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	ui.PrintInfo("Dashboard", "http://"+addr)
	return a.server().ListenAndServe(ctx, addr)
}
