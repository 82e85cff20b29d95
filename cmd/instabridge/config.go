package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"instabridge/pkg/config"
	errs "instabridge/pkg/errors"
	"instabridge/pkg/ui"
)

// defaultConfigFile is written by config init when --config is not given
const defaultConfigFile = ".instabridge.yaml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage InstaBridge configuration.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables and .env
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	RunE:  runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging all sources. The password is
never printed.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that a run could start",
	Long: `Check the effective configuration, including credentials from the
credential stores, and list every problem with a hint on how to fix it.`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = defaultConfigFile
	}

	if _, err := os.Stat(configPath); err == nil {
		return errs.Newf(errs.ErrorTypeValidation, "configuration file already exists: %s", configPath)
	}
	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set the WhatsApp content contact in the file or in .env")
	fmt.Println("2. Run 'instabridge auth login' to store the Instagram login")
	fmt.Println("3. Run 'instabridge config validate' to check everything")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, commandFlags())
	if err != nil {
		return err
	}

	display := *cfg
	display.Instagram.Password = ""
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, commandFlags())
	if err != nil {
		return err
	}
	resolveCredentials(cfg)

	err = cfg.Validate()
	if err == nil {
		ui.PrintSuccess("Configuration is valid")
		return nil
	}

	problems := []error{err}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		problems = joined.Unwrap()
	}
	for _, p := range problems {
		ui.PrintError("✗", p)
		if hint := errs.Remediation(p); hint != "" {
			fmt.Println("  " + ui.Dim(hint))
		}
	}
	return errs.Newf(errs.ErrorTypeValidation, "%d configuration problem(s)", len(problems))
}
