package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"instabridge/pkg/auth"
	"instabridge/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram credentials",
	Long: `Manage the Instagram login the relay runs as.

Credentials are looked up in this order:
  - Environment variables (IG_USERNAME, IG_PASSWORD)
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store Instagram credentials securely",
	Example: `  # Interactive login
  instabridge auth login

  # Login with username
  instabridge auth login myaccount`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	RunE:  runList,
}

// statusCmd shows which account a run would use
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the account runs will log in as",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd, statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	def := ""
	if len(args) > 0 {
		def = args[0]
	}
	account, err := auth.NewTerminalPrompter().Login(def)
	if err != nil {
		return err
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Stored credentials for %s", account.Username))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Removed credentials for %s", args[0]))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}
	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintWarning("No stored accounts. Run 'instabridge auth login' to add one.")
		return nil
	}
	for _, acc := range accounts {
		printAccount(auth.SanitizeAccount(acc))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}
	account, err := manager.RetrieveDefault()
	if err != nil {
		ui.PrintWarning("Not logged in", err)
		return nil
	}
	printAccount(auth.SanitizeAccount(account))
	return nil
}

func printAccount(acc *auth.Account) {
	ui.PrintInfo("Username", acc.Username)
	ui.PrintInfo("Password", acc.Password)
	if !acc.LastModified.IsZero() {
		ui.PrintInfo("Stored", humanize.Time(acc.LastModified))
	}
	fmt.Println()
}

// credentialsAvailable reports whether a run could find a login
func credentialsAvailable(a *app) func() bool {
	return func() bool {
		if a.cfg.Instagram.Username != "" && a.cfg.Instagram.Password != "" {
			return true
		}
		manager, err := auth.NewManager()
		if err != nil {
			return false
		}
		_, err = manager.RetrieveDefault()
		return err == nil
	}
}
