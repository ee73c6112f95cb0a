package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

var connectCmd = &cobra.Command{
	Use:     "connect",
	GroupID: "sync",
	Short:   "Connect a remote project and mirror the ledger to it",
	Long: `Connect a remote project by URL and access key.

The project must already have the app_settings, categories, transactions and
budgets tables. If it holds data for this installation, that data replaces the
local copy; otherwise the local ledger is uploaded.

The key can be passed with --key or the FINTRACK_REMOTE_KEY environment variable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			key = os.Getenv("FINTRACK_REMOTE_KEY")
		}
		if err := app.Engine.Connect(cmd.Context(), url, key); err != nil {
			return err
		}
		printDone("Connected to %s", url)
		printState(app.Engine.State())
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:     "disconnect",
	GroupID: "sync",
	Short:   "Stop syncing and forget the remote credentials",
	Long: `Disconnect switches back to local mode. Local data is kept; changes that
were still queued for the remote project are discarded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pending := app.Engine.State().PendingChangeCount
		if err := app.Engine.Disconnect(cmd.Context()); err != nil {
			return err
		}
		printDone("Disconnected")
		if pending > 0 {
			fmt.Printf("%s %d queued change(s) were discarded\n", warnStyle.Render("!"), pending)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push the whole ledger to the remote project now",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := app.Engine.SyncNow(cmd.Context())
		if errors.Is(err, services.ErrNotConnected) {
			return fmt.Errorf("%w: run 'fintrack connect' first", err)
		}
		if err != nil {
			return err
		}
		flush(cmd.Context())
		printDone("Synced")
		printState(app.Engine.State())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show storage mode and sync state",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings := app.Engine.Settings()
		fmt.Printf("\n%s\n\n", accentStyle.Render("Fintrack status"))
		fmt.Printf("Installation: %s\n", app.Engine.InstallationID())
		fmt.Printf("Storage mode: %s\n", settings.StorageMode)
		if !app.Store.Durable() {
			fmt.Printf("Local store:  %s\n", warnStyle.Render("memory only, changes are lost on exit"))
		}
		if creds, ok := app.Store.Credentials(); ok {
			fmt.Printf("Remote:       %s\n", creds.URL)
		}
		printState(app.Engine.State())
		fmt.Println()
	},
}

func init() {
	connectCmd.Flags().String("url", "", "Project URL, https://<project>.supabase.co")
	connectCmd.Flags().String("key", "", "Project access key")
	_ = connectCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(connectCmd, disconnectCmd, syncCmd, statusCmd)
}

func printState(s core.SyncState) {
	fmt.Printf("Sync status:  %s\n", renderStatus(s.Status))
	fmt.Printf("Pending:      %d\n", s.PendingChangeCount)
	if s.LastSyncTimestamp != nil {
		fmt.Printf("Last sync:    %s\n", s.LastSyncTimestamp.Local().Format(time.DateTime))
	} else {
		fmt.Printf("Last sync:    %s\n", mutedStyle.Render("never"))
	}
	if s.LastError != "" {
		fmt.Printf("Last error:   %s\n", errorStyle.Render(s.LastError))
	}
	if !s.IsNetworkReachable {
		fmt.Printf("Network:      %s\n", warnStyle.Render("unreachable"))
	}
}
