// Command fintrack manages the local ledger and its optional remote sync from
// the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// flushTimeout bounds the push of queued changes before the process exits.
const flushTimeout = 30 * time.Second

var app *cli.App

var rootCmd = &cobra.Command{
	Use:           "fintrack",
	Short:         "Local-first personal finance ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `fintrack records transactions and budgets in a local database.

Connect a remote project with 'fintrack connect' to mirror the ledger; changes
made while offline are queued and pushed on the next sync.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = cli.Bootstrap(cmd.Context(), log.ComponentCLI)
		if err != nil {
			return err
		}
		cmd.SetContext(log.NewContext(cmd.Context(), app.Logger))
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "ledger", Title: "Ledger:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
	)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), describe(err))
		os.Exit(1)
	}
}

// flush pushes queued changes while connected so a short-lived command does
// not exit with work the background drain has not finished.
func flush(ctx context.Context) {
	if !app.Engine.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := app.Engine.Drain(ctx); err != nil {
		log.FromContext(ctx).Warn("Changes stay queued for the next sync", log.FieldError, err)
	}
	if n := app.Engine.State().PendingChangeCount; n > 0 {
		fmt.Printf("%s %d change(s) pending, run 'fintrack sync' to retry\n", warnStyle.Render("!"), n)
	}
}

// describe turns engine errors into messages a user can act on.
func describe(err error) string {
	var schema *core.SchemaError
	switch {
	case errors.As(err, &schema):
		return schema.Error()
	case core.IsConfiguration(err):
		return fmt.Sprintf("invalid remote settings: %v", err)
	case core.IsConnectivity(err):
		return fmt.Sprintf("remote unreachable: %v", err)
	case core.IsParse(err):
		return fmt.Sprintf("could not read input: %v", err)
	case errors.Is(err, services.ErrNotFound):
		return "no such entry"
	case errors.Is(err, services.ErrOffline):
		return "network unreachable, changes stay queued until it returns"
	default:
		return err.Error()
	}
}
