package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fintrack/internal/transfer"
)

var exportCmd = &cobra.Command{
	Use:     "export FILE",
	GroupID: "ledger",
	Short:   "Write a JSON backup, or transactions as CSV with --csv",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asCSV, _ := cmd.Flags().GetBool("csv")

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[0], err)
		}
		defer f.Close()

		if asCSV {
			err = transfer.WriteCSV(f, app.Engine.Transactions(), app.Engine.Categories(), app.Engine.Settings().Currency)
		} else {
			err = transfer.WriteBackup(f, app.Engine.ExportData())
		}
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		printDone("Exported to %s", args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: "ledger",
	Short:   "Merge a JSON backup, or CSV transactions with --csv, into the ledger",
	Long: `Import merges entries by id: entries already present are replaced, new ones
are appended. When connected, the merged ledger is pushed afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asCSV, _ := cmd.Flags().GetBool("csv")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()

		if asCSV {
			txs, err := transfer.ReadCSV(f, app.Engine.Categories())
			if err != nil {
				return err
			}
			if err := app.Engine.ImportTransactions(cmd.Context(), txs); err != nil {
				return err
			}
			printDone("Imported %d transaction(s)", len(txs))
		} else {
			backup, err := transfer.ReadBackup(f)
			if err != nil {
				return err
			}
			if err := app.Engine.ImportData(cmd.Context(), backup); err != nil {
				return err
			}
			printDone("Imported %d transaction(s), %d budget(s), %d categor(ies)",
				len(backup.Transactions), len(backup.Budgets), len(backup.Categories))
		}
		flush(cmd.Context())
		return nil
	},
}

func init() {
	exportCmd.Flags().Bool("csv", false, "Export transactions as CSV")
	importCmd.Flags().Bool("csv", false, "Import transactions from CSV")
	rootCmd.AddCommand(exportCmd, importCmd)
}
