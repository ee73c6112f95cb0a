package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

var txCmd = &cobra.Command{
	Use:     "tx",
	GroupID: "ledger",
	Short:   "Add, change and list transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
	Example: `  fintrack tx add --amount 12.50 --category expense-food --description "Lunch"
  fintrack tx add --amount 2000 --type income --category income-salary --date 2024-03-01`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := core.Transaction{Date: core.Date{Time: today()}, Kind: core.Expense}
		if err := applyTxFlags(cmd, &t); err != nil {
			return err
		}
		created, err := app.Engine.AddTransaction(cmd.Context(), t)
		if err != nil {
			return err
		}
		printDone("Recorded %s %s (%s)", created.Kind, core.FormatAmount(created.Amount, app.Engine.Settings().Currency), created.ID)
		flush(cmd.Context())
		return nil
	},
}

var txUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of an existing transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, ok := findTransaction(args[0])
		if !ok {
			return services.ErrNotFound
		}
		if err := applyTxFlags(cmd, &t); err != nil {
			return err
		}
		if err := app.Engine.UpdateTransaction(cmd.Context(), t); err != nil {
			return err
		}
		printDone("Updated %s", t.ID)
		flush(cmd.Context())
		return nil
	},
}

var txDeleteCmd = &cobra.Command{
	Use:     "delete ID",
	Aliases: []string{"rm"},
	Short:   "Delete a transaction",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Engine.DeleteTransaction(cmd.Context(), args[0]); err != nil {
			return err
		}
		printDone("Deleted %s", args[0])
		flush(cmd.Context())
		return nil
	},
}

var txListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List transactions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		month, _ := cmd.Flags().GetString("month")
		limit, _ := cmd.Flags().GetInt("limit")

		txs := app.Engine.Transactions()
		if month != "" {
			txs = filterMonth(txs, month)
		}
		sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.After(txs[j].Date.Time) })
		if limit > 0 && len(txs) > limit {
			txs = txs[:limit]
		}
		if len(txs) == 0 {
			fmt.Println(mutedStyle.Render("No transactions."))
			return nil
		}

		currency := app.Engine.Settings().Currency
		categories := app.Engine.Categories()
		rows := make([][]string, 0, len(txs))
		for _, t := range txs {
			rows = append(rows, []string{
				t.ID,
				t.Date.String(),
				t.Description,
				core.CategoryName(categories, t.Category),
				string(t.Kind),
				core.FormatAmount(t.Amount, currency),
			})
		}
		fmt.Println(renderTable([]string{"ID", "Date", "Description", "Category", "Type", "Amount"}, rows))

		s := core.Summarize(txs)
		fmt.Printf("Income %s  Expenses %s  Net %s\n",
			okStyle.Render(core.FormatAmount(s.Income, currency)),
			errorStyle.Render(core.FormatAmount(s.Expenses, currency)),
			accentStyle.Render(core.FormatAmount(s.Net(), currency)))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{txAddCmd, txUpdateCmd} {
		c.Flags().String("amount", "", "Positive amount, e.g. 12.50")
		c.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
		c.Flags().StringP("description", "d", "", "Description (max 200 characters)")
		c.Flags().StringP("category", "c", "", "Category id or name")
		c.Flags().String("type", "", "expense or income (default expense)")
		c.Flags().String("notes", "", "Free-form notes")
		c.Flags().StringSlice("tags", nil, "Comma separated tags")
	}
	_ = txAddCmd.MarkFlagRequired("amount")
	_ = txAddCmd.MarkFlagRequired("category")

	txListCmd.Flags().String("month", "", "Only show YYYY-MM")
	txListCmd.Flags().IntP("limit", "n", 0, "Show at most n transactions")

	txCmd.AddCommand(txAddCmd, txUpdateCmd, txDeleteCmd, txListCmd)
	rootCmd.AddCommand(txCmd)
}

// applyTxFlags copies the flags the user set onto t.
func applyTxFlags(cmd *cobra.Command, t *core.Transaction) error {
	flags := cmd.Flags()
	if flags.Changed("amount") {
		raw, _ := flags.GetString("amount")
		amount, err := core.ParseAmount(raw)
		if err != nil {
			return fmt.Errorf("amount %q: %w", raw, err)
		}
		t.Amount = amount
	}
	if flags.Changed("date") {
		raw, _ := flags.GetString("date")
		d, err := core.ParseDate(raw)
		if err != nil {
			return fmt.Errorf("date %q: %w", raw, err)
		}
		t.Date = d
	}
	if flags.Changed("description") {
		t.Description, _ = flags.GetString("description")
	}
	if flags.Changed("category") {
		raw, _ := flags.GetString("category")
		t.Category = resolveCategory(raw)
	}
	if flags.Changed("type") {
		raw, _ := flags.GetString("type")
		t.Kind = core.Kind(strings.ToLower(strings.TrimSpace(raw)))
	}
	if flags.Changed("notes") {
		t.Notes, _ = flags.GetString("notes")
	}
	if flags.Changed("tags") {
		t.Tags, _ = flags.GetStringSlice("tags")
	}
	return nil
}

// resolveCategory accepts a category id or a case-insensitive name.
func resolveCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, c := range app.Engine.Categories() {
		if c.ID == raw || strings.EqualFold(c.Name, raw) {
			return c.ID
		}
	}
	return raw
}

func findTransaction(id string) (core.Transaction, bool) {
	for _, t := range app.Engine.Transactions() {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

func filterMonth(txs []core.Transaction, month string) []core.Transaction {
	out := txs[:0:0]
	for _, t := range txs {
		if t.Date.Format("2006-01") == month {
			out = append(out, t)
		}
	}
	return out
}

func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

