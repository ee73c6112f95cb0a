package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

var budgetCmd = &cobra.Command{
	Use:     "budget",
	GroupID: "ledger",
	Short:   "Manage spending budgets per category",
}

var budgetAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Create a budget",
	Example: `  fintrack budget add --category Food --amount 400 --period monthly`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		rawAmount, _ := cmd.Flags().GetString("amount")
		period, _ := cmd.Flags().GetString("period")

		amount, err := core.ParseAmount(rawAmount)
		if err != nil {
			return fmt.Errorf("amount %q: %w", rawAmount, err)
		}
		created, err := app.Engine.AddBudget(cmd.Context(), core.Budget{
			CategoryID: resolveCategory(category),
			Amount:     amount,
			Period:     core.Period(strings.ToLower(period)),
		})
		if err != nil {
			return err
		}
		printDone("Budget %s created", created.ID)
		flush(cmd.Context())
		return nil
	},
}

var budgetDeleteCmd = &cobra.Command{
	Use:     "delete ID",
	Aliases: []string{"rm"},
	Short:   "Delete a budget",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Engine.DeleteBudget(cmd.Context(), args[0]); err != nil {
			return err
		}
		printDone("Deleted %s", args[0])
		flush(cmd.Context())
		return nil
	},
}

var budgetListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List budgets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		budgets := app.Engine.Budgets()
		if len(budgets) == 0 {
			fmt.Println(mutedStyle.Render("No budgets yet."))
			return nil
		}
		currency := app.Engine.Settings().Currency
		categories := app.Engine.Categories()
		rows := make([][]string, 0, len(budgets))
		for _, b := range budgets {
			rows = append(rows, []string{
				b.ID,
				core.CategoryName(categories, b.CategoryID),
				string(b.Period),
				core.FormatAmount(b.Amount, currency),
			})
		}
		fmt.Println(renderTable([]string{"ID", "Category", "Period", "Amount"}, rows))
		return nil
	},
}

func init() {
	budgetAddCmd.Flags().StringP("category", "c", "", "Category id or name")
	budgetAddCmd.Flags().String("amount", "", "Budget amount")
	budgetAddCmd.Flags().String("period", string(core.Monthly), "weekly, monthly or yearly")
	_ = budgetAddCmd.MarkFlagRequired("category")
	_ = budgetAddCmd.MarkFlagRequired("amount")

	budgetCmd.AddCommand(budgetAddCmd, budgetDeleteCmd, budgetListCmd)
	rootCmd.AddCommand(budgetCmd)
}
