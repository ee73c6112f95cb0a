package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "ledger",
	Short:   "Show or change currency and language",
	Example: `  fintrack settings
  fintrack settings --currency EUR --language it`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := app.Engine.Settings()
		changed := false
		if cmd.Flags().Changed("currency") {
			s.Currency, _ = cmd.Flags().GetString("currency")
			changed = true
		}
		if cmd.Flags().Changed("language") {
			s.Language, _ = cmd.Flags().GetString("language")
			changed = true
		}
		if changed {
			var err error
			if s, err = app.Engine.UpdateSettings(cmd.Context(), s); err != nil {
				return err
			}
			printDone("Settings saved")
			flush(cmd.Context())
		}
		fmt.Printf("Currency:     %s\n", s.Currency)
		fmt.Printf("Language:     %s\n", s.Language)
		fmt.Printf("Storage mode: %s\n", s.StorageMode)
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	GroupID: "ledger",
	Short:   "List categories",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cats := app.Engine.Categories()
		rows := make([][]string, 0, len(cats))
		for _, c := range cats {
			rows = append(rows, []string{c.ID, c.Name, string(c.Kind), c.Color})
		}
		fmt.Println(renderTable([]string{"ID", "Name", "Type", "Color"}, rows))
	},
}

var categoriesSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a category, or update one with --id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("type")
		color, _ := cmd.Flags().GetString("color")

		c, err := app.Engine.SaveCategory(cmd.Context(), core.Category{
			ID:    id,
			Name:  name,
			Kind:  core.Kind(strings.ToLower(kind)),
			Color: color,
		})
		if err != nil {
			return err
		}
		printDone("Category %s saved (%s)", c.Name, c.ID)
		flush(cmd.Context())
		return nil
	},
}

func init() {
	settingsCmd.Flags().String("currency", "", "ISO 4217 currency code")
	settingsCmd.Flags().String("language", "", "Language code, e.g. en")

	categoriesSaveCmd.Flags().String("id", "", "Existing category id to update")
	categoriesSaveCmd.Flags().String("name", "", "Category name")
	categoriesSaveCmd.Flags().String("type", string(core.Expense), "expense or income")
	categoriesSaveCmd.Flags().String("color", "#7f849c", "Display color")
	_ = categoriesSaveCmd.MarkFlagRequired("name")

	categoriesCmd.AddCommand(categoriesSaveCmd)
	rootCmd.AddCommand(settingsCmd, categoriesCmd)
}
