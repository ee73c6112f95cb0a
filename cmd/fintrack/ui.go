package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"fintrack/internal/core"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fab387"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true)
)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		Render()
}

func renderStatus(status core.SyncStatus) string {
	switch status {
	case core.StatusSuccess:
		return okStyle.Render(string(status))
	case core.StatusError:
		return errorStyle.Render(string(status))
	case core.StatusOffline:
		return warnStyle.Render(string(status))
	case core.StatusSyncing:
		return accentStyle.Render(string(status))
	default:
		return mutedStyle.Render(string(status))
	}
}

func printDone(format string, args ...any) {
	fmt.Printf("%s %s\n", okStyle.Render("✓"), fmt.Sprintf(format, args...))
}
