package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/roverhq/rover/internal/store"
)

// Shared lipgloss styles for command output. Colors come from the ANSI-16
// palette so they degrade cleanly under --no-color's ASCII profile.
var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// severityStyle returns the display style for an issue severity.
func severityStyle(sev store.Severity) lipgloss.Style {
	switch sev {
	case store.SeverityCritical:
		return criticalStyle
	case store.SeverityHigh:
		return errStyle
	case store.SeverityMedium:
		return warnStyle
	case store.SeverityLow:
		return dimStyle
	default:
		return lipgloss.NewStyle()
	}
}

// fixStatusStyle returns the display style for a fix record status.
func fixStatusStyle(status store.FixStatus) lipgloss.Style {
	switch status {
	case store.FixReadyForReview:
		return okStyle
	case store.FixPRCreated, store.FixMerged:
		return dimStyle
	case store.FixInProgress:
		return warnStyle
	case store.FixError:
		return errStyle
	default:
		return lipgloss.NewStyle()
	}
}
