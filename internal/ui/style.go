package ui

import (
	"strings"

	"github.com/fatih/color"

	"github.com/joshharrison/planloom/internal/model"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// StatusIcon returns a colored icon for a task's lifecycle state.
func StatusIcon(status model.TaskStatus) string {
	switch status {
	case model.StatusCompleted:
		return Green("✓")
	case model.StatusInProgress:
		return Cyan("●")
	case model.StatusOnHold:
		return Yellow("⊘")
	case model.StatusCancelled:
		return Dim("⊘")
	default:
		return Dim("◌")
	}
}

// MilestoneBadge returns a colored milestone status label.
func MilestoneBadge(status model.MilestoneStatus) string {
	switch status {
	case model.MilestoneAchieved:
		return Green("achieved")
	case model.MilestoneMissed:
		return BoldRed("missed")
	case model.MilestoneAtRisk:
		return Yellow("at risk")
	default:
		return Dim("planned")
	}
}

// DerivedBadge colors a schedule's derived-state marker.
func DerivedBadge(state model.DerivedState) string {
	switch state {
	case model.DerivedValid:
		return Green("valid")
	case model.DerivedInvalid:
		return BoldRed("invalid")
	default:
		return Yellow("stale")
	}
}

// ProgressBar renders a fixed-width percent bar like [████░░░░░░] 40%.
func ProgressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case percent == 100:
		return Green(bar)
	case percent == 0:
		return Dim(bar)
	default:
		return Cyan(bar)
	}
}

// CriticalMark flags critical-path tasks in tables.
func CriticalMark(critical bool) string {
	if critical {
		return BoldYellow("⚡")
	}
	return " "
}
