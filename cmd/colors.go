package cmd

import (
	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatGradeWithColor(grade string) string {
	switch grade {
	case "A", "B":
		return colorSuccess(grade)
	case "C":
		return colorWarn(grade)
	case "D", "F":
		return colorError(grade)
	default:
		return grade
	}
}

func formatRiskLevelWithColor(level string) string {
	switch level {
	case "MINIMAL", "LOW":
		return colorSuccess(level)
	case "MEDIUM":
		return colorWarn(level)
	case "HIGH", "CRITICAL":
		return colorError(level)
	default:
		return level
	}
}
