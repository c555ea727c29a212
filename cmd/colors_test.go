package cmd

import (
	"testing"

	"github.com/fatih/color"
)

func TestFormatGradeWithColor(t *testing.T) {
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})

	tests := []struct {
		name  string
		grade string
		want  string
	}{
		{name: "top grade", grade: "A", want: "A"},
		{name: "middle grade", grade: "C", want: "C"},
		{name: "failing grade", grade: "F", want: "F"},
		{name: "unknown", grade: "N/A", want: "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatGradeWithColor(tt.grade); got != tt.want {
				t.Fatalf("formatGradeWithColor(%q) = %q, want %q", tt.grade, got, tt.want)
			}
		})
	}
}

func TestFormatRiskLevelWithColor(t *testing.T) {
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})

	for _, level := range []string{"MINIMAL", "LOW", "MEDIUM", "HIGH", "CRITICAL", "UNKNOWN"} {
		if got := formatRiskLevelWithColor(level); got != level {
			t.Fatalf("formatRiskLevelWithColor(%q) = %q with colors disabled", level, got)
		}
	}
}
