package cmd

import (
	"testing"

	"github.com/fatih/color"
)

func disableColor(t *testing.T) {
	t.Helper()
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})
}

func TestFormatGradeWithColor(t *testing.T) {
	disableColor(t)

	tests := []struct {
		name  string
		grade string
		want  string
	}{
		{name: "top", grade: "A", want: "A"},
		{name: "middle", grade: "C", want: "C"},
		{name: "failing", grade: "F", want: "F"},
		{name: "unknown", grade: "?", want: "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatGradeWithColor(tt.grade); got != tt.want {
				t.Fatalf("formatGradeWithColor(%q) = %q, want %q", tt.grade, got, tt.want)
			}
		})
	}
}

func TestLocalityDot(t *testing.T) {
	disableColor(t)

	if localityDot(true) != "●" || localityDot(false) != "●" {
		t.Fatal("expected plain dots with colors disabled")
	}
}
