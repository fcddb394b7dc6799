package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess  = color.New(color.FgGreen).SprintFunc()
	colorInfo     = color.New(color.FgCyan).SprintFunc()
	colorWarn     = color.New(color.FgYellow).SprintFunc()
	colorError    = color.New(color.FgRed).SprintFunc()
	colorLocal    = color.New(color.FgGreen).SprintFunc()
	colorExternal = color.New(color.FgRed).SprintFunc()
	colorHeading  = color.New(color.Bold).SprintFunc()
)

// localityDot renders the origin marker shown next to each source.
func localityDot(local bool) string {
	if local {
		return colorLocal("●")
	}
	return colorExternal("●")
}

func formatGradeWithColor(grade string) string {
	switch strings.ToUpper(grade) {
	case "A", "B":
		return colorSuccess(grade)
	case "C", "D", "E":
		return colorWarn(grade)
	case "F":
		return colorError(grade)
	default:
		return grade
	}
}
