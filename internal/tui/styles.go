// Package tui implements the interactive source selector used by `cspgen select`.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the palette used by the selector.
type Theme struct {
	Accent   lipgloss.Color
	Primary  lipgloss.Color
	Dim      lipgloss.Color
	Local    lipgloss.Color
	External lipgloss.Color
	Border   lipgloss.Color
}

// DefaultTheme returns the default palette.
func DefaultTheme() Theme {
	return Theme{
		Accent:   lipgloss.Color("#7C3AED"),
		Primary:  lipgloss.Color("#F9FAFB"),
		Dim:      lipgloss.Color("#6B7280"),
		Local:    lipgloss.Color("#10B981"),
		External: lipgloss.Color("#EF4444"),
		Border:   lipgloss.Color("#374151"),
	}
}

// StyleSet is the set of rendered styles derived from a Theme.
type StyleSet struct {
	Theme     Theme
	Title     lipgloss.Style
	Header    lipgloss.Style
	Cursor    lipgloss.Style
	Item      lipgloss.Style
	ActiveRow lipgloss.Style
	LocalDot  lipgloss.Style
	ExtDot    lipgloss.Style
	DimTxt    lipgloss.Style
	KbdKey    lipgloss.Style
	KbdDesc   lipgloss.Style
	Box       lipgloss.Style
}

// NewStyleSet builds a StyleSet from theme.
func NewStyleSet(theme Theme) *StyleSet {
	return &StyleSet{
		Theme:     theme,
		Title:     lipgloss.NewStyle().Bold(true).Foreground(theme.Accent),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).MarginTop(1),
		Cursor:    lipgloss.NewStyle().Foreground(theme.Accent).Bold(true),
		Item:      lipgloss.NewStyle().Foreground(theme.Primary),
		ActiveRow: lipgloss.NewStyle().Foreground(theme.Accent),
		LocalDot:  lipgloss.NewStyle().Foreground(theme.Local),
		ExtDot:    lipgloss.NewStyle().Foreground(theme.External),
		DimTxt:    lipgloss.NewStyle().Foreground(theme.Dim),
		KbdKey:    lipgloss.NewStyle().Foreground(theme.Accent).Bold(true),
		KbdDesc:   lipgloss.NewStyle().Foreground(theme.Dim),
		Box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(theme.Border).Padding(0, 1),
	}
}
