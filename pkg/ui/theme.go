package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tomvdbrandt/canopy/pkg/model"
)

// Theme holds the lipgloss styles for the tree view. A Renderer is carried
// so tests can pin a color profile.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Subtle    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	ErrorFG   lipgloss.AdaptiveColor

	StatusNew        lipgloss.AdaptiveColor
	StatusProcessing lipgloss.AdaptiveColor
	StatusCompleted  lipgloss.AdaptiveColor
}

// DefaultTheme returns the standard canopy theme.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		Renderer:         r,
		Primary:          lipgloss.AdaptiveColor{Light: "#1a56db", Dark: "#76a9fa"},
		Subtle:           lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"},
		Highlight:        lipgloss.AdaptiveColor{Light: "#d97706", Dark: "#fbbf24"},
		ErrorFG:          lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"},
		StatusNew:        lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#86efac"},
		StatusProcessing: lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#fcd34d"},
		StatusCompleted:  lipgloss.AdaptiveColor{Light: "#64748b", Dark: "#94a3b8"},
	}
}

// StatusColor maps a node status to its theme color.
func (t Theme) StatusColor(s model.Status) lipgloss.AdaptiveColor {
	switch s {
	case model.StatusProcessing:
		return t.StatusProcessing
	case model.StatusCompleted:
		return t.StatusCompleted
	default:
		return t.StatusNew
	}
}

// StatusGlyph is the single-character marker rendered before a node name.
func StatusGlyph(s model.Status) string {
	switch s {
	case model.StatusProcessing:
		return "◐"
	case model.StatusCompleted:
		return "●"
	default:
		return "○"
	}
}
