package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/tomvdbrandt/canopy/pkg/render"
)

// View paints the current mode. The tree body lives in a viewport so
// large graphs scroll instead of reflowing.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	switch m.mode {
	case modeError:
		return m.errorView()
	case modeForm:
		if m.form != nil {
			return m.form.view()
		}
	case modeDetail:
		return m.detailView()
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary)
	subtle := lipgloss.NewStyle().Foreground(m.theme.Subtle)

	title := titleStyle.Render("canopy")
	f := m.reconciler.Filters()

	var parts []string
	if m.tree != nil {
		parts = append(parts, fmt.Sprintf("%d nodes", m.tree.NodeCount))
	}
	if f.Status != render.StatusAll {
		parts = append(parts, "status="+f.Status)
	}
	if f.Connection != render.ConnectionAll {
		parts = append(parts, "conn="+string(f.Connection))
	}
	if f.SearchActive() {
		parts = append(parts, "search active")
	}

	line := title
	if len(parts) > 0 {
		line += "  " + subtle.Render(strings.Join(parts, " · "))
	}

	if m.mode == modeSearchName || m.mode == modeSearchID {
		return line + "\n" + m.search.View()
	}
	status := ""
	if m.statusMessage != "" {
		status = subtle.Render(m.statusMessage)
	}
	return line + "\n" + status
}

func (m Model) footerView() string {
	help := "j/k move · enter detail · / search · # id · s status · c conn · n new · e edit · d del · L link · y yank · r reload · q quit"
	return lipgloss.NewStyle().Foreground(m.theme.Subtle).Render(
		truncateCells(help, m.width, "…"))
}

// refreshViewport re-renders the tree body into the viewport buffer.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.bodyView())
}

func (m Model) bodyView() string {
	if m.noRoot {
		return emptyBox(m.theme, m.width,
			"No nodes yet.",
			"The server returned an empty graph. Press r to refresh.")
	}
	if m.tree == nil {
		return "loading..."
	}
	if m.tree.IsEmpty() {
		if m.tree.Reason == render.EmptyNoMatch {
			return emptyBox(m.theme, m.width,
				"No matches.",
				"Nothing satisfies the active filters. Press esc to clear them.")
		}
		return emptyBox(m.theme, m.width,
			"No nodes yet.",
			"The server returned an empty graph. Press r to refresh.")
	}

	var b strings.Builder
	for i, n := range m.flat {
		b.WriteString(m.rowView(i, n))
		if i < len(m.flat)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) rowView(i int, n *render.Node) string {
	prefix := m.prefixes[i]
	glyph := StatusGlyph(n.Status)

	idStyle := lipgloss.NewStyle().Foreground(m.theme.Subtle)
	nameStyle := lipgloss.NewStyle()
	glyphStyle := lipgloss.NewStyle().Foreground(m.theme.StatusColor(n.Status))

	stats := ""
	if m.showStats && n.StatsKnown {
		stats = fmt.Sprintf(" [↓%d ↑%d]", n.Stats.Inbound, n.Stats.Outbound)
	}

	avail := m.width - runewidth.StringWidth(prefix) - runewidth.StringWidth(glyph) -
		runewidth.StringWidth(n.FriendlyID) - runewidth.StringWidth(stats) - 4
	name := truncateCells(n.Name, avail, "…")

	row := prefix + glyphStyle.Render(glyph) + " " +
		idStyle.Render(n.FriendlyID) + " " +
		nameStyle.Render(name) +
		idStyle.Render(stats)

	if i == m.cursor {
		row = lipgloss.NewStyle().Foreground(m.theme.Highlight).Bold(true).
			Render("▸ ") + row
	} else {
		row = "  " + row
	}
	if n.ID == m.highlightID {
		row = lipgloss.NewStyle().Background(m.theme.Highlight).Render(row)
	}
	return row
}

func (m Model) detailView() string {
	footer := lipgloss.NewStyle().Foreground(m.theme.Subtle).
		Render("esc back")
	return m.detail + "\n" + footer
}

func (m Model) errorView() string {
	errStyle := lipgloss.NewStyle().Foreground(m.theme.ErrorFG).Bold(true)
	subtle := lipgloss.NewStyle().Foreground(m.theme.Subtle)

	msg := "request failed"
	if m.err != nil {
		msg = m.err.Error()
	}
	return "\n" + errStyle.Render("  ✗ "+msg) + "\n\n" +
		subtle.Render("  r retry · q quit") + "\n"
}

func emptyBox(theme Theme, width int, title, hint string) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Subtle).
		Padding(1, 3)
	body := lipgloss.NewStyle().Bold(true).Render(title) + "\n" +
		lipgloss.NewStyle().Foreground(theme.Subtle).Render(hint)
	return style.Render(body)
}

// truncateCells trims s to a visual cell width, appending suffix when cut.
func truncateCells(s string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	suffixWidth := runewidth.StringWidth(suffix)
	if suffixWidth > maxWidth {
		return runewidth.Truncate(suffix, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth-suffixWidth, "") + suffix
}

// renderMarkdown renders md for the terminal at the given wrap width.
func renderMarkdown(md string, width int) (string, error) {
	wrap := width - 4
	if wrap < 20 {
		wrap = 60
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(md)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}
