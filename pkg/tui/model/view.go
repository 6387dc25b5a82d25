package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/gatewatch/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusIdle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var categoryColors = map[core.Category]lipgloss.Color{
	core.CategoryLLM:      lipgloss.Color("141"),
	core.CategoryTelegram: lipgloss.Color("39"),
	core.CategoryTool:     lipgloss.Color("214"),
	core.CategoryAgent:    lipgloss.Color("42"),
	core.CategoryError:    lipgloss.Color("196"),
	core.CategoryChannel:  lipgloss.Color("81"),
	core.CategoryOther:    lipgloss.Color("245"),
}

// CategoryStyle returns the foreground style used for a category label.
func CategoryStyle(c core.Category) lipgloss.Style {
	color, ok := categoryColors[c]
	if !ok {
		color = categoryColors[core.CategoryOther]
	}
	return lipgloss.NewStyle().Foreground(color)
}

// CategoryLabel renders a fixed-width, coloured category tag.
func CategoryLabel(c core.Category) string {
	return CategoryStyle(c).Render(fmt.Sprintf("%-8s", c))
}

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	statusBarH := 2
	actPaneH := max(a.height/4, 5)
	mainH := a.height - actPaneH - statusBarH - 2
	listW := a.width*3/5 - 2
	detailW := a.width - listW - 4

	feed := a.renderFeed(listW, mainH)
	feedPane := a.paneBox(PaneFeed, a.feedTitle(), feed, listW, mainH)

	detail := a.renderDetail(detailW, mainH)
	detailPane := a.paneBox(PaneDetail, " Detail ", detail, detailW, mainH)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, feedPane, detailPane)

	act := a.renderActivity(a.width-4, actPaneH)
	actPane := a.paneBox(PaneActivity, fmt.Sprintf(" Activity (%d) ", a.actTotal), act, a.width-4, actPaneH)

	return lipgloss.JoinVertical(lipgloss.Left, topRow, actPane, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) feedTitle() string {
	title := " Network "
	if a.category != "" {
		title += CategoryStyle(a.category).Render("["+string(a.category)+"]") + " "
	}
	if a.paused {
		title += dimStyle.Render("[PAUSED]") + " "
	}
	return title
}

func (a App) renderFeed(w, h int) string {
	entries := a.filteredEntries()
	if len(entries) == 0 {
		return dimStyle.Render("no entries")
	}

	var b strings.Builder
	maxVisible := h - 2
	if a.mode == ModeSearch {
		maxVisible -= 2
	}
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(entries) && i-start < maxVisible; i++ {
		e := entries[i]
		msgW := w - 20
		if i == a.selectedIdx {
			line := fmt.Sprintf(" %s %-8s %s", clock(e.Timestamp), e.Category, truncate(e.Message, msgW))
			b.WriteString(selectedStyle.Width(w).Render(line) + "\n")
			continue
		}
		fmt.Fprintf(&b, " %s %s %s\n", dimStyle.Render(clock(e.Timestamp)), CategoryLabel(e.Category), truncate(e.Message, msgW))
	}

	if a.mode == ModeSearch {
		b.WriteString("\n" + a.search.View())
	}

	return b.String()
}

func (a App) renderDetail(w, h int) string {
	e := a.selectedEntry()
	if e == nil {
		return dimStyle.Render("select an entry")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ID:        %s\n", dimStyle.Render(fmt.Sprint(e.ID)))
	fmt.Fprintf(&b, "Time:      %s\n", e.Timestamp)
	fmt.Fprintf(&b, "Level:     %s\n", colorLevel(e.Level))
	fmt.Fprintf(&b, "Category:  %s\n", CategoryStyle(e.Category).Render(string(e.Category)))
	if e.Subsystem != "" {
		fmt.Fprintf(&b, "Subsystem: %s\n", e.Subsystem)
	}
	b.WriteString("\n" + wrap(e.Message, w) + "\n")
	if rows := h - strings.Count(b.String(), "\n") - 3; rows > 0 {
		b.WriteString("\n" + dimStyle.Render(truncate(wrap(e.Raw, w), rows*w)))
	}
	return b.String()
}

func (a App) renderActivity(w, h int) string {
	if len(a.activity) == 0 {
		return dimStyle.Render("no activity")
	}

	var b strings.Builder
	for i, e := range a.activity {
		if i >= h-1 {
			break
		}
		line := fmt.Sprintf(" %s %-9s %-14s %-10s %s %s",
			clock(e.Timestamp), e.Source, truncate(e.Action, 14), truncate(e.Agent, 10),
			colorStatus(e.Status), truncate(e.Target, max(w-60, 8)))
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "j/k:nav tab:pane /:search f:filter space:pause c:clear p:poll q:quit"
	if a.mode == ModeSearch {
		right = "enter:apply esc:cancel"
	}

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func colorLevel(level string) string {
	switch strings.ToLower(level) {
	case "error", "fatal":
		return statusError.Render(level)
	case "warn", "warning":
		return CategoryStyle(core.CategoryTool).Render(level)
	default:
		return level
	}
}

func colorStatus(status string) string {
	s := fmt.Sprintf("%-6s", status)
	switch status {
	case "ok", "active":
		return statusOK.Render(s)
	case "error":
		return statusError.Render(s)
	default:
		return statusIdle.Render(s)
	}
}

// clock extracts HH:MM:SS from an ISO-8601 timestamp.
func clock(ts string) string {
	if i := strings.IndexByte(ts, 'T'); i >= 0 && len(ts) >= i+9 {
		return ts[i+1 : i+9]
	}
	return fmt.Sprintf("%-8s", truncate(ts, 8))
}

func wrap(s string, w int) string {
	if w <= 0 || len(s) <= w {
		return s
	}
	var b strings.Builder
	for len(s) > w {
		b.WriteString(s[:w] + "\n")
		s = s[w:]
	}
	b.WriteString(s)
	return b.String()
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
