package review

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobcatalog/internal/model"
)

// Lines per link in the list pane (title + subtitle + blank separator).
const linkItemHeight = 3

const resolveTimeout = 30 * time.Second

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Width(12)

	matchedLabelStyle = labelStyle.
				Foreground(lipgloss.Color("42")) // green

	sideHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Underline(true)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// resolvedMsg is sent when an async decision completes.
type resolvedMsg struct {
	linkID  string
	approve bool
	err     error
}

type reviewModel struct {
	items        []Item
	listViewport viewport.Model
	compViewport viewport.Model
	activePane   int // 0=list, 1=comparison
	cursor       int
	width        int
	height       int
	ready        bool

	resolver        Resolver
	pending         string // link id awaiting a decision result
	status          string
	statusErr       bool
	showDescription bool
	approved        int
	rejected        int

	wantQuit bool
}

func newReviewModel(items []Item, resolver Resolver) reviewModel {
	return reviewModel{items: items, resolver: resolver}
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case resolvedMsg:
		m.pending = ""
		if msg.err != nil {
			m.status = fmt.Sprintf("decision failed: %v", msg.err)
			m.statusErr = true
			return m, nil
		}
		m.removeItem(msg.linkID)
		m.statusErr = false
		if msg.approve {
			m.approved++
			m.status = "merged " + shortID(msg.linkID)
		} else {
			m.rejected++
			m.status = "kept apart " + shortID(msg.linkID)
		}
		m.recalcContent()
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m reviewModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		return m, nil
	case "up", "k":
		if m.activePane == 0 {
			m.moveCursor(-1)
			return m, nil
		}
	case "down", "j":
		if m.activePane == 0 {
			m.moveCursor(1)
			return m, nil
		}
	case "a":
		return m.decide(true)
	case "x":
		return m.decide(false)
	case "r":
		m.showDescription = !m.showDescription
		m.recalcContent()
		m.compViewport.SetYOffset(0)
		return m, nil
	case "o":
		if it, ok := m.selected(); ok {
			openURL(it.Duplicate.URL)
		}
		return m, nil
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.listViewport, cmd = m.listViewport.Update(msg)
	} else {
		m.compViewport, cmd = m.compViewport.Update(msg)
	}
	return m, cmd
}

// decide sends the decision for the selected link. One decision is in flight at a time.
func (m reviewModel) decide(approve bool) (tea.Model, tea.Cmd) {
	it, ok := m.selected()
	if !ok || m.pending != "" || m.resolver == nil {
		return m, nil
	}
	m.pending = it.Link.ID
	m.status = "saving..."
	m.statusErr = false

	resolver, linkID := m.resolver, it.Link.ID
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		_, err := resolver.ResolveReview(ctx, linkID, approve)
		return resolvedMsg{linkID: linkID, approve: approve, err: err}
	}
}

func (m reviewModel) selected() (Item, bool) {
	if len(m.items) == 0 {
		return Item{}, false
	}
	return m.items[m.cursor], true
}

func (m *reviewModel) removeItem(linkID string) {
	i := slices.IndexFunc(m.items, func(it Item) bool { return it.Link.ID == linkID })
	if i < 0 {
		return
	}
	m.items = slices.Delete(m.items, i, i+1)
	m.cursor = clamp(m.cursor, 0, max(len(m.items)-1, 0))
}

func (m *reviewModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.items)-1, 0))
	m.showDescription = false
	m.recalcContent()
	m.compViewport.SetYOffset(0)
	m.ensureCursorVisible()
}

func (m *reviewModel) ensureCursorVisible() {
	vp := &m.listViewport
	cursorTop := m.cursor * linkItemHeight
	cursorBottom := cursorTop + linkItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m *reviewModel) recalcLayout() {
	// The list takes a third of the width, the comparison the rest.
	listWidth := max((m.width-5)/3, 24)
	compWidth := max(m.width-5-listWidth, 40)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.listViewport = viewport.New(listWidth, paneHeight)
		m.compViewport = viewport.New(compWidth, paneHeight)
		m.ready = true
	} else {
		m.listViewport.Width = listWidth
		m.listViewport.Height = paneHeight
		m.compViewport.Width = compWidth
		m.compViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *reviewModel) recalcContent() {
	m.listViewport.SetContent(renderList(m.items, m.cursor, m.activePane == 0))
	if it, ok := m.selected(); ok {
		m.compViewport.SetContent(renderComparison(it, m.compViewport.Width, m.showDescription))
	} else {
		m.compViewport.SetContent(hintStyle.Render("  queue is empty"))
	}
}

func (m reviewModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	listHeader := fmt.Sprintf(" Pending (%d)", len(m.items))
	compHeader := " Comparison"
	listBorder, compBorder := activeBorderStyle, inactiveBorderStyle
	listHeaderSt, compHeaderSt := activeHeaderStyle, inactiveHeaderStyle
	if m.activePane == 1 {
		listBorder, compBorder = compBorder, listBorder
		listHeaderSt, compHeaderSt = compHeaderSt, listHeaderSt
	}

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(m.listViewport.Width+2).Render(listHeaderSt.Render(listHeader)),
		" ",
		lipgloss.NewStyle().Width(m.compViewport.Width+2).Render(compHeaderSt.Render(compHeader)),
	)
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		listBorder.Width(m.listViewport.Width).Render(m.listViewport.View()),
		" ",
		compBorder.Width(m.compViewport.Width).Render(m.compViewport.View()),
	)

	statusText := fmt.Sprintf(" %d merged | %d kept apart    a merge  x keep apart  r desc  o open  Tab switch  Esc back  q quit",
		m.approved, m.rejected)
	if m.status != "" {
		statusText = " " + m.status + "   |" + statusText
	}
	bar := statusBarStyle
	if m.statusErr {
		bar = bar.Foreground(lipgloss.Color("196"))
	}
	return headerRow + "\n" + panes + "\n" + bar.Width(m.width).Render(statusText)
}

func renderList(items []Item, cursor int, isActive bool) string {
	if len(items) == 0 {
		return "  (nothing to review)"
	}

	var b strings.Builder
	for i, it := range items {
		titleSt, subtitleSt, prefix := itemTitleStyle, itemSubtitleStyle, "  "
		if isActive && i == cursor {
			titleSt, subtitleSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(it.Canonical.Title))
		b.WriteByte('\n')
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %.0f%% · %s",
			it.Link.Strategy, it.Link.Confidence*100, it.Canonical.Company)))
		b.WriteByte('\n')

		if i < len(items)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderComparison shows both jobs field by field. Labels of fields the
// matcher agreed on are highlighted.
func renderComparison(it Item, width int, showDescription bool) string {
	var b strings.Builder
	colWidth := max((width-14)/2, 16)
	col := lipgloss.NewStyle().Width(colWidth).PaddingRight(1)

	row := func(field, label, left, right string) {
		if left == "" && right == "" {
			return
		}
		st := labelStyle
		if slices.Contains(it.Link.MatchedFields, field) {
			st = matchedLabelStyle
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			st.Render(label), col.Render(left), col.Render(right)))
		b.WriteByte('\n')
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render(""),
		col.Render(sideHeaderStyle.Render("Canonical")),
		col.Render(sideHeaderStyle.Render("Candidate"))))
	b.WriteString("\n\n")

	c, d := it.Canonical, it.Duplicate
	row("title", "Title", c.Title, d.Title)
	row("company", "Company", c.Company, d.Company)
	row("location", "Location", c.Location, d.Location)
	row("salary", "Salary", formatSalary(c.Salary), formatSalary(d.Salary))
	row("employment_type", "Type", c.EmploymentType, d.EmploymentType)
	row("skills", "Skills", strings.Join(c.Skills, ", "), strings.Join(d.Skills, ", "))
	row("posted_at", "Posted", formatDate(c.PostedAt), formatDate(d.PostedAt))
	row("sources", "Sources", formatSources(c.Sources), formatSources(d.Sources))
	row("url", "URL", c.URL, d.URL)

	b.WriteByte('\n')
	b.WriteString(dividerStyle.Render(strings.Repeat("─", max(width-2, 3))) + "\n")
	fmt.Fprintf(&b, "%s %s  %s %.2f  %s %s\n",
		labelStyle.Width(0).Render("Strategy"), it.Link.Strategy,
		labelStyle.Width(0).Render("Confidence"), it.Link.Confidence,
		labelStyle.Width(0).Render("Matched"), strings.Join(it.Link.MatchedFields, ", "))

	if !showDescription {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  press r to compare descriptions") + "\n")
		return b.String()
	}

	wrap := max(width-4, 20)
	b.WriteByte('\n')
	b.WriteString(dividerStyle.Render("── Canonical description ") + "\n\n")
	b.WriteString(orNone(wordWrap(c.Description, wrap)) + "\n\n")
	b.WriteString(dividerStyle.Render("── Candidate description ") + "\n\n")
	b.WriteString(orNone(wordWrap(d.Description, wrap)) + "\n")
	return b.String()
}

func formatSalary(s *model.Salary) string {
	if s == nil {
		return ""
	}
	if s.Min == s.Max {
		return fmt.Sprintf("%s %.0f", s.Currency, s.Min)
	}
	return fmt.Sprintf("%s %.0f - %.0f", s.Currency, s.Min, s.Max)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatSources(refs []model.SourceRef) string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		if !slices.Contains(names, r.Source) {
			names = append(names, r.Source)
		}
	}
	return strings.Join(names, ", ")
}

func orNone(s string) string {
	if s == "" {
		return hintStyle.Render("  (no description)")
	}
	return s
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	if url == "" {
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Result summarizes one review session.
type Result struct {
	Approved  int
	Rejected  int
	Remaining []Item
	WantQuit  bool // q/ctrl+c rather than esc back to the picker
}

// RunReviewTUI launches the split-pane review view over items.
func RunReviewTUI(items []Item, resolver Resolver) (Result, error) {
	p := tea.NewProgram(newReviewModel(items, resolver), tea.WithAltScreen())
	out, err := p.Run()
	if err != nil {
		return Result{}, err
	}
	final := out.(reviewModel)
	return Result{
		Approved:  final.approved,
		Rejected:  final.rejected,
		Remaining: final.items,
		WantQuit:  final.wantQuit,
	}, nil
}
