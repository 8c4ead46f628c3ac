package review

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var pickerTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")).
	Padding(0, 1)

// groupItem adapts Group to list.Item.
type groupItem struct{ Group }

func (g groupItem) Title() string { return g.Label() }

func (g groupItem) Description() string {
	switch g.Strategy {
	case "":
		return "every unresolved link, highest confidence first"
	default:
		return fmt.Sprintf("links proposed by the %s matcher", g.Strategy)
	}
}

func (g groupItem) FilterValue() string { return string(g.Strategy) }

type pickerModel struct {
	list   list.Model
	chosen int // -1 = no choice yet or quit
}

func newPickerModel(groups []Group) pickerModel {
	items := make([]list.Item, len(groups))
	for i, g := range groups {
		items[i] = groupItem{g}
	}
	l := list.New(items, list.NewDefaultDelegate(), 60, 4*len(groups)+6)
	l.Title = "Duplicate Review: select a queue"
	l.Styles.Title = pickerTitleStyle
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	return pickerModel{list: l, chosen: -1}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.chosen = -1
			return m, tea.Quit
		case "enter":
			m.chosen = m.list.Index()
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return m.list.View()
}

// RunGroupPicker shows the strategy selector.
// Returns the index of the chosen group, or -1 if the user quit.
func RunGroupPicker(groups []Group) (int, error) {
	out, err := tea.NewProgram(newPickerModel(groups)).Run()
	if err != nil {
		return -1, err
	}
	return out.(pickerModel).chosen, nil
}
