package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const loadTimeout = time.Minute

var errCancelled = errors.New("cancelled")

type queueLoadedMsg struct {
	items []Item
	err   error
}

type loadingModel struct {
	load    func(ctx context.Context) ([]Item, error)
	spinner spinner.Model
	items   []Item
	err     error
	done    bool
}

func newLoadingModel(load func(ctx context.Context) ([]Item, error)) loadingModel {
	return loadingModel{
		load: load,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("33"))),
		),
	}
}

func (m loadingModel) Init() tea.Cmd {
	load := m.load
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		items, err := load(ctx)
		return queueLoadedMsg{items: items, err: err}
	})
}

func (m loadingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case queueLoadedMsg:
		m.items, m.err, m.done = msg.items, msg.err, true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err, m.done = errCancelled, true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m loadingModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Loading review queue...\n", m.spinner.View())
}

// RunLoader shows a spinner while the queue loads. It renders inline (no alt screen).
func RunLoader(load func(ctx context.Context) ([]Item, error)) ([]Item, error) {
	out, err := tea.NewProgram(newLoadingModel(load)).Run()
	if err != nil {
		return nil, err
	}
	final := out.(loadingModel)
	return final.items, final.err
}
