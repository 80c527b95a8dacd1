package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/streak"
	"github.com/mmcdole/sarathi/internal/tui/styles"
)

const (
	statusDuration = 3 * time.Second
	minBarWidth    = 20
	maxBarWidth    = 60
)

// Journey is the progress tracker the dashboard drives.
type Journey interface {
	State() domain.ProgressState
	Streak() int
	Total() int
	Complete() bool
	Advance(ctx context.Context) (domain.ProgressState, error)
}

// Syncer reconciles with the remote copy. Nil when logged out.
type Syncer interface {
	Reconcile(ctx context.Context) (domain.ProgressState, error)
}

// Model is the journey dashboard.
type Model struct {
	journey Journey
	syncer  Syncer

	keys    KeyMap
	help    help.Model
	bar     progress.Model
	spinner spinner.Model

	state   domain.ProgressState
	streak  int
	busy    bool
	status  string
	isError bool
	width   int
}

// NewModel creates the dashboard. syncer may be nil.
func NewModel(j Journey, s Syncer) Model {
	bar := progress.New(progress.WithGradient(string(styles.Saffron), string(styles.Green)))
	bar.Width = maxBarWidth

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.AccentStyle))

	return Model{
		journey: j,
		syncer:  s,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		bar:     bar,
		spinner: sp,
		state:   j.State(),
		streak:  j.Streak(),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(minBarWidth, min(maxBarWidth, msg.Width-10))
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case AdvancedMsg:
		m.busy = false
		m.refresh()
		m.setStatus(fmt.Sprintf("Shloka %d", msg.State.Shloka()), false)
		return m, ClearStatusCmd(statusDuration)

	case SyncedMsg:
		m.busy = false
		m.refresh()
		m.setStatus("Synced", false)
		return m, ClearStatusCmd(statusDuration)

	case ErrMsg:
		m.busy = false
		m.refresh()
		if errors.Is(msg.Err, domain.ErrJourneyComplete) {
			m.setStatus("Journey complete", false)
		} else {
			m.setStatus(msg.Error(), true)
		}
		return m, ClearStatusCmd(statusDuration)

	case ClearStatusMsg:
		m.status = ""
		m.isError = false
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Next):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, AdvanceCmd(m.journey)

	case key.Matches(msg, m.keys.Sync):
		if m.syncer == nil {
			m.setStatus("Not logged in (run: sarathi login)", true)
			return m, nil
		}
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.setStatus("Syncing...", false)
		return m, tea.Batch(SyncCmd(m.syncer), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) refresh() {
	m.state = m.journey.State()
	m.streak = m.journey.Streak()
}

func (m *Model) setStatus(s string, isError bool) {
	m.status = s
	m.isError = isError
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	title := streak.Title(m.state.Position)
	b.WriteString(styles.TitleStyle.Render("Sarathi"))
	b.WriteString("  ")
	b.WriteString(styles.BadgeStyle.Render(title))
	b.WriteString("\n\n")

	total := m.journey.Total()
	if total > 0 {
		b.WriteString(fmt.Sprintf("%d / %d shlokas\n", m.state.Position, total))
		b.WriteString(m.bar.ViewAs(float64(m.state.Position) / float64(total)))
		b.WriteString("\n")
	} else {
		b.WriteString(fmt.Sprintf("%d shlokas\n", m.state.Position))
	}

	if next, ok := streak.NextRank(m.state.Position); ok {
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("%d to %s", next.Min-m.state.Position, next.Title)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.streak > 0 {
		b.WriteString(styles.AccentStyle.Render(fmt.Sprintf("%s %d day streak", styles.FlameChar, m.streak)))
	} else {
		b.WriteString(styles.DimStyle.Render("No active streak"))
	}
	b.WriteString("\n")
	if !m.state.LastActiveDate.IsZero() {
		b.WriteString(styles.SubtitleStyle.Render("Last active " + m.state.LastActiveDate.String()))
		b.WriteString("\n")
	}
	if m.journey.Complete() {
		b.WriteString(styles.SuccessStyle.Render("Journey complete"))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.busy {
			b.WriteString(m.spinner.View() + " ")
		}
		if m.isError {
			b.WriteString(styles.ErrorStyle.Render(m.status))
		} else {
			b.WriteString(styles.SuccessStyle.Render(m.status))
		}
		b.WriteString("\n")
	}

	panel := styles.PanelStyle.Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, panel, m.help.View(m.keys))
}

// Run starts the dashboard on the terminal.
func Run(j Journey, s Syncer) error {
	_, err := tea.NewProgram(NewModel(j, s), tea.WithAltScreen()).Run()
	return err
}
