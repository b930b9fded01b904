package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Phase is the lifecycle stage of one story in a batch.
type Phase uint8

const (
	PhaseQueued Phase = iota
	PhaseLoading
	PhaseRunning
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseQueued:
		return "queued"
	case PhaseLoading:
		return "loading"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return ""
	}
}

// Finished reports whether the story will send no further events.
func (p Phase) Finished() bool { return p == PhaseDone || p == PhaseFailed }

// Event reports a phase change of one story. Status is the exit status once
// the story finished.
type Event struct {
	Story  string
	Phase  Phase
	Status int
	Detail string
}

type storyItem struct {
	path   string
	phase  Phase
	status int
	detail string
}

type batchModel struct {
	title   string
	events  <-chan Event
	spinner spinner.Model
	prog    progress.Model
	items   []storyItem
	index   map[string]int
	width   int
	done    bool
}

type eventMsg Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders batch progress
// until events is closed.
func NewProgressModel(title string, stories []string, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]storyItem, 0, len(stories))
	index := make(map[string]int, len(stories))
	for i, s := range stories {
		items = append(items, storyItem{path: s})
		index[s] = i
	}
	return &batchModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *batchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *batchModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (%d/%d)", m.title, m.finished(), len(m.items))
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const statusWidth = 10
	nameWidth := max(m.width-statusWidth-4, 20)
	for _, item := range m.items {
		label := item.phase.String()
		if item.phase == PhaseDone && item.status != 0 {
			label = fmt.Sprintf("exit %d", item.status)
		}
		line := fmt.Sprintf("  %s %s", styleStatus(item).Render(fmt.Sprintf("%10s", label)), truncate(item.path, nameWidth))
		if item.detail != "" {
			line += "  " + truncate(item.detail, max(m.width-runewidth.StringWidth(line)-2, 10))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *batchModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *batchModel) applyEvent(ev Event) tea.Cmd {
	idx, ok := m.index[ev.Story]
	if !ok {
		return nil
	}
	it := &m.items[idx]
	it.phase, it.status, it.detail = ev.Phase, ev.Status, ev.Detail

	total := 0.0
	for _, item := range m.items {
		total += phaseWeight(item.phase)
	}
	return m.prog.SetPercent(total / float64(len(m.items)))
}

func (m *batchModel) finished() int {
	n := 0
	for _, item := range m.items {
		if item.phase.Finished() {
			n++
		}
	}
	return n
}

func phaseWeight(p Phase) float64 {
	switch p {
	case PhaseLoading:
		return 0.2
	case PhaseRunning:
		return 0.5
	case PhaseDone, PhaseFailed:
		return 1.0
	default:
		return 0.0
	}
}

func styleStatus(item storyItem) lipgloss.Style {
	switch {
	case item.phase == PhaseFailed || item.phase == PhaseDone && item.status != 0:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case item.phase == PhaseDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case item.phase == PhaseLoading || item.phase == PhaseRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
