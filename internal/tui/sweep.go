// Package tui renders live sweep progress in the terminal.
//
// The model follows the bubbletea loop: run events arrive from the event bus
// as messages, Update folds them into per-run rows, View draws an overall
// progress bar and one line per run.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kilianp07/platoonsim/core/events"
	"github.com/kilianp07/platoonsim/internal/eventbus"
)

const maxVisibleRuns = 12

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	finishedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

type runState int

const (
	stateRunning runState = iota
	stateFinished
	stateFailed
)

type runRow struct {
	id       string
	name     string
	step     int
	maxSteps int
	vehicles int
	platoons int
	state    runState
	err      string
	started  time.Time
	duration time.Duration
}

func (r *runRow) percent() float64 {
	if r.state != stateRunning {
		return 1
	}
	if r.maxSteps <= 0 {
		return 0
	}
	return float64(r.step) / float64(r.maxSteps)
}

type eventMsg struct{ ev eventbus.Event }

type busClosedMsg struct{}

// DoneMsg tells the model that the sweep work has returned.
type DoneMsg struct{ Err error }

// Model is the bubbletea model of a running sweep.
type Model struct {
	sub     <-chan eventbus.Event
	total   int
	rows    map[string]*runRow
	overall progress.Model
	runBar  progress.Model
	width   int
	done    bool
	err     error
	cancel  context.CancelFunc
	now     func() time.Time
}

// New creates a model expecting total runs. sub is usually a fresh event
// bus subscription. cancel, when set, is called if the user quits early.
func New(sub <-chan eventbus.Event, total int, cancel context.CancelFunc) *Model {
	return &Model{
		sub:     sub,
		total:   total,
		rows:    make(map[string]*runRow),
		overall: progress.New(progress.WithDefaultGradient()),
		runBar:  progress.New(progress.WithSolidFill("#5B8DEF"), progress.WithoutPercentage()),
		cancel:  cancel,
		now:     time.Now,
	}
}

func waitForEvent(sub <-chan eventbus.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

// Init starts listening on the subscription.
func (m *Model) Init() tea.Cmd {
	return waitForEvent(m.sub)
}

// Update handles key presses, resizes, bus events and completion.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.overall.Width = max(20, msg.Width-12)
		m.runBar.Width = max(10, msg.Width/4)
	case eventMsg:
		m.apply(msg.ev)
		return m, waitForEvent(m.sub)
	case busClosedMsg:
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(ev eventbus.Event) {
	switch e := ev.(type) {
	case events.RunStarted:
		m.rows[e.RunID] = &runRow{
			id:       e.RunID,
			name:     e.Scenario.Name(),
			maxSteps: e.MaxSteps,
			started:  m.now(),
		}
	case events.RunProgress:
		r := m.row(e.RunID, e.Scenario.Name())
		r.step = e.Step
		r.maxSteps = e.MaxSteps
		r.vehicles = e.Vehicles
		r.platoons = e.Platoons
	case events.RunFinished:
		r := m.row(e.RunID, e.Scenario.Name())
		r.step = e.Steps
		r.duration = e.Duration
		r.state = stateFinished
		if e.Err != nil {
			r.state = stateFailed
			r.err = e.Err.Error()
		}
	}
}

func (m *Model) row(id, name string) *runRow {
	r, ok := m.rows[id]
	if !ok {
		r = &runRow{id: id, name: name, started: m.now()}
		m.rows[id] = r
	}
	return r
}

// Counts returns the number of finished and failed runs seen so far.
func (m *Model) Counts() (finished, failed int) {
	for _, r := range m.rows {
		switch r.state {
		case stateFinished:
			finished++
		case stateFailed:
			failed++
		}
	}
	return finished, failed
}

// sorted returns running rows first, then completed ones, by name.
func (m *Model) sorted() []*runRow {
	rows := make([]*runRow, 0, len(m.rows))
	for _, r := range m.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(a, b int) bool {
		ra, rb := rows[a].state == stateRunning, rows[b].state == stateRunning
		if ra != rb {
			return ra
		}
		return rows[a].name < rows[b].name
	})
	return rows
}

// View renders the sweep board.
func (m *Model) View() string {
	finished, failed := m.Counts()
	doneRuns := finished + failed
	total := max(m.total, len(m.rows))
	pct := 0.0
	if total > 0 {
		pct = float64(doneRuns) / float64(total)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("PLATOON SWEEP"))
	b.WriteString("\n")
	b.WriteString(m.overall.ViewAs(pct))
	b.WriteString("\n")
	b.WriteString(detailStyle.Render(fmt.Sprintf("%d/%d runs done · %d failed", doneRuns, total, failed)))
	b.WriteString("\n\n")

	rows := m.sorted()
	for i, r := range rows {
		if i == maxVisibleRuns {
			b.WriteString(detailStyle.Render(fmt.Sprintf("… %d more", len(rows)-maxVisibleRuns)))
			b.WriteString("\n")
			break
		}
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}

	body := boxStyle.Render(strings.TrimRight(b.String(), "\n"))
	footer := "q to stop"
	if m.done {
		footer = "sweep complete"
		if m.err != nil {
			footer = "sweep finished with errors: " + m.err.Error()
		}
	}
	return body + "\n" + footerStyle.Render(footer) + "\n"
}

func (m *Model) renderRow(r *runRow) string {
	var label, detail string
	switch r.state {
	case stateRunning:
		label = runningStyle.Render("RUN ")
		detail = fmt.Sprintf("step %d/%d · %d veh · %d platoons", r.step, r.maxSteps, r.vehicles, r.platoons)
	case stateFinished:
		label = finishedStyle.Render("DONE")
		detail = fmt.Sprintf("%d steps in %s", r.step, r.duration.Round(time.Millisecond))
	case stateFailed:
		label = failedStyle.Render("FAIL")
		detail = r.err
	}
	return fmt.Sprintf("%s %-28s %s %s", label, r.name, m.runBar.ViewAs(r.percent()), detailStyle.Render(detail))
}

// Run shows the board while work runs and returns work's error. The
// program exits when work returns or the user quits, in which case ctx
// passed to work is canceled.
func Run(ctx context.Context, bus eventbus.EventBus, total int, work func(context.Context) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	p := tea.NewProgram(New(sub, total, cancel), opts...)
	errCh := make(chan error, 1)
	go func() {
		err := work(ctx)
		errCh <- err
		p.Send(DoneMsg{Err: err})
	}()
	if _, err := p.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("tui: %w", err)
	}
	return <-errCh
}
