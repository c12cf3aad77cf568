// Package tui renders live run progress from the event bus: one status line
// per task plus a progress tally, updating as rounds resolve.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/maestro-go/maestro/internal/events"
)

type taskState int

const (
	stateWaiting taskState = iota
	stateRunning
	stateCompleted
	stateFailed
)

// Model is the root Bubble Tea model for the progress display.
type Model struct {
	eventSub <-chan events.Event
	spin     spinner.Model

	tasks    map[string]taskState
	progress events.RunProgressEvent
	output   string
	runErr   error
	finished bool
	quitting bool
	width    int
}

// New creates a progress model subscribed to all events on the bus.
func New(bus *events.EventBus) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		eventSub: bus.SubscribeAll(256),
		spin:     sp,
		tasks:    make(map[string]taskState),
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.eventSub))
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case events.TaskStartedEvent:
		m.tasks[msg.ID] = stateRunning
		return m, waitForEvent(m.eventSub)

	case events.TaskCompletedEvent:
		m.tasks[msg.ID] = stateCompleted
		return m, waitForEvent(m.eventSub)

	case events.TaskFailedEvent:
		m.tasks[msg.ID] = stateFailed
		return m, waitForEvent(m.eventSub)

	case events.RunProgressEvent:
		m.progress = msg
		return m, waitForEvent(m.eventSub)

	case events.RunFinishedEvent:
		m.finished = true
		m.output = msg.Output
		m.runErr = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// View renders the task list and progress tally.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render("maestro"))
	b.WriteString("\n\n")

	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		switch m.tasks[id] {
		case stateRunning:
			fmt.Fprintf(&b, "  %s %s\n", m.spin.View(), StyleStatusRunning.Render(id))
		case stateCompleted:
			fmt.Fprintf(&b, "  %s %s\n", StyleStatusComplete.Render("✓"), id)
		case stateFailed:
			fmt.Fprintf(&b, "  %s %s\n", StyleStatusFailed.Render("✗"), id)
		default:
			fmt.Fprintf(&b, "  · %s\n", StyleStatusPending.Render(id))
		}
	}

	if m.progress.Total > 0 {
		fmt.Fprintf(&b, "\n  %d/%d completed, %d running, %d pending",
			m.progress.Completed, m.progress.Total, m.progress.InProgress, m.progress.Pending)
		if m.progress.Failed > 0 {
			fmt.Fprintf(&b, ", %s", StyleStatusFailed.Render(fmt.Sprintf("%d failed", m.progress.Failed)))
		}
		b.WriteString("\n")
	}

	if m.finished {
		if m.runErr != nil {
			b.WriteString("\n" + StyleStatusFailed.Render("run failed: "+m.runErr.Error()) + "\n")
		} else {
			b.WriteString("\n" + StyleOutput.Render(m.output) + "\n")
		}
	} else {
		b.WriteString("\n" + StyleHelp.Render("q to quit") + "\n")
	}

	return b.String()
}

// Output returns the final aggregated output once the run has finished.
func (m Model) Output() string { return m.output }

// Err returns the run's terminal error, if any.
func (m Model) Err() error { return m.runErr }
