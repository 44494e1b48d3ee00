// Package tui renders the live status watch view. The model polls the
// orchestrator on a fixed interval and appends lifecycle events forwarded
// from the bus; it never mutates runtime state itself.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/devstack/pkg/events"
	"github.com/go-go-golems/devstack/pkg/orchestrate"
	"github.com/go-go-golems/devstack/pkg/proc"
	"github.com/go-go-golems/devstack/pkg/tui/styles"
	"github.com/go-go-golems/devstack/pkg/tui/widgets"
)

// RefreshFunc produces a fresh status report.
type RefreshFunc func(ctx context.Context) (*orchestrate.Report, error)

const maxEventLog = 8

type refreshTickMsg struct{}

type reportMsg struct {
	report *orchestrate.Report
	err    error
}

// EventMsg carries one lifecycle event into the model.
type EventMsg struct {
	Event events.Event
}

type WatchModel struct {
	project string
	refresh time.Duration
	fn      RefreshFunc

	width  int
	height int

	spin    spinner.Model
	report  *orchestrate.Report
	lastErr string
	loaded  bool

	eventLog []events.Event

	tracker *proc.CPUTracker
	stats   map[int]*proc.Stats

	theme styles.Theme
}

func NewWatchModel(project string, refresh time.Duration, fn RefreshFunc) WatchModel {
	if refresh <= 0 {
		refresh = time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return WatchModel{
		project: project,
		refresh: refresh,
		fn:      fn,
		spin:    sp,
		tracker: proc.NewCPUTracker(),
		stats:   map[int]*proc.Stats{},
		theme:   styles.DefaultTheme(),
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.refreshCmd())
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		return m, nil
	case tea.KeyMsg:
		switch v.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		}
		return m, nil
	case refreshTickMsg:
		return m, m.refreshCmd()
	case reportMsg:
		m.loaded = true
		if v.err != nil {
			m.lastErr = v.err.Error()
		} else {
			m.lastErr = ""
			m.report = v.report
			m = m.sampleStats()
		}
		return m, m.tickCmd()
	case EventMsg:
		m.eventLog = append(m.eventLog, v.Event)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = append([]events.Event{}, m.eventLog[len(m.eventLog)-maxEventLog:]...)
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(v)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	running, total := m.counts()
	status := fmt.Sprintf("%d/%d running", running, total)
	header := widgets.NewHeader("devstack "+m.project).
		WithStatus(status, running == total).
		WithKeybinds([]widgets.Keybind{{Key: "r", Label: "refresh"}, {Key: "q", Label: "quit"}}).
		WithWidth(width).
		Render()

	body := ""
	switch {
	case !m.loaded:
		body = "\n " + m.spin.View() + " loading status...\n"
	case m.lastErr != "":
		body = "\n " + m.theme.StatusDead.Render("status error: "+m.lastErr) + "\n"
	default:
		body = "\n" + m.theme.Title.Render(" Apps") + "\n" + m.appsTable() + "\n\n" +
			m.theme.Title.Render(" Containers") + "\n" + m.containersTable() + "\n"
	}

	eventsPart := ""
	if len(m.eventLog) > 0 {
		lines := "\n" + m.theme.Title.Render(" Events") + "\n"
		for _, ev := range m.eventLog {
			icon := styles.EventIcon(ev.Type)
			lines += fmt.Sprintf("  %s %s %s ", icon, ev.At.Format("15:04:05"), ev.Type)
			if ev.Target != "" {
				lines += ev.Target
			}
			if ev.Detail != "" {
				lines += " " + m.theme.TitleMuted.Render(ev.Detail)
			}
			lines += "\n"
		}
		eventsPart = lines
	}

	return header + body + eventsPart
}

func (m WatchModel) appsTable() string {
	cols := []widgets.TableColumn{
		{Header: "NAME", Width: 18},
		{Header: "STATE", Width: 10},
		{Header: "PID", Width: 8},
		{Header: "PORT", Width: 7},
		{Header: "CPU%", Width: 7},
		{Header: "MEM", Width: 8},
	}
	var rows []widgets.TableRow
	if m.report != nil {
		for _, app := range m.report.Apps {
			state := "stopped"
			cpu, mem := "-", "-"
			if app.Running {
				state = "running"
				if st, ok := m.stats[app.PID]; ok {
					cpu = fmt.Sprintf("%.1f", st.CPUPercent)
					mem = fmt.Sprintf("%dM", st.MemoryMB)
				}
			}
			rows = append(rows, widgets.TableRow{
				Icon:  styles.StateIcon(app.Running),
				Cells: []string{app.Name, state, pidCell(app.PID), portCell(app.ResolvedPort), cpu, mem},
			})
		}
	}
	return widgets.NewTable(cols).WithRows(rows).Render()
}

func (m WatchModel) containersTable() string {
	cols := []widgets.TableColumn{
		{Header: "NAME", Width: 18},
		{Header: "STATE", Width: 10},
		{Header: "PORT", Width: 7},
	}
	var rows []widgets.TableRow
	if m.report != nil {
		for _, ctr := range m.report.Containers {
			running := ctr.State == "running"
			rows = append(rows, widgets.TableRow{
				Icon:  styles.StateIcon(running),
				Cells: []string{ctr.Name, string(ctr.State), portCell(ctr.Port)},
			})
		}
	}
	return widgets.NewTable(cols).WithRows(rows).Render()
}

func (m WatchModel) counts() (running, total int) {
	if m.report == nil {
		return 0, 0
	}
	for _, app := range m.report.Apps {
		total++
		if app.Running {
			running++
		}
	}
	for _, ctr := range m.report.Containers {
		total++
		if ctr.State == "running" {
			running++
		}
	}
	return running, total
}

// sampleStats reads /proc for every running app PID so CPU deltas accumulate
// between refreshes.
func (m WatchModel) sampleStats() WatchModel {
	var pids []int
	for _, app := range m.report.Apps {
		if app.Running && app.PID > 0 {
			pids = append(pids, app.PID)
		}
	}
	stats, _ := proc.ReadAllStats(pids, m.tracker)
	m.stats = stats
	m.tracker.CleanupStale(pids)
	return m
}

func (m WatchModel) refreshCmd() tea.Cmd {
	fn := m.fn
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		report, err := fn(ctx)
		return reportMsg{report: report, err: err}
	}
}

func (m WatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

func pidCell(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

func portCell(port int) string {
	if port <= 0 {
		return "-"
	}
	return strconv.Itoa(port)
}
