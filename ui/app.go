// Package ui is the live terminal view of a running agent.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/xguard/engine"
	"github.com/ftahirops/xguard/model"
)

const (
	statusInterval = 500 * time.Millisecond
	auditInterval  = 2 * time.Second
	recentAlerts   = 8
)

// StatusSource is polled for the latest engine status.
type StatusSource interface {
	Snapshot() model.Status
}

type (
	tickMsg      time.Time
	auditTickMsg time.Time
	statusMsg    model.Status
	auditMsg     struct {
		recs []engine.AuditRecord
		err  error
	}
)

// EngineDoneMsg tells the view the frame loop has stopped.
type EngineDoneMsg struct{ Err error }

// Model is the bubbletea model for the live view.
type Model struct {
	status    StatusSource
	auditPath string

	st       model.Status
	recent   []engine.AuditRecord
	auditErr error
	done     bool
	doneErr  error

	width, height int
}

// NewModel creates a view over status, tailing the audit log at auditPath.
func NewModel(status StatusSource, auditPath string) Model {
	return Model{status: status, auditPath: auditPath}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), auditTick(), pollStatus(m.status), loadAudit(m.auditPath))
}

func tick() tea.Cmd {
	return tea.Tick(statusInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func auditTick() tea.Cmd {
	return tea.Tick(auditInterval, func(t time.Time) tea.Msg { return auditTickMsg(t) })
}

func pollStatus(src StatusSource) tea.Cmd {
	return func() tea.Msg { return statusMsg(src.Snapshot()) }
}

func loadAudit(path string) tea.Cmd {
	return func() tea.Msg {
		recs, err := engine.TailAuditLog(path, recentAlerts)
		return auditMsg{recs: recs, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadAudit(m.auditPath)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tea.Batch(tick(), pollStatus(m.status))
	case auditTickMsg:
		return m, tea.Batch(auditTick(), loadAudit(m.auditPath))
	case statusMsg:
		m.st = model.Status(msg)
	case auditMsg:
		m.recent, m.auditErr = msg.recs, msg.err
	case EngineDoneMsg:
		m.done, m.doneErr = true, msg.Err
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.renderCounters()))
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Recent alerts"))
	b.WriteString("\n")
	switch {
	case m.auditErr != nil:
		b.WriteString(critStyle.Render("audit log unreadable: " + m.auditErr.Error()))
	case len(m.recent) == 0:
		b.WriteString(labelStyle.Render("  none yet"))
	default:
		b.WriteString(RenderAuditTable(m.recent))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q quit  r reload audit log"))
	return b.String()
}

func (m Model) renderHeader() string {
	mode := warnStyle.Render("SCANNING")
	if m.st.AdminVerified {
		mode = okStyle.Render("PROTECTED")
	}
	state := okStyle.Render("ACTIVE")
	switch {
	case m.done && m.doneErr != nil:
		state = critStyle.Render("FAILED: " + m.doneErr.Error())
	case m.done:
		state = labelStyle.Render("STREAM ENDED")
	case !m.st.Active:
		state = labelStyle.Render("IDLE")
	}
	return titleStyle.Render("xguard") + "  " + state + "  " + labelStyle.Render("sovereign:") + " " + mode
}

func (m Model) renderCounters() string {
	kv := func(k, v string) string {
		return labelStyle.Render(fmt.Sprintf("%-10s", k)) + " " + valueStyle.Render(v)
	}
	cooldown := okStyle.Render("open")
	if m.st.CooldownLeft > 0 {
		cooldown = warnStyle.Render(fmt.Sprintf("%.1fs", m.st.CooldownLeft))
	}
	gw := m.st.Gateway
	if gw == "" {
		gw = "n/a"
	}
	last := "-"
	if !m.st.LastAlertAt.IsZero() {
		last = fmt.Sprintf("%s @ %s", m.st.LastAlertType, m.st.LastAlertAt.Local().Format("15:04:05"))
	}
	left := lipgloss.JoinVertical(lipgloss.Left,
		kv("fps", fmt.Sprintf("%.1f", m.st.FPS)),
		kv("frames", fmt.Sprintf("%d", m.st.Frames)),
		kv("persons", fmt.Sprintf("%d", m.st.PersonCount)),
		kv("hold", fmt.Sprintf("gaze %.1fs  sos %.1fs", m.st.GazeHold, m.st.DistressHold)),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		kv("alerts", fmt.Sprintf("%d sent, %d gated", m.st.Alerts, m.st.Gated)),
		labelStyle.Render(fmt.Sprintf("%-10s", "cooldown"))+" "+cooldown,
		labelStyle.Render(fmt.Sprintf("%-10s", "gateway"))+" "+breakerColor(gw).Render(gw),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "    ", right) + "\n" + kv("last", last)
}

// RenderAuditTable formats audit records as an aligned table.
func RenderAuditTable(recs []engine.AuditRecord) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-19s  %-18s  %-8s  %9s  %s", "TIME", "TYPE", "SEVERITY", "RUNTIME", "DESCRIPTION")))
	for _, r := range recs {
		b.WriteString("\n")
		sev := severityColor(r.Severity).Render(fmt.Sprintf("%-8s", r.Severity))
		desc := r.Description
		if r.EvidencePath != "" {
			desc += labelStyle.Render("  [" + r.EvidencePath + "]")
		}
		fmt.Fprintf(&b, "%-19s  %-18s  %s  %8.2fs  %s",
			r.Timestamp.Format(engine.AuditTimeFormat), r.Type, sev, r.RuntimeSec, desc)
	}
	return b.String()
}
