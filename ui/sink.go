package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ftahirops/xguard/engine"
	"github.com/ftahirops/xguard/model"
)

// Sink pushes every processed frame's status straight into a running
// program, so the view does not wait for its next poll.
type Sink struct {
	Program *tea.Program
}

// Render implements engine.Renderer.
func (s Sink) Render(_ engine.Frame, st model.Status) {
	s.Program.Send(statusMsg(st))
}
