// ABOUTME: Status TUI showing the capture device, stream stats and connected clients
// ABOUTME: Real-time dashboard built on bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/utkarsh-deployes/AirCast/internal/capture"
)

// StatusTUI manages the server dashboard.
type StatusTUI struct {
	program  *tea.Program
	updates  chan Status
	done     chan struct{}
	stopOnce sync.Once
	quitChan chan struct{} // signals that the operator asked to quit
}

// Status holds server state for display.
type Status struct {
	Name      string
	Device    string
	Format    capture.Format
	Blocks    uint64
	Overflows uint64
	Clients   []string // remote addresses
}

type tuiModel struct {
	status    Status
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	clientHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("AirCast Server"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Server: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Device: "))
	b.WriteString(valueStyle.Render(m.status.Device))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Format: "))
	f := m.status.Format
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d Hz, %d ch, %d samples/block",
		f.SampleRate, f.Channels, f.BlockSize)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	uptime := time.Since(m.startTime).Round(time.Second)
	b.WriteString(valueStyle.Render(uptime.String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Blocks: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d broadcast, %d overflows",
		m.status.Blocks, m.status.Overflows)))
	b.WriteString("\n\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, addr := range m.status.Clients {
			b.WriteString(fmt.Sprintf("  • %s\n", addr))
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewStatusTUI creates the dashboard.
func NewStatusTUI() *StatusTUI {
	return &StatusTUI{
		updates:  make(chan Status, 10),
		done:     make(chan struct{}),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until Stop or an operator quit.
func (t *StatusTUI) Start(initial Status) error {
	m := tuiModel{
		status:    initial,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for {
			select {
			case <-t.done:
				return
			case status := <-t.updates:
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update without blocking. Safe after Stop.
func (t *StatusTUI) Update(status Status) {
	select {
	case <-t.done:
	case t.updates <- status:
	default:
	}
}

// Stop stops the TUI. Idempotent.
func (t *StatusTUI) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		if t.program != nil {
			t.program.Quit()
		}
	})
}

// QuitChan signals when the operator asked to quit from the TUI.
func (t *StatusTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
