package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sevigo/integrator/internal/app"
	"github.com/sevigo/integrator/internal/core"
)

const asciiLogo = `
╔══════════════════════════════════════════════════════════════════════╗
║                                                                      ║
║   ██╗███╗   ██╗████████╗███████╗ ██████╗ ██████╗  █████╗ ████████╗   ║
║   ██║████╗  ██║╚══██╔══╝██╔════╝██╔════╝ ██╔══██╗██╔══██╗╚══██╔══╝   ║
║   ██║██╔██╗ ██║   ██║   █████╗  ██║  ███╗██████╔╝███████║   ██║      ║
║   ██║██║╚██╗██║   ██║   ██╔══╝  ██║   ██║██╔══██╗██╔══██║   ██║      ║
║   ██║██║ ╚████║   ██║   ███████╗╚██████╔╝██║  ██║██║  ██║   ██║      ║
║   ╚═╝╚═╝  ╚═══╝   ╚═╝   ╚══════╝ ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝      ║
║                                                                      ║
║                      CONNECTOR RUN MONITOR                           ║
║                                                                      ║
╚══════════════════════════════════════════════════════════════════════╝
`

type model struct {
	styles styles
	app    *app.App

	// UI Components
	viewport  viewport.Model
	textarea  textarea.Model
	spinner   spinner.Model
	isLoading bool

	// Session State
	runs        []*core.Run
	lastRefresh time.Time
	history     []string
}

func initialModel(theme ThemeName) *model {
	styles := GetTheme(theme)
	ta := textarea.New()
	ta.Placeholder = "Enter command, /help for the list..."
	ta.Focus()
	ta.Prompt = styles.prompt.Render("► ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))

	return &model{
		styles:    styles,
		textarea:  ta,
		spinner:   sp,
		isLoading: true,
		history:   []string{styles.selected.Render(asciiLogo), "", "⚙ CONNECTING..."},
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(initializeAppCmd(), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m, m.processCommand(input)
		}

	case appInitializedMsg:
		if msg.err != nil {
			m.isLoading = false
			m.appendHistory(m.styles.error.Render(msg.err.Error()))
			return m, nil
		}
		m.app = msg.app
		m.appendHistory(m.styles.success.Render("✓ CONNECTED"))
		return m, tea.Batch(loadRunsCmd(m.app), refreshTickCmd())

	case runsLoadedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendHistory(m.styles.error.Render("could not load runs: " + msg.err.Error()))
			return m, nil
		}
		m.runs = msg.runs
		m.lastRefresh = time.Now()
		m.renderRuns()
		return m, nil

	case refreshMsg:
		if m.app == nil {
			return m, refreshTickCmd()
		}
		return m, tea.Batch(loadRunsCmd(m.app), refreshTickCmd())

	case runActionMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendHistory(m.styles.error.Render("⚠ " + msg.err.Error()))
			return m, nil
		}
		m.appendHistory(m.styles.success.Render("✓ " + msg.text))
		return m, loadRunsCmd(m.app)

	case errorMsg:
		m.isLoading = false
		m.appendHistory(m.styles.error.Render("⚠ " + msg.err.Error()))
		return m, nil

	case tea.WindowSizeMsg:
		m.styles.header.Width(msg.Width - 4)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 10
		m.textarea.SetWidth(msg.Width - 10)
		m.viewport.SetContent(strings.Join(m.history, "\n"))
	}

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m *model) View() string {
	if m.app == nil {
		return fmt.Sprintf("\n  %s CONNECTING...\n\n", m.spinner.View())
	}

	statusParts := []string{
		fmt.Sprintf("RUNS IN FLIGHT: %d", len(m.runs)),
	}
	if !m.lastRefresh.IsZero() {
		statusParts = append(statusParts, fmt.Sprintf("REFRESHED: %s", m.lastRefresh.Format("15:04:05")))
	}
	statusParts = append(statusParts, fmt.Sprintf("DISPATCHER: %s", m.app.Cfg.Dispatcher))
	status := m.styles.inactive.Render(strings.Join(statusParts, " │ "))

	var loadingIndicator string
	if m.isLoading {
		loadingIndicator = " " + m.spinner.View() + " " + m.styles.success.Render("WORKING...")
	}

	return m.styles.app.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.styles.viewport.Render(m.viewport.View()),
			"",
			m.styles.footer.Render(
				lipgloss.JoinHorizontal(lipgloss.Left,
					m.textarea.View(),
					loadingIndicator,
				),
			),
			status,
		),
	)
}

func (m *model) appendHistory(lines ...string) {
	m.history = append(m.history, "")
	m.history = append(m.history, lines...)
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	m.viewport.GotoBottom()
}

func (m *model) renderRuns() {
	var b strings.Builder
	if len(m.runs) == 0 {
		b.WriteString(m.styles.inactive.Render("No runs in flight."))
	} else {
		b.WriteString(m.styles.selected.Render("RUNS IN FLIGHT:"))
		for _, r := range m.runs {
			age := time.Since(r.CreatedAt).Round(time.Minute)
			line := fmt.Sprintf("\n  %s  %-24s %-12s age %s",
				m.styles.prompt.Render(r.ID),
				r.Capability,
				m.statusStyle(r.Status).Render(string(r.Status)),
				age)
			if r.IsManual {
				line += m.styles.inactive.Render("  [manual]")
			}
			if r.DryRun {
				line += m.styles.inactive.Render("  [dry-run]")
			}
			b.WriteString(line)
		}
	}
	m.appendHistory(b.String())
}

func (m *model) statusStyle(s core.RunStatus) lipgloss.Style {
	switch s {
	case core.RunStarted:
		return m.styles.success
	case core.RunScheduled:
		return m.styles.warning
	default:
		return m.styles.inactive
	}
}

func (m *model) processCommand(input string) tea.Cmd {
	m.appendHistory(m.styles.prompt.Render("► ") + input)

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	command := parts[0]
	args := parts[1:]

	switch command {
	case "/runs", "/ls":
		m.isLoading = true
		return tea.Batch(m.spinner.Tick, loadRunsCmd(m.app))

	case "/cancel":
		if len(args) < 1 {
			m.appendHistory(m.styles.error.Render("USAGE: /cancel [run-id] [reason...]"))
			return nil
		}
		m.isLoading = true
		return tea.Batch(m.spinner.Tick, cancelRunCmd(m.app, args[0], strings.Join(args[1:], " ")))

	case "/reset":
		if len(args) != 1 {
			m.appendHistory(m.styles.error.Render("USAGE: /reset [run-id]"))
			return nil
		}
		m.isLoading = true
		return tea.Batch(m.spinner.Tick, resetRunCmd(m.app, args[0]))

	case "/trigger":
		if len(args) != 2 {
			m.appendHistory(m.styles.error.Render("USAGE: /trigger [job-id] [capability]"))
			return nil
		}
		capability := core.Capability(args[1])
		if !capability.Valid() {
			m.appendHistory(m.styles.error.Render(fmt.Sprintf("unknown capability %q", args[1])))
			return nil
		}
		m.isLoading = true
		return tea.Batch(m.spinner.Tick, triggerRunCmd(m.app, args[0], capability))

	case "/help", "/h":
		helpText := m.styles.success.Render("AVAILABLE COMMANDS:") + `

  /runs, /ls                    Refresh the list of in-flight runs.
  /trigger [job-id] [cap]       Create and dispatch a run for a job.
  /cancel [run-id] [reason]     Cancel a pending or started run.
  /reset [run-id]               Reset a run back to created.
  /help                         Show this help message.
  /exit, /quit                  Exit the monitor.

  ` + m.styles.inactive.Render(fmt.Sprintf("The run list refreshes every %s on its own.", refreshInterval))
		m.appendHistory(helpText)
		return nil

	case "/exit", "/quit":
		return tea.Quit

	default:
		m.appendHistory(m.styles.error.Render(fmt.Sprintf("UNKNOWN COMMAND: %s", command)),
			m.styles.inactive.Render("Type /help for assistance."))
		return nil
	}
}
