package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/avollmer/sitegraft/internal/client"
	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/service"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *service.Job
	err error
}

// progressModel is the bubbletea model for migration progress.
type progressModel struct {
	client   *client.Client
	jobID    string
	job      *service.Job
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, job *service.Job) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		jobID:    job.ID,
		job:      job,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job

		switch m.job.Status {
		case service.JobStatusCompleted:
			m.done = true
			return m, tea.Quit
		case service.JobStatusFailed:
			m.done = true
			if m.job.Error != "" {
				m.err = fmt.Errorf("%s", m.job.Error)
			} else {
				m.err = fmt.Errorf("job failed with unknown error")
			}
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.job == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	progressBar := m.progress.ViewAs(float64(m.job.Percent) / 100)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %d%%\n\n", status, progressBar, m.job.Percent)
	sb.WriteString(m.renderPhases())
	sb.WriteString("\n" + m.theme.hintStyle().Render("Press Ctrl+C to continue in background") + "\n")
	return sb.String()
}

func (m progressModel) renderPhases() string {
	var sb strings.Builder
	for _, phase := range m.job.Phases {
		var line string
		switch phase.Status {
		case pipeline.StatusDone:
			line = m.theme.completedStyle().Render("✓") + " " + phase.Name
		case pipeline.StatusFailed:
			line = m.theme.errorStyle().Render("✗") + " " + phase.Name
		case pipeline.StatusActive:
			line = m.theme.statusStyle().Render("▸") + " " + phase.Name
		default:
			line = m.theme.hintStyle().Render("· " + phase.Name)
		}
		if phase.Detail != "" {
			line += "  " + m.theme.hintStyle().Render(phase.Detail)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'sitegraft jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Migration failed: %s\n", m.err))
	}

	if m.job != nil && m.job.Report != nil {
		r := m.job.Report
		var output string
		switch r.Status {
		case pipeline.RunSuccess:
			output += m.theme.completedStyle().Render("✓ Migration complete") + "\n\n"
		default:
			output += m.theme.statusStyle().Render(fmt.Sprintf("Migration finished: %s", r.Status)) + "\n\n"
		}
		output += fmt.Sprintf("  Completed phases: %d/%d\n", len(r.CompletedPhases), len(pipeline.Phases))
		output += fmt.Sprintf("  Completion:       %d%%\n", r.CompletionPercentage)
		if len(r.FailedPhases) > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("\nFailed phases (%d):\n", len(r.FailedPhases)))
			for phase, cause := range r.FailedPhases {
				output += fmt.Sprintf("  ✗ %s: %s\n", phase, cause)
			}
		}
		if len(r.Warnings) > 0 {
			output += fmt.Sprintf("\nWarnings (%d):\n", len(r.Warnings))
			for _, warning := range r.Warnings {
				output += fmt.Sprintf("  • %s\n", warning)
			}
		}
		return output
	}

	return m.theme.completedStyle().Render("✓ Migration complete\n")
}

// fetchJob fetches the current job status from the server.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunJobProgress runs the interactive progress UI for a job.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunJobProgress(c *client.Client, job *service.Job) error {
	model := newProgressModel(c, job)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
