// Package app renders live progress of a run in the terminal.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/zipfetch/internal/orchestrator"
)

var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	fileProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	fileStatusStyle         = map[string]lipgloss.Style{
		StatusQueued:      lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		StatusDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		StatusComplete:    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		StatusError:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Per-source statuses.
const (
	StatusQueued      = "Queued"
	StatusDownloading = "Downloading"
	StatusComplete    = "Complete"
	StatusError       = "Error"
)

// SourceProgress is the display state of one source.
type SourceProgress struct {
	Name    string
	Status  string
	Members int
	ErrMsg  string
	Start   time.Time
	Elapsed time.Duration
}

// Model is the bubbletea model of a single run.
type Model struct {
	State AppState

	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	progress  map[string]*SourceProgress
	order     []string
	total     int
	completed int
	failed    int
	startTime time.Time

	cancel  context.CancelFunc
	Results orchestrator.Results
	Err     error

	termWidth  int
	termHeight int
}

// NewModel lists sources as queued. cancel is called when the user quits.
func NewModel(sources []string, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := &Model{
		State:           Running,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		progress:        make(map[string]*SourceProgress),
		startTime:       time.Now(),
		cancel:          cancel,
		termWidth:       100,
		termHeight:      30,
	}
	for _, src := range sources {
		if _, ok := m.progress[src]; ok {
			continue
		}
		m.progress[src] = &SourceProgress{Name: displayName(src), Status: StatusQueued}
		m.order = append(m.order, src)
	}
	m.total = len(sources)
	return m
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.State == Running {
				m.State = Cancelling
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case TaskStartedMsg:
		sp := m.entry(msg.Source)
		sp.Status = StatusDownloading
		sp.Start = msg.At
	case TaskFinishedMsg:
		sp := m.entry(msg.Outcome.Source)
		sp.Elapsed = msg.Elapsed
		if msg.Outcome.OK() {
			sp.Status = StatusComplete
			sp.Members = len(msg.Outcome.Members)
		} else {
			sp.Status = StatusError
			sp.ErrMsg = msg.Outcome.Err.Error()
			m.failed++
		}
		m.completed++
		cmds = append(cmds, m.overallProgress.SetPercent(m.percent()))
	case RunFinishedMsg:
		m.State = Finished
		m.Results = msg.Results
		m.Err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		if m.State != Finished {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// entry returns the row for source, adding one for sources not listed up front.
func (m *Model) entry(source string) *SourceProgress {
	sp, ok := m.progress[source]
	if !ok {
		sp = &SourceProgress{Name: displayName(source), Status: StatusQueued}
		m.progress[source] = sp
		m.order = append(m.order, source)
		m.total++
	}
	return sp
}

func (m *Model) percent() float64 {
	if m.total == 0 {
		return 1
	}
	return float64(m.completed) / float64(m.total)
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- zipfetch ---"))
	b.WriteString("\n\n")

	status := "Downloading archives"
	switch m.State {
	case Cancelling:
		status = "Cancelling, waiting for workers"
	case Finished:
		status = "Done"
	}
	b.WriteString(fmt.Sprintf("%s %s (%s)\n", m.spinner.View(), status, time.Since(m.startTime).Round(time.Second)))
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d, %d failed)\n\n", m.completed, m.total, m.failed))

	maxLines := max(1, m.termHeight-10)
	startIdx := 0
	if len(m.order) > maxLines {
		startIdx = len(m.order) - maxLines
	}

	if len(m.order) > 0 {
		b.WriteString(fileProgressHeaderStyle.Render(fmt.Sprintf("%-40s | %-15s | %s", "Archive", "Status", "Elapsed")))
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", m.termWidth))
		b.WriteString("\n")
		for _, src := range m.order[startIdx:] {
			sp := m.progress[src]
			statusStyled, ok := fileStatusStyle[sp.Status]
			if !ok {
				statusStyled = infoStyle
			}
			elapsedStr := ""
			if sp.Elapsed > 0 {
				elapsedStr = sp.Elapsed.Round(time.Millisecond).String()
			} else if sp.Status == StatusDownloading && !sp.Start.IsZero() {
				elapsedStr = time.Since(sp.Start).Round(time.Second).String() + "..."
			}
			name := sp.Name
			if len(name) > 40 {
				name = name[:37] + "..."
			}
			b.WriteString(fmt.Sprintf("%-40s | %-15s | %s", name, statusStyled.Render(sp.Status), elapsedStr))
			if sp.Status == StatusError && sp.ErrMsg != "" {
				errMsg := fmt.Sprintf("  -> Error: %s", sp.ErrMsg)
				if len(errMsg) >= m.termWidth {
					errMsg = errMsg[:max(0, m.termWidth-1)]
				}
				b.WriteString("\n")
				b.WriteString(errorStyle.Render(errMsg))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.State == Running {
		b.WriteString(infoStyle.Render("'q' or Ctrl+C to cancel."))
	}
	return b.String()
}

// Progress returns the display state of source.
func (m *Model) Progress(source string) (SourceProgress, bool) {
	sp, ok := m.progress[source]
	if !ok {
		return SourceProgress{}, false
	}
	return *sp, true
}

func displayName(source string) string {
	trimmed := strings.TrimRight(source, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return source
}

// Reporter forwards task events to a running program. It implements
// orchestrator.Recorder.
type Reporter struct {
	program *tea.Program
}

func (r Reporter) TaskStarted(_ context.Context, source string) {
	r.program.Send(NewTaskStarted(source))
}

func (r Reporter) TaskFinished(_ context.Context, out orchestrator.Outcome, elapsed time.Duration) {
	r.program.Send(NewTaskFinished(out, elapsed))
}

// RunFunc performs a run, reporting task events to rec.
type RunFunc func(ctx context.Context, rec orchestrator.Recorder) (orchestrator.Results, error)

// Run shows live progress while fn executes and returns fn's results once
// every task has reported. Quitting the UI cancels ctx for fn but still
// waits for it to return. Cancelling ctx stops the UI; the run's results
// are still returned.
func Run(ctx context.Context, sources []string, fn RunFunc, opts ...tea.ProgramOption) (orchestrator.Results, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(sources, cancel)
	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	type runResult struct {
		results orchestrator.Results
		err     error
	}
	done := make(chan runResult, 1)
	go func() {
		results, err := fn(runCtx, Reporter{program: p})
		done <- runResult{results: results, err: err}
		p.Send(RunFinishedMsg{Results: results, Err: err})
	}()

	_, uiErr := p.Run()
	if uiErr != nil {
		// The UI is gone; stop the run and collect what it produced.
		cancel()
	}
	res := <-done
	if res.err != nil {
		return res.results, res.err
	}
	if uiErr != nil && !(errors.Is(uiErr, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return res.results, fmt.Errorf("progress display failed: %w", uiErr)
	}
	return res.results, nil
}
