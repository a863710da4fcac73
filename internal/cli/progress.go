package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/typecensus/pkg/pipeline"
)

// commitMsg reports one committed package to the progress view.
type commitMsg struct {
	pkg    string
	failed bool
	done   int
	total  int
}

// finishedMsg ends the progress view.
type finishedMsg struct{}

// progressModel is the bubbletea model behind --progress.
type progressModel struct {
	bar     progress.Model
	total   int
	done    int
	failed  int
	last    string
	cancel  context.CancelFunc
	stopped bool
}

func newProgressModel(total int, cancel context.CancelFunc) progressModel {
	return progressModel{
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total:  total,
		cancel: cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The terminal is in raw mode, so interrupts arrive as keys.
		if msg.String() == "ctrl+c" {
			m.stopped = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case commitMsg:
		m.done, m.total, m.last = msg.done, msg.total, msg.pkg
		if msg.failed {
			m.failed++
		}
	case finishedMsg:
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = min(60, max(10, msg.Width-40))
	}
	return m, nil
}

func (m progressModel) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(styleIconSpinner.Render(iconInfo) + " ")
	b.WriteString(m.bar.ViewAs(m.percent()))
	b.WriteString(" " + StyleNumber.Render(fmt.Sprintf("%d/%d", m.done, m.total)))
	if m.failed > 0 {
		b.WriteString(" " + StyleWarning.Render(fmt.Sprintf("%d failed", m.failed)))
	}
	if m.last != "" {
		b.WriteString("  " + StyleDim.Render(m.last))
	}
	if m.stopped {
		b.WriteString("\n" + StyleWarning.Render("interrupted"))
	}
	b.WriteString("\n")
	return b.String()
}

// progressView drives a progressModel from pipeline commits.
type progressView struct {
	program *tea.Program
	exited  chan struct{}
}

// startProgress shows the view on stderr. cancel is invoked when the user
// interrupts.
func startProgress(ctx context.Context, total int, cancel context.CancelFunc) *progressView {
	v := &progressView{
		program: tea.NewProgram(newProgressModel(total, cancel),
			tea.WithContext(ctx),
			tea.WithOutput(os.Stderr)),
		exited: make(chan struct{}),
	}
	go func() {
		defer close(v.exited)
		_, _ = v.program.Run()
	}()
	return v
}

// commit matches pipeline.Runner.OnCommit.
func (v *progressView) commit(o *pipeline.Outcome, done, total int) {
	v.program.Send(commitMsg{pkg: o.Package, failed: o.FailedStage != "", done: done, total: total})
}

// stop closes the view and waits for the terminal to be restored.
func (v *progressView) stop() {
	v.program.Send(finishedMsg{})
	<-v.exited
}
