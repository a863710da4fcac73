package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// newLogger creates the run logger. Timestamps read "HH:MM:SS.cc" and the
// package and category keys are coloured so per-package lines stand out in
// long batches.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
	styles := log.DefaultStyles()
	styles.Keys["package"] = lipgloss.NewStyle().Foreground(colorCyan)
	styles.Values["package"] = lipgloss.NewStyle().Bold(true)
	styles.Keys["category"] = lipgloss.NewStyle().Foreground(colorYellow)
	l.SetStyles(styles)
	return l
}

// muteLogger raises l to error level until the returned func is called.
// The progress view owns the terminal while it runs.
func muteLogger(l *log.Logger) (restore func()) {
	level := l.GetLevel()
	l.SetLevel(log.ErrorLevel)
	return func() { l.SetLevel(level) }
}

// stopwatch times one setup step of a run.
type stopwatch struct {
	logger *log.Logger
	start  time.Time
}

func startStopwatch(l *log.Logger) *stopwatch {
	return &stopwatch{logger: l, start: time.Now()}
}

// done logs msg with keyvals and the elapsed time, e.g.
//
//	14:32:01.45 INFO selected archives count=25 corpus=tarballs elapsed=12ms
func (s *stopwatch) done(msg string, keyvals ...any) {
	s.logger.Info(msg, append(keyvals, "elapsed", roundDuration(time.Since(s.start)))...)
}
