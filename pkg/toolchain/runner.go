// Package toolchain runs the external tools a package analysis needs.
//
// [Runner] executes one command and captures its output. [NPM] and
// [TypeScript] describe the exact invocations of the package manager and the
// type-checker on top of any Runner, so tests can substitute a scripted
// runner for the real binaries.
package toolchain

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/typecensus/pkg/errors"
)

// Command is one tool invocation.
type Command struct {
	Name    string        // executable, resolved through PATH
	Args    []string      // arguments, without the executable
	Dir     string        // working directory
	Env     []string      // KEY=VALUE pairs appended to the inherited environment
	Timeout time.Duration // 0 means no limit beyond the caller's context
}

// String renders the command line for logs and records.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Failed reports whether the tool wrote anything to standard error.
// Exit codes are not consulted: npm exits non-zero for warnings that do not
// stop an install, and tsc exits non-zero whenever it reports diagnostics.
func (r *Result) Failed() bool {
	return r != nil && len(r.Stderr) > 0
}

// Runner executes commands. Implementations return a nil error whenever
// the process ran to completion, whatever its exit code.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as child processes. Each child gets its own
// process group, which is killed as a whole on timeout or cancellation so
// that npm lifecycle helpers do not outlive the stage.
type ExecRunner struct {
	Logger *log.Logger
}

// NewExecRunner creates a runner that logs invocations at debug level.
// A nil logger discards them.
func NewExecRunner(logger *log.Logger) *ExecRunner {
	return &ExecRunner{Logger: logger}
}

// Run starts cmd and waits for it.
//
// Errors carry [errors.ErrCodeTool] when the process cannot be started and
// [errors.ErrCodeToolTimeout] when cmd.Timeout elapses. Cancellation of ctx
// returns ctx.Err().
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	setProcessGroup(c)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if r.Logger != nil {
		r.Logger.Debug("exec", "cmd", cmd.String(), "dir", cmd.Dir)
	}

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTool, err, "start %s", cmd.Name)
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	var err error
	select {
	case <-runCtx.Done():
		killProcessGroup(c)
		<-done
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(errors.ErrCodeToolTimeout, "%s timed out after %s", cmd.String(), cmd.Timeout)
	case err = <-done:
	}

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return nil, errors.Wrap(errors.ErrCodeTool, err, "run %s", cmd.Name)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	if r.Logger != nil {
		r.Logger.Debug("exec done", "cmd", cmd.Name, "exit", res.ExitCode,
			"stderr_bytes", len(res.Stderr), "elapsed", res.Duration.Round(time.Millisecond))
	}
	return res, nil
}

var _ Runner = (*ExecRunner)(nil)
