// Package toolchaintest provides a scripted [toolchain.Runner] for tests.
package toolchaintest

import (
	"context"
	"strings"
	"sync"

	"github.com/matzehuels/typecensus/pkg/toolchain"
)

// Response is what a scripted command returns.
type Response struct {
	Stdout string
	Stderr string
	Exit   int
	Err    error
}

// Runner answers commands from a table keyed by the command line
// ("npm install --omit=dev ..."). Unknown commands succeed silently.
// Every invocation is recorded.
type Runner struct {
	mu        sync.Mutex
	responses map[string]Response
	// Handler, when set, is consulted before the table.
	Handler func(cmd toolchain.Command) (Response, bool)
	calls   []toolchain.Command
}

// New creates a runner with no scripted responses.
func New() *Runner {
	return &Runner{responses: map[string]Response{}}
}

// On scripts the response for a command line.
func (r *Runner) On(cmdline string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[cmdline] = resp
	return r
}

func (r *Runner) Run(ctx context.Context, cmd toolchain.Command) (*toolchain.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	handler := r.Handler
	resp, ok := r.responses[cmd.String()]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handler != nil {
		if hresp, hok := handler(cmd); hok {
			resp, ok = hresp, true
		}
	}
	if !ok {
		return &toolchain.Result{}, nil
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &toolchain.Result{
		Stdout:   []byte(resp.Stdout),
		Stderr:   []byte(resp.Stderr),
		ExitCode: resp.Exit,
	}, nil
}

// Calls returns the recorded invocations in order.
func (r *Runner) Calls() []toolchain.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolchain.Command(nil), r.calls...)
}

// CommandLines returns the recorded invocations rendered as strings.
func (r *Runner) CommandLines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// CallsIn returns the command lines run in dirs ending with suffix.
func (r *Runner) CallsIn(suffix string) []string {
	var out []string
	for _, c := range r.Calls() {
		if strings.HasSuffix(c.Dir, suffix) {
			out = append(out, c.String())
		}
	}
	return out
}

var _ toolchain.Runner = (*Runner)(nil)
