package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"

	"github.com/matzehuels/typecensus/pkg/integrations/npm"
)

// probeSpinner animates one registry lookup on stderr and replaces the
// animation with the verdict when the lookup returns.
type probeSpinner struct {
	dep      string
	typesPkg string
	status   io.Writer // animation frames
	out      io.Writer // verdict lines
	style    spinner.Spinner

	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	stopped chan struct{}
	mu      sync.Mutex
}

func newProbeSpinner(ctx context.Context, dep, typesPkg string) *probeSpinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &probeSpinner{
		dep:      dep,
		typesPkg: typesPkg,
		status:   os.Stderr,
		out:      os.Stdout,
		style:    spinner.Dot,
		parent:   ctx,
		ctx:      spinnerCtx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
}

func (s *probeSpinner) message() string {
	return fmt.Sprintf("HEAD %s", s.typesPkg)
}

// Start begins the animation. It ends on Stop or when the parent context is
// done.
func (s *probeSpinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.style.FPS)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-ticker.C:
				frame := s.style.Frames[i%len(s.style.Frames)]
				s.mu.Lock()
				fmt.Fprintf(s.status, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(s.message()))
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and clears its line. It is safe to call twice.
func (s *probeSpinner) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.stopped
	})
}

func (s *probeSpinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.status, "\r%s\r", strings.Repeat(" ", len(s.message())+4))
}

// Interrupted reports whether the parent context ended the lookup.
func (s *probeSpinner) Interrupted() bool {
	return s.parent.Err() != nil
}

// finish stops the animation and prints the verdict for p.
func (s *probeSpinner) finish(p npm.Probe) {
	s.Stop()
	fmt.Fprintln(s.out, probeVerdict(s.dep, p))
}

// probeVerdict renders one result line, e.g.
//
//	✓ lodash → @types/lodash (cached)
//	› left-pad → @types/left-pad not published
func probeVerdict(dep string, p npm.Probe) string {
	var b strings.Builder
	if p.Exists {
		b.WriteString(StyleSuccess.Render(iconSuccess) + " " + dep + " " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(p.Package))
	} else {
		b.WriteString(StyleDim.Render(iconInfo) + " " + dep + " " + StyleDim.Render(iconArrow) + " " + StyleDim.Render(p.Package+" not published"))
	}
	if p.Cached {
		b.WriteString(" " + StyleDim.Render("(cached)"))
	}
	return b.String()
}
