package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/typecensus/pkg/errors"
	"github.com/matzehuels/typecensus/pkg/observability"
	"github.com/matzehuels/typecensus/pkg/report"
	"github.com/matzehuels/typecensus/pkg/toolchain"
	"github.com/matzehuels/typecensus/pkg/toolchain/toolchaintest"
)

func TestOptionsDefaults(t *testing.T) {
	opts := Options{CorpusDir: "tarballs"}
	require.NoError(t, opts.ValidateAndSetDefaults())

	assert.Equal(t, "*.tgz", opts.Pattern)
	assert.Equal(t, DefaultWindow, opts.Window)
	assert.Equal(t, DefaultStride, opts.Stride)
	assert.Equal(t, DefaultWorkers, opts.Workers)
	assert.NotEmpty(t, opts.RunID)
	assert.NotNil(t, opts.Logger)

	runID := opts.RunID
	require.NoError(t, opts.ValidateAndSetDefaults())
	assert.Equal(t, runID, opts.RunID)
}

func TestOptionsValidation(t *testing.T) {
	opts := Options{CorpusDir: "tarballs", Stride: -1}
	assert.Error(t, opts.ValidateAndSetDefaults())

	opts = Options{CorpusDir: "tarballs", Workers: -3}
	assert.Error(t, opts.ValidateAndSetDefaults())
}

// diagnose scripts one tsc line naming pkg, so every package has a record.
func diagnose(h *harness, pkg string) {
	h.script(pkg, cmdTSC, toolchaintest.Response{Stdout: pkg + ".ts(1,1): error TS1005\n"})
}

func TestRunSequential(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"alpha", "bravo", "charlie"} {
		h.addPackage(t, name)
	}
	diagnose(h, "alpha")
	h.script("bravo", cmdInstall, toolchaintest.Response{Stderr: "npm ERR! peer dep"})

	c := report.NewCollector()
	r := NewRunner(h.processor(newStubLocator()), c, nil)

	summary, err := r.Run(context.Background(), Options{CorpusDir: h.corpus, Window: -1, Stride: 1, RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, 3, summary.Packages)
	assert.Equal(t, 1, summary.Clean)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.ByCategory[report.CategoryGenerateTypes])
	assert.Equal(t, 1, summary.ByCategory[report.CategoryInstallDeps])

	var buf bytes.Buffer
	require.NoError(t, c.Flush(&buf))
	assert.Equal(t,
		"package,category,file,message\n"+
			"alpha,GENERATE_TYPES,1,\"alpha.ts(1,1): error TS1005\"\n"+
			"bravo,INSTALL_DEPENDENCIES,2,npm ERR! peer dep\n",
		buf.String())
}

func TestRunSubsamplesCorpus(t *testing.T) {
	h := newHarness(t)
	names := []string{"pkg00", "pkg01", "pkg02", "pkg03", "pkg04", "pkg05", "pkg06"}
	for _, name := range names {
		h.addPackage(t, name)
		diagnose(h, name)
	}

	c := report.NewCollector()
	summary, err := NewRunner(h.processor(newStubLocator()), c, nil).
		Run(context.Background(), Options{CorpusDir: h.corpus, Window: 6, Stride: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Selected)
	var got []string
	for _, rec := range c.Records() {
		got = append(got, rec.Package)
	}
	assert.Equal(t, []string{"pkg00", "pkg02", "pkg04"}, got)
}

func TestRunConcurrentKeepsArchiveOrder(t *testing.T) {
	h := newHarness(t)
	var names []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("pkg%02d", i)
		names = append(names, name)
		h.addPackage(t, name)
		h.script(name, cmdTSC, toolchaintest.Response{Stdout: name + " one\n" + name + " two\n"})
	}

	// Earlier packages are slower, so they finish last.
	var mu sync.Mutex
	running, peak := 0, 0
	base := h.tools.Handler
	h.tools.Handler = func(cmd toolchain.Command) (toolchaintest.Response, bool) {
		if cmd.String() == cmdInstall {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			pkg := filepath.Base(filepath.Dir(cmd.Dir))
			var idx int
			fmt.Sscanf(pkg, "pkg%02d", &idx)
			time.Sleep(time.Duration(8-idx) * 3 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		}
		return base(cmd)
	}

	c := report.NewCollector()
	r := NewRunner(h.processor(newStubLocator()), c, nil)
	var committed []string
	r.OnCommit = func(o *Outcome, done, total int) {
		committed = append(committed, o.Package)
		assert.Equal(t, len(committed), done)
		assert.Equal(t, 8, total)
	}

	summary, err := r.Run(context.Background(), Options{CorpusDir: h.corpus, Window: -1, Stride: 1, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, names, committed)
	assert.Equal(t, 8, summary.Packages)
	assert.Equal(t, 16, summary.Records)
	assert.LessOrEqual(t, peak, 4)

	records := c.Records()
	require.Len(t, records, 16)
	for i, name := range names {
		assert.Equal(t, name+" one", records[2*i].Message)
		assert.Equal(t, name+" two", records[2*i+1].Message)
	}
}

func TestRunCancelledKeepsCommitted(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"alpha", "bravo", "charlie"} {
		h.addPackage(t, name)
		diagnose(h, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := report.NewCollector()
	r := NewRunner(h.processor(newStubLocator()), c, nil)
	r.OnCommit = func(o *Outcome, done, total int) {
		if done == 1 {
			cancel()
		}
	}

	summary, err := r.Run(ctx, Options{CorpusDir: h.corpus, Window: -1, Stride: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Packages)

	records := c.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "alpha", records[0].Package)
}

func TestRunMissingCorpus(t *testing.T) {
	r := NewRunner(NewProcessor(ProcessorOptions{Runner: toolchaintest.New(), Locator: newStubLocator()}), report.NewCollector(), nil)

	_, err := r.Run(context.Background(), Options{CorpusDir: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCorpus))

	_, err = r.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestRunEmptyCorpus(t *testing.T) {
	h := newHarness(t)
	c := report.NewCollector()

	summary, err := NewRunner(h.processor(newStubLocator()), c, nil).
		Run(context.Background(), Options{CorpusDir: h.corpus})
	require.NoError(t, err)
	assert.Zero(t, summary.Selected)
	assert.Zero(t, summary.Packages)
	assert.Zero(t, c.Len())
}

// failingSink rejects every write.
type failingSink struct{}

func (failingSink) Write(context.Context, []report.Record) error {
	return errors.New(errors.ErrCodeReport, "disk full")
}

func (failingSink) Close() error { return nil }

func TestRunSinkFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"alpha", "bravo"} {
		h.addPackage(t, name)
		diagnose(h, name)
	}

	c := report.NewCollector(failingSink{})
	summary, err := NewRunner(h.processor(newStubLocator()), c, nil).
		Run(context.Background(), Options{CorpusDir: h.corpus, Window: -1, Stride: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SinkErrors)
	assert.Equal(t, 2, c.Len())
}

// stageRecorder captures stage completions.
type stageRecorder struct {
	observability.NoopPipelineHooks
	mu       sync.Mutex
	stages   []string
	packages []string
	runs     int
}

func (s *stageRecorder) OnStageComplete(_ context.Context, pkg, stage string, _ time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, fmt.Sprintf("%s/%s/%t", pkg, stage, failed))
}

func (s *stageRecorder) OnPackageComplete(_ context.Context, pkg, failedStage string, records int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages = append(s.packages, fmt.Sprintf("%s/%s/%d", pkg, failedStage, records))
}

func (s *stageRecorder) OnRunComplete(context.Context, string, int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
}

func TestRunEmitsHooks(t *testing.T) {
	rec := &stageRecorder{}
	observability.SetPipelineHooks(rec)
	defer observability.Reset()

	h := newHarness(t)
	h.addPackage(t, "alpha")
	h.script("alpha", cmdList, toolchaintest.Response{Stderr: "broken tree"})

	_, err := NewRunner(h.processor(newStubLocator()), report.NewCollector(), nil).
		Run(context.Background(), Options{CorpusDir: h.corpus})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"alpha/EXTRACT_ARCHIVE/false",
		"alpha/INSTALL_DEPENDENCIES/false",
		"alpha/LIST_DEPENDENCIES/true",
	}, rec.stages)
	assert.Equal(t, []string{"alpha/LIST_DEPENDENCIES/1"}, rec.packages)
	assert.Equal(t, 1, rec.runs)
}
