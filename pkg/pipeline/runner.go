package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/typecensus/pkg/corpus"
	"github.com/matzehuels/typecensus/pkg/errors"
	"github.com/matzehuels/typecensus/pkg/observability"
	"github.com/matzehuels/typecensus/pkg/report"
)

// Runner drives a batch: it selects archives, processes them and commits
// each package's records to a Collector.
//
// Packages may be processed concurrently, but records are always committed
// in archive order: a package is committed once every package before it
// has been. The report of a concurrent run is therefore identical to the
// report of a sequential one.
type Runner struct {
	Processor *Processor
	Collector *report.Collector
	Logger    *log.Logger

	// OnCommit, when set, is called after each package is committed with
	// the number of packages committed so far and the total selected.
	// It runs on the committing goroutine.
	OnCommit func(o *Outcome, done, total int)
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(p *Processor, c *report.Collector, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{Processor: p, Collector: c, Logger: logger}
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	RunID      string
	Selected   int // archives chosen by the selector
	Packages   int // packages committed
	Clean      int // committed packages without records
	Failed     int // committed packages halted by a stage
	Records    int
	ByCategory map[report.Category]int
	// SinkErrors counts batches a streaming sink failed to store. The
	// in-memory report is complete regardless.
	SinkErrors int
	Started    time.Time
	Duration   time.Duration
}

// Run processes the corpus described by opts.
//
// Package failures never abort the batch; they are records. Run returns an
// error only when the corpus cannot be read or ctx ends. In the latter case
// the returned Summary covers the packages committed before cancellation.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.CorpusDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "corpus directory is required")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	archives, err := corpus.Select(opts.CorpusDir, opts.CorpusOptions())
	if err != nil {
		return nil, err
	}
	return r.RunArchives(ctx, opts, archives)
}

// RunArchives processes an explicit archive list, skipping selection.
func (r *Runner) RunArchives(ctx context.Context, opts Options, archives []corpus.Archive) (*Summary, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	hooks := observability.Pipeline()
	summary := &Summary{
		RunID:      opts.RunID,
		Selected:   len(archives),
		ByCategory: make(map[report.Category]int, len(report.Categories)),
		Started:    time.Now(),
	}
	ctx = hooks.OnRunStart(ctx, opts.RunID, len(archives))

	r.Logger.Info("starting run",
		"run", opts.RunID,
		"archives", len(archives),
		"workers", opts.Workers)

	err := r.process(ctx, opts.Workers, archives, summary)

	summary.Duration = time.Since(summary.Started)
	hooks.OnRunComplete(ctx, opts.RunID, summary.Packages, summary.Duration, err)
	return summary, err
}

// process fans archives out to at most workers goroutines and commits the
// outcomes in input order. Each archive has its own single-slot channel,
// so a worker never blocks on an uncommitted predecessor.
func (r *Runner) process(ctx context.Context, workers int, archives []corpus.Archive, summary *Summary) error {
	results := make([]chan *Outcome, len(archives))
	for i := range results {
		results[i] = make(chan *Outcome, 1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(workers)
		for i, a := range archives {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results[i] <- r.Processor.Run(ctx, a)
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() { <-done }()

	for i := range archives {
		var out *Outcome
		select {
		case out = <-results[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if out.Cancelled || ctx.Err() != nil {
			return ctx.Err()
		}
		r.commit(ctx, out, summary)
		if r.OnCommit != nil {
			r.OnCommit(out, summary.Packages, len(archives))
		}
	}
	return nil
}

func (r *Runner) commit(ctx context.Context, out *Outcome, summary *Summary) {
	if err := r.Collector.Collect(ctx, out.Records...); err != nil {
		summary.SinkErrors++
		r.Logger.Warn("sink write failed", "package", out.Package, "error", err)
	}

	summary.Packages++
	summary.Records += len(out.Records)
	for _, rec := range out.Records {
		summary.ByCategory[rec.Category]++
	}
	switch {
	case out.FailedStage != "":
		summary.Failed++
	case out.Clean():
		summary.Clean++
	}

	r.Logger.Info("processed package",
		"package", out.Package,
		"records", len(out.Records),
		"failed_stage", out.FailedStage,
		"duration", out.Duration.Round(time.Millisecond))
}
