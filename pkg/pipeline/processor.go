package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/typecensus/pkg/corpus"
	"github.com/matzehuels/typecensus/pkg/observability"
	"github.com/matzehuels/typecensus/pkg/report"
	"github.com/matzehuels/typecensus/pkg/toolchain"
)

// Locator answers whether a dependency has a published declaration
// package. [npm.TypesLocator] is the production implementation.
type Locator interface {
	TypesPackage(name string) string
	Exists(ctx context.Context, name string) (bool, error)
}

// ProcessorOptions configures a [Processor]. Zero values select defaults.
type ProcessorOptions struct {
	Runner     toolchain.Runner     // required
	Locator    Locator              // required
	NPM        toolchain.NPM        // invocation settings; Runner is replaced
	TypeScript toolchain.TypeScript // invocation settings; Runner is replaced
	Workspace  string               // default DefaultWorkspace
	TSConfig   string               // default DefaultTSConfig; "-" skips the copy
	BaseTypes  []string             // default DefaultBaseTypes

	// KeepStale leaves a previous run's extraction in place instead of
	// removing it before extracting.
	KeepStale bool

	Logger *log.Logger
}

// Processor turns one archive into its diagnostic records. It holds no
// per-package state, so one Processor serves concurrent packages as long
// as their workspace directories differ.
type Processor struct {
	npm        toolchain.NPM
	typescript toolchain.TypeScript
	locator    Locator
	workspace  string
	tsconfig   string
	baseTypes  []string
	keepStale  bool
	logger     *log.Logger
}

// NewProcessor creates a processor from opts.
func NewProcessor(opts ProcessorOptions) *Processor {
	p := &Processor{
		npm:        opts.NPM,
		typescript: opts.TypeScript,
		locator:    opts.Locator,
		workspace:  opts.Workspace,
		tsconfig:   opts.TSConfig,
		baseTypes:  opts.BaseTypes,
		keepStale:  opts.KeepStale,
		logger:     opts.Logger,
	}
	p.npm.Runner = opts.Runner
	p.typescript.Runner = opts.Runner
	if p.workspace == "" {
		p.workspace = DefaultWorkspace
	}
	if p.tsconfig == "" {
		p.tsconfig = DefaultTSConfig
	}
	if p.baseTypes == nil {
		p.baseTypes = DefaultBaseTypes
	}
	if p.logger == nil {
		p.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return p
}

// Outcome is the result of processing one archive.
type Outcome struct {
	Package string
	Records []report.Record
	// FailedStage is the category of the stage that halted the package,
	// or empty when every stage ran.
	FailedStage report.Category
	Duration    time.Duration
	// Cancelled is set when the context ended before the package finished.
	// Records then holds only what was produced before that point.
	Cancelled bool
}

// Clean reports whether the package produced no records at all.
func (o *Outcome) Clean() bool {
	return len(o.Records) == 0 && !o.Cancelled
}

// Process runs every stage for archive and returns the records produced,
// in stage order.
func (p *Processor) Process(ctx context.Context, archive corpus.Archive) []report.Record {
	return p.Run(ctx, archive).Records
}

// Run is [Processor.Process] with the stage bookkeeping kept.
func (p *Processor) Run(ctx context.Context, archive corpus.Archive) *Outcome {
	hooks := observability.Pipeline()
	start := time.Now()
	ctx = hooks.OnPackageStart(ctx, archive.Name)

	out := &Outcome{Package: archive.Name}
	pkg := &packageState{archive: archive}

	for _, s := range p.stages() {
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}

		stageCtx := hooks.OnStageStart(ctx, archive.Name, string(s.category))
		stageStart := time.Now()
		records, failed := s.run(stageCtx, pkg)
		elapsed := time.Since(stageStart)

		// A stage interrupted by cancellation reports the interruption,
		// not a package failure.
		if ctx.Err() != nil {
			hooks.OnStageComplete(stageCtx, archive.Name, string(s.category), elapsed, true)
			out.Cancelled = true
			break
		}
		hooks.OnStageComplete(stageCtx, archive.Name, string(s.category), elapsed, failed)

		for _, r := range records {
			hooks.OnRecord(stageCtx, archive.Name, string(r.Category), int(r.Severity))
		}
		out.Records = append(out.Records, records...)

		p.logger.Debug("stage finished",
			"package", archive.Name,
			"stage", s.category,
			"records", len(records),
			"failed", failed,
			"duration", elapsed)

		if failed {
			out.FailedStage = s.category
			break
		}
	}

	out.Duration = time.Since(start)
	hooks.OnPackageComplete(ctx, archive.Name, string(out.FailedStage), len(out.Records), out.Duration)
	return out
}
