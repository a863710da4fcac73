// Package pipeline runs the type-declaration census over a corpus of
// package tarballs.
//
// This package implements the per-package stage sequence and the batch
// driver on top of it. The CLI is a thin layer over [Runner]; everything
// that decides what ends up in a report lives here.
//
// # Stages
//
// Each package goes through five stages in order:
//
//  1. Extract: unpack the tarball into the workspace
//  2. Install dependencies: npm install in the package root
//  3. List dependencies: npm ls --all --parseable
//  4. Install types: probe the registry for each dependency's @types
//     package and install the ones that exist, then the base types
//  5. Generate types: copy the shared tsconfig and run tsc
//
// The first stage that fails emits one severity-2 record carrying its
// category and the package stops there. Type-checker output is the payload
// of the last stage and never counts as a failure.
//
// # Usage
//
//	proc := pipeline.NewProcessor(pipeline.ProcessorOptions{
//	    Runner:    toolchain.NewExecRunner(logger),
//	    Locator:   npm.NewTypesLocator(npm.LocatorOptions{}),
//	    Workspace: "packages",
//	    TSConfig:  "tsconfig.json",
//	})
//	runner := pipeline.NewRunner(proc, report.NewCollector(sink), logger)
//	summary, err := runner.Run(ctx, pipeline.Options{CorpusDir: "tarballs"})
package pipeline

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/typecensus/pkg/corpus"
	"github.com/matzehuels/typecensus/pkg/errors"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Config
// =============================================================================

const (
	// DefaultWindow bounds the sorted corpus listing.
	DefaultWindow = 75

	// DefaultStride samples every third archive of the window.
	DefaultStride = 3

	// DefaultWorkers keeps runs sequential unless asked otherwise.
	DefaultWorkers = 1

	// DefaultWorkspace is where archives are unpacked.
	DefaultWorkspace = "packages"

	// DefaultTSConfig is the shared compiler configuration copied into
	// every package root.
	DefaultTSConfig = "tsconfig.json"
)

// DefaultBaseTypes are installed into every package after its
// dependencies' declarations.
var DefaultBaseTypes = []string{"@types/node"}

// =============================================================================
// Options - Run Configuration
// =============================================================================

// Options configures one batch run.
type Options struct {
	CorpusDir string
	Pattern   string // glob over file names; default corpus.DefaultPattern
	Window    int    // 0 means DefaultWindow; negative is unbounded
	Stride    int    // 0 means DefaultStride
	Workers   int    // 0 means DefaultWorkers

	// RunID identifies the run in sinks and telemetry. Generated when empty.
	RunID string

	Logger *log.Logger

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks field ranges and applies defaults.
// Calling it more than once has no further effect.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Pattern == "" {
		o.Pattern = corpus.DefaultPattern
	}
	if o.Window == 0 {
		o.Window = DefaultWindow
	}
	if o.Stride == 0 {
		o.Stride = DefaultStride
	}
	if o.Stride < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "stride must be positive, got %d", o.Stride)
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "workers must be positive, got %d", o.Workers)
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// CorpusOptions returns the selector options for this run.
func (o *Options) CorpusOptions() corpus.Options {
	return corpus.Options{Pattern: o.Pattern, Window: o.Window, Stride: o.Stride}
}
