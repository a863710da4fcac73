package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/typecensus/pkg/config"
	"github.com/matzehuels/typecensus/pkg/corpus"
	"github.com/matzehuels/typecensus/pkg/errors"
	"github.com/matzehuels/typecensus/pkg/pipeline"
	"github.com/matzehuels/typecensus/pkg/report"
	"github.com/matzehuels/typecensus/pkg/toolchain"
)

// runFlags holds command-line overrides for the run command.
type runFlags struct {
	output      string
	workspace   string
	pattern     string
	tsconfig    string
	sqlite      string
	metricsAddr string
	window      int
	stride      int
	workers     int
	noCache     bool
	incremental bool
	keepStale   bool
	progress    bool
}

// runCommand creates the run command.
func (c *CLI) runCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [corpus-dir]",
		Short: "Type-check a corpus of package tarballs",
		Long: `Run the census over a directory of npm tarballs.

Every selected archive is unpacked into the workspace, its runtime
dependencies are installed together with any published @types packages,
and the TypeScript compiler is run with the shared tsconfig. Each failure
and each compiler diagnostic becomes one row of the CSV report.

The corpus is sorted by file name and sampled with --window and --stride:
the defaults take every third archive among the first 75.`,
		Example: `  # Analyse ./tarballs with defaults
  typecensus run

  # Whole corpus, four packages at a time, with a live progress bar
  typecensus run ./tarballs --window -1 --stride 1 -j 4 --progress`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Corpus.Dir = args[0]
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.runCensus(cmd.Context(), cfg, flags)
		},
	}

	flags.register(cmd.Flags())

	return cmd
}

// register binds the run flags to fs.
func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.output, "output", "o", "", "report file (default results/results.csv)")
	fs.StringVar(&f.workspace, "workspace", "", "directory packages are unpacked into (default packages)")
	fs.StringVar(&f.pattern, "pattern", "", "glob selecting archives in the corpus (default *.tgz)")
	fs.StringVar(&f.tsconfig, "tsconfig", "", "tsconfig copied into every package (default tsconfig.json)")
	fs.StringVar(&f.sqlite, "sqlite", "", "also store records in this SQLite database")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	fs.IntVar(&f.window, "window", 0, "consider only the first N archives; -1 for all (default 75)")
	fs.IntVar(&f.stride, "stride", 0, "take every Nth archive of the window (default 3)")
	fs.IntVarP(&f.workers, "workers", "j", 0, "packages processed concurrently (default 1)")
	fs.BoolVar(&f.noCache, "no-cache", false, "probe the registry without the cache")
	fs.BoolVar(&f.incremental, "incremental", false, "append rows to the report as each package finishes")
	fs.BoolVar(&f.keepStale, "keep-stale", false, "do not remove a package's previous extraction")
	fs.BoolVar(&f.progress, "progress", false, "show a progress bar instead of log lines")
}

// apply copies the flags the user set onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("output") {
		cfg.Report.Output = f.output
	}
	if set("workspace") {
		cfg.Workspace.Dir = f.workspace
	}
	if set("pattern") {
		cfg.Corpus.Pattern = f.pattern
	}
	if set("tsconfig") {
		cfg.TypeScript.TSConfig = f.tsconfig
	}
	if set("sqlite") {
		cfg.Report.SQLite = f.sqlite
	}
	if set("metrics-addr") {
		cfg.Telemetry.MetricsAddr = f.metricsAddr
	}
	if set("window") {
		cfg.Corpus.Window = f.window
	}
	if set("stride") {
		cfg.Corpus.Stride = f.stride
	}
	if set("workers") {
		cfg.Run.Workers = f.workers
	}
	if set("incremental") {
		cfg.Report.Incremental = f.incremental
	}
	if set("keep-stale") {
		clean := !f.keepStale
		cfg.Workspace.Clean = &clean
	}
}

// runCensus executes one batch as configured.
func (c *CLI) runCensus(ctx context.Context, cfg *config.Config, flags runFlags) error {
	runID := uuid.NewString()
	logger := c.Logger

	sw := startStopwatch(logger)
	archives, err := corpus.Select(cfg.Corpus.Dir, corpus.Options{
		Pattern: cfg.Corpus.Pattern,
		Window:  cfg.Corpus.Window,
		Stride:  cfg.Corpus.Stride,
	})
	if err != nil {
		return err
	}
	sw.done("selected archives", "count", len(archives), "corpus", cfg.Corpus.Dir)
	if len(archives) == 0 {
		printWarning("No archives match %q in %s", cfg.Corpus.Pattern, cfg.Corpus.Dir)
	}

	stopTelemetry, err := setupTelemetry(ctx, cfg.Telemetry, runID, logger)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "telemetry")
	}
	defer stopTelemetry()

	locator, probeCache, err := newLocator(cfg, flags.noCache)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "open probe cache")
	}
	defer probeCache.Close()

	sinks, err := openSinks(ctx, cfg, runID)
	if err != nil {
		return err
	}
	collector := report.NewCollector(sinks...)

	proc := pipeline.NewProcessor(pipeline.ProcessorOptions{
		Runner:  toolchain.NewExecRunner(logger),
		Locator: locator,
		NPM: toolchain.NPM{
			Command:  cfg.NPM.Command,
			LogLevel: cfg.NPM.LogLevel,
			Flags:    cfg.NPM.Flags,
			Timeout:  cfg.NPM.Timeout,
		},
		TypeScript: toolchain.TypeScript{
			Command: cfg.TypeScript.Command,
			Args:    cfg.TypeScript.Args,
			Timeout: cfg.TypeScript.Timeout,
		},
		Workspace: cfg.Workspace.Dir,
		TSConfig:  cfg.TypeScript.TSConfig,
		BaseTypes: cfg.NPM.BaseTypes,
		KeepStale: !cfg.CleanWorkspace(),
		Logger:    logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := pipeline.NewRunner(proc, collector, logger)
	var view *progressView
	if flags.progress {
		defer muteLogger(logger)()
		view = startProgress(runCtx, len(archives), cancel)
		runner.OnCommit = view.commit
	}

	summary, runErr := runner.RunArchives(runCtx, pipeline.Options{
		Workers: cfg.Run.Workers,
		RunID:   runID,
		Logger:  logger,
	}, archives)
	if view != nil {
		view.stop()
	}
	if summary == nil {
		collector.Close()
		return runErr
	}

	if err := collector.Close(); err != nil {
		logger.Warn("closing sinks", "error", err)
	}
	if !cfg.Report.Incremental {
		if err := collector.WriteFile(cfg.Report.Output); err != nil {
			return errors.Wrap(errors.ErrCodeReport, err, "write %s", cfg.Report.Output)
		}
	}

	printNewline()
	if runErr != nil {
		printWarning("Run interrupted after %d of %d packages", summary.Packages, summary.Selected)
	} else {
		printSuccess("Analysed %d packages", summary.Packages)
	}
	printFile(cfg.Report.Output)
	if cfg.Report.SQLite != "" {
		printFile(cfg.Report.SQLite)
	}
	if summary.SinkErrors > 0 {
		printWarning("%d batches could not be stored by a sink; the CSV report is complete", summary.SinkErrors)
	}

	if runErr == nil && cfg.Upload.Enabled() {
		key, err := uploadReport(ctx, cfg.Upload, runID, cfg.Report.Output)
		if err != nil {
			return err
		}
		printDetail("Uploaded to s3://%s/%s", cfg.Upload.Bucket, key)
	}

	printNewline()
	printSummary(summary)
	return runErr
}

// openSinks opens every streaming sink cfg asks for.
func openSinks(ctx context.Context, cfg *config.Config, runID string) ([]report.Sink, error) {
	var sinks []report.Sink
	fail := func(err error, format string, args ...any) ([]report.Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, errors.Wrap(errors.ErrCodeReport, err, format, args...)
	}

	if cfg.Report.Incremental {
		s, err := report.OpenCSVSink(cfg.Report.Output)
		if err != nil {
			return fail(err, "open %s", cfg.Report.Output)
		}
		sinks = append(sinks, s)
	}
	if cfg.Report.SQLite != "" {
		s, err := report.OpenSQLiteSink(cfg.Report.SQLite, runID)
		if err != nil {
			return fail(err, "open %s", cfg.Report.SQLite)
		}
		sinks = append(sinks, s)
	}
	if cfg.Report.MongoURI != "" {
		s, err := report.OpenMongoSink(ctx, cfg.Report.MongoURI, cfg.Report.MongoDatabase, runID)
		if err != nil {
			return fail(err, "connect to MongoDB")
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// uploadReport copies the finished report to object storage.
func uploadReport(ctx context.Context, cfg config.UploadConfig, runID, path string) (string, error) {
	up, err := report.NewUploader(report.UploadConfig{
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUpload, err, "configure upload")
	}
	key, err := up.Upload(ctx, runID, path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUpload, err, "upload %s", path)
	}
	return key, nil
}
