// Package cmd provides the CLI commands for cherry-harvest.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Logger defines the logging interface used by the command.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Harvester runs search methods over a set of repositories.
type Harvester interface {
	Harvest(ctx context.Context, repos []domain.RepositoryLoader, methods []domain.SearchMethod) (*domain.HarvestOutput, error)
}

// SummaryReporter is a domain.Reporter that can render a run summary.
type SummaryReporter interface {
	domain.Reporter
	WriteSummary(w io.Writer, out *domain.HarvestOutput) error
}

// ForkLister expands a repository into the clone URLs of its fork network.
type ForkLister interface {
	ForkNetwork(ctx context.Context, repository string, maxForks int) ([]string, error)
}

// SinkOptions selects where results are written.
type SinkOptions struct {
	// OutputDir holds one result file per run. Empty writes to Stdout.
	OutputDir string

	// Format is the result file format (yaml or json).
	Format string

	// Stdout receives results when no OutputDir is set.
	Stdout io.Writer
}

// Dependencies holds all injectable dependencies for the command.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// MethodsFactory builds the selected search methods.
	MethodsFactory func(cfg *AppConfig) ([]domain.SearchMethod, error)

	// LoaderFactory creates a RepositoryLoader for a path, URL or owner/repo.
	LoaderFactory func(location string, cfg *AppConfig, log Logger) domain.RepositoryLoader

	// RunName derives the name of a run from its command-line argument.
	RunName func(location string) string

	// ForkListerFactory creates the fork network client used by --forks.
	ForkListerFactory func(cfg *AppConfig, log Logger) ForkLister

	// HarvesterFactory creates a Harvester with the given dependencies.
	HarvesterFactory func(reporter domain.Reporter, log Logger, workers int) Harvester

	// ReporterFactory creates the per-run progress reporter.
	ReporterFactory func(log Logger) SummaryReporter

	// FilterFactory creates the rebase filter used by --exclude-rebase.
	FilterFactory func(window time.Duration) domain.ResultFilter

	// SinkFactory creates every configured result sink.
	SinkFactory func(ctx context.Context, cfg *AppConfig, opts SinkOptions, log Logger) ([]domain.ResultSink, error)

	// TrackerFactory creates the harvest tracker used by --skip-harvested.
	TrackerFactory func(ctx context.Context, cfg *AppConfig, log Logger) (domain.HarvestTracker, error)

	// Stdout is the writer for standard output (for results).
	Stdout io.Writer

	// Stderr is the writer for standard error (for the run summary).
	Stderr io.Writer
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	// Methods lists the selected search methods by name.
	Methods []string

	// Search holds the approximate search settings; passed to MethodsFactory.
	Search any

	// Workers bounds parallelism; zero means one worker per CPU.
	Workers int

	// OutputDir is the directory for result files; empty writes to stdout.
	OutputDir string

	// DBPath is the local SQLite database; empty disables it.
	DBPath string

	// GitHubToken authenticates clones and fork listing.
	GitHubToken string

	// ClickHouse holds the warehouse configuration; passed to SinkFactory.
	ClickHouse any

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// runOptions holds command-line flags.
type runOptions struct {
	methods       []string
	forks         int
	output        string
	format        string
	excludeRebase bool
	rebaseWindow  time.Duration
	skipHarvested bool
	workers       int
	verbose       bool
}

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for cherry-harvest.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "cherry-harvest <repository>...",
		Short: "Find cherry-picked commits in Git repositories",
		Long: `cherry-harvest mines the commit history of Git repositories for cherry-picks.

Each argument is a local path, a clone URL or a GitHub owner/repo. Every
argument is one run: its repositories are searched with the selected
methods and the results are written as one result file.

Methods:
  message  commits whose message says "(cherry picked from commit <hash>)"
  exact    commits with identical patches
  lsh      commits with similar patches (MinHash + locality-sensitive hashing)

Examples:
  # Search a local repository with all methods
  cherry-harvest ./repo

  # Search a GitHub repository and up to 20 of its forks
  cherry-harvest --forks 20 owner/repo

  # Only exact and similar patches, results as JSON files in ./results
  cherry-harvest -m exact,lsh --format json -o results owner/repo

  # Skip repositories that were harvested before (requires HARVEST_DB_PATH)
  cherry-harvest --skip-harvested owner/a owner/b`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, args, deps, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringSliceVarP(&opts.methods, "method", "m", nil,
		"Search methods to run (message, exact, lsh); defaults to the configured methods")
	flags.IntVar(&opts.forks, "forks", 0,
		"Also search up to this many forks of a GitHub repository (-1 for all)")
	flags.StringVarP(&opts.output, "output", "o", "",
		"Directory for result files (default: write results to stdout)")
	flags.StringVar(&opts.format, "format", "yaml",
		"Result format: yaml or json")
	flags.BoolVar(&opts.excludeRebase, "exclude-rebase", false,
		"Drop results that look like rebases unless they carry the cherry-pick marker")
	flags.DurationVar(&opts.rebaseWindow, "rebase-window", domain.DefaultRebaseTime,
		"Commits closer together than this are treated as a rebase by --exclude-rebase")
	flags.BoolVar(&opts.skipHarvested, "skip-harvested", false,
		"Skip repositories recorded as harvested in the local database")
	flags.IntVarP(&opts.workers, "workers", "w", 0,
		"Maximum parallelism (default: configured value or one per CPU)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	return rootCmd
}

// harvestRun holds the state shared by the runs of one command invocation.
type harvestRun struct {
	deps    *Dependencies
	cfg     *AppConfig
	opts    *runOptions
	log     Logger
	methods []domain.SearchMethod
	sinks   []domain.ResultSink
	tracker domain.HarvestTracker
	forks   ForkLister
	stderr  io.Writer
}

// runHarvest executes one harvest per argument with injected dependencies.
func runHarvest(cmd *cobra.Command, args []string, deps *Dependencies, opts *runOptions) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stdout := deps.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Set log level based on verbose flag (best-effort)
	if opts.verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	log := deps.LoggerFactory()

	log.Info(ctx, "starting cherry-harvest", map[string]interface{}{
		"repositories":   args,
		"forks":          opts.forks,
		"exclude_rebase": opts.excludeRebase,
		"verbose":        opts.verbose,
	})

	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return fmt.Errorf("configuration error: %w", err)
	}
	applyFlags(cmd, cfg, opts)

	methods, err := deps.MethodsFactory(cfg)
	if err != nil {
		log.Error(ctx, "invalid search methods", err, map[string]interface{}{
			"methods": cfg.Methods,
		})
		return fmt.Errorf("configuration error: %w", err)
	}

	sinks, err := deps.SinkFactory(ctx, cfg, SinkOptions{
		OutputDir: cfg.OutputDir,
		Format:    opts.format,
		Stdout:    stdout,
	}, log)
	if err != nil {
		log.Error(ctx, "failed to initialize result sinks", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	defer func() {
		for _, s := range sinks {
			if closeErr := s.Close(); closeErr != nil {
				log.Warn(ctx, "failed to close result sink", map[string]interface{}{
					"error": closeErr.Error(),
				})
			}
		}
	}()

	run := &harvestRun{
		deps:    deps,
		cfg:     cfg,
		opts:    opts,
		log:     log,
		methods: methods,
		sinks:   sinks,
		stderr:  stderr,
	}

	if opts.skipHarvested {
		run.tracker, err = deps.TrackerFactory(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "failed to initialize harvest tracker", err, nil)
			return fmt.Errorf("database error: %w", err)
		}
	}
	if opts.forks != 0 {
		run.forks = deps.ForkListerFactory(cfg, log)
	}

	var failed []string
	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := run.harvest(ctx, arg); err != nil {
			log.Error(ctx, "harvest failed", err, map[string]interface{}{
				"repository": arg,
			})
			if errors.Is(err, domain.ErrAllRepositoriesFailed) {
				writeWarningf(stderr, "%s: no repository could be loaded\n", arg)
			} else {
				writeWarningf(stderr, "%s: %v\n", arg, err)
			}
			failed = append(failed, arg)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d harvests failed: %s", len(failed), len(args), strings.Join(failed, ", "))
	}
	return nil
}

// applyFlags lets explicitly set flags override the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *AppConfig, opts *runOptions) {
	flags := cmd.Flags()
	if flags.Changed("method") {
		cfg.Methods = opts.methods
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("output") {
		cfg.OutputDir = opts.output
	}
}

// harvest runs the search for one command-line argument.
func (r *harvestRun) harvest(ctx context.Context, arg string) error {
	name := arg
	if r.deps.RunName != nil {
		name = r.deps.RunName(arg)
	}

	if r.tracker != nil {
		done, err := r.tracker.Contains(ctx, name)
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if done {
			r.log.Info(ctx, "repository already harvested, skipping", map[string]interface{}{
				"repository": name,
			})
			return nil
		}
	}

	locations := []string{arg}
	if r.forks != nil {
		network, err := r.forks.ForkNetwork(ctx, arg, r.opts.forks)
		if err != nil {
			return fmt.Errorf("fork network: %w", err)
		}
		locations = network
		r.log.Info(ctx, "fork network resolved", map[string]interface{}{
			"repository":   name,
			"repositories": len(locations),
		})
	}

	loaders := make([]domain.RepositoryLoader, 0, len(locations))
	for _, loc := range locations {
		loaders = append(loaders, r.deps.LoaderFactory(loc, r.cfg, r.log))
	}

	reporter := r.deps.ReporterFactory(r.log)
	harvester := r.deps.HarvesterFactory(reporter, r.log, r.cfg.Workers)

	started := time.Now().UTC()
	out, err := harvester.Harvest(ctx, loaders, r.methods)
	if err != nil {
		return err
	}

	results := out.Results
	if r.opts.excludeRebase {
		results = r.deps.FilterFactory(r.opts.rebaseWindow).Filter(results)
		r.log.Info(ctx, "rebase filter applied", map[string]interface{}{
			"repository": name,
			"before":     len(out.Results),
			"after":      len(results),
		})
	}

	info := domain.RunInfo{
		Name:         name,
		Repositories: locations,
		TotalCommits: out.TotalCommits,
		StartedAt:    started,
	}
	for _, sink := range r.sinks {
		if err := sink.Save(ctx, info, results); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}

	if r.tracker != nil {
		if err := r.tracker.Add(ctx, name); err != nil {
			return fmt.Errorf("database error: %w", err)
		}
	}

	summary := &domain.HarvestOutput{
		Results:      results,
		TotalCommits: out.TotalCommits,
		Failures:     out.Failures,
	}
	if err := reporter.WriteSummary(r.stderr, summary); err != nil {
		r.log.Warn(ctx, "failed to write summary", map[string]interface{}{
			"error": err.Error(),
		})
	}

	r.log.Info(ctx, "harvest complete", map[string]interface{}{
		"repository":    name,
		"results":       len(results),
		"total_commits": out.TotalCommits,
		"failures":      len(out.Failures),
	})
	return nil
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		return
	}
}
