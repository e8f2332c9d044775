// Package main is the entry point for the cherry-harvest CLI application.
// cherry-harvest mines Git repositories and their fork networks for
// cherry-picked commits and writes the pairs it finds as result files.
package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/cherry-harvest/cmd"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/adapters/git"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/adapters/github"
	logadapter "github.com/MyCarrier-DevOps/cherry-harvest/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/adapters/output"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/adapters/report"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/adapters/store"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/filter"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/search"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/usecases"
)

// errTrackerRequiresDB is returned when --skip-harvested is used without a database.
var errTrackerRequiresDB = errors.New("harvest tracker requires " + config.EnvDBPath)

func main() {
	cmd.SetDefaultDependencies(newDependencies())
	cmd.Execute()
}

// newDependencies wires up production dependencies.
func newDependencies() *cmd.Dependencies {
	stores := &localStores{}

	return &cmd.Dependencies{
		// The logger is created after flags are parsed so --verbose can raise LOG_LEVEL.
		LoggerFactory: func() cmd.Logger {
			zapLog := logger.NewZapLoggerFromConfig()
			return logadapter.NewZapAdapter(zapLog,
				logadapter.WithVerbose(os.Getenv(config.EnvLogLevel) == "debug"))
		},

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return toAppConfig(cfg), nil
		},

		MethodsFactory: func(cfg *cmd.AppConfig) ([]domain.SearchMethod, error) {
			approx, ok := cfg.Search.(search.ApproximateConfig)
			if !ok {
				return nil, newConfigTypeError("search.ApproximateConfig")
			}
			approx.Workers = workerCount(cfg.Workers)
			return search.NewMethods(cfg.Methods, approx)
		},

		LoaderFactory: func(location string, cfg *cmd.AppConfig, log cmd.Logger) domain.RepositoryLoader {
			return git.NewLoader(resolveLocation(location), "", cfg.GitHubToken, log)
		},

		RunName: runName,

		ForkListerFactory: func(cfg *cmd.AppConfig, log cmd.Logger) cmd.ForkLister {
			return &forkLister{client: github.NewClient(nil, cfg.GitHubToken, log)}
		},

		HarvesterFactory: func(reporter domain.Reporter, log cmd.Logger, workers int) cmd.Harvester {
			return usecases.NewHarvester(reporter, log, workerCount(workers))
		},

		ReporterFactory: func(log cmd.Logger) cmd.SummaryReporter {
			return report.NewCollector(log)
		},

		FilterFactory: func(window time.Duration) domain.ResultFilter {
			return filter.ExcludeRebases(window)
		},

		SinkFactory: func(ctx context.Context, cfg *cmd.AppConfig, opts cmd.SinkOptions, _ cmd.Logger) ([]domain.ResultSink, error) {
			return newSinks(ctx, cfg, opts, stores)
		},

		TrackerFactory: func(ctx context.Context, cfg *cmd.AppConfig, _ cmd.Logger) (domain.HarvestTracker, error) {
			if cfg.DBPath == "" {
				return nil, errTrackerRequiresDB
			}
			return stores.open(ctx, cfg.DBPath)
		},

		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func toAppConfig(cfg *config.Config) *cmd.AppConfig {
	return &cmd.AppConfig{
		Methods:     cfg.Search.Methods,
		Search:      cfg.Search.Approximate(),
		Workers:     cfg.Search.Workers,
		OutputDir:   cfg.OutputDir,
		DBPath:      cfg.DBPath,
		GitHubToken: cfg.GitHubToken,
		ClickHouse:  cfg.ClickHouse,
		LogLevel:    cfg.LogLevel,
		LogAppName:  cfg.LogAppName,
	}
}

// newSinks opens the result file writer and, when configured, the local
// database and the ClickHouse warehouse.
func newSinks(ctx context.Context, cfg *cmd.AppConfig, opts cmd.SinkOptions, stores *localStores) ([]domain.ResultSink, error) {
	format, err := output.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	var sinks []domain.ResultSink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	if cfg.OutputDir != "" {
		w, err := output.NewDirWriter(cfg.OutputDir, format)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	} else {
		sinks = append(sinks, output.NewWriterWithOutput(opts.Stdout, format))
	}

	if cfg.DBPath != "" {
		s, err := stores.open(ctx, cfg.DBPath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}

	chCfg, ok := cfg.ClickHouse.(config.ClickHouseConfig)
	if !ok {
		closeAll()
		return nil, newConfigTypeError("config.ClickHouseConfig")
	}
	if chCfg.Enabled() {
		s, err := store.NewClickHouseStore(ctx, store.ClickHouseConfig{
			Addr:     chCfg.Addr,
			Database: chCfg.Database,
			Username: chCfg.Username,
			Password: chCfg.Password,
			TLS:      chCfg.TLS,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}

// localStores opens each SQLite database once so the result sink and the
// harvest tracker share a connection.
type localStores struct {
	mu     sync.Mutex
	opened map[string]*store.SQLiteStore
}

func (l *localStores) open(ctx context.Context, path string) (*store.SQLiteStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.opened[path]; ok {
		return s, nil
	}
	s, err := store.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, err
	}
	if l.opened == nil {
		l.opened = map[string]*store.SQLiteStore{}
	}
	l.opened[path] = s
	return s, nil
}

// forkLister adapts the GitHub client to cmd.ForkLister. Locations that are not
// GitHub repositories are searched on their own.
type forkLister struct {
	client *github.Client
}

func (f *forkLister) ForkNetwork(ctx context.Context, location string, maxForks int) ([]string, error) {
	if isLocalPath(location) {
		return []string{location}, nil
	}
	name, err := git.ParseRepoFromURL(location)
	if err != nil {
		return []string{location}, nil
	}
	return f.client.ForkNetwork(ctx, name, maxForks)
}

// resolveLocation turns an owner/repo shorthand into a GitHub clone URL.
// Existing local paths and URLs are returned unchanged.
func resolveLocation(location string) string {
	if git.IsRemoteURL(location) || isLocalPath(location) {
		return location
	}
	if name, err := git.ParseRepoFromURL(location); err == nil {
		return "https://github.com/" + name + ".git"
	}
	return location
}

// runName names a run after its owner/repo, or after the directory of a local path.
func runName(location string) string {
	if !isLocalPath(location) {
		if name, err := git.ParseRepoFromURL(location); err == nil {
			return name
		}
	}
	if abs, err := filepath.Abs(location); err == nil {
		return filepath.Base(abs)
	}
	return location
}

func isLocalPath(location string) bool {
	if git.IsRemoteURL(location) {
		return false
	}
	_, err := os.Stat(location)
	return err == nil
}

func workerCount(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func newConfigTypeError(expected string) error {
	return &configTypeError{expected: expected}
}

// configTypeError is returned when configuration type assertion fails.
type configTypeError struct {
	expected string
}

func (e *configTypeError) Error() string {
	return "invalid configuration type: expected " + e.expected
}
