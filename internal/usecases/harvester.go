// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Logger defines the logging interface required by the harvester.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Harvester runs search methods over repositories and merges their results.
// Repositories are loaded in parallel, and every method runs over every loaded
// repository in parallel. A failing repository or method is reported and
// skipped so that its siblings still produce results.
type Harvester struct {
	reporter domain.Reporter
	logger   Logger
	workers  int
}

// NewHarvester creates a Harvester. workers bounds the number of repositories
// loaded and searched concurrently; values below one mean unbounded.
func NewHarvester(reporter domain.Reporter, log Logger, workers int) *Harvester {
	return &Harvester{
		reporter: reporter,
		logger:   log,
		workers:  workers,
	}
}

// SearchWith runs a single method over the repositories.
func (h *Harvester) SearchWith(
	ctx context.Context,
	repos []domain.RepositoryLoader,
	method domain.SearchMethod,
) (*domain.HarvestOutput, error) {
	if method == nil {
		return nil, domain.ErrNoMethods
	}
	return h.SearchWithMultiple(ctx, repos, []domain.SearchMethod{method})
}

// SearchWithMultiple runs every method over every repository.
//
// Results are tagged with the method that found them. A pair found by the
// same method in several repositories is reported once, attributed to the
// first repository in input order. Results are sorted by method, then by
// source time, source ID and target ID.
func (h *Harvester) SearchWithMultiple(
	ctx context.Context,
	repos []domain.RepositoryLoader,
	methods []domain.SearchMethod,
) (*domain.HarvestOutput, error) {
	if err := validateMethods(methods); err != nil {
		return nil, err
	}

	h.logger.Info(ctx, "starting harvest", map[string]interface{}{
		"repositories": len(repos),
		"methods":      methodNames(methods),
		"workers":      h.workers,
	})

	loaded, failures := h.loadAll(ctx, repos)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(repos) > 0 && len(loaded) == 0 {
		return nil, fmt.Errorf("%w: %d repositories", domain.ErrAllRepositoriesFailed, len(repos))
	}

	totalCommits := 0
	for _, repo := range loaded {
		if repo != nil {
			totalCommits += len(repo.Commits)
		}
	}

	findings, methodFailures := h.searchAll(ctx, loaded, methods)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(methodFailures, func(i, j int) bool {
		if methodFailures[i].Repository != methodFailures[j].Repository {
			return methodFailures[i].Repository < methodFailures[j].Repository
		}
		return methodFailures[i].Method < methodFailures[j].Method
	})
	failures = append(failures, methodFailures...)

	results := merge(loaded, methods, findings)
	domain.SortResults(results)

	h.logger.Info(ctx, "harvest completed", map[string]interface{}{
		"results":       len(results),
		"total_commits": totalCommits,
		"failures":      len(failures),
	})

	return &domain.HarvestOutput{
		Results:      results,
		TotalCommits: totalCommits,
		Failures:     failures,
	}, nil
}

// Harvest is SearchWithMultiple followed by a per-method summary in the log.
func (h *Harvester) Harvest(
	ctx context.Context,
	repos []domain.RepositoryLoader,
	methods []domain.SearchMethod,
) (*domain.HarvestOutput, error) {
	out, err := h.SearchWithMultiple(ctx, repos, methods)
	if err != nil {
		return nil, err
	}

	perMethod := make(map[string]int, len(methods))
	for _, m := range methods {
		perMethod[m.Name()] = 0
	}
	for _, r := range out.Results {
		perMethod[r.Method]++
	}
	for _, m := range methods {
		h.logger.Info(ctx, "method results", map[string]interface{}{
			"method":  m.Name(),
			"results": perMethod[m.Name()],
		})
	}
	return out, nil
}

func validateMethods(methods []domain.SearchMethod) error {
	if len(methods) == 0 {
		return domain.ErrNoMethods
	}
	seen := make(map[string]struct{}, len(methods))
	for i, m := range methods {
		if m == nil {
			return fmt.Errorf("%w: method %d is nil", domain.ErrInvalidConfig, i)
		}
		name := m.Name()
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate method name %q", domain.ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func methodNames(methods []domain.SearchMethod) []string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Name()
	}
	return names
}

// loadAll loads every repository once. The returned slice is indexed like
// repos; entries for failed repositories are nil.
func (h *Harvester) loadAll(ctx context.Context, repos []domain.RepositoryLoader) ([]*domain.Repository, []domain.RepositoryFailure) {
	loaded := make([]*domain.Repository, len(repos))
	errs := make([]error, len(repos))

	g := new(errgroup.Group)
	if h.workers > 0 {
		g.SetLimit(h.workers)
	}
	for i, loader := range repos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			start := time.Now()
			repo, err := safeLoad(ctx, loader)
			if err == nil && repo == nil {
				err = fmt.Errorf("%w: loader returned no repository", domain.ErrRepositoryLoad)
			}
			if err != nil {
				errs[i] = err
				return nil
			}
			if repo.Name == "" {
				named := *repo
				named.Name = loader.Location()
				repo = &named
			}
			loaded[i] = repo
			h.logger.Debug(ctx, "repository loaded", map[string]interface{}{
				"repository": loader.Location(),
				"commits":    len(repo.Commits),
				"elapsed":    time.Since(start).String(),
			})
			return nil
		})
	}
	_ = g.Wait()

	var failures []domain.RepositoryFailure
	okCount := 0
	for i, err := range errs {
		if err == nil {
			okCount++
			continue
		}
		failure := domain.RepositoryFailure{Repository: repos[i].Location(), Error: err.Error()}
		failures = append(failures, failure)
		h.logger.Error(ctx, "failed to load repository", err, map[string]interface{}{
			"repository": failure.Repository,
		})
		h.reporter.RepositoryFailed(ctx, failure)
	}

	if okCount == 0 {
		return nil, failures
	}
	return loaded, failures
}

// searchAll runs each method on each loaded repository.
func (h *Harvester) searchAll(
	ctx context.Context,
	repos []*domain.Repository,
	methods []domain.SearchMethod,
) ([][]*domain.Findings, []domain.RepositoryFailure) {
	findings := make([][]*domain.Findings, len(repos))
	for i := range findings {
		findings[i] = make([]*domain.Findings, len(methods))
	}

	var (
		mu       sync.Mutex
		failures []domain.RepositoryFailure
	)

	g := new(errgroup.Group)
	if h.workers > 0 {
		g.SetLimit(h.workers)
	}
	for ri, repo := range repos {
		if repo == nil {
			continue
		}
		for mi, method := range methods {
			g.Go(func() error {
				f, err := h.runMethod(ctx, repo, method)
				if err != nil {
					failure := domain.RepositoryFailure{
						Repository: repo.Name,
						Method:     method.Name(),
						Error:      err.Error(),
					}
					h.logger.Error(ctx, "search method failed", err, map[string]interface{}{
						"repository": repo.Name,
						"method":     method.Name(),
					})
					h.reporter.RepositoryFailed(ctx, failure)
					mu.Lock()
					failures = append(failures, failure)
					mu.Unlock()
					return nil
				}
				findings[ri][mi] = f
				return nil
			})
		}
	}
	_ = g.Wait()

	return findings, failures
}

func (h *Harvester) runMethod(ctx context.Context, repo *domain.Repository, method domain.SearchMethod) (*domain.Findings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	f, err := safeFind(ctx, method, repo)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = &domain.Findings{}
	}
	elapsed := time.Since(start)

	for _, s := range f.Skipped {
		h.reporter.CommitSkipped(ctx, repo.Name, method.Name(), s)
	}
	for _, u := range f.Unresolved {
		h.reporter.ReferenceUnresolved(ctx, repo.Name, method.Name(), u)
	}
	h.reporter.MethodCompleted(ctx, repo.Name, method.Name(), len(f.Picks), elapsed)

	h.logger.Debug(ctx, "search method completed", map[string]interface{}{
		"repository": repo.Name,
		"method":     method.Name(),
		"found":      len(f.Picks),
		"skipped":    len(f.Skipped),
		"unresolved": len(f.Unresolved),
		"elapsed":    elapsed.String(),
	})

	return f, nil
}

// merge tags findings with their method and drops pairs a method already
// reported for an earlier repository.
func merge(repos []*domain.Repository, methods []domain.SearchMethod, findings [][]*domain.Findings) []domain.SearchResult {
	var results []domain.SearchResult
	for mi, method := range methods {
		seen := domain.NewCherryPickSet()
		for ri, repo := range repos {
			if repo == nil || findings[ri][mi] == nil {
				continue
			}
			for _, f := range findings[ri][mi].Picks {
				if !seen.Add(f.CherryPick) {
					continue
				}
				results = append(results, domain.SearchResult{
					Method:     method.Name(),
					Repository: repo.Name,
					Similarity: f.Similarity,
					CherryPick: f.CherryPick,
				})
			}
		}
	}
	return results
}

func safeLoad(ctx context.Context, loader domain.RepositoryLoader) (repo *domain.Repository, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrRepositoryLoad, r)
		}
	}()
	return loader.Load(ctx)
}

func safeFind(ctx context.Context, method domain.SearchMethod, repo *domain.Repository) (f *domain.Findings, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search method %s panicked: %v", method.Name(), r)
		}
	}()
	return method.Find(ctx, repo)
}
