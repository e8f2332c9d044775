// Package domain defines the core business entities and interfaces for cherry-harvest.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
	"time"
)

// Domain errors for configuration, repository access and matching.
var (
	// ErrInvalidConfig indicates a search configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid search configuration")

	// ErrNoMethods indicates a harvest was requested without any search method.
	ErrNoMethods = errors.New("no search method configured")

	// ErrRepositoryNotFound indicates the specified path is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrRepositoryLoad indicates a repository could not be cloned or enumerated.
	ErrRepositoryLoad = errors.New("failed to load repository")

	// ErrAllRepositoriesFailed indicates that no repository of a harvest could be loaded.
	ErrAllRepositoriesFailed = errors.New("all repositories failed to load")

	// ErrPatchUnavailable indicates the patch of a commit could not be computed.
	ErrPatchUnavailable = errors.New("patch unavailable")

	// ErrEmptyTokenSet indicates a patch produced no tokens and cannot be signed.
	ErrEmptyTokenSet = errors.New("empty token set")

	// ErrInvalidRepositoryName indicates an owner/repo string could not be parsed.
	ErrInvalidRepositoryName = errors.New("could not parse owner/repo")
)

// RepositoryLoader materializes a repository for searching.
type RepositoryLoader interface {
	// Location is the path or URL that identifies the repository in results.
	Location() string

	// Load enumerates every commit of the repository together with its patch.
	// An error means the whole repository is unusable; per-commit patch
	// failures are carried on Commit.PatchErr instead.
	Load(ctx context.Context) (*Repository, error)
}

// SearchMethod finds cherry picks in a single repository.
type SearchMethod interface {
	// Name is the identifier stored with each SearchResult.
	Name() string

	// Find searches all commits of the repository.
	// Commits the method cannot consider are listed in Findings.Skipped.
	Find(ctx context.Context, repo *Repository) (*Findings, error)
}

// Reporter receives progress and skip information during a harvest.
// Implementations must be safe for concurrent use.
type Reporter interface {
	// CommitSkipped is called for every commit a method could not consider.
	CommitSkipped(ctx context.Context, repository, method string, skipped SkippedCommit)

	// ReferenceUnresolved is called for provenance markers naming unknown commits.
	ReferenceUnresolved(ctx context.Context, repository, method string, ref UnresolvedReference)

	// RepositoryFailed is called when loading a repository or running a method fails.
	RepositoryFailed(ctx context.Context, failure RepositoryFailure)

	// MethodCompleted is called after a method finished on a repository.
	MethodCompleted(ctx context.Context, repository, method string, found int, elapsed time.Duration)
}

// ResultSink persists harvest results.
type ResultSink interface {
	// Save stores the results of a run.
	Save(ctx context.Context, run RunInfo, results []SearchResult) error

	// Close releases any resources held by the sink.
	Close() error
}

// HarvestTracker remembers which repositories were already harvested.
type HarvestTracker interface {
	// Contains reports whether the repository was harvested before.
	Contains(ctx context.Context, repository string) (bool, error)

	// Add marks the repository as harvested.
	Add(ctx context.Context, repository string) error
}

// ResultFilter narrows a result collection, e.g. to exclude likely rebases.
type ResultFilter interface {
	Filter(results []SearchResult) []SearchResult
}
