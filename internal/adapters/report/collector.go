// Package report collects harvest progress and renders a run summary.
package report

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Logger is the logging interface needed by the collector.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// MethodStats aggregates the activity of one search method across repositories.
type MethodStats struct {
	Found      int
	Skipped    int
	Unresolved int
	Elapsed    time.Duration
	Reasons    map[string]int
}

// Collector implements domain.Reporter. It counts skipped commits, unresolved
// references and failures per method and forwards them to a logger.
type Collector struct {
	m        sync.Mutex
	logger   Logger
	methods  map[string]*MethodStats
	failures []domain.RepositoryFailure
}

// NewCollector creates a Collector. log may be nil.
func NewCollector(log Logger) *Collector {
	return &Collector{
		logger:  log,
		methods: map[string]*MethodStats{},
	}
}

func (c *Collector) method(name string) *MethodStats {
	s := c.methods[name]
	if s == nil {
		s = &MethodStats{Reasons: map[string]int{}}
		c.methods[name] = s
	}
	return s
}

// CommitSkipped implements domain.Reporter.
func (c *Collector) CommitSkipped(ctx context.Context, repository, method string, skipped domain.SkippedCommit) {
	c.m.Lock()
	s := c.method(method)
	s.Skipped++
	s.Reasons[skipped.Reason]++
	c.m.Unlock()

	if c.logger != nil {
		c.logger.Debug(ctx, "commit skipped", map[string]interface{}{
			"repository": repository,
			"method":     method,
			"commit":     skipped.CommitID,
			"reason":     skipped.Reason,
		})
	}
}

// ReferenceUnresolved implements domain.Reporter.
func (c *Collector) ReferenceUnresolved(ctx context.Context, repository, method string, ref domain.UnresolvedReference) {
	c.m.Lock()
	c.method(method).Unresolved++
	c.m.Unlock()

	if c.logger != nil {
		c.logger.Debug(ctx, "cherry-pick source not found", map[string]interface{}{
			"repository": repository,
			"method":     method,
			"target":     ref.TargetID,
			"source_ref": ref.SourceRef,
		})
	}
}

// RepositoryFailed implements domain.Reporter.
func (c *Collector) RepositoryFailed(ctx context.Context, failure domain.RepositoryFailure) {
	c.m.Lock()
	c.failures = append(c.failures, failure)
	c.m.Unlock()

	if c.logger != nil {
		c.logger.Warn(ctx, "repository skipped", map[string]interface{}{
			"repository": failure.Repository,
			"method":     failure.Method,
			"error":      failure.Error,
		})
	}
}

// MethodCompleted implements domain.Reporter.
func (c *Collector) MethodCompleted(_ context.Context, _, method string, found int, elapsed time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	s := c.method(method)
	s.Found += found
	s.Elapsed += elapsed
}

// Methods returns a copy of the per-method statistics.
func (c *Collector) Methods() map[string]MethodStats {
	c.m.Lock()
	defer c.m.Unlock()
	out := make(map[string]MethodStats, len(c.methods))
	for name, s := range c.methods {
		cp := *s
		cp.Reasons = maps.Clone(s.Reasons)
		out[name] = cp
	}
	return out
}

// Failures returns the failures reported so far.
func (c *Collector) Failures() []domain.RepositoryFailure {
	c.m.Lock()
	defer c.m.Unlock()
	return slices.Clone(c.failures)
}

// WriteSummary renders a human-readable summary of a finished run.
// Found counts are per method before deduplication across repositories.
func (c *Collector) WriteSummary(w io.Writer, out *domain.HarvestOutput) error {
	c.m.Lock()
	defer c.m.Unlock()

	var b strings.Builder
	line := func(key, val string) {
		fmt.Fprintf(&b, "%s%s%s\n", key, strings.Repeat(" ", max(1, 32-len(key))), val)
	}

	b.WriteString("Harvest summary\n")
	b.WriteString("-----------------------\n")
	line("Commits searched", humanize.Comma(int64(out.TotalCommits)))
	line("Results", humanize.Comma(int64(len(out.Results))))

	agreement := domain.Agreement(out.Results)
	shared := 0
	for _, methods := range agreement {
		if len(methods) > 1 {
			shared++
		}
	}
	line("Distinct pairs", humanize.Comma(int64(len(agreement))))
	line("Pairs found by several methods", humanize.Comma(int64(shared)))

	perMethod := map[string][]float64{}
	for _, r := range out.Results {
		perMethod[r.Method] = append(perMethod[r.Method], r.Similarity)
	}

	for _, name := range slices.Sorted(maps.Keys(c.methods)) {
		s := c.methods[name]
		b.WriteString("-----------------------\n")
		b.WriteString(name + "\n")
		line("  results", humanize.Comma(int64(len(perMethod[name]))))
		line("  found (all repositories)", humanize.Comma(int64(s.Found)))
		line("  time", s.Elapsed.Round(time.Millisecond).String())
		if s.Skipped > 0 {
			line("  skipped commits", humanize.Comma(int64(s.Skipped)))
			for _, reason := range slices.Sorted(maps.Keys(s.Reasons)) {
				line("    "+reason, humanize.Comma(int64(s.Reasons[reason])))
			}
		}
		if s.Unresolved > 0 {
			line("  unresolved references", humanize.Comma(int64(s.Unresolved)))
		}
		if q, ok := SimilarityQuantiles(perMethod[name]); ok {
			line("  similarity p10/p50/p90", fmt.Sprintf("%.2f / %.2f / %.2f", q[0], q[1], q[2]))
		}
	}

	if len(c.failures) > 0 {
		b.WriteString("-----------------------\n")
		line("Failures", humanize.Comma(int64(len(c.failures))))
		for _, f := range c.failures {
			where := f.Repository
			if f.Method != "" {
				where += " (" + f.Method + ")"
			}
			line("  "+where, f.Error)
		}
	}
	b.WriteString("-----------------------\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// SimilarityQuantiles returns the 10th, 50th and 90th percentile of the scores.
// It reports false when there is nothing to summarize, which is the case for
// methods that only produce unscored pairs.
func SimilarityQuantiles(scores []float64) ([3]float64, bool) {
	var q [3]float64
	scored := make([]float64, 0, len(scores))
	for _, s := range scores {
		if s > 0 {
			scored = append(scored, s)
		}
	}
	if len(scored) == 0 {
		return q, false
	}
	slices.Sort(scored)
	for i, p := range []float64{0.1, 0.5, 0.9} {
		q[i] = stat.Quantile(p, stat.Empirical, scored, nil)
	}
	return q, true
}
