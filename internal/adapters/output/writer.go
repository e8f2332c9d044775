// Package output provides adapters for writing harvest results as YAML or JSON.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Format selects the encoding of a result file.
type Format string

// Supported result file formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want yaml or json)", s)
	}
}

// ResultFile is the document written for one harvest run.
type ResultFile struct {
	RepoName     string         `json:"repo_name" yaml:"repo_name"`
	Repositories []string       `json:"repositories" yaml:"repositories"`
	TotalResults int            `json:"total_number_of_results" yaml:"total_number_of_results"`
	TotalCommits int            `json:"total_number_of_commits" yaml:"total_number_of_commits"`
	StartedAt    string         `json:"started_at" yaml:"started_at"`
	Results      []ResultRecord `json:"results" yaml:"results"`
}

// ResultRecord is one serialized search result.
type ResultRecord struct {
	SearchMethod    string     `json:"search_method" yaml:"search_method"`
	Repository      string     `json:"repository" yaml:"repository"`
	Similarity      float64    `json:"similarity" yaml:"similarity"`
	CherryAndTarget PairRecord `json:"cherry_and_target" yaml:"cherry_and_target"`
}

// PairRecord holds the serialized source ("cherry") and target of a pick.
type PairRecord struct {
	Cherry CommitRecord `json:"cherry" yaml:"cherry"`
	Target CommitRecord `json:"target" yaml:"target"`
}

// CommitRecord is the serialized metadata of a commit.
type CommitRecord struct {
	ID        string   `json:"id" yaml:"id"`
	ParentIDs []string `json:"parent_ids" yaml:"parent_ids"`
	Message   string   `json:"message" yaml:"message"`
	Author    string   `json:"author" yaml:"author"`
	Committer string   `json:"committer" yaml:"committer"`
	Time      string   `json:"time" yaml:"time"`
}

// NewResultFile converts a run and its results into a ResultFile.
func NewResultFile(run domain.RunInfo, results []domain.SearchResult) *ResultFile {
	f := &ResultFile{
		RepoName:     run.Name,
		Repositories: run.Repositories,
		TotalResults: len(results),
		TotalCommits: run.TotalCommits,
		StartedAt:    run.StartedAt.UTC().Format(time.RFC3339),
		Results:      make([]ResultRecord, 0, len(results)),
	}
	for _, r := range results {
		f.Results = append(f.Results, ResultRecord{
			SearchMethod: r.Method,
			Repository:   r.Repository,
			Similarity:   r.Similarity,
			CherryAndTarget: PairRecord{
				Cherry: commitRecord(r.CherryPick.Source.Commit),
				Target: commitRecord(r.CherryPick.Target.Commit),
			},
		})
	}
	return f
}

func commitRecord(c domain.Commit) CommitRecord {
	return CommitRecord{
		ID:        c.ID,
		ParentIDs: c.ParentIDs,
		Message:   c.Message,
		Author:    c.Author,
		Committer: c.Committer,
		Time:      c.Time.UTC().Format(time.RFC3339),
	}
}

// Writer writes result files to a stream or to one file per run in a directory.
// The format is fixed when the writer is created.
type Writer struct {
	out    io.Writer
	dir    string
	format Format
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer, format Format) *Writer {
	return &Writer{out: out, format: format}
}

// NewDirWriter creates a Writer that stores each run as <dir>/<run name>.<format>.
// Runs without results produce no file.
func NewDirWriter(dir string, format Format) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Writer{dir: dir, format: format}, nil
}

// Save implements domain.ResultSink.
func (w *Writer) Save(_ context.Context, run domain.RunInfo, results []domain.SearchResult) error {
	doc := NewResultFile(run, results)

	if w.dir == "" {
		return w.encode(w.out, doc)
	}
	if len(results) == 0 {
		return nil
	}

	path := filepath.Join(w.dir, FileName(run.Name, w.format))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create result file %s: %w", path, err)
	}
	if err := w.encode(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close implements domain.ResultSink.
func (w *Writer) Close() error {
	return nil
}

func (w *Writer) encode(out io.Writer, doc *ResultFile) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode results as JSON: %w", err)
		}
		return nil
	default:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode results as YAML: %w", err)
		}
		return enc.Close()
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName derives a file name from a run name such as an owner/repo or a URL.
func FileName(runName string, format Format) string {
	name := unsafeFileChars.ReplaceAllString(runName, "_")
	if name == "" || name == "." || name == ".." {
		name = "results"
	}
	return name + "." + string(format)
}
