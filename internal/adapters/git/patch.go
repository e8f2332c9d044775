package git

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

// patchContextLines is the number of unchanged lines around each hunk.
const patchContextLines = 3

// filePatch is the rendered diff of one file.
type filePatch struct {
	path string
	text string
}

// renderPatch computes the patch of commit against its first parent.
//
// Files are ordered by path and binary files are left out. Hunk headers are
// reduced to a bare "@@" so that a change applied at a different position
// renders to the same text.
func renderPatch(ctx context.Context, commit *object.Commit) (string, error) {
	parent, err := commit.Parent(0)
	if err != nil {
		return "", fmt.Errorf("failed to get parent of %s: %w", commit.Hash, err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return "", fmt.Errorf("failed to get tree of %s: %w", parent.Hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("failed to get tree of %s: %w", commit.Hash, err)
	}

	changes, err := parentTree.DiffContext(ctx, tree)
	if err != nil {
		return "", fmt.Errorf("failed to diff %s: %w", commit.Hash, err)
	}

	files := make([]filePatch, 0, len(changes))
	for _, change := range changes {
		fp, ok, err := renderChange(change)
		if err != nil {
			return "", err
		}
		if ok {
			files = append(files, fp)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	var b strings.Builder
	for _, f := range files {
		b.WriteString(f.text)
	}
	return b.String(), nil
}

// renderChange renders one file change. ok is false for binary or unchanged content.
func renderChange(change *object.Change) (fp filePatch, ok bool, err error) {
	from, to, err := change.Files()
	if err != nil {
		return filePatch{}, false, fmt.Errorf("failed to read files of change: %w", err)
	}

	fromPath, toPath := change.From.Name, change.To.Name
	if fromPath == "" {
		fromPath = toPath
	}
	if toPath == "" {
		toPath = fromPath
	}

	oldText, binary, err := fileText(from)
	if err != nil || binary {
		return filePatch{}, false, err
	}
	newText, binary, err := fileText(to)
	if err != nil || binary {
		return filePatch{}, false, err
	}

	text, err := unifiedDiff(fromPath, toPath, oldText, newText)
	if err != nil {
		return filePatch{}, false, err
	}
	if text == "" {
		return filePatch{}, false, nil
	}
	return filePatch{path: toPath, text: text}, true, nil
}

// fileText returns the contents of f. A nil file has empty contents.
func fileText(f *object.File) (text string, binary bool, err error) {
	if f == nil {
		return "", false, nil
	}
	binary, err = f.IsBinary()
	if err != nil {
		return "", false, fmt.Errorf("failed to inspect %s: %w", f.Name, err)
	}
	if binary {
		return "", true, nil
	}
	text, err = f.Contents()
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return text, false, nil
}

// unifiedDiff renders a git-style file patch with position-free hunk headers.
// It returns an empty string when both sides are equal.
func unifiedDiff(fromPath, toPath, oldText, newText string) (string, error) {
	if oldText == newText {
		return "", nil
	}

	diff := difflib.UnifiedDiff{
		A:        splitLines(oldText),
		B:        splitLines(newText),
		FromFile: "a/" + fromPath,
		ToFile:   "b/" + toPath,
		Context:  patchContextLines,
	}
	raw, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to render diff of %s: %w", toPath, err)
	}
	if raw == "" {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", fromPath, toPath)
	for _, line := range strings.SplitAfter(raw, "\n") {
		if strings.HasPrefix(line, "@@") {
			b.WriteString("@@\n")
			continue
		}
		b.WriteString(line)
	}
	return b.String(), nil
}

// splitLines splits text into newline-terminated lines.
// Unlike difflib.SplitLines it does not add a trailing empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
