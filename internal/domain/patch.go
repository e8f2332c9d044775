package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Patch is the textual diff of a commit against its first parent.
type Patch struct {
	// Text is the rendered patch as produced by the repository adapter.
	Text string
}

// IsEmpty reports whether the patch contains no added or removed line.
func (p Patch) IsEmpty() bool {
	empty := true
	p.scanChanges(func(string) bool {
		empty = false
		return false
	})
	return empty
}

// ChangedLines returns the added and removed lines of the patch, each with
// its leading sign. File headers, hunk markers, context lines and
// "\ No newline at end of file" notes are dropped.
func (p Patch) ChangedLines() []string {
	var lines []string
	p.scanChanges(func(line string) bool {
		lines = append(lines, line)
		return true
	})
	return lines
}

// hunkHeader captures the old and new line counts of a unified diff hunk.
// An omitted count means one line.
var hunkHeader = regexp.MustCompile(`^@@ -\d+(?:,(\d+))? \+\d+(?:,(\d+))? @@`)

type scanState int

const (
	// scanHeader skips file headers: diff, index, mode, ---, +++ and Binary lines.
	scanHeader scanState = iota
	// scanCounted reads a hunk whose header carried line counts.
	scanCounted
	// scanOpen reads a hunk with a bare "@@" marker until the next diff or hunk line.
	scanOpen
)

// scanChanges calls fn for every added or removed line until fn returns false.
//
// Text before the first hunk and between a counted hunk and the next one is
// header text, so "---"/"+++" file headers are skipped whether or not a
// "diff --git" line introduces them.
func (p Patch) scanChanges(fn func(line string) bool) {
	state := scanHeader
	oldLeft, newLeft := 0, 0

	for _, line := range strings.Split(p.Text, "\n") {
		if state != scanCounted {
			switch {
			case strings.HasPrefix(line, "diff "):
				state = scanHeader
				continue
			case strings.HasPrefix(line, "@@"):
				var counted bool
				oldLeft, newLeft, counted = hunkCounts(line)
				state = scanOpen
				if counted {
					state = scanCounted
					if oldLeft <= 0 && newLeft <= 0 {
						state = scanHeader
					}
				}
				continue
			case state == scanHeader, strings.HasPrefix(line, `\`):
				continue
			}
			if isChange(line) && !fn(line) {
				return
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, `\`):
			continue
		case strings.HasPrefix(line, "-"):
			oldLeft--
		case strings.HasPrefix(line, "+"):
			newLeft--
		default:
			oldLeft--
			newLeft--
		}
		if oldLeft <= 0 && newLeft <= 0 {
			state = scanHeader
		}
		if isChange(line) && !fn(line) {
			return
		}
	}
}

func isChange(line string) bool {
	return strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-")
}

// hunkCounts parses the line counts of a hunk header. counted is false for
// headers without positions, such as the bare "@@" the git adapter renders.
func hunkCounts(line string) (oldLines, newLines int, counted bool) {
	m := hunkHeader.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	return countOrOne(m[1]), countOrOne(m[2]), true
}

func countOrOne(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
