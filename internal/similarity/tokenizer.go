// Package similarity implements near-duplicate detection of patches:
// tokenization, MinHash signatures, LSH banding, candidate verification
// and grouping of similar commits.
package similarity

import (
	"strconv"
	"unicode"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// TokenSet is the ordered multiset of normalized tokens of one patch.
type TokenSet []string

// Len returns the number of tokens including repetitions.
func (t TokenSet) Len() int {
	return len(t)
}

// Shingles returns the distinct elements of the multiset.
// The k-th occurrence of token t (k >= 2) is encoded as "t#k", so the
// Jaccard similarity of two shingle sets equals the multiset similarity.
func (t TokenSet) Shingles() []string {
	counts := make(map[string]int, len(t))
	shingles := make([]string, 0, len(t))
	for _, tok := range t {
		counts[tok]++
		if n := counts[tok]; n == 1 {
			shingles = append(shingles, tok)
		} else {
			shingles = append(shingles, tok+"#"+strconv.Itoa(n))
		}
	}
	return shingles
}

// Tokenize converts patch text into a TokenSet.
//
// File headers and hunk markers are skipped, and context lines are ignored.
// Every maximal run of letters, digits and underscores on an added or removed
// line becomes a token prefixed with the line's sign, so adding and removing
// the same word yield different tokens.
func Tokenize(patch string) TokenSet {
	var tokens TokenSet
	for _, line := range (domain.Patch{Text: patch}).ChangedLines() {
		tokens = appendWords(tokens, line[:1], line[1:])
	}
	return tokens
}

func appendWords(tokens TokenSet, prefix, text string) TokenSet {
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, prefix+text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, prefix+text[start:])
	}
	return tokens
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
