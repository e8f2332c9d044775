package search

import (
	"fmt"
	"strings"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Short method names accepted on the command line.
const (
	MessageScanAlias    = "message"
	ExactDiffMatchAlias = "exact"
	ApproximateAlias    = "lsh"
)

// DefaultMethods lists the short names of every method.
var DefaultMethods = []string{MessageScanAlias, ExactDiffMatchAlias, ApproximateAlias}

// CanonicalName maps a short or full method name to the full name.
// Matching is case-insensitive.
func CanonicalName(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case MessageScanAlias, strings.ToLower(MessageScanName):
		return MessageScanName, nil
	case ExactDiffMatchAlias, strings.ToLower(ExactDiffMatchName):
		return ExactDiffMatchName, nil
	case ApproximateAlias, strings.ToLower(ApproximateName):
		return ApproximateName, nil
	default:
		return "", fmt.Errorf("%w: unknown search method %q (want %s)",
			domain.ErrInvalidConfig, name, strings.Join(DefaultMethods, ", "))
	}
}

// NewMethods builds the named methods in the given order. Duplicates are
// rejected so every result stays attributable to a single method.
func NewMethods(names []string, cfg ApproximateConfig) ([]domain.SearchMethod, error) {
	if len(names) == 0 {
		return nil, domain.ErrNoMethods
	}

	seen := map[string]bool{}
	methods := make([]domain.SearchMethod, 0, len(names))
	for _, n := range names {
		name, err := CanonicalName(n)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: method %s selected twice", domain.ErrInvalidConfig, name)
		}
		seen[name] = true

		switch name {
		case MessageScanName:
			methods = append(methods, NewMessageScan())
		case ExactDiffMatchName:
			methods = append(methods, NewExactDiffMatch(cfg.Workers))
		case ApproximateName:
			m, err := NewApproximateMatch(cfg)
			if err != nil {
				return nil, err
			}
			methods = append(methods, m)
		}
	}
	return methods, nil
}
