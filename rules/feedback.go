package rules

import (
	"fmt"
	"strings"
)

// Feedback is an operator correction for a case. NewPrecursors and
// NewConfusions are regex patterns merged into the rules document.
type Feedback struct {
	Case          string   `json:"case" yaml:"case"`
	Comments      string   `json:"comments,omitempty" yaml:"comments,omitempty"`
	NewPrecursors []string `json:"new_precursors,omitempty" yaml:"new_precursors,omitempty"`
	NewConfusions []string `json:"new_confusions,omitempty" yaml:"new_confusions,omitempty"`
}

// ApplyFeedback returns a copy of doc with the feedback patterns merged into
// precursor_patterns and confusion_whitelist. Existing order is kept and new
// unique patterns are appended. changed is false when nothing was added.
func ApplyFeedback(doc Document, fb Feedback) (Document, bool, error) {
	for i, p := range fb.NewPrecursors {
		if _, err := compilePattern(p); err != nil {
			return doc, false, fmt.Errorf("%w: new precursor[%d] %q: %v", ErrInvalidRules, i, p, err)
		}
	}
	for i, p := range fb.NewConfusions {
		if _, err := compilePattern(p); err != nil {
			return doc, false, fmt.Errorf("%w: new confusion[%d] %q: %v", ErrInvalidRules, i, p, err)
		}
	}

	out := doc.Clone()
	var addedP, addedC bool
	out.PrecursorPatterns, addedP = union(out.PrecursorPatterns, fb.NewPrecursors)
	out.ConfusionWhitelist, addedC = union(out.ConfusionWhitelist, fb.NewConfusions)
	return out, addedP || addedC, nil
}

func union(base, extra []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, p := range base {
		seen[p] = struct{}{}
	}
	added := false
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		base = append(base, p)
		added = true
	}
	return base, added
}
