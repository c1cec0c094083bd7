package analyzer

import (
	"sort"
	"strings"

	"oht-analyzer/rules"
)

// ClassifyText splits a decoded member into lines, tagging each with the
// member's category and its timestamp when present.
func ClassifyText(sourceID, text string, cat *rules.Catalog) []LogLine {
	category := cat.Categorize(sourceID)
	raw := splitLines(text)
	out := make([]LogLine, 0, len(raw))
	for _, ln := range raw {
		l := LogLine{SourceID: sourceID, Category: category, Text: ln}
		if ts, ok := ParseTimestamp(ln); ok {
			l.TimestampMs = &ts
		}
		out = append(out, l)
	}
	return out
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// CodeFilter restricts anchors to a set of normalized codes. A nil or empty
// filter accepts every code.
type CodeFilter map[string]struct{}

func NewCodeFilter(codes []string) CodeFilter {
	if len(codes) == 0 {
		return nil
	}
	f := make(CodeFilter, len(codes))
	for _, c := range codes {
		if c = rules.NormalizeCode(c); c != "" {
			f[c] = struct{}{}
		}
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

func (f CodeFilter) Allows(code string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[code]
	return ok
}

// ParseCodeList splits input such as "E101, 205 e300" into normalized codes,
// dropping empties and duplicates.
func ParseCodeList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		code := rules.NormalizeCode(f)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// ExtractAnchors returns the anchors on timed lines, sorted by time. Lines
// without a timestamp never produce anchors.
func ExtractAnchors(lines []LogLine, cat *rules.Catalog, filter CodeFilter) []AnchorEvent {
	var out []AnchorEvent
	for _, l := range lines {
		if l.TimestampMs == nil {
			continue
		}
		for _, code := range cat.MatchAnchors(l.Text) {
			if !filter.Allows(code) {
				continue
			}
			out = append(out, AnchorEvent{
				Code:        code,
				TimestampMs: *l.TimestampMs,
				SourceID:    l.SourceID,
				Text:        l.Text,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out
}
