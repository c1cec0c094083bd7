package analyzer

import (
	"sort"
	"strings"
)

// Aggregate emits one banner per code seen in windows, ordered numerically.
func Aggregate(windows []Window, precursors []PrecursorEvent, drives []DriveEvent) []CodeBanner {
	byCode := make(map[string]*CodeBanner)
	var codes []string
	for _, w := range windows {
		b, ok := byCode[w.Code]
		if !ok {
			b = &CodeBanner{Code: w.Code, FirstMs: w.StartMs, LastMs: w.EndMs}
			byCode[w.Code] = b
			codes = append(codes, w.Code)
		}
		b.OccurrenceCount += w.Count
		b.Windows++
		if w.StartMs < b.FirstMs {
			b.FirstMs = w.StartMs
		}
		if w.EndMs > b.LastMs {
			b.LastMs = w.EndMs
		}
	}
	for _, p := range precursors {
		if b, ok := byCode[p.Code]; ok {
			b.PrecursorPresent = true
		}
	}
	for _, d := range drives {
		if b, ok := byCode[d.Code]; ok {
			b.DriveEvidencePresent = true
		}
	}

	SortCodes(codes)
	out := make([]CodeBanner, 0, len(codes))
	for _, c := range codes {
		out = append(out, *byCode[c])
	}
	return out
}

// maxSamples caps the anchor and precursor samples kept per pass.
const maxSamples = 12

// BuildSections summarizes lines per category. Results are sorted by
// category name; file lists are sorted.
func BuildSections(lines []LogLine) []Section {
	type acc struct {
		sec   Section
		files map[string]struct{}
	}
	byCat := make(map[string]*acc)
	for _, l := range lines {
		a, ok := byCat[l.Category]
		if !ok {
			a = &acc{sec: Section{Category: l.Category}, files: map[string]struct{}{}}
			byCat[l.Category] = a
		}
		a.sec.Lines++
		a.files[l.SourceID] = struct{}{}
		if l.TimestampMs == nil {
			continue
		}
		ts := *l.TimestampMs
		if a.sec.FirstMs == nil || ts < *a.sec.FirstMs {
			a.sec.FirstMs = &ts
		}
		if a.sec.LastMs == nil || ts > *a.sec.LastMs {
			a.sec.LastMs = &ts
		}
	}

	out := make([]Section, 0, len(byCat))
	for _, a := range byCat {
		for f := range a.files {
			a.sec.Files = append(a.sec.Files, f)
		}
		sort.Strings(a.sec.Files)
		out = append(out, a.sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// BuildSamples keeps the first anchors and precursors of the pass, keyed by
// the outer archive of their source.
func BuildSamples(anchors []AnchorEvent, precursors []PrecursorEvent) map[string][]Sample {
	out := make(map[string][]Sample)
	for i, a := range anchors {
		if i >= maxSamples {
			break
		}
		k := outerArchive(a.SourceID)
		out[k] = append(out[k], Sample{Kind: "anchor", Code: a.Code, SourceID: a.SourceID, TimestampMs: a.TimestampMs, Text: a.Text})
	}
	for i, p := range precursors {
		if i >= maxSamples {
			break
		}
		k := outerArchive(p.SourceID)
		out[k] = append(out[k], Sample{Kind: "precursor", Code: p.Code, SourceID: p.SourceID, TimestampMs: p.TimestampMs, Text: p.Text})
	}
	return out
}

func outerArchive(sourceID string) string {
	if i := strings.Index(sourceID, ":"); i >= 0 {
		return sourceID[:i]
	}
	return sourceID
}
