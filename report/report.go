// Package report renders analysis results as banner text and JSON, and
// builds per-code diagnostic evidence for downstream synthesizers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"oht-analyzer/analyzer"
)

// FormatMs renders milliseconds since midnight as hh:mm:ss.mmm.
func FormatMs(ms int64) string { return analyzer.FormatMs(ms) }

// BannerLines renders one dash-prefixed line per banner. After the "- "
// marker a line reads
//
//	E960 (ERR_AXIS2_SERVO_OFFED): count=5 window=10:00:00.000 ~ 10:05:01.000 | precursor=YES | driving=YES
//
// The parenthesised name is omitted when names has no entry for the code.
func BannerLines(banners []analyzer.CodeBanner, names map[string]string) string {
	var sb strings.Builder
	for i, b := range banners {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- E")
		sb.WriteString(b.Code)
		if n := names[b.Code]; n != "" {
			sb.WriteString(" (")
			sb.WriteString(n)
			sb.WriteByte(')')
		}
		fmt.Fprintf(&sb, ": count=%d window=%s ~ %s | precursor=%s | driving=%s",
			b.OccurrenceCount, FormatMs(b.FirstMs), FormatMs(b.LastMs),
			yesNo(b.PrecursorPresent, "NO"), yesNo(b.DriveEvidencePresent, "UNSURE"))
	}
	return sb.String()
}

func yesNo(v bool, no string) string {
	if v {
		return "YES"
	}
	return no
}

// OneLine renders a single log record as "[hh:mm:ss.mmm] source :: text".
// Untimed records print "--:--:--.---".
func OneLine(ts *int64, sourceID, text string) string {
	stamp := "--:--:--.---"
	if ts != nil {
		stamp = FormatMs(*ts)
	}
	return "[" + stamp + "] " + sourceID + " :: " + strings.TrimSpace(text)
}

// Document is the JSON shape written by WriteJSON.
type Document struct {
	*analyzer.Result
	Names       map[string]string `json:"names"`
	BannerText  string            `json:"banner_text"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
}

// NewDocument assembles the report for one pass. syn may be nil.
func NewDocument(res *analyzer.Result, names map[string]string, syn Synthesizer) (*Document, error) {
	if res == nil {
		return nil, fmt.Errorf("report: nil result")
	}
	doc := &Document{
		Result:     res,
		Names:      names,
		BannerText: BannerLines(res.Banners, names),
	}
	if syn != nil {
		diags, err := syn.Synthesize(res)
		if err != nil {
			return nil, fmt.Errorf("synthesize diagnostics: %w", err)
		}
		doc.Diagnostics = diags
	}
	return doc, nil
}

// WriteJSON writes v as indented JSON without HTML escaping.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
