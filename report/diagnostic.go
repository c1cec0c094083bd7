package report

import (
	"fmt"
	"regexp"
	"strings"

	"oht-analyzer/analyzer"
	"oht-analyzer/rules"
	"oht-analyzer/symbols"
)

const (
	topEvidence   = 3
	snippetBlocks = 2
	logSamples    = 3
)

var axisRx = regexp.MustCompile(`AXIS(\d)`)

// Diagnostic is the structured evidence for one banner. It carries facts
// only; turning them into prose is left to whoever consumes it.
type Diagnostic struct {
	Code       string   `json:"code"`
	Name       string   `json:"name,omitempty"`
	Codebase   string   `json:"codebase,omitempty"`
	Summary    string   `json:"summary"`
	Axis       string   `json:"axis,omitempty"`
	Precursors []string `json:"precursors,omitempty"`
	Drive      []string `json:"drive,omitempty"`
	LogSamples []string `json:"log_samples,omitempty"`
	Snippets   []string `json:"snippets,omitempty"`
}

// Synthesizer turns a pass result into per-code diagnostics.
type Synthesizer interface {
	Synthesize(res *analyzer.Result) ([]Diagnostic, error)
}

// EvidenceSynthesizer collects the evidence already present in a result
// and the symbol index.
type EvidenceSynthesizer struct {
	Catalog *rules.Catalog
	Index   *symbols.Index
}

var _ Synthesizer = (*EvidenceSynthesizer)(nil)

func NewEvidenceSynthesizer(cat *rules.Catalog, idx *symbols.Index) *EvidenceSynthesizer {
	return &EvidenceSynthesizer{Catalog: cat, Index: idx}
}

// Names is the code->name table used for banners: confirm map overlaid by
// the indexed codebases.
func (s *EvidenceSynthesizer) Names() map[string]string {
	var confirm map[string]string
	if s.Catalog != nil {
		confirm = s.Catalog.ConfirmMap()
	}
	if s.Index == nil {
		if confirm == nil {
			return map[string]string{}
		}
		return confirm
	}
	return s.Index.Names(confirm)
}

func (s *EvidenceSynthesizer) Synthesize(res *analyzer.Result) ([]Diagnostic, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}
	names := s.Names()

	anchors := map[string][]analyzer.AnchorEvent{}
	for _, a := range res.Anchors {
		anchors[a.Code] = append(anchors[a.Code], a)
	}
	precs := map[string][]analyzer.PrecursorEvent{}
	for _, p := range res.Precursors {
		precs[p.Code] = append(precs[p.Code], p)
	}
	drives := map[string][]analyzer.DriveEvent{}
	for _, d := range res.Drives {
		drives[d.Code] = append(drives[d.Code], d)
	}

	out := make([]Diagnostic, 0, len(res.Banners))
	for _, b := range res.Banners {
		d := Diagnostic{
			Code:    b.Code,
			Name:    names[b.Code],
			Summary: BannerLines([]analyzer.CodeBanner{b}, names),
		}
		if _, cb, ok := s.Index.Lookup(b.Code); ok {
			d.Codebase = cb
		}
		d.Axis = s.axis(d.Name)

		for i, p := range precs[b.Code] {
			if i == topEvidence {
				break
			}
			d.Precursors = append(d.Precursors,
				fmt.Sprintf("%s (Δt=%dms): %s", p.SourceID, p.DeltaMs, strings.TrimSpace(p.Text)))
		}
		for i, e := range drives[b.Code] {
			if i == topEvidence {
				break
			}
			d.Drive = append(d.Drive,
				fmt.Sprintf("%s @ %s: %s", e.SourceID, FormatMs(e.TimestampMs), strings.TrimSpace(e.Text)))
		}
		for i, a := range anchors[b.Code] {
			if i == logSamples {
				break
			}
			ts := a.TimestampMs
			d.LogSamples = append(d.LogSamples, OneLine(&ts, a.SourceID, a.Text))
		}
		d.Snippets = s.snippets(b.Code, d.Codebase)
		out = append(out, d)
	}
	return out, nil
}

// axis returns "Hoist(AXIS2)" for a name containing AXIS2, "AXIS7" when
// the index is not in the axis map, or "".
func (s *EvidenceSynthesizer) axis(name string) string {
	m := axisRx.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	if s.Catalog != nil {
		if n := s.Catalog.AxisName(m[1]); n != m[1] {
			return n + "(AXIS" + m[1] + ")"
		}
	}
	return "AXIS" + m[1]
}

// snippets flattens the stored source context of the first provenance
// blocks as "file:line: text".
func (s *EvidenceSynthesizer) snippets(code, codebase string) []string {
	if codebase == "" {
		return nil
	}
	m, ok := s.Index.Map(codebase)
	if !ok {
		return nil
	}
	var out []string
	for i, p := range m.Provenance[code] {
		if i == snippetBlocks {
			break
		}
		for j, line := range p.Context {
			out = append(out, fmt.Sprintf("%s:%d: %s", p.File, p.ContextFrom+j, strings.TrimSpace(line)))
		}
	}
	return out
}
