// Package analyzer runs the correlation pass: it classifies log lines,
// extracts error-code anchors, merges them into windows, attaches precursor
// and drive evidence and aggregates one banner per code.
package analyzer

// LogLine is one line of one log member. TimestampMs is nil when the line
// carries no [hh:mm:ss] stamp.
type LogLine struct {
	SourceID    string `json:"source_id"`
	Category    string `json:"category"`
	TimestampMs *int64 `json:"timestamp_ms,omitempty"`
	Text        string `json:"text"`
}

// Timed reports whether the line has a timestamp.
func (l LogLine) Timed() bool { return l.TimestampMs != nil }

type AnchorEvent struct {
	Code        string `json:"code"`
	TimestampMs int64  `json:"timestamp_ms"`
	SourceID    string `json:"source_id"`
	Text        string `json:"text"`
}

// Window is a maximal run of same-code anchors. Count is the number of
// anchors merged into it.
type Window struct {
	Code    string `json:"code"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Count   int    `json:"count"`
}

type PrecursorEvent struct {
	Code        string `json:"code"`
	SourceID    string `json:"source_id"`
	Category    string `json:"category"`
	TimestampMs int64  `json:"timestamp_ms"`
	// DeltaMs is TimestampMs minus the window start; negative means before.
	DeltaMs int64  `json:"delta_ms"`
	Text    string `json:"text"`
}

type DriveEvent struct {
	Code        string `json:"code"`
	SourceID    string `json:"source_id"`
	TimestampMs int64  `json:"timestamp_ms"`
	Text        string `json:"text"`
}

const (
	DriveConfirmed   = "confirmed"
	DriveUnconfirmed = "unconfirmed"
)

// CodeBanner summarizes one code across the whole pass.
type CodeBanner struct {
	Code                 string `json:"code"`
	OccurrenceCount      int    `json:"occurrence_count"`
	Windows              int    `json:"windows"`
	FirstMs              int64  `json:"first_ms"`
	LastMs               int64  `json:"last_ms"`
	PrecursorPresent     bool   `json:"precursor_present"`
	DriveEvidencePresent bool   `json:"drive_evidence_present"`
}

// DriveStatus never reports a plain "no": missing drive evidence only
// means driving was not confirmed.
func (b CodeBanner) DriveStatus() string {
	if b.DriveEvidencePresent {
		return DriveConfirmed
	}
	return DriveUnconfirmed
}

// Section is the per-category summary of the pass.
type Section struct {
	Category string   `json:"category"`
	Files    []string `json:"files"`
	Lines    int      `json:"lines"`
	FirstMs  *int64   `json:"first_ms,omitempty"`
	LastMs   *int64   `json:"last_ms,omitempty"`
}

// Sample is an anchor or precursor line kept for display, grouped by the
// outer archive it came from.
type Sample struct {
	Kind        string `json:"kind"`
	Code        string `json:"code"`
	SourceID    string `json:"source_id"`
	TimestampMs int64  `json:"timestamp_ms"`
	Text        string `json:"text"`
}
