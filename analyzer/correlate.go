package analyzer

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"oht-analyzer/rules"
)

type timedLine struct {
	ts      int64
	line    *LogLine
	isPrec  bool
	isDrive bool
}

// timeline is the timed lines of a pass sorted by timestamp, with their
// precursor/drive classification computed once.
type timeline []timedLine

func buildTimeline(lines []LogLine, cat *rules.Catalog) timeline {
	tl := make(timeline, 0, len(lines))
	for i := range lines {
		l := &lines[i]
		if l.TimestampMs == nil {
			continue
		}
		prec, drive := cat.IsPrecursor(l.Text), cat.IsDriveHint(l.Text)
		if !prec && !drive {
			continue
		}
		tl = append(tl, timedLine{ts: *l.TimestampMs, line: l, isPrec: prec, isDrive: drive})
	}
	sort.SliceStable(tl, func(i, j int) bool { return tl[i].ts < tl[j].ts })
	return tl
}

// span returns the index range of lines with lo <= ts <= hi.
func (tl timeline) span(lo, hi int64) (int, int) {
	i := sort.Search(len(tl), func(k int) bool { return tl[k].ts >= lo })
	j := sort.Search(len(tl), func(k int) bool { return tl[k].ts > hi })
	return i, j
}

// Correlate attaches precursor and drive evidence to every window. Each
// window is anchored at its start: precursors fall in
// [start-PrecursorBeforeMs, start+PrecursorAfterMs] and drive hints in
// [start-DriveWindowMs, start+DriveWindowMs]. Candidate lines need not carry
// an error code themselves.
//
// Codes are processed in parallel; the output is ordered by window order,
// then time.
func Correlate(ctx context.Context, windows []Window, lines []LogLine, cat *rules.Catalog, concurrency int) ([]PrecursorEvent, []DriveEvent, error) {
	tl := buildTimeline(lines, cat)
	w := cat.Windows()

	groups := groupByCode(windows)
	precs := make([][]PrecursorEvent, len(groups))
	drives := make([][]DriveEvent, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for gi, group := range groups {
		g.Go(func() error {
			for _, win := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				precs[gi] = append(precs[gi], tl.precursorsFor(win, w)...)
				drives[gi] = append(drives[gi], tl.drivesFor(win, w)...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var outP []PrecursorEvent
	var outD []DriveEvent
	for i := range groups {
		outP = append(outP, precs[i]...)
		outD = append(outD, drives[i]...)
	}
	return outP, outD, nil
}

func (tl timeline) precursorsFor(win Window, w rules.Windows) []PrecursorEvent {
	var out []PrecursorEvent
	i, j := tl.span(win.StartMs-w.PrecursorBeforeMs, win.StartMs+w.PrecursorAfterMs)
	for _, c := range tl[i:j] {
		if !c.isPrec {
			continue
		}
		out = append(out, PrecursorEvent{
			Code:        win.Code,
			SourceID:    c.line.SourceID,
			Category:    c.line.Category,
			TimestampMs: c.ts,
			DeltaMs:     c.ts - win.StartMs,
			Text:        c.line.Text,
		})
	}
	return out
}

func (tl timeline) drivesFor(win Window, w rules.Windows) []DriveEvent {
	var out []DriveEvent
	i, j := tl.span(win.StartMs-w.DriveWindowMs, win.StartMs+w.DriveWindowMs)
	for _, c := range tl[i:j] {
		if !c.isDrive {
			continue
		}
		out = append(out, DriveEvent{
			Code:        win.Code,
			SourceID:    c.line.SourceID,
			TimestampMs: c.ts,
			Text:        c.line.Text,
		})
	}
	return out
}

// groupByCode splits windows into runs of the same code, keeping the input
// order of codes.
func groupByCode(windows []Window) [][]Window {
	var out [][]Window
	idx := make(map[string]int)
	for _, w := range windows {
		i, ok := idx[w.Code]
		if !ok {
			i = len(out)
			idx[w.Code] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], w)
	}
	return out
}
