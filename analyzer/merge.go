package analyzer

import (
	"sort"
	"strconv"
)

// MergeTimestamps builds the windows of one code from its anchor timestamps,
// which must be sorted ascending. A new window starts whenever the gap to
// the current window's end exceeds toleranceMs.
func MergeTimestamps(code string, ts []int64, toleranceMs int64) []Window {
	if len(ts) == 0 {
		return nil
	}
	var out []Window
	cur := Window{Code: code, StartMs: ts[0], EndMs: ts[0], Count: 1}
	for _, t := range ts[1:] {
		if t-cur.EndMs <= toleranceMs {
			cur.EndMs = t
			cur.Count++
			continue
		}
		out = append(out, cur)
		cur = Window{Code: code, StartMs: t, EndMs: t, Count: 1}
	}
	return append(out, cur)
}

// MergeWindows groups anchors per code and merges each group. The result is
// ordered by code (numerically), then by start.
func MergeWindows(anchors []AnchorEvent, toleranceMs int64) []Window {
	perCode := make(map[string][]int64)
	for _, a := range anchors {
		perCode[a.Code] = append(perCode[a.Code], a.TimestampMs)
	}
	codes := make([]string, 0, len(perCode))
	for c := range perCode {
		codes = append(codes, c)
	}
	SortCodes(codes)

	var out []Window
	for _, c := range codes {
		ts := perCode[c]
		sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
		out = append(out, MergeTimestamps(c, ts, toleranceMs)...)
	}
	return out
}

// SortCodes orders codes numerically, falling back to string order for
// codes that are not plain integers.
func SortCodes(codes []string) {
	sort.Slice(codes, func(i, j int) bool { return codeLess(codes[i], codes[j]) })
}

func codeLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		if ai != bi {
			return ai < bi
		}
		return a < b
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}
