package analyzer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var timeRx = regexp.MustCompile(`\[(\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,3}))?\]`)

// TimeToMs converts a clock reading to milliseconds since the start of that
// clock's day.
func TimeToMs(h, m, s, ms int) int64 {
	return ((int64(h)*60+int64(m))*60+int64(s))*1000 + int64(ms)
}

// ParseTimestamp returns the first [hh:mm:ss] or [hh:mm:ss.m{1,3}] stamp in
// line. Fractions shorter than three digits are right-padded: ".5" is 500ms.
func ParseTimestamp(line string) (int64, bool) {
	m := timeRx.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	ms := 0
	if m[4] != "" {
		frac := m[4] + strings.Repeat("0", 3-len(m[4]))
		ms, _ = strconv.Atoi(frac)
	}
	return TimeToMs(h, mi, s, ms), true
}

// FormatMs renders ms as hh:mm:ss.mmm. Negative values are clamped to zero.
func FormatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
