package symbols

import (
	"regexp"
	"strings"
)

// DeclKind is the declaration idiom a symbol was found in.
type DeclKind string

const (
	KindMacro DeclKind = "macro-define"
	KindEnum  DeclKind = "enum-member"
	KindConst DeclKind = "typed-constant"
)

var (
	// Values are decimal only; an optional integer suffix is allowed and a
	// hex literal such as 0x3C0 does not match at all.
	rxDefine    = regexp.MustCompile(`#[ \t]*(?i:define)[ \t]+((?i:ERR_[A-Z0-9_]+))[ \t]+(\d+)[uUlL]*\b`)
	rxEnumBlock = regexp.MustCompile(`\b(?i:enum)\b[^{};]*\{([^}]*)\}`)
	rxEnumKV    = regexp.MustCompile(`((?i:ERR_[A-Z0-9_]+))\s*=\s*(\d+)[uUlL]*\b`)
	rxConst     = regexp.MustCompile(`\b(?i:public)\s+(?i:const)\s+(?i:int)\s+((?i:ERR_[A-Z0-9_]+))\s*=\s*(\d+)\s*;`)
)

// declaration is one ERR_ symbol found in a file.
type declaration struct {
	Name string
	Code string
	Kind DeclKind
	Line int
}

// scanText extracts declarations from one file. Macros come first, then
// enum members, then typed constants, each in file order; callers applying
// them in sequence get last-writer-wins semantics.
func scanText(text string) []declaration {
	var out []declaration
	lines := lineStarts(text)

	for _, m := range rxDefine.FindAllStringSubmatch(text, -1) {
		out = append(out, declaration{
			Name: m[1],
			Code: m[2],
			Kind: KindMacro,
			Line: firstLineContaining(text, m[1]),
		})
	}

	for _, blk := range rxEnumBlock.FindAllStringSubmatchIndex(text, -1) {
		bodyStart, bodyEnd := blk[2], blk[3]
		body := text[bodyStart:bodyEnd]
		for _, kv := range rxEnumKV.FindAllStringSubmatchIndex(body, -1) {
			out = append(out, declaration{
				Name: body[kv[2]:kv[3]],
				Code: body[kv[4]:kv[5]],
				Kind: KindEnum,
				Line: lineAt(lines, bodyStart+kv[0]),
			})
		}
	}

	for _, m := range rxConst.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, declaration{
			Name: text[m[2]:m[3]],
			Code: text[m[4]:m[5]],
			Kind: KindConst,
			Line: lineAt(lines, m[0]),
		})
	}
	return out
}

func firstLineContaining(text, needle string) int {
	for i, ln := range splitLines(text) {
		if strings.Contains(ln, needle) {
			return i + 1
		}
	}
	return -1
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineAt returns the 1-based line containing byte offset off, or -1.
func lineAt(starts []int, off int) int {
	if off < 0 || len(starts) == 0 {
		return -1
	}
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// contextAround returns up to n lines either side of the 1-based line and
// the 1-based number of the first returned line.
func contextAround(lines []string, line, n int) ([]string, int) {
	if n <= 0 || line <= 0 || line > len(lines) {
		return nil, 0
	}
	lo := line - 1 - n
	if lo < 0 {
		lo = 0
	}
	hi := line + n
	if hi > len(lines) {
		hi = len(lines)
	}
	return append([]string(nil), lines[lo:hi]...), lo + 1
}
