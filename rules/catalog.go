package rules

import (
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

// DriveWindowMs is the fixed half-width of the drive evidence window. It is
// not configurable.
const DriveWindowMs int64 = 10000

// DefaultCategory is assigned to files no category rule matches.
const DefaultCategory = "other"

// supportedVersions gates rules documents by their version field.
var supportedVersions = mustConstraint(">= 1.0.0, < 2.0.0")

var ErrInvalidRules = errors.New("invalid rules")

var validate = validator.New()

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Windows are the time parameters of a pass, in milliseconds.
type Windows struct {
	MergeToleranceMs  int64
	PrecursorBeforeMs int64
	PrecursorAfterMs  int64
	DriveWindowMs     int64
}

type compiledCategory struct {
	name string
	rx   *regexp.Regexp
}

// Catalog is the compiled, read-only form of a Document. A Catalog is never
// mutated after Compile; feedback and reloads produce a new Catalog.
type Catalog struct {
	doc        Document
	version    *semver.Version
	categories []compiledCategory
	anchors    []*regexp.Regexp
	precursors []*regexp.Regexp
	whitelist  []*regexp.Regexp
	drive      []*regexp.Regexp
	windows    Windows
}

// Compile validates doc and compiles every pattern. Any invalid field fails
// the whole document.
func Compile(doc Document) (*Catalog, error) {
	doc = doc.Clone()
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	c := &Catalog{doc: doc}
	if strings.TrimSpace(doc.Version) != "" {
		v, err := semver.NewVersion(doc.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidRules, doc.Version, err)
		}
		if !supportedVersions.Check(v) {
			return nil, fmt.Errorf("%w: unsupported version %s", ErrInvalidRules, v)
		}
		c.version = v
	}

	for i, cat := range doc.Categories {
		rx, err := compilePattern(cat.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: categories[%d] %s: %v", ErrInvalidRules, i, cat.Name, err)
		}
		c.categories = append(c.categories, compiledCategory{name: cat.Name, rx: rx})
	}

	var err error
	if c.anchors, err = compileList("error_patterns.anchor", doc.ErrorPatterns.Anchor); err != nil {
		return nil, err
	}
	for i, rx := range c.anchors {
		if rx.NumSubexp() != 1 {
			return nil, fmt.Errorf("%w: error_patterns.anchor[%d]: need exactly one capture group, got %d", ErrInvalidRules, i, rx.NumSubexp())
		}
	}
	if c.precursors, err = compileList("precursor_patterns", doc.PrecursorPatterns); err != nil {
		return nil, err
	}
	if c.whitelist, err = compileList("confusion_whitelist", doc.ConfusionWhitelist); err != nil {
		return nil, err
	}
	if c.drive, err = compileList("drive_keywords", doc.DriveKeywords); err != nil {
		return nil, err
	}

	c.windows = Windows{
		MergeToleranceMs:  secondsToMs(doc.TimeWindowSec.AnchorMerge),
		PrecursorBeforeMs: secondsToMs(doc.TimeWindowSec.PrecursorBefore),
		PrecursorAfterMs:  secondsToMs(doc.TimeWindowSec.PrecursorAfter),
		DriveWindowMs:     DriveWindowMs,
	}
	return c, nil
}

// MustCompile is Compile for documents known to be valid, such as Default().
func MustCompile(doc Document) *Catalog {
	c, err := Compile(doc)
	if err != nil {
		panic(err)
	}
	return c
}

func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + p)
}

func compileList(field string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		rx, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidRules, field, i, err)
		}
		out = append(out, rx)
	}
	return out, nil
}

func secondsToMs(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

// Document returns a copy of the document the catalog was compiled from.
func (c *Catalog) Document() Document { return c.doc.Clone() }

// Version returns the parsed document version, or nil when none was given.
func (c *Catalog) Version() *semver.Version { return c.version }

// Windows returns the pass time parameters in milliseconds.
func (c *Catalog) Windows() Windows { return c.windows }

// Categorize returns the first category whose pattern matches the file name.
// The base name of the innermost member is tried before the full virtual
// path ("outer.zip:dir/inner.log").
func (c *Catalog) Categorize(name string) string {
	base := name
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[i+1:]
	}
	base = path.Base(strings.ReplaceAll(base, "\\", "/"))
	for _, cat := range c.categories {
		if cat.rx.MatchString(base) {
			return cat.name
		}
	}
	for _, cat := range c.categories {
		if cat.rx.MatchString(name) {
			return cat.name
		}
	}
	return DefaultCategory
}

// Vetoed reports whether any confusion-whitelist pattern matches the line.
func (c *Catalog) Vetoed(line string) bool {
	for _, rx := range c.whitelist {
		if rx.MatchString(line) {
			return true
		}
	}
	return false
}

// MatchAnchors returns the normalized codes found on the line, one per anchor
// pattern that matches, in catalog order. A whitelist hit discards every
// anchor on the line.
func (c *Catalog) MatchAnchors(line string) []string {
	var out []string
	for _, rx := range c.anchors {
		m := rx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if c.Vetoed(line) {
			return nil
		}
		if code := NormalizeCode(m[1]); code != "" {
			out = append(out, code)
		}
	}
	return out
}

// IsPrecursor reports whether the line matches any precursor pattern.
func (c *Catalog) IsPrecursor(line string) bool {
	return matchAny(c.precursors, line)
}

// IsDriveHint reports whether the line matches any drive keyword pattern.
func (c *Catalog) IsDriveHint(line string) bool {
	return matchAny(c.drive, line)
}

func matchAny(rxs []*regexp.Regexp, s string) bool {
	for _, rx := range rxs {
		if rx.MatchString(s) {
			return true
		}
	}
	return false
}

// AxisName maps an axis index to its label, falling back to the index.
func (c *Catalog) AxisName(idx string) string {
	if v, ok := c.doc.AxisMap[idx]; ok {
		return v
	}
	return idx
}

// ConfirmMap returns a copy of the static code->name overrides.
func (c *Catalog) ConfirmMap() map[string]string {
	return cloneMap(c.doc.ErrorPatterns.ConfirmMap)
}

// NormalizeCode strips surrounding whitespace and one leading E/e.
// An empty result means the code should be dropped.
func NormalizeCode(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "E") || strings.HasPrefix(s, "e") {
		s = s[1:]
	}
	return strings.TrimSpace(s)
}
