// Package symbols builds the error-code symbol index from the vehicle and
// motion source bundles.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"oht-analyzer/archive"
)

const (
	Vehicle = "vehicle"
	Motion  = "motion"

	// CycleMs is the control-loop period of the real system. Informational.
	CycleMs = 1
)

var (
	ErrNoBundles        = errors.New("no source bundles")
	ErrNoSymbols        = errors.New("no error-code symbols found")
	ErrMissingCodebases = errors.New("required codebases missing")
)

// Provenance records where a mapping was found. Line is 1-based, -1 when
// unknown.
type Provenance struct {
	File    string   `json:"file"`
	Name    string   `json:"name"`
	Kind    DeclKind `json:"kind"`
	Line    int      `json:"line"`
	Context []string `json:"context,omitempty"`
	// ContextFrom is the line number of Context[0].
	ContextFrom int `json:"context_from,omitempty"`
}

// SymbolMap is the bidirectional code<->name map of one codebase.
type SymbolMap struct {
	Codebase     string                  `json:"codebase"`
	NumToName    map[string]string       `json:"map_num_to_name"`
	NameToNum    map[string]string       `json:"map_name_to_num"`
	Provenance   map[string][]Provenance `json:"provenance"`
	Files        int                     `json:"files"`
	BundleName   string                  `json:"bundle_name,omitempty"`
	BundleSHA256 string                  `json:"bundle_sha256,omitempty"`
}

func NewSymbolMap(codebase string) *SymbolMap {
	return &SymbolMap{
		Codebase:   codebase,
		NumToName:  map[string]string{},
		NameToNum:  map[string]string{},
		Provenance: map[string][]Provenance{},
	}
}

// Len is the number of distinct numeric codes.
func (m *SymbolMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.NumToName)
}

// Add records one mapping. Later calls overwrite earlier ones in both
// directions; provenance is always appended.
func (m *SymbolMap) Add(code, name string, p Provenance) {
	m.NumToName[code] = name
	m.NameToNum[name] = code
	p.Name = name
	m.Provenance[code] = append(m.Provenance[code], p)
}

// Bundle is one codebase's source. Either Path (directory, zip or file on
// disk) or Data (raw zip bytes) is set.
type Bundle struct {
	Name string
	Path string
	Data []byte
}

type Options struct {
	// ContextLines stores this many source lines either side of each
	// provenance line.
	ContextLines int
	Concurrency  int
	Encodings    []string
	Logger       *slog.Logger
}

// BuildIndex scans every bundle, one codebase per worker. Any codebase
// without symbols fails the whole build.
func BuildIndex(ctx context.Context, bundles map[string]Bundle, opts Options) (*Index, error) {
	if len(bundles) == 0 {
		return nil, ErrNoBundles
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ids := make([]string, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	maps := make([]*SymbolMap, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			m, err := IndexBundle(gctx, id, bundles[id], opts)
			if err != nil {
				return err
			}
			logger.Info("codebase indexed", "codebase", id, "files", m.Files, "symbols", m.Len())
			maps[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewIndex(maps...), nil
}

// IndexBundle scans a single codebase bundle.
func IndexBundle(ctx context.Context, codebase string, b Bundle, opts Options) (*SymbolMap, error) {
	m := NewSymbolMap(codebase)
	m.BundleName = b.Name

	aopts := archive.Options{
		Filter:      archive.SourceFilter,
		Concurrency: opts.Concurrency,
		Encodings:   opts.Encodings,
		Logger:      opts.Logger,
	}

	var entries []archive.Entry
	collect := func(e archive.Entry) error {
		entries = append(entries, e)
		return nil
	}

	data := b.Data
	if data == nil && b.Path != "" {
		if info, err := os.Stat(b.Path); err == nil && !info.IsDir() {
			raw, err := os.ReadFile(b.Path)
			if err != nil {
				return nil, fmt.Errorf("codebase %s: %w", codebase, err)
			}
			data = raw
		}
	}

	var err error
	switch {
	case data != nil:
		name := b.Name
		if name == "" {
			name = filepath.Base(b.Path)
		}
		if m.BundleName == "" {
			m.BundleName = name
		}
		m.BundleSHA256 = archive.HashBytes(data, 0)
		_, err = archive.WalkBytes(ctx, name, data, aopts, collect)
	case b.Path != "":
		if m.BundleName == "" {
			m.BundleName = filepath.Base(b.Path)
		}
		_, err = archive.Walk(ctx, b.Path, aopts, collect)
	default:
		return nil, fmt.Errorf("codebase %s: %w", codebase, archive.ErrEmptyBundle)
	}
	if err != nil && !errors.Is(err, archive.ErrEmptyBundle) {
		return nil, fmt.Errorf("codebase %s: %w", codebase, err)
	}

	// decode order is not deterministic; overwrite order must be
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.Files++
		scanEntry(m, e, opts.ContextLines)
	}

	if m.Len() == 0 {
		return nil, fmt.Errorf("codebase %s (%s): %w", codebase, m.BundleName, ErrNoSymbols)
	}
	return m, nil
}

func scanEntry(m *SymbolMap, e archive.Entry, contextLines int) {
	decls := scanText(e.Text)
	if len(decls) == 0 {
		return
	}
	var lines []string
	if contextLines > 0 {
		lines = splitLines(e.Text)
	}
	for _, d := range decls {
		ctx, from := contextAround(lines, d.Line, contextLines)
		m.Add(d.Code, d.Name, Provenance{
			File:        e.Path,
			Kind:        d.Kind,
			Line:        d.Line,
			Context:     ctx,
			ContextFrom: from,
		})
	}
}

// Index holds the symbol maps of every indexed codebase.
type Index struct {
	maps map[string]*SymbolMap
	// Required lists the codebases a valid analysis session needs.
	Required []string
	CycleMs  int
}

func NewIndex(maps ...*SymbolMap) *Index {
	ix := &Index{
		maps:     make(map[string]*SymbolMap, len(maps)),
		Required: []string{Vehicle, Motion},
		CycleMs:  CycleMs,
	}
	for _, m := range maps {
		ix.Put(m)
	}
	return ix
}

// Put adds or replaces a codebase map.
func (ix *Index) Put(m *SymbolMap) {
	if m == nil {
		return
	}
	ix.maps[m.Codebase] = m
}

func (ix *Index) Map(codebase string) (*SymbolMap, bool) {
	if ix == nil {
		return nil, false
	}
	m, ok := ix.maps[codebase]
	return m, ok
}

// Codebases returns ids in lookup order: vehicle, motion, then the rest
// sorted.
func (ix *Index) Codebases() []string {
	if ix == nil {
		return nil
	}
	var out, rest []string
	for _, id := range []string{Vehicle, Motion} {
		if _, ok := ix.maps[id]; ok {
			out = append(out, id)
		}
	}
	for id := range ix.maps {
		if id != Vehicle && id != Motion {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Lookup resolves a numeric code to its name in the first codebase that
// defines it.
func (ix *Index) Lookup(code string) (name, codebase string, ok bool) {
	for _, id := range ix.Codebases() {
		if n, found := ix.maps[id].NumToName[code]; found {
			return n, id, true
		}
	}
	return "", "", false
}

// LookupName resolves a symbolic name to its numeric code.
func (ix *Index) LookupName(name string) (code, codebase string, ok bool) {
	for _, id := range ix.Codebases() {
		if c, found := ix.maps[id].NameToNum[name]; found {
			return c, id, true
		}
	}
	return "", "", false
}

// Names returns the merged code->name table: confirm first, overlaid by
// every codebase so that vehicle has the final say.
func (ix *Index) Names(confirm map[string]string) map[string]string {
	out := make(map[string]string, len(confirm))
	for k, v := range confirm {
		out[k] = v
	}
	ids := ix.Codebases()
	for i := len(ids) - 1; i >= 0; i-- {
		for code, name := range ix.maps[ids[i]].NumToName {
			out[code] = name
		}
	}
	return out
}

// CheckRequired fails when any of ids is absent or empty.
func (ix *Index) CheckRequired(ids []string) error {
	var missing []string
	for _, id := range ids {
		m, ok := ix.Map(id)
		if !ok || m.Len() == 0 {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCodebases, strings.Join(missing, ", "))
	}
	return nil
}
