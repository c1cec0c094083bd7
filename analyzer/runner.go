package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"oht-analyzer/archive"
	"oht-analyzer/metrics"
	"oht-analyzer/rules"
	"oht-analyzer/symbols"
)

var (
	ErrSourcesMissing = errors.New("required source symbol maps missing")
	ErrNoLogBundles   = errors.New("no log bundles given")
	ErrNoLogEntries   = errors.New("no log entries could be read")
	ErrTimeout        = errors.New("timeout exceeded")
)

type Config struct {
	// TargetCodes limits anchors to these codes ("E101" and "101" are the
	// same code). Empty means all codes.
	TargetCodes []string
	// RequiredCodebases must be present and non-empty in the index.
	// Nil means vehicle and motion.
	RequiredCodebases []string
	Concurrency       int
	// Timeout bounds a whole pass; zero means no limit.
	Timeout   time.Duration
	Encodings []string
	Debug     bool
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// Runner executes analysis passes against a fixed catalog and index. Both
// are read-only for the Runner's lifetime.
type Runner struct {
	cfg    Config
	cat    *rules.Catalog
	idx    *symbols.Index
	logger *slog.Logger
}

// Stats counts what a pass read.
type Stats struct {
	Bundles        int           `json:"bundles"`
	BundlesSkipped int           `json:"bundles_skipped"`
	Entries        int           `json:"entries"`
	EntriesSkipped int           `json:"entries_skipped"`
	Lines          int           `json:"lines"`
	TimedLines     int           `json:"timed_lines"`
	Elapsed        time.Duration `json:"elapsed"`
}

type Result struct {
	RunID        string              `json:"run_id"`
	RulesVersion string              `json:"rules_version,omitempty"`
	Anchors      []AnchorEvent       `json:"anchors"`
	Windows      []Window            `json:"windows"`
	Precursors   []PrecursorEvent    `json:"precursors"`
	Drives       []DriveEvent        `json:"drives"`
	Banners      []CodeBanner        `json:"banners"`
	Sections     []Section           `json:"sections"`
	Samples      map[string][]Sample `json:"samples"`
	Stats        Stats               `json:"stats"`
}

func New(cfg Config, cat *rules.Catalog, idx *symbols.Index) (*Runner, error) {
	if cat == nil {
		return nil, fmt.Errorf("rules catalog is required")
	}
	if cfg.RequiredCodebases == nil {
		cfg.RequiredCodebases = []string{symbols.Vehicle, symbols.Motion}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, cat: cat, idx: idx, logger: logger}, nil
}

func (r *Runner) debugf(msg string, args ...any) {
	if r == nil || !r.cfg.Debug {
		return
	}
	r.logger.Debug(msg, args...)
}

// Run performs one pass over the given log bundles. paths may be
// directories, zip files, single files or globs (** allowed).
func (r *Runner) Run(ctx context.Context, paths []string) (res *Result, err error) {
	start := time.Now()
	stats := Stats{}
	var lines []LogLine
	defer func() {
		c := metrics.PassCounts{
			Entries: stats.Entries,
			Skipped: stats.EntriesSkipped,
			Lines:   stats.Lines,
		}
		if res != nil {
			c.Anchors = len(res.Anchors)
			c.Windows = len(res.Windows)
			c.Precursors = len(res.Precursors)
			c.Drives = len(res.Drives)
		}
		r.cfg.Metrics.ObservePass(c, time.Since(start), err)
	}()

	if r.idx == nil {
		return nil, fmt.Errorf("%w: no symbol index", ErrSourcesMissing)
	}
	if err := r.idx.CheckRequired(r.cfg.RequiredCodebases); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourcesMissing, err)
	}
	if len(paths) == 0 {
		return nil, ErrNoLogBundles
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	bundles, err := expandInputs(paths)
	if err != nil {
		return nil, err
	}
	if len(bundles) == 0 {
		return nil, fmt.Errorf("%w: nothing matched %s", ErrNoLogBundles, strings.Join(paths, ", "))
	}
	r.debugf("run start", "bundles", len(bundles), "timeout", r.cfg.Timeout, "targets", r.cfg.TargetCodes)

	for _, b := range bundles {
		if err := checkBudget(ctx); err != nil {
			return nil, err
		}
		stats.Bundles++
		bl, st, err := r.readBundle(ctx, b)
		stats.Entries += st.Entries
		stats.EntriesSkipped += st.Skipped
		if err != nil {
			if ctx.Err() != nil {
				return nil, checkBudget(ctx)
			}
			stats.BundlesSkipped++
			r.logger.Warn("skip log bundle", "path", b, "err", err)
			continue
		}
		r.debugf("bundle read", "path", b, "entries", st.Entries, "skipped", st.Skipped, "lines", len(bl))
		lines = append(lines, bl...)
	}
	if stats.Entries == 0 {
		return nil, ErrNoLogEntries
	}
	stats.Lines = len(lines)
	for _, l := range lines {
		if l.Timed() {
			stats.TimedLines++
		}
	}

	if err := checkBudget(ctx); err != nil {
		return nil, err
	}
	anchors := ExtractAnchors(lines, r.cat, NewCodeFilter(r.cfg.TargetCodes))
	windows := MergeWindows(anchors, r.cat.Windows().MergeToleranceMs)

	if err := checkBudget(ctx); err != nil {
		return nil, err
	}
	precursors, drives, err := Correlate(ctx, windows, lines, r.cat, r.cfg.Concurrency)
	if err != nil {
		if berr := checkBudget(ctx); berr != nil {
			return nil, berr
		}
		return nil, err
	}

	res = &Result{
		RunID:      uuid.NewString(),
		Anchors:    anchors,
		Windows:    windows,
		Precursors: precursors,
		Drives:     drives,
		Banners:    Aggregate(windows, precursors, drives),
		Sections:   BuildSections(lines),
		Samples:    BuildSamples(anchors, precursors),
	}
	if v := r.cat.Version(); v != nil {
		res.RulesVersion = v.String()
	}
	stats.Elapsed = time.Since(start)
	res.Stats = stats

	r.logger.Info("analysis done",
		"run_id", res.RunID,
		"bundles", stats.Bundles,
		"entries", stats.Entries,
		"lines", stats.Lines,
		"anchors", len(anchors),
		"windows", len(windows),
		"codes", len(res.Banners),
		"elapsed", stats.Elapsed,
	)
	return res, nil
}

// readBundle classifies every member of one bundle. Lines come back in
// member enumeration order regardless of decode order.
func (r *Runner) readBundle(ctx context.Context, path string) ([]LogLine, archive.Stats, error) {
	type member struct {
		seq   int
		lines []LogLine
	}
	var members []member
	opts := archive.Options{
		Filter:      archive.LogFilter,
		Concurrency: r.cfg.Concurrency,
		Encodings:   r.cfg.Encodings,
		Logger:      r.logger,
	}
	st, err := archive.Walk(ctx, path, opts, func(e archive.Entry) error {
		members = append(members, member{seq: e.Seq, lines: ClassifyText(e.Path, e.Text, r.cat)})
		return nil
	})
	if err != nil {
		return nil, st, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })
	var out []LogLine
	for _, m := range members {
		out = append(out, m.lines...)
	}
	return out, st, nil
}

func checkBudget(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
