package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"oht-analyzer/analyzer"
	"oht-analyzer/metrics"
	"oht-analyzer/report"
	"oht-analyzer/rules"
	"oht-analyzer/store"
	"oht-analyzer/symbols"
)

var (
	analyzeCodes string
	analyzeJSON  bool
	analyzeOnce  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <bundle|dir|glob>...",
	Short: "Scan log bundles for error anchors and correlate evidence",
	Long: `Reads every log bundle, extracts error-code anchors, merges them into
windows and prints one banner per code.

Examples:
  oht-analyzer analyze logs/vehicle_0412.zip
  oht-analyzer analyze --codes E960,464 --json 'logs/**/*.zip'
  oht-analyzer analyze --once=false --poll-interval 1m logs/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeCodes, "codes", "", "Only these codes, e.g. E960,464")
	f.BoolVar(&analyzeJSON, "json", false, "Write the full report as JSON to stdout")
	f.BoolVar(&analyzeOnce, "once", true, "Run once and exit")
	f.DurationVar(&flags.pollInterval, "poll-interval", 30*time.Second, "Interval between passes with --once=false")
	f.DurationVar(&flags.timeout, "timeout", 0, "Overall timeout for one pass (e.g. 30s, 2m)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	ix, err := loadIndex(ctx, cfg.DB)
	if err != nil && !errors.Is(err, store.ErrNoIndex) {
		return err
	}

	rec := metrics.New()
	holder, err := rules.NewHolder(cfg.Rules, logger)
	if err != nil {
		return err
	}
	holder.OnReload = func(_ *rules.Catalog, err error) { rec.RulesReloaded(err) }

	a := &analysis{
		ix:     ix,
		holder: holder,
		rec:    rec,
		out:    cmd.OutOrStdout(),
		logger: logger,
		paths:  args,
		cfg: analyzer.Config{
			TargetCodes:       analyzer.ParseCodeList(analyzeCodes),
			RequiredCodebases: cfg.Required,
			Concurrency:       cfg.Concurrency,
			Timeout:           cfg.Timeout,
			Encodings:         cfg.Encodings,
			Debug:             cfg.Debug,
			Logger:            logger,
			Metrics:           rec,
		},
	}

	if analyzeOnce {
		return a.pass(ctx)
	}

	go func() {
		if err := holder.Watch(ctx); err != nil {
			logger.Warn("rules watch stopped", "err", err)
		}
	}()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := a.pass(ctx); err != nil {
			logger.Error("analysis pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func loadIndex(ctx context.Context, path string) (*symbols.Index, error) {
	st, err := store.OpenQuery(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.LoadIndex(ctx)
}

type analysis struct {
	ix     *symbols.Index
	holder *rules.Holder
	rec    *metrics.Recorder
	cfg    analyzer.Config
	out    io.Writer
	logger *slog.Logger
	paths  []string
}

// pass runs one analysis with the catalog current at its start.
func (a *analysis) pass(ctx context.Context) error {
	cat := a.holder.Current()
	r, err := analyzer.New(a.cfg, cat, a.ix)
	if err != nil {
		return err
	}
	res, runErr := r.Run(ctx, a.paths)
	if err := a.rec.WriteTextfile(cfg.MetricsFile); err != nil {
		a.logger.Warn("write metrics textfile", "path", cfg.MetricsFile, "err", err)
	}
	if runErr != nil {
		return runErr
	}
	return render(a.out, res, report.NewEvidenceSynthesizer(cat, a.ix), analyzeJSON)
}

func render(w io.Writer, res *analyzer.Result, syn *report.EvidenceSynthesizer, asJSON bool) error {
	names := syn.Names()
	if asJSON {
		doc, err := report.NewDocument(res, names, syn)
		if err != nil {
			return err
		}
		return report.WriteJSON(w, doc)
	}
	if len(res.Banners) == 0 {
		fmt.Fprintln(w, "no error anchors found")
	} else {
		fmt.Fprintln(w, report.BannerLines(res.Banners, names))
	}
	fmt.Fprintf(w, "run=%s rules=%s bundles=%d entries=%d lines=%d timed=%d\n",
		res.RunID, res.RulesVersion, res.Stats.Bundles, res.Stats.Entries, res.Stats.Lines, res.Stats.TimedLines)
	return nil
}
