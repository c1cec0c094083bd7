package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"oht-analyzer/metrics"
	"oht-analyzer/store"
	"oht-analyzer/symbols"
)

var (
	indexVehicle string
	indexMotion  string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the error-code symbol index from source bundles",
	Long: `Scans the vehicle and motion source bundles (zip, directory or single
file) for ERR_* declarations and saves the code<->name maps.

Examples:
  oht-analyzer index --vehicle vehicle_src.zip --motion motion_src.zip
  oht-analyzer index --source vehicle=./vehicle --source motion=./motion`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexVehicle, "vehicle", "", "Vehicle controller source bundle")
	indexCmd.Flags().StringVar(&indexMotion, "motion", "", "Motion controller source bundle")
	indexCmd.Flags().StringToStringVar(&flags.sources, "source", nil, "Extra codebase=path source bundle (repeatable)")
	indexCmd.Flags().IntVar(&flags.contextLines, "context-lines", defaultContextLines, "Source lines kept either side of each declaration")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sources := map[string]string{}
	for id, p := range cfg.Sources {
		sources[id] = p
	}
	if indexVehicle != "" {
		sources[symbols.Vehicle] = indexVehicle
	}
	if indexMotion != "" {
		sources[symbols.Motion] = indexMotion
	}
	for _, id := range cfg.Required {
		if sources[id] == "" {
			return fmt.Errorf("missing source bundle for %s (use --%s or config sources)", id, id)
		}
	}
	if len(sources) == 0 {
		return symbols.ErrNoBundles
	}

	bundles := make(map[string]symbols.Bundle, len(sources))
	for id, p := range sources {
		bundles[id] = symbols.Bundle{Path: p}
	}
	ix, err := symbols.BuildIndex(ctx, bundles, symbols.Options{
		ContextLines: cfg.ContextLines,
		Concurrency:  cfg.Concurrency,
		Encodings:    cfg.Encodings,
	})
	if err != nil {
		return err
	}
	ix.Required = cfg.Required

	st, err := store.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()
	if err := st.SaveIndex(ctx, ix); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	rec := metrics.New()
	out := cmd.OutOrStdout()
	ids := ix.Codebases()
	sort.Strings(ids)
	for _, id := range ids {
		m, _ := ix.Map(id)
		rec.SetSymbols(id, m.Len())
		fmt.Fprintf(out, "%-8s files=%d symbols=%d bundle=%s sha256=%s\n", id, m.Files, m.Len(), m.BundleName, m.BundleSHA256)
	}
	return rec.WriteTextfile(cfg.MetricsFile)
}
