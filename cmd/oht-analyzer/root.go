package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"oht-analyzer/config"
	"oht-analyzer/logging"
)

var (
	flags flagValues
	cfg   settings
)

var rootCmd = &cobra.Command{
	Use:   "oht-analyzer",
	Short: "Correlate OHT vehicle/motion-controller logs with source error codes",
	Long: `oht-analyzer indexes the error-code symbols declared in the vehicle and
motion controller sources, then scans log bundles for error anchors, merges
them into per-code windows and attaches precursor and drive evidence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		fileCfg := &config.FileConfig{}
		if flags.configPath != "" {
			c, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			fileCfg = c
		}
		cfg = mergeSettings(fileCfg, flags, cmd.Flags().Changed)

		level := logging.ParseLevel(cfg.LogLevel)
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logging.Init(cfg.LogJSON || analyzeJSON, level)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file path")
	pf.StringVar(&flags.db, "db", config.DefaultDB, "SQLite database holding the symbol index and feedback")
	pf.StringVar(&flags.rules, "rules", config.DefaultRules, "Rules YAML file (defaults are used when it does not exist)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Log JSON to stderr")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logs")
	pf.StringSliceVar(&flags.required, "require", nil, "Codebases that must be indexed (default vehicle,motion)")
	pf.IntVar(&flags.concurrency, "concurrency", config.DefaultConcurrency, "Decode/scan workers")
	pf.StringSliceVar(&flags.encodings, "encodings", nil, "Text decoding chain, e.g. utf-8,euc-kr,latin-1")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after each run")
}
