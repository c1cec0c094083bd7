package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"oht-analyzer/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate the rules document",
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective rules document as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := rules.Load(cfg.Rules)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cat.Document()); err != nil {
			return err
		}
		return enc.Close()
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Compile a rules file and report problems",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Rules
		if len(args) == 1 {
			path = args[0]
		}
		cat, err := rules.Load(path)
		if err != nil {
			return err
		}
		doc := cat.Document()
		w := cat.Windows()
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s version=%s categories=%d anchors=%d precursors=%d whitelist=%d merge=%dms before=%dms after=%dms\n",
			path, cat.Version(), len(doc.Categories), len(doc.ErrorPatterns.Anchor), len(doc.PrecursorPatterns),
			len(doc.ConfusionWhitelist), w.MergeToleranceMs, w.PrecursorBeforeMs, w.PrecursorAfterMs)
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesShowCmd, rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}
