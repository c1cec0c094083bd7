package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"oht-analyzer/rules"
	"oht-analyzer/store"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <code|name>...",
	Short: "Resolve error codes to names and back",
	Long: `Looks codes (E960, 960) or names (ERR_AXIS2_SERVO_OFFED) up in the saved
index, falling back to the rules confirm_map.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	ix, err := loadIndex(cmd.Context(), cfg.DB)
	if err != nil && !errors.Is(err, store.ErrNoIndex) {
		return err
	}
	cat, err := rules.Load(cfg.Rules)
	if err != nil {
		return err
	}
	confirm := cat.ConfirmMap()
	out := cmd.OutOrStdout()

	var missing []string
	for _, arg := range args {
		code := rules.NormalizeCode(arg)
		isCode := code != "" && strings.Trim(code, "0123456789") == ""

		var name, cb string
		var ok bool
		if isCode {
			name, cb, ok = ix.Lookup(code)
		} else {
			name = strings.TrimSpace(arg)
			code, cb, ok = ix.LookupName(name)
		}
		if !ok && isCode {
			name, ok = confirm[code]
			cb = "confirm_map"
		}
		if !ok {
			missing = append(missing, arg)
			fmt.Fprintf(out, "%s\tnot found\n", arg)
			continue
		}
		fmt.Fprintf(out, "E%s\t%s\t%s\n", code, name, cb)
		if m, found := ix.Map(cb); found {
			for _, p := range m.Provenance[code] {
				fmt.Fprintf(out, "\t%s:%d (%s)\n", p.File, p.Line, p.Kind)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not found: %s", strings.Join(missing, ", "))
	}
	return nil
}
