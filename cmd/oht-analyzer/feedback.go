package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"oht-analyzer/rules"
	"oht-analyzer/store"
)

var (
	feedbackCase       string
	feedbackComment    string
	feedbackPrecursors []string
	feedbackConfusions []string
	feedbackList       bool

	saveRules = rules.SaveDocument
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record operator feedback and merge its patterns into the rules",
	Long: `Appends a feedback entry and adds its precursor and confusion patterns to
the rules file. Patterns are validated first; nothing is written on error.

Examples:
  oht-analyzer feedback --case 0412-v12 --precursor 'link\s+flap' --comment "flaps before servo off"
  oht-analyzer feedback --list`,
	Args: cobra.NoArgs,
	RunE: runFeedback,
}

func init() {
	f := feedbackCmd.Flags()
	f.StringVar(&feedbackCase, "case", "", "Case identifier")
	f.StringVar(&feedbackComment, "comment", "", "Free-form comment")
	f.StringArrayVar(&feedbackPrecursors, "precursor", nil, "New precursor pattern (repeatable)")
	f.StringArrayVar(&feedbackConfusions, "confusion", nil, "New confusion whitelist pattern (repeatable)")
	f.BoolVar(&feedbackList, "list", false, "List stored feedback instead of adding")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := store.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	if feedbackList {
		recs, err := st.ListFeedback(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fb, err := r.Feedback()
			if err != nil {
				return fmt.Errorf("feedback %d: %w", r.ID, err)
			}
			fmt.Fprintf(out, "%d\t%s\t%s\tapplied=%t\tprecursors=[%s]\tconfusions=[%s]\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), fb.Case, r.Applied,
				strings.Join(fb.NewPrecursors, " "), strings.Join(fb.NewConfusions, " "), fb.Comments)
		}
		return nil
	}

	if strings.TrimSpace(feedbackCase) == "" {
		return fmt.Errorf("missing --case")
	}
	fb := rules.Feedback{
		Case:          strings.TrimSpace(feedbackCase),
		Comments:      feedbackComment,
		NewPrecursors: cleanList(feedbackPrecursors),
		NewConfusions: cleanList(feedbackConfusions),
	}

	doc, err := rules.LoadDocument(cfg.Rules)
	if err != nil {
		return err
	}
	merged, changed, err := rules.ApplyFeedback(doc, fb)
	if err != nil {
		return err
	}
	// The rules file is written inside the insert's transaction: a failed
	// write drops the record, and a failed insert never reaches the file.
	rec, err := st.RecordFeedback(ctx, fb, changed, func(*store.FeedbackRecord) error {
		if !changed {
			return nil
		}
		if err := saveRules(cfg.Rules, merged); err != nil {
			return fmt.Errorf("save rules: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "feedback %d stored; rules changed=%t\n", rec.ID, changed)
	return nil
}
