package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/parasort/internal/learning"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded corrections, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		noteID, _ := cmd.Flags().GetString("note")
		category, _ := cmd.Flags().GetString("category")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")
		latest, _ := cmd.Flags().GetBool("latest")
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.close()

		f := learning.Filter{NoteID: noteID, Category: category, Limit: limit, LatestOnly: latest}
		if since > 0 {
			f.From = time.Now().Add(-since)
		}

		out := cmd.OutOrStdout()
		if !asJSON {
			fmt.Fprintf(out, "%-6s  %-19s  %-36s  %-12s  %-12s  %s\n",
				"Seq", "Recorded", "Note", "From", "To", "Bucket")
			fmt.Fprintln(out, strings.Repeat("─", 100))
		}
		n := 0
		for rec, err := range d.learning.History(cmd.Context(), f) {
			if err != nil {
				return err
			}
			n++
			if asJSON {
				if err := writeJSON(out, rec); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(out, "%-6d  %-19s  %-36s  %-12s  %-12s  %s\n",
				rec.Sequence, rec.RecordedAt.Local().Format("2006-01-02 15:04:05"),
				truncate(rec.NoteID, 36), rec.OriginalCategory, rec.CorrectedCategory, rec.CorrectedBucket)
		}
		if n == 0 && !asJSON {
			fmt.Fprintln(out, "No corrections found.")
		}
		return nil
	},
}

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Show the current learned weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.close()

		w := d.learning.Weights()
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, w)
		}

		fmt.Fprintf(out, "Version %d (schema %s), through correction #%d", w.Version(), w.SchemaVersion(), w.LastSequence())
		if !w.UpdatedAt().IsZero() {
			fmt.Fprintf(out, ", updated %s", w.UpdatedAt().Local().Format(time.DateTime))
		}
		fmt.Fprintln(out)
		if w.Len() == 0 {
			fmt.Fprintln(out, "No learned weights yet; configured rule weights apply.")
			return nil
		}

		fmt.Fprintf(out, "\n%-14s  %-40s  %8s  %8s\n", "Category", "Signal", "Learned", "Rule")
		fmt.Fprintln(out, strings.Repeat("─", 78))
		rulesCfg := d.compiled.Rules
		for _, cat := range w.Categories() {
			if category != "" && cat != category {
				continue
			}
			signals := w.Signals(cat)
			slices.Sort(signals)
			for _, key := range signals {
				learned, _ := w.Get(cat, key)
				rule := "-"
				if v, ok := rulesCfg.RuleWeight(cat, key); ok {
					rule = fmt.Sprintf("%.2f", v)
				}
				fmt.Fprintf(out, "%-14s  %-40s  %8.2f  %8s\n", cat, truncate(key, 40), learned, rule)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("note", "", "Only corrections of this note")
	historyCmd.Flags().String("category", "", "Only corrections from or to this category")
	historyCmd.Flags().Duration("since", 0, "Only corrections recorded within this duration (e.g. 168h)")
	historyCmd.Flags().Int("limit", 0, "Keep only the newest N corrections")
	historyCmd.Flags().Bool("latest", false, "Keep only the latest correction per note")
	historyCmd.Flags().Bool("json", false, "Print records as JSON")

	weightsCmd.Flags().String("category", "", "Only this category")
	weightsCmd.Flags().Bool("json", false, "Print the persisted snapshot document")
}
