package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/learning"
	"github.com/abhisek/parasort/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Accept or correct stored results in a terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		recompute, _ := cmd.Flags().GetBool("recompute")

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.close()

		items, err := d.learning.Pending(ctx, learning.PendingFilter{FallbackOnly: !all, Limit: limit})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Nothing to review.")
			return nil
		}

		policy := d.compiled.Classifier.Policy()
		outcomes, err := review.Run(ctx, d.learning, items, d.compiled.Rules.Categories(), policy.Threshold)
		if err != nil {
			return err
		}

		var accepted, corrected int
		for _, o := range outcomes {
			switch o.Status {
			case classify.StatusAccepted:
				accepted++
			case classify.StatusCorrected:
				corrected++
			}
		}
		fmt.Printf("Reviewed %d of %d: %d accepted, %d corrected\n", accepted+corrected, len(items), accepted, corrected)

		if recompute && corrected > 0 {
			w, err := d.learning.RecomputeWeights(ctx)
			if err != nil {
				return err
			}
			d.metrics.Recomputed(w.Version())
			fmt.Printf("Weights now at v%d\n", w.Version())
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().Bool("all", false, "Review every unreviewed result, not only fallbacks")
	reviewCmd.Flags().Int("limit", 50, "Maximum results to load")
	reviewCmd.Flags().Bool("recompute", true, "Recompute weights when corrections were made")
}
