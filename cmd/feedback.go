package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/parasort/internal/para"
	"github.com/abhisek/parasort/internal/store"
	"github.com/abhisek/parasort/internal/ui/components"
)

var correctCmd = &cobra.Command{
	Use:   "correct <result-id> <category>",
	Short: "Record a correction for a stored result",
	Long: "Record that a stored result should have been <category>. Weights change at the " +
		"next recompute, or immediately with --recompute.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bucket, _ := cmd.Flags().GetString("bucket")
		tagList, _ := cmd.Flags().GetString("tags")
		recompute, _ := cmd.Flags().GetBool("recompute")

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.close()

		res, err := d.learning.Result(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no stored result %q", args[0])
		}
		if err != nil {
			return err
		}

		rec, err := d.learning.RecordCorrection(ctx, res, args[1], bucket, components.ParseTags(tagList))
		if err != nil {
			return err
		}
		fmt.Printf("Recorded correction #%d: %s %s → %s\n", rec.Sequence, rec.NoteID, rec.OriginalCategory, rec.CorrectedCategory)

		if recompute {
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

var acceptCmd = &cobra.Command{
	Use:   "accept <result-id>...",
	Short: "Confirm stored results as correct",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.close()

		var errs []error
		for _, id := range args {
			if err := d.learning.Accept(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("accept %s: %w", id, err))
				continue
			}
			fmt.Println("Accepted", id)
		}
		return errors.Join(errs...)
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Fold new corrections into the learned weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.close()

		before := d.learning.Weights()
		after, err := d.learning.RecomputeWeights(cmd.Context())
		if err != nil {
			return err
		}
		if after.Version() == before.Version() {
			fmt.Printf("No new corrections; weights stay at v%d.\n", after.Version())
			return nil
		}
		d.metrics.Recomputed(after.Version())
		fmt.Printf("Weights v%d → v%d (%d learned pairs, through correction #%d)\n",
			before.Version(), after.Version(), after.Len(), after.LastSequence())
		return nil
	},
}

func init() {
	correctCmd.Flags().String("bucket", "", "Corrected PARA bucket ("+bucketNames()+")")
	correctCmd.Flags().String("tags", "", "Corrected tags, comma separated")
	correctCmd.Flags().Bool("recompute", false, "Recompute weights after recording")
}

func bucketNames() string {
	var names []string
	for _, b := range para.Buckets {
		names = append(names, string(b))
	}
	return strings.Join(names, ", ")
}
