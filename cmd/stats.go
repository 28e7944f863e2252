package cmd

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show classification and learning statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.close()

		st, err := d.learning.Stats(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		policy := d.compiled.Classifier.Policy()
		fmt.Fprintf(out, "%-18s %d\n", "Classifications", st.Classifications)
		fmt.Fprintf(out, "%-18s %d (%.0f%% below the %.2f threshold)\n", "Fell back", st.FellBack, st.FallbackRate()*100, policy.Threshold)
		fmt.Fprintf(out, "%-18s %d\n", "No semantic signal", st.Degraded)
		fmt.Fprintf(out, "%-18s %d\n", "Corrections", st.Corrections)
		fmt.Fprintf(out, "%-18s v%d, %d learned pairs\n", "Weights", st.WeightsVersion, st.LearnedPairs)

		printCounts(out, "Category", st.ByCategory)
		printCounts(out, "Bucket", st.ByBucket)
		printCounts(out, "Status", st.ByStatus)
		return nil
	},
}

// printCounts prints counts by descending count, then name.
func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	fmt.Fprintf(w, "\n%-18s %s\n", title, "Count")
	fmt.Fprintln(w, strings.Repeat("─", 28))
	for _, k := range keys {
		fmt.Fprintf(w, "%-18s %d\n", k, counts[k])
	}
}
