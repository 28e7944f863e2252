package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/engine"
	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/vault"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file|->",
	Short: "Classify one note",
	Long:  "Classify a Markdown note. Use - to read the note from standard input.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		id, _ := cmd.Flags().GetString("id")

		note, err := readInput(cmd.InOrStdin(), args[0], id)
		if err != nil {
			return err
		}

		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.close()

		res, err := d.engine.Classify(cmd.Context(), note)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var classifyAllCmd = &cobra.Command{
	Use:   "classify-all <dir>",
	Short: "Classify every note under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.close()

		var notes []features.Note
		var readErrs []error
		for note, err := range vault.Walk(ctx, args[0], d.cfg.Vault.Extensions) {
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				readErrs = append(readErrs, err)
				fmt.Fprintln(os.Stderr, "skip:", err)
				continue
			}
			notes = append(notes, note)
		}

		batch := d.engine.ClassifyAll(ctx, notes)
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			for res := range batch.Results() {
				if err := enc.Encode(res); err != nil {
					batch.Cancel()
					return fmt.Errorf("write result: %w", err)
				}
			}
		} else {
			fmt.Fprintf(out, "%-40s  %-12s  %-10s  %5s  %s\n", "Note", "Category", "Bucket", "Conf", "Folder")
			fmt.Fprintln(out, strings.Repeat("─", 96))
			for res := range batch.Results() {
				fmt.Fprintf(out, "%-40s  %-12s  %-10s  %4.0f%%  %s%s\n",
					truncate(res.NoteID, 40), res.Category, res.Bucket, res.Confidence*100, res.FolderHint, markers(res))
			}
		}

		sum := batch.Summary()
		if !asJSON {
			printSummary(out, sum, len(readErrs))
		}
		if metricsFile != "" {
			if err := d.metrics.WriteTextfile(metricsFile); err != nil {
				return err
			}
		}
		return errors.Join(append(readErrs, sum.Err())...)
	},
}

func init() {
	classifyCmd.Flags().Bool("json", false, "Print the result as JSON")
	classifyCmd.Flags().String("id", "", "Note ID for standard input (default \"stdin\")")

	classifyAllCmd.Flags().Bool("json", false, "Print one JSON result per line")
	classifyAllCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when done")
}

// readInput reads a note from a file, or from r when name is "-".
func readInput(r io.Reader, name, id string) (features.Note, error) {
	if name == "-" {
		content, err := io.ReadAll(r)
		if err != nil {
			return features.Note{}, fmt.Errorf("read stdin: %w", err)
		}
		if id == "" {
			id = "stdin"
		}
		return vault.Parse(id, content)
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return features.Note{}, err
	}
	return vault.ReadNote(filepath.Dir(abs), abs)
}

func printResult(w io.Writer, res *classify.Result) {
	category := res.Category
	if res.FellBack && res.RawCategory != "" && res.RawCategory != res.Category {
		category += fmt.Sprintf(" (best guess %s)", res.RawCategory)
	}
	fmt.Fprintf(w, "%-12s %s\n", "Result", res.ID)
	fmt.Fprintf(w, "%-12s %s\n", "Note", res.NoteID)
	fmt.Fprintf(w, "%-12s %s\n", "Category", category)
	fmt.Fprintf(w, "%-12s %.0f%%\n", "Confidence", res.Confidence*100)
	fmt.Fprintf(w, "%-12s %s  %s\n", "Bucket", res.Bucket, res.FolderHint)
	if res.Project != "" {
		fmt.Fprintf(w, "%-12s %s\n", "Project", res.Project)
	}
	if res.TemplateHint != "" {
		fmt.Fprintf(w, "%-12s %s\n", "Template", res.TemplateHint)
	}
	fmt.Fprintf(w, "%-12s %s\n", "Tags", strings.Join(res.Tags, ", "))
	fmt.Fprintf(w, "%-12s v%d\n", "Weights", res.WeightsVersion)
	if res.WithoutSemanticSignal {
		fmt.Fprintf(w, "%-12s %s\n", "Warning", "classified without semantic signal")
	}
}

func printSummary(w io.Writer, sum engine.Summary, unreadable int) {
	fmt.Fprintln(w, strings.Repeat("─", 96))
	fmt.Fprintf(w, "%d notes, %d classified, %d fell back, %d degraded, %d failed, %d canceled",
		sum.Total, sum.Classified, sum.FellBack, sum.Degraded, sum.Failed(), sum.Canceled())
	if unreadable > 0 {
		fmt.Fprintf(w, ", %d unreadable", unreadable)
	}
	fmt.Fprintf(w, " in %s\n", sum.Elapsed.Round(time.Millisecond))
	for _, f := range sum.Failures {
		if f.Kind != engine.FailureCanceled {
			fmt.Fprintf(w, "  %s\n", f.Error())
		}
	}
}

func markers(res *classify.Result) string {
	var m []string
	if res.FellBack {
		m = append(m, "fallback")
	}
	if res.WithoutSemanticSignal {
		m = append(m, "no-semantic")
	}
	if len(m) == 0 {
		return ""
	}
	return "  [" + strings.Join(m, ",") + "]"
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
