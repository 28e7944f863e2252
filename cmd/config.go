package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/parasort/internal/config"
	"github.com/abhisek/parasort/internal/para"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and compile the configuration, reporting the first problem",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, compiled, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if _, statErr := os.Stat(path); statErr != nil {
			path = "built-in defaults"
		}
		fmt.Printf("%s: ok (version %s)\n", path, compiled.Version)
		fmt.Printf("  categories  %s\n", strings.Join(compiled.Rules.Categories(), ", "))
		fmt.Printf("  fallback    %s at threshold %.2f\n", compiled.Rules.Fallback(), compiled.Classifier.Policy().Threshold)
		fmt.Printf("  similarity  %s\n", cfg.Similarity.Provider)
		for _, b := range para.Buckets {
			fmt.Printf("  %-11s %s\n", strings.ToLower(string(b)), compiled.Table.Folder(b))
		}
		fmt.Println()
		fmt.Printf("  %-3s  %-14s  %-16s  %s\n", "Row", "Category", "When", "Bucket")
		fmt.Println("  " + strings.Repeat("─", 50))
		for i, r := range compiled.Table.Rows() {
			fmt.Printf("  %-3d  %-14s  %-16s  %s\n", i, r.Category, r.When, r.Bucket)
		}
		return nil
	},
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the built-in configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.OutOrStdout().Write(config.Defaults())
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configDefaultsCmd)
}
