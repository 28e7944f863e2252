package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/parasort/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "parasort",
	Short: "Classify notes into PARA folders",
	Long: "parasort scores notes against weighted rules, files them into a PARA bucket " +
		"with tags, and learns from the corrections you make.",
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides PARASORT_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.config/parasort/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(classifyAllCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(weightsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then PARASORT_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}
