package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/parasort/internal/config"
	"github.com/abhisek/parasort/internal/rules"
)

// version is set via -ldflags at build time.
var version = "(devel)"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("parasort", version)
		fmt.Printf("config %s.x, weights schema %s\n", config.SupportedMajor, rules.WeightsSchemaVersion)
	},
}
