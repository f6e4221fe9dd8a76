package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-window-averager/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.String())
	},
}
