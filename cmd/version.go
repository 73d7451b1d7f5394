package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information for odsync",
	Long:  `Show version information for odsync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf(`odsync
  Version:	%v
  Build date:	%v
`, version, buildDate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
