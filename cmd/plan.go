package cmd

import (
	"context"
	"os"

	"github.com/relloyd/odsync/actions"
	"github.com/spf13/cobra"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the dependency levels of the configured tables without loading them",
	Long: `Print the dependency levels of the configured tables without loading them.
The graph is built from the table config store exactly as "dag" builds it, so a cyclic
dependency is reported here before any table is loaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runPlan()
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	switches.addFlag(planCmd, &planOutput, "output", "yaml", false, "")
}

func runPlan() error {
	ctx := context.Background()
	app, log, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(log, app)
	g, err := app.Plan(ctx)
	if err != nil {
		return err
	}
	return actions.WritePlan(g, planOutput, os.Stdout)
}
